package main

import (
	"github.com/citemesh/backend/internal/server"
	"github.com/citemesh/backend/internal/util"
	"github.com/citemesh/backend/pkg/logger"
	"github.com/citemesh/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}

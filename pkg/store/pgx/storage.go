package pgx

import (
	"context"
	"sync"

	"github.com/citemesh/backend/pkg/ai"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// CitationDBStore implements the CitationRepository interface using
// PostgreSQL with pgvector for semantic citation search. The embedding
// client is optional; without one, search falls back to term matching.
type CitationDBStore struct {
	conn     pgxIConn
	aiClient ai.EmbeddingClient
	dbLock   sync.Mutex
}

// NewCitationDBStore creates a CitationDBStore using an existing
// database connection or pool.
func NewCitationDBStore(conn pgxIConn, aiClient ai.EmbeddingClient) *CitationDBStore {
	return &CitationDBStore{
		conn:     conn,
		aiClient: aiClient,
		dbLock:   sync.Mutex{},
	}
}

// GraphDBStore implements the EntityGraphRepository interface on the
// same PostgreSQL instance.
type GraphDBStore struct {
	conn pgxIConn
}

// NewGraphDBStore creates a GraphDBStore using an existing database
// connection or pool.
func NewGraphDBStore(conn pgxIConn) *GraphDBStore {
	return &GraphDBStore{conn: conn}
}

package ai

import (
	"github.com/pkoukk/tiktoken-go"
)

const embedEncoding = "o200k_base"

// TruncateTokens cuts input down to at most maxTokens tokens. Embedding
// endpoints reject over-long inputs, so callers cap the denormalized
// citation blob before sending it. When the encoder cannot be loaded
// the input is returned unchanged.
func TruncateTokens(input string, maxTokens int) string {
	if maxTokens <= 0 || input == "" {
		return input
	}
	enc, err := tiktoken.GetEncoding(embedEncoding)
	if err != nil {
		return input
	}
	tokens := enc.Encode(input, nil, nil)
	if len(tokens) <= maxTokens {
		return input
	}
	return enc.Decode(tokens[:maxTokens])
}

// CountTokens reports the token length of input under the embedding
// encoder, or a rough byte/4 estimate when the encoder is unavailable.
func CountTokens(input string) int {
	enc, err := tiktoken.GetEncoding(embedEncoding)
	if err != nil {
		return len(input) / 4
	}
	return len(enc.Encode(input, nil, nil))
}

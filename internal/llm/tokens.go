package llm

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// TokenEstimator approximates prompt sizes with the cl100k_base encoding.
// If the encoding cannot be loaded it falls back to four bytes per token.
type TokenEstimator struct {
	once   sync.Once
	load   func() (*tiktoken.Tiktoken, error)
	enc    *tiktoken.Tiktoken
	logger *slog.Logger
}

// NewTokenEstimator returns an estimator that loads its encoding on first use.
func NewTokenEstimator(logger *slog.Logger) *TokenEstimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenEstimator{
		load:   func() (*tiktoken.Tiktoken, error) { return tiktoken.GetEncoding("cl100k_base") },
		logger: logger,
	}
}

// Count estimates the number of tokens in text.
func (e *TokenEstimator) Count(text string) int {
	e.once.Do(func() {
		enc, err := e.load()
		if err != nil {
			e.logger.Warn("token encoding unavailable, using byte estimate", "error", err)
			return
		}
		e.enc = enc
	})
	if e.enc == nil {
		return len(text) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}

// CountMessages estimates the tokens sent for messages, as mapped by BuildInput.
func (e *TokenEstimator) CountMessages(messages []models.ChatMessage) int {
	total := 0
	for _, item := range BuildInput(messages) {
		total += e.Count(item.Content)
	}
	return total
}

// Package monitoring - tokens.go estimates token counts for telemetry.
package monitoring

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/toolgate/ollama-gateway/internal/config"
)

// TokenEstimator counts tokens with a tiktoken encoding when available and
// falls back to a characters-per-token ratio otherwise. The exact tokenizer
// of the upstream model is unknown, so counts are estimates either way.
type TokenEstimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenEstimator returns a lazy estimator.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{}
}

// Estimate returns the approximate token count of text.
func (e *TokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(func() {
		// may fail offline; the ratio fallback covers that
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.enc = enc
		}
	})
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return (len(text) + config.TokenEstimateRatio - 1) / config.TokenEstimateRatio
}

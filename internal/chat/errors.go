package chat

import (
	"errors"
	"fmt"

	"github.com/RichardoC/sentichat/internal/db"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("conversation not found")
	ErrEmptyConversation = errors.New("conversation has no user messages to analyze")
	ErrPersistence       = errors.New("persistence error")

	// ErrSentimentUnavailable wraps a provider failure while scoring one
	// message. It is absorbed: the exchange still completes.
	ErrSentimentUnavailable = errors.New("sentiment unavailable")
	// ErrAnalysisUnavailable wraps a provider failure during aggregate
	// analysis. It is returned to the caller.
	ErrAnalysisUnavailable = errors.New("analysis unavailable")
)

func storeErr(op string, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

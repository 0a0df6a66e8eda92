package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/guardian/toxfilter/internal/classify"
)

// ErrPermissionDenied is returned by Transport.DeleteMessage when the
// acting account lacks moderator privilege in the chat. It is an
// expected, recoverable condition: the pipeline logs it and continues.
var ErrPermissionDenied = errors.New("transport: permission denied")

// TransportError reports a delivery failure talking to the chat
// platform (delete or send). It is never retried by the pipeline.
type TransportError struct {
	Op    string // "delete" or "send"
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s failed: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Transport is the narrow surface of the chat platform the pipeline
// acts through. The pipeline never manages connections or their
// lifecycle; it only requests message removal and posts notices.
type Transport interface {
	// DeleteMessage removes a message from a chat. Fails with
	// ErrPermissionDenied or a *TransportError.
	DeleteMessage(ctx context.Context, chatID, messageID string) error

	// SendMessage posts text to a chat. Fails with a *TransportError.
	SendMessage(ctx context.Context, chatID, text string) error
}

// Scorer produces per-category toxicity scores for a text. It is
// satisfied by *classify.Client; tests substitute fakes.
type Scorer interface {
	Score(ctx context.Context, text string) (classify.Scores, error)
}

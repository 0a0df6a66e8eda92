package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/guardian/toxfilter/internal/audit"
	"github.com/guardian/toxfilter/internal/metrics"
	"github.com/guardian/toxfilter/internal/moderation"
)

// Outcome reports what happened to one violating message. Each executor
// step carries its own success flag and error so that failure is a
// first-class, testable value rather than a swallowed exception.
type Outcome struct {
	EvalID  string
	Verdict moderation.Verdict

	Recorded  bool
	AuditID   int64
	RecordErr error

	Deleted   bool
	DeleteErr error

	Warned  bool
	WarnErr error
}

// Executor carries out the moderation action for a violating message:
// append an audit record, delete the message, warn the sender. The
// steps are ordered so that audit durability never depends on transport
// success, and no step failure blocks the steps after it.
type Executor struct {
	log       audit.Log
	transport Transport
}

// NewExecutor creates an Executor writing to the given audit log and
// acting through the given transport.
func NewExecutor(auditLog audit.Log, transport Transport) *Executor {
	return &Executor{log: auditLog, transport: transport}
}

// Execute runs the record-delete-warn sequence for a message the policy
// engine found in violation. Every sub-step failure is captured in the
// returned Outcome and logged; none escalates to the caller. Moderation
// stays best-effort so that a transport or storage problem can never
// crash the message-processing loop.
func (e *Executor) Execute(ctx context.Context, evalID string, msg Message, verdict moderation.Verdict) Outcome {
	out := Outcome{EvalID: evalID, Verdict: verdict}

	// Record first: the audit trail survives even if delete and warn
	// both fail.
	record := &audit.Record{
		ChatID:    msg.ChatID,
		UserID:    msg.SenderID,
		Username:  msg.SenderName,
		Message:   msg.Text,
		Reason:    verdict.Detail,
		CreatedAt: time.Now().UTC(),
	}
	if id, err := e.log.Append(ctx, record); err != nil {
		out.RecordErr = err
		metrics.ActionFailures.WithLabelValues("record").Inc()
		log.Printf("[executor] eval=%s audit append failed: %v", evalID, err)
	} else {
		out.Recorded = true
		out.AuditID = id
	}

	// Delete commonly fails when the bot is not an admin in the chat.
	// Expected and recoverable: log, don't retry.
	if err := e.transport.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		out.DeleteErr = err
		metrics.ActionFailures.WithLabelValues("delete").Inc()
		log.Printf("[executor] eval=%s delete chat=%s msg=%s failed: %v",
			evalID, msg.ChatID, msg.MessageID, err)
	} else {
		out.Deleted = true
	}

	if err := e.transport.SendMessage(ctx, msg.ChatID, warningText(msg, verdict)); err != nil {
		out.WarnErr = err
		metrics.ActionFailures.WithLabelValues("warn").Inc()
		log.Printf("[executor] eval=%s warn chat=%s failed: %v", evalID, msg.ChatID, err)
	} else {
		out.Warned = true
	}

	return out
}

// warningText builds the policy-violation notice posted to the chat.
// It names the matched term or category and score, and never echoes the
// offending text back into the chat.
func warningText(msg Message, verdict moderation.Verdict) string {
	who := msg.SenderName
	if who == "" {
		who = msg.SenderID
	}
	return fmt.Sprintf("⚠️ @%s your message was removed.\nReason: %s", who, verdict.Detail)
}

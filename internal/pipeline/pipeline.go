package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guardian/toxfilter/internal/audit"
	"github.com/guardian/toxfilter/internal/classify"
	"github.com/guardian/toxfilter/internal/metrics"
	"github.com/guardian/toxfilter/internal/moderation"
)

// Pipeline evaluates inbound messages and executes moderation actions.
// It holds no per-message state; concurrent ProcessMessage calls are
// independent apart from the audit log and the classifier's read-only
// model, both safe for concurrent use.
type Pipeline struct {
	matcher   *moderation.Matcher
	engine    *moderation.Engine
	scorer    Scorer // nil when the model never initialized
	executor  *Executor
	auditLog  audit.Log
	transport Transport
}

// New wires a Pipeline from its collaborators. scorer may be nil when
// the classifier failed to initialize at process start; the pipeline
// then runs lexical-only moderation.
func New(matcher *moderation.Matcher, engine *moderation.Engine, scorer Scorer, auditLog audit.Log, transport Transport) *Pipeline {
	return &Pipeline{
		matcher:   matcher,
		engine:    engine,
		scorer:    scorer,
		executor:  NewExecutor(auditLog, transport),
		auditLog:  auditLog,
		transport: transport,
	}
}

// ProcessMessage is the single entry point the transport layer calls per
// inbound message. It returns a non-nil Outcome when a moderation action
// was taken and nil when the message passed (or was skipped). It never
// returns an error that should terminate the message loop; the error is
// informational only.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg Message) (*Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.EvaluationLatency.Observe(time.Since(start).Seconds())
	}()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		metrics.MessagesEvaluated.WithLabelValues("skipped").Inc()
		return nil, nil
	}

	// Command-style messages are routed to the admin handler instead of
	// being moderated.
	if strings.HasPrefix(text, "/") {
		metrics.MessagesEvaluated.WithLabelValues("skipped").Inc()
		return nil, p.handleCommand(ctx, msg, text)
	}

	evalID := uuid.NewString()

	// Lexical matching and scoring have no ordering dependency, so run
	// them concurrently per message.
	type scoreResult struct {
		scores classify.Scores
		err    error
	}
	scoreCh := make(chan scoreResult, 1)
	go func() {
		if p.scorer == nil {
			scoreCh <- scoreResult{err: classify.ErrModelUnavailable}
			return
		}
		scores, err := p.scorer.Score(ctx, msg.Text)
		scoreCh <- scoreResult{scores: scores, err: err}
	}()

	matchedWord, matched := p.matcher.Match(msg.Text)

	res := <-scoreCh
	if res.err != nil {
		// Either failure kind means "no verdict from this signal";
		// evaluation degrades to lexical-only for this message.
		var scoringErr *classify.ScoringError
		switch {
		case errors.Is(res.err, classify.ErrModelUnavailable):
			metrics.ClassifierErrors.WithLabelValues("unavailable").Inc()
			log.Printf("[pipeline] eval=%s classifier unavailable, lexical-only", evalID)
		case errors.As(res.err, &scoringErr):
			metrics.ClassifierErrors.WithLabelValues("scoring").Inc()
			log.Printf("[pipeline] eval=%s scoring failed: %v", evalID, res.err)
		default:
			metrics.ClassifierErrors.WithLabelValues("scoring").Inc()
			log.Printf("[pipeline] eval=%s classifier error: %v", evalID, res.err)
		}
		res.scores = nil
	}

	verdict := p.engine.Evaluate(matchedWord, matched, res.scores)
	if !verdict.Violates {
		metrics.MessagesEvaluated.WithLabelValues("clean").Inc()
		return nil, nil
	}

	metrics.MessagesEvaluated.WithLabelValues("violation").Inc()
	metrics.Verdicts.WithLabelValues(string(verdict.Reason)).Inc()
	log.Printf("[pipeline] eval=%s FLAGGED chat=%s sender=%s reason=%s detail=%q",
		evalID, msg.ChatID, msg.SenderID, verdict.Reason, verdict.Detail)

	outcome := p.executor.Execute(ctx, evalID, msg, verdict)
	return &outcome, nil
}

// handleCommand serves admin commands posted in the chat. Only
// "/removed [n]" is recognized: it replies with the chat's most recent
// audit entries.
func (p *Pipeline) handleCommand(ctx context.Context, msg Message, text string) error {
	fields := strings.Fields(text)
	if fields[0] != "/removed" {
		return nil // unknown commands are ignored
	}

	limit := 0
	if len(fields) > 1 {
		if n, err := strconv.Atoi(fields[1]); err == nil {
			limit = n
		}
	}

	records, err := p.auditLog.QueryRecent(ctx, msg.ChatID, limit)
	if err != nil {
		log.Printf("[pipeline] removed query chat=%s failed: %v", msg.ChatID, err)
		return err
	}

	reply := formatRemoved(records)
	if err := p.transport.SendMessage(ctx, msg.ChatID, reply); err != nil {
		log.Printf("[pipeline] removed reply chat=%s failed: %v", msg.ChatID, err)
		return err
	}
	return nil
}

// formatRemoved renders audit records as a chat-friendly listing.
func formatRemoved(records []audit.Record) string {
	if len(records) == 0 {
		return "No removed messages in this chat."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d removed message(s):\n", len(records))
	for _, r := range records {
		who := r.Username
		if who == "" {
			who = r.UserID
		}
		fmt.Fprintf(&b, "• %s @%s: %s\n", r.CreatedAt.UTC().Format(time.RFC3339), who, r.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

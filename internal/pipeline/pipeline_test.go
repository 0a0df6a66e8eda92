package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/guardian/toxfilter/internal/audit"
	"github.com/guardian/toxfilter/internal/classify"
	"github.com/guardian/toxfilter/internal/moderation"
)

func newTestPipeline(scorer Scorer, terms []string) (*Pipeline, *audit.MemoryLog, *fakeTransport) {
	log := audit.NewMemoryLog()
	transport := &fakeTransport{}
	p := New(
		moderation.NewMatcher(terms),
		moderation.NewEngine(moderation.DefaultPolicyConfig()),
		scorer,
		log,
		transport,
	)
	return p, log, transport
}

func TestProcessMessage_LexicalViolation(t *testing.T) {
	scorer := &fakeScorer{scores: classify.Scores{"toxicity": 0.1}}
	p, log, transport := newTestPipeline(scorer, []string{"scammer"})

	msg := testMessage() // "you are a scammer"
	out, err := p.ProcessMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if out == nil {
		t.Fatal("expected an action outcome")
	}
	if out.Verdict.Reason != moderation.ReasonLexicalMatch {
		t.Errorf("Reason = %q, want %q", out.Verdict.Reason, moderation.ReasonLexicalMatch)
	}
	if out.Verdict.MatchedWord != "scammer" {
		t.Errorf("MatchedWord = %q, want %q", out.Verdict.MatchedWord, "scammer")
	}
	if out.EvalID == "" {
		t.Error("EvalID not assigned")
	}

	records, _ := log.QueryRecent(context.Background(), msg.ChatID, 10)
	if len(records) != 1 {
		t.Fatalf("got %d audit records, want 1", len(records))
	}
	if !strings.Contains(records[0].Reason, "scammer") {
		t.Errorf("audit reason = %q, want it to contain %q", records[0].Reason, "scammer")
	}
	if len(transport.deleted) != 1 {
		t.Errorf("deleted = %v, want one delete", transport.deleted)
	}
}

func TestProcessMessage_CategoryViolation(t *testing.T) {
	scorer := &fakeScorer{scores: classify.Scores{"toxicity": 0.95}}
	p, log, _ := newTestPipeline(scorer, []string{"scammer"})

	msg := testMessage()
	msg.Text = "a hateful message with no listed words"
	out, err := p.ProcessMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if out == nil {
		t.Fatal("expected an action outcome")
	}
	if out.Verdict.Reason != moderation.ReasonCategoryThreshold {
		t.Errorf("Reason = %q, want %q", out.Verdict.Reason, moderation.ReasonCategoryThreshold)
	}
	if out.Verdict.Category != "toxicity" {
		t.Errorf("Category = %q, want %q", out.Verdict.Category, "toxicity")
	}
	if out.Verdict.Score != 0.95 {
		t.Errorf("Score = %v, want 0.95", out.Verdict.Score)
	}
	if log.Len() != 1 {
		t.Errorf("audit log has %d records, want 1", log.Len())
	}
}

func TestProcessMessage_BenignNoAction(t *testing.T) {
	scorer := &fakeScorer{scores: classify.Scores{"toxicity": 0.1, "insult": 0.05}}
	p, log, transport := newTestPipeline(scorer, []string{"scammer"})

	msg := testMessage()
	msg.Text = "what a lovely day"
	out, err := p.ProcessMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if out != nil {
		t.Fatalf("outcome = %+v, want nil (no action)", out)
	}
	if log.Len() != 0 {
		t.Errorf("audit log has %d records, want 0", log.Len())
	}
	if len(transport.deleted) != 0 || len(transport.sent) != 0 {
		t.Error("transport was called for a clean message")
	}
}

func TestProcessMessage_LexicalWinsOverScores(t *testing.T) {
	scorer := &fakeScorer{scores: classify.Scores{"toxicity": 0.99}}
	p, _, _ := newTestPipeline(scorer, []string{"scammer"})

	out, err := p.ProcessMessage(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if out == nil {
		t.Fatal("expected an action outcome")
	}
	if out.Verdict.Reason != moderation.ReasonLexicalMatch {
		t.Errorf("Reason = %q, want lexical precedence", out.Verdict.Reason)
	}
}

func TestProcessMessage_DegradesWithoutClassifier(t *testing.T) {
	tests := []struct {
		name   string
		scorer Scorer
	}{
		{"nil scorer", nil},
		{"model unavailable", &fakeScorer{err: classify.ErrModelUnavailable}},
		{"scoring error", &fakeScorer{err: &classify.ScoringError{Cause: errors.New("bad encoding")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, log, _ := newTestPipeline(tt.scorer, []string{"scammer"})

			// Lexical moderation still works.
			out, err := p.ProcessMessage(context.Background(), testMessage())
			if err != nil {
				t.Fatalf("ProcessMessage: %v", err)
			}
			if out == nil || out.Verdict.Reason != moderation.ReasonLexicalMatch {
				t.Fatalf("outcome = %+v, want lexical violation", out)
			}

			// A benign message passes instead of crashing.
			msg := testMessage()
			msg.MessageID = "msg-43"
			msg.Text = "a perfectly fine message"
			out, err = p.ProcessMessage(context.Background(), msg)
			if err != nil {
				t.Fatalf("ProcessMessage: %v", err)
			}
			if out != nil {
				t.Fatalf("outcome = %+v, want nil for benign text", out)
			}
			if log.Len() != 1 {
				t.Errorf("audit log has %d records, want 1", log.Len())
			}
		})
	}
}

func TestProcessMessage_EmptyTextSkipped(t *testing.T) {
	p, log, _ := newTestPipeline(nil, []string{"scammer"})

	for _, text := range []string{"", "   ", "\n\t"} {
		msg := testMessage()
		msg.Text = text
		out, err := p.ProcessMessage(context.Background(), msg)
		if err != nil {
			t.Fatalf("ProcessMessage(%q): %v", text, err)
		}
		if out != nil {
			t.Errorf("ProcessMessage(%q) produced an outcome", text)
		}
	}
	if log.Len() != 0 {
		t.Errorf("audit log has %d records, want 0", log.Len())
	}
}

func TestProcessMessage_RemovedCommand(t *testing.T) {
	p, log, transport := newTestPipeline(nil, []string{"scammer"})

	// Seed the audit log with two removals in this chat.
	for i := 0; i < 2; i++ {
		out, err := p.ProcessMessage(context.Background(), testMessage())
		if err != nil || out == nil {
			t.Fatalf("seed removal %d failed: out=%v err=%v", i, out, err)
		}
	}
	if log.Len() != 2 {
		t.Fatalf("audit log has %d records, want 2", log.Len())
	}
	sentBefore := len(transport.sent)

	msg := testMessage()
	msg.Text = "/removed 5"
	out, err := p.ProcessMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("ProcessMessage(/removed): %v", err)
	}
	if out != nil {
		t.Fatal("command message produced a moderation outcome")
	}
	if len(transport.sent) != sentBefore+1 {
		t.Fatalf("sent %d messages, want %d", len(transport.sent), sentBefore+1)
	}
	reply := transport.lastSent()
	if !strings.Contains(reply, "2 removed message") {
		t.Errorf("reply = %q, want removal listing", reply)
	}
	if !strings.Contains(reply, "scammer") {
		t.Errorf("reply = %q, want reasons included", reply)
	}
	// The command itself must not be audited.
	if log.Len() != 2 {
		t.Errorf("audit log has %d records after command, want 2", log.Len())
	}
}

func TestProcessMessage_UnknownCommandIgnored(t *testing.T) {
	p, log, transport := newTestPipeline(nil, []string{"scammer"})

	msg := testMessage()
	msg.Text = "/kick scammer"
	out, err := p.ProcessMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if out != nil {
		t.Fatal("unknown command produced an outcome")
	}
	if log.Len() != 0 || len(transport.sent) != 0 {
		t.Error("unknown command triggered moderation side effects")
	}
}

func TestProcessMessage_IdempotentVerdict(t *testing.T) {
	scorer := &fakeScorer{scores: classify.Scores{"insult": 0.88}}
	p, _, _ := newTestPipeline(scorer, []string{"scammer"})

	msg := testMessage()
	msg.Text = "no listed words here"

	first, err := p.ProcessMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	second, err := p.ProcessMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if first == nil || second == nil {
		t.Fatal("expected outcomes for both evaluations")
	}
	if first.Verdict != second.Verdict {
		t.Errorf("verdicts differ for identical input:\n%+v\n%+v", first.Verdict, second.Verdict)
	}
}

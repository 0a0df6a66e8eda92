// Package pipeline is the moderation decision and action pipeline. It
// combines the lexical matcher and the toxicity classifier into a single
// verdict per message and, on a violation, executes the
// record-delete-warn action sequence with per-step failure isolation.
package pipeline

import "time"

// Message is one inbound group-chat message handed to the pipeline by
// the transport layer. It is immutable once received and owned by the
// pipeline only for the duration of a single evaluation.
type Message struct {
	ChatID     string    `json:"chat_id"`
	MessageID  string    `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

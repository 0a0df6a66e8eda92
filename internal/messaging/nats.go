// Package messaging provides the NATS client the moderation service
// uses to talk to the chat platform: it consumes inbound message events
// and issues delete/send actions to the chat gateway over request/reply.
// The service never terminates chat connections itself; the gateway owns
// them.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/guardian/toxfilter/internal/pipeline"
)

// NATS subject patterns used between the chat gateway and the moderator.
const (
	SubjectChatMessage = "chat.message"       // + .<chat_id>, inbound events
	SubjectChatDelete  = "chat.delete"        // request/reply: remove a message
	SubjectChatSend    = "chat.send"          // request/reply: post a message
	SubjectVerdict     = "moderation.verdict" // + .<chat_id>, published outcomes
)

// replyErrPermissionDenied is the error code the gateway returns when
// the bot account lacks moderator privilege in the chat.
const replyErrPermissionDenied = "permission_denied"

// Client wraps the NATS connection with helper methods for the
// moderation subjects. It implements pipeline.Transport.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription

	// requestTimeout bounds delete/send round trips to the gateway.
	requestTimeout time.Duration
}

// Config holds NATS connection settings.
type Config struct {
	URL            string        // nats://localhost:4222
	Name           string        // client name for identification
	ReconnectWait  time.Duration // time between reconnect attempts
	MaxReconnects  int           // max reconnect attempts (-1 for infinite)
	RequestTimeout time.Duration // timeout for gateway request/reply calls
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:            "nats://localhost:4222",
		Name:           "toxfilter-moderator",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1, // infinite reconnects
		RequestTimeout: 5 * time.Second,
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 5 * time.Second
	}

	return &Client{
		conn:           nc,
		subs:           make(map[string]*nats.Subscription),
		requestTimeout: config.RequestTimeout,
	}, nil
}

// SubscribeMessages registers a handler for inbound chat message events
// across all chats. The handler receives the raw JSON payload of one
// pipeline.Message per event.
func (c *Client) SubscribeMessages(handler func(data []byte)) error {
	subject := SubjectChatMessage + ".>"
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// PublishVerdict publishes a moderation outcome for observers of a chat.
func (c *Client) PublishVerdict(chatID string, data []byte) error {
	return c.conn.Publish(SubjectVerdict+"."+chatID, data)
}

// actionRequest is the payload sent to the gateway's action subjects.
type actionRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// actionReply is the gateway's response to an action request.
type actionReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DeleteMessage asks the gateway to remove a message from a chat. A
// gateway "permission_denied" reply maps to pipeline.ErrPermissionDenied;
// every other failure is a *pipeline.TransportError.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	reply, err := c.request(ctx, SubjectChatDelete, actionRequest{ChatID: chatID, MessageID: messageID})
	if err != nil {
		return &pipeline.TransportError{Op: "delete", Cause: err}
	}
	if !reply.OK {
		if reply.Error == replyErrPermissionDenied {
			return pipeline.ErrPermissionDenied
		}
		return &pipeline.TransportError{Op: "delete", Cause: fmt.Errorf("gateway: %s", reply.Error)}
	}
	return nil
}

// SendMessage asks the gateway to post text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	reply, err := c.request(ctx, SubjectChatSend, actionRequest{ChatID: chatID, Text: text})
	if err != nil {
		return &pipeline.TransportError{Op: "send", Cause: err}
	}
	if !reply.OK {
		return &pipeline.TransportError{Op: "send", Cause: fmt.Errorf("gateway: %s", reply.Error)}
	}
	return nil
}

// request performs one request/reply round trip with the gateway.
func (c *Client) request(ctx context.Context, subject string, req actionRequest) (*actionReply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}

	var reply actionReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("unmarshal reply: %w", err)
	}
	return &reply, nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

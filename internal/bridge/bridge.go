// Package bridge implements the intelligence delegation layer. The engine
// "calls an LLM" by registering a pending request here and handing an
// envelope to the external client; the client later delivers the raw
// completion through ProcessResponse, which validates it against the
// registered schema and wakes the waiter.
package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"forest/internal/logging"
	"forest/internal/types"
)

const (
	// RequestType is the stable wire tag for outbound envelopes.
	RequestType = "CLAUDE_INTELLIGENCE_REQUEST"
	// ResponseType is the stable wire tag for normalized responses.
	ResponseType = "INTELLIGENCE_RESPONSE"

	processingInstructions = "Complete the prompt and return ONLY the JSON object described by the schema. Deliver it via the process_response tool with this request_id."
)

// Params describes one delegation.
type Params struct {
	System      string
	User        string
	Schema      Schema
	MaxTokens   int
	Temperature float64
}

// PromptSpec is the prompt section of the request envelope.
type PromptSpec struct {
	System string `json:"system"`
	User   string `json:"user"`
	Schema Schema `json:"schema,omitempty"`
}

// Envelope is the request surfaced to the external completer.
type Envelope struct {
	Type                   string     `json:"type"`
	RequestID              string     `json:"request_id"`
	Prompt                 PromptSpec `json:"prompt"`
	ResponseFormat         string     `json:"response_format"`
	ProcessingInstructions string     `json:"processing_instructions"`
	MaxTokens              int        `json:"max_tokens,omitempty"`
	Temperature            float64    `json:"temperature,omitempty"`
}

// ResponseEnvelope is the normalized result of ProcessResponse.
type ResponseEnvelope struct {
	Type     string                 `json:"type"`
	Data     map[string]interface{} `json:"data"`
	Metadata ResponseMetadata       `json:"metadata"`
}

// ResponseMetadata records correlation details for audit.
type ResponseMetadata struct {
	RequestID   string    `json:"request_id"`
	ReceivedAt  time.Time `json:"received_at"`
	SchemaValid bool      `json:"schema_valid"`
}

type pending struct {
	schema  Schema
	created time.Time
	ch      chan map[string]interface{}
}

// Bridge correlates in-process requests with externally delivered
// completions. Safe for concurrent use; requests are identified solely by
// request_id and carry no cross-request ordering guarantees.
type Bridge struct {
	mu             sync.Mutex
	requests       map[string]*pending
	defaultTimeout time.Duration
}

// New creates a bridge with the given default deadline.
func New(defaultTimeout time.Duration) *Bridge {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Bridge{
		requests:       make(map[string]*pending),
		defaultTimeout: defaultTimeout,
	}
}

// Delegate registers a pending request and returns the envelope to be
// surfaced to the external completer.
func (b *Bridge) Delegate(p Params) *Envelope {
	id := uuid.New().String()

	b.mu.Lock()
	b.requests[id] = &pending{
		schema:  p.Schema,
		created: time.Now(),
		ch:      make(chan map[string]interface{}, 1),
	}
	b.mu.Unlock()

	logging.BridgeDebug("delegated request %s (schema keys: %d)", id, len(p.Schema.Required()))
	return &Envelope{
		Type:                   RequestType,
		RequestID:              id,
		Prompt:                 PromptSpec{System: p.System, User: p.User, Schema: p.Schema},
		ResponseFormat:         "structured_json",
		ProcessingInstructions: processingInstructions,
		MaxTokens:              p.MaxTokens,
		Temperature:            p.Temperature,
	}
}

// ProcessResponse correlates an externally delivered completion with its
// pending request, validates it and wakes the waiter. The raw response is
// parsed as JSON; on parse failure with no registered schema it degrades
// to {"content": raw}.
func (b *Bridge) ProcessResponse(requestID, raw string) (*ResponseEnvelope, error) {
	b.mu.Lock()
	entry, ok := b.requests[requestID]
	b.mu.Unlock()
	if !ok {
		return nil, types.Validation("request_id", "unknown or expired request id %q", requestID)
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		if len(entry.schema) > 0 {
			// A malformed delivery burns the request like a schema
			// rejection does; the waiter times out and re-delegates.
			b.remove(requestID)
			logging.Bridge("request %s delivered malformed JSON: %v", requestID, err)
			return nil, types.Validation("response", "response is not valid JSON: %v", err)
		}
		data = map[string]interface{}{"content": raw}
	}

	if err := Validate(data, entry.schema); err != nil {
		// A rejected delivery burns the request; the caller re-delegates
		// rather than retrying the same id.
		b.remove(requestID)
		logging.Bridge("request %s failed schema validation: %v", requestID, err)
		return nil, err
	}

	b.mu.Lock()
	// Re-check under lock: the waiter may have timed out meanwhile.
	if _, still := b.requests[requestID]; !still {
		b.mu.Unlock()
		return nil, types.Validation("request_id", "request %q already resolved or timed out", requestID)
	}
	delete(b.requests, requestID)
	b.mu.Unlock()

	entry.ch <- data

	logging.BridgeDebug("request %s resolved after %s", requestID, time.Since(entry.created))
	return &ResponseEnvelope{
		Type: ResponseType,
		Data: data,
		Metadata: ResponseMetadata{
			RequestID:   requestID,
			ReceivedAt:  time.Now(),
			SchemaValid: true,
		},
	}, nil
}

// Await suspends until the matching ProcessResponse arrives, the context
// is cancelled, or the timeout elapses. On timeout the pending entry is
// removed and a Timeout error is returned.
func (b *Bridge) Await(ctx context.Context, requestID string, timeout time.Duration) (map[string]interface{}, error) {
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}

	b.mu.Lock()
	entry, ok := b.requests[requestID]
	b.mu.Unlock()
	if !ok {
		return nil, types.Validation("request_id", "no pending request %q", requestID)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-entry.ch:
		return data, nil
	case <-ctx.Done():
		b.remove(requestID)
		return nil, ctx.Err()
	case <-timer.C:
		b.remove(requestID)
		return nil, types.Timeout(requestID)
	}
}

// PendingCount reports outstanding delegations (diagnostics).
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func (b *Bridge) remove(requestID string) {
	b.mu.Lock()
	delete(b.requests, requestID)
	b.mu.Unlock()
}

// Package reputation pushes dispute and finalization outcomes to an
// external registry. The push is strictly best-effort: callers discard the
// error through PublishBestEffort and core settlement never blocks on it.
package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/pkg/log"
)

// Outcome is the one-way signal sent to the external registry.
type Outcome struct {
	MessageID  string              `json:"message_id"`
	TaskID     crypto.Hash         `json:"task_id"`
	ExecutorID protocol.ExecutorID `json:"executor_id"`
	Result     string              `json:"result"`
	Evidence   crypto.Hash         `json:"evidence"`
	Metadata   map[string]string   `json:"metadata,omitempty"`
	At         ledgertime.Time     `json:"at"`
}

// NewOutcome builds an outcome with a fresh message id for idempotent
// delivery on the receiving side.
func NewOutcome(taskID crypto.Hash, executorID protocol.ExecutorID, result string, evidence crypto.Hash, at ledgertime.Time) Outcome {
	return Outcome{
		MessageID:  uuid.NewString(),
		TaskID:     taskID,
		ExecutorID: executorID,
		Result:     result,
		Evidence:   evidence,
		At:         at,
	}
}

// Publisher delivers outcomes to an external registry.
type Publisher interface {
	Publish(ctx context.Context, outcome Outcome) error
}

// PublishBestEffort delivers an outcome and swallows any failure, logging
// it as an event. This is the only call path the hub and dispute engine
// use; a nil publisher is a no-op.
func PublishBestEffort(p Publisher, outcome Outcome) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Publish(ctx, outcome); err != nil {
		log.Hub.Warn().
			Err(err).
			Str("task", outcome.TaskID.String()).
			Str("executor", outcome.ExecutorID.String()).
			Msg("reputation publish failed")
	}
}

// HTTPPublisher posts outcomes as JSON to a registry endpoint.
type HTTPPublisher struct {
	url    string
	client *http.Client
}

func NewHTTPPublisher(url string) *HTTPPublisher {
	return &HTTPPublisher{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *HTTPPublisher) Publish(ctx context.Context, outcome Outcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post outcome: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	return nil
}

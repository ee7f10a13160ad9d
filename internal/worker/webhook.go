package worker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Outcome is the normalized job status a webhook reports.
type Outcome string

// Webhook outcomes
const (
	OutcomeProcessing Outcome = "processing"
	OutcomeCompleted  Outcome = "completed"
	OutcomeFailed     Outcome = "failed"
)

// WebhookEvent is a parsed worker status callback.
type WebhookEvent struct {
	ExternalJobID string
	Outcome       Outcome
	// ResultURL is the first output image, empty when the worker sent none.
	ResultURL string
	Error     string
	// TaskID echoes the metadata sent on submit, when the worker returns it.
	TaskID *uuid.UUID
}

type webhookPayload struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Output   json.RawMessage   `json:"output"`
	Error    any               `json:"error"`
	Metadata map[string]string `json:"metadata"`
}

// ParseWebhook decodes a worker callback body.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, fmt.Errorf("%w: missing job id", ErrMalformedWebhook)
	}

	outcome := normalizeStatus(p.Status)
	if outcome == "" {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedWebhook, p.Status)
	}

	event := &WebhookEvent{
		ExternalJobID: p.ID,
		Outcome:       outcome,
		Error:         errorText(p.Error),
	}

	resultURL, err := firstOutput(p.Output)
	if err != nil {
		return nil, err
	}
	event.ResultURL = resultURL

	if raw, ok := p.Metadata["task_id"]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			event.TaskID = &id
		}
	}
	return event, nil
}

// normalizeStatus maps the worker's status vocabulary onto Outcome. Unknown
// statuses map to the empty string.
func normalizeStatus(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "starting", "queued", "processing", "running":
		return OutcomeProcessing
	case "succeeded", "completed", "success":
		return OutcomeCompleted
	case "failed", "canceled", "cancelled", "error":
		return OutcomeFailed
	default:
		return ""
	}
}

// firstOutput accepts an output that is null, a string, or a list of strings.
func firstOutput(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single), nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return "", fmt.Errorf("%w: output must be a string or list of strings", ErrMalformedWebhook)
	}
	for _, s := range many {
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
	}
	return "", nil
}

func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(e)
	default:
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e)
		}
		return string(b)
	}
}

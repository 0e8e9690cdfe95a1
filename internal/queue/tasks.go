package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const TypeMediaUpload = "media:upload"

// UploadPayload points the worker at one staged file.
type UploadPayload struct {
	JobID       string    `json:"job_id"`
	StagingKey  string    `json:"staging_key"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Folder      string    `json:"folder"`
	WebhookURL  string    `json:"webhook_url,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func (p UploadPayload) Validate() error {
	switch {
	case strings.TrimSpace(p.JobID) == "":
		return errors.New("job_id is required")
	case strings.TrimSpace(p.StagingKey) == "":
		return errors.New("staging_key is required")
	case strings.TrimSpace(p.Name) == "":
		return errors.New("name is required")
	case strings.TrimSpace(p.Folder) == "":
		return errors.New("folder is required")
	}
	return nil
}

func NewUploadTask(payload UploadPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid upload payload: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal upload payload: %w", err)
	}
	return asynq.NewTask(TypeMediaUpload, body), nil
}

func ParseUploadPayload(task *asynq.Task) (UploadPayload, error) {
	var payload UploadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return UploadPayload{}, fmt.Errorf("unmarshal upload payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return UploadPayload{}, fmt.Errorf("invalid upload payload: %w", err)
	}
	return payload, nil
}

package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

type CreateUploadRequest struct {
	Folder     string
	WebhookURL string
	Files      []File
}

// UploadJob tracks one staged file through normalization and upload.
type UploadJob struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Folder      string    `json:"folder"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	StagingKey  string    `json:"staging_key"`
	WebhookURL  string    `json:"webhook_url,omitempty"`
	ResultKey   string    `json:"result_key,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r CreateUploadRequest) Validate() error {
	if strings.TrimSpace(r.Folder) == "" {
		return errors.New("folder is required")
	}
	if !ValidFolder(r.Folder) {
		return fmt.Errorf("unsupported folder: %s", r.Folder)
	}
	if len(r.Files) == 0 {
		return errors.New("at least one file is required")
	}
	for i, f := range r.Files {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("file[%d].name is required", i)
		}
	}
	if r.WebhookURL != "" {
		u, err := url.Parse(r.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid webhook_url: %s", r.WebhookURL)
		}
	}
	return nil
}

// Partition splits files into those the folder accepts and those it rejects.
func (r CreateUploadRequest) Partition() (accepted, rejected []File) {
	for _, f := range r.Files {
		if AcceptsFile(r.Folder, f) {
			accepted = append(accepted, f)
		} else {
			rejected = append(rejected, f)
		}
	}
	return accepted, rejected
}

package pipeline

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/dunamismax/eventdesk/internal/domain"
	"github.com/dunamismax/eventdesk/internal/id"
)

type objectStore interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, objectKey string) error
}

// StagingKey is where the raw upload for jobID waits for the worker.
func StagingKey(jobID, name string) string {
	return path.Join("staging", sanitizePathToken(jobID), sanitizeFileName(name))
}

// ObjectStoreStaging keeps staged uploads in the object store.
type ObjectStoreStaging struct {
	Storage objectStore
}

func (s ObjectStoreStaging) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if s.Storage == nil {
		return errors.New("storage client is required")
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	return s.Storage.WriteObject(ctx, key, data, contentType)
}

func (s ObjectStoreStaging) Fetch(ctx context.Context, key string) ([]byte, error) {
	if s.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	return s.Storage.ReadObject(ctx, key)
}

func (s ObjectStoreStaging) Remove(ctx context.Context, key string) error {
	if s.Storage == nil {
		return errors.New("storage client is required")
	}
	return s.Storage.DeleteObject(ctx, key)
}

// ObjectStoreEmitter writes prepared files straight into the media tree.
type ObjectStoreEmitter struct {
	Storage objectStore
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, folder string, file domain.File) (string, error) {
	if e.Storage == nil {
		return "", errors.New("storage client is required")
	}

	objectKey := domain.FolderPrefix(folder) + shortID() + "-" + sanitizeFileName(file.Name)
	contentType := file.ContentType
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	if err := e.Storage.WriteObject(ctx, objectKey, file.Data, contentType); err != nil {
		return "", err
	}
	return objectKey, nil
}

type mediaUploader interface {
	UploadMedia(ctx context.Context, folder string, file domain.File) (string, error)
	UploadPoster(ctx context.Context, file domain.File) (string, error)
}

// CMSEmitter hands prepared files to the remote CMS API.
type CMSEmitter struct {
	Client mediaUploader
}

func (e CMSEmitter) Emit(ctx context.Context, folder string, file domain.File) (string, error) {
	if e.Client == nil {
		return "", errors.New("cms client is required")
	}
	if domain.NormalizeFolder(folder) == domain.FolderPosters {
		return e.Client.UploadPoster(ctx, file)
	}
	return e.Client.UploadMedia(ctx, domain.NormalizeFolder(folder), file)
}

func shortID() string {
	return strings.ReplaceAll(id.New(), "-", "")[:12]
}

// Package cmsapi talks to the remote CMS that owns events and media.
package cmsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dunamismax/eventdesk/internal/domain"
)

var ErrEventNotFound = errors.New("event not found")

// APIError is a non-2xx reply from the CMS.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cms api: status %d: %s", e.Status, e.Message)
}

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	http *resty.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("cms base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse cms base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "eventdesk"
	}

	hc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	return &Client{http: hc}, nil
}

type uploadReply struct {
	Key  string `json:"key"`
	Path string `json:"path"`
}

// UploadMedia posts file into folder and returns the stored key.
func (c *Client) UploadMedia(ctx context.Context, folder string, file domain.File) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", file.Name, contentTypeOrDefault(file.ContentType), bytes.NewReader(file.Data)).
		SetMultipartFormData(map[string]string{"folder": folder}).
		Post("/media")
	if err != nil {
		return "", fmt.Errorf("upload media %s: %w", file.Name, err)
	}
	if err := checkResponse(resp); err != nil {
		return "", err
	}

	var reply uploadReply
	if err := json.Unmarshal(resp.Body(), &reply); err != nil {
		return "", fmt.Errorf("decode upload reply: %w", err)
	}
	if reply.Key != "" {
		return reply.Key, nil
	}
	return reply.Path, nil
}

// UploadPoster posts an event poster and returns its key.
func (c *Client) UploadPoster(ctx context.Context, file domain.File) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", file.Name, contentTypeOrDefault(file.ContentType), bytes.NewReader(file.Data)).
		Post("/media/upload")
	if err != nil {
		return "", fmt.Errorf("upload poster %s: %w", file.Name, err)
	}
	if err := checkResponse(resp); err != nil {
		return "", err
	}

	var reply uploadReply
	if err := json.Unmarshal(resp.Body(), &reply); err != nil {
		return "", fmt.Errorf("decode poster reply: %w", err)
	}
	if reply.Key == "" {
		return "", errors.New("poster upload returned no key")
	}
	return reply.Key, nil
}

func (c *Client) ListMedia(ctx context.Context, prefix string) ([]domain.MediaFile, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("prefix", prefix).
		Get("/media")
	if err != nil {
		return nil, fmt.Errorf("list media %s: %w", prefix, err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var files []domain.MediaFile
	if err := json.Unmarshal(resp.Body(), &files); err != nil {
		return nil, fmt.Errorf("decode media list: %w", err)
	}
	return files, nil
}

func (c *Client) DeleteMedia(ctx context.Context, key string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		Delete("/media")
	if err != nil {
		return fmt.Errorf("delete media %s: %w", key, err)
	}
	return checkResponse(resp)
}

// FetchMedia downloads the raw bytes stored under key.
func (c *Client) FetchMedia(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "*/*").
		Get(objectPath(key))
	if err != nil {
		return nil, fmt.Errorf("fetch media %s: %w", key, err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) ListEvents(ctx context.Context) ([]domain.Event, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/events")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var events []domain.Event
	if err := json.Unmarshal(resp.Body(), &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// GetEvent finds one event by id. The CMS has no item endpoint, so this
// lists all events and filters.
func (c *Client) GetEvent(ctx context.Context, id int) (domain.Event, error) {
	events, err := c.ListEvents(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	for _, ev := range events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return domain.Event{}, fmt.Errorf("%w: %d", ErrEventNotFound, id)
}

func (c *Client) CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(ev).
		Post("/events")
	if err != nil {
		return domain.Event{}, fmt.Errorf("create event %q: %w", ev.EventName, err)
	}
	if err := checkResponse(resp); err != nil {
		return domain.Event{}, err
	}

	var created struct {
		ID json.Number `json:"id"`
	}
	if json.Unmarshal(resp.Body(), &created) == nil {
		if n, err := strconv.Atoi(created.ID.String()); err == nil {
			ev.ID = n
		}
	}
	return ev, nil
}

func (c *Client) UpdateEvent(ctx context.Context, id int, ev domain.Event) error {
	ev.ID = 0
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetPathParam("id", strconv.Itoa(id)).
		SetBody(ev).
		Put("/events/{id}")
	if err != nil {
		return fmt.Errorf("update event %d: %w", id, err)
	}
	return checkResponse(resp)
}

func (c *Client) DeleteEvent(ctx context.Context, id int) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.Itoa(id)).
		Delete("/events/{id}")
	if err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	return checkResponse(resp)
}

type errorReply struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func checkResponse(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}

	msg := ""
	var reply errorReply
	if json.Unmarshal(resp.Body(), &reply) == nil {
		msg = reply.Details
		if msg == "" {
			msg = reply.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}

func objectPath(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return "/" + strings.Join(parts, "/")
}

func contentTypeOrDefault(ct string) string {
	if strings.TrimSpace(ct) == "" {
		return "application/octet-stream"
	}
	return ct
}

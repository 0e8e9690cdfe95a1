package domain

import "time"

// MediaFile is one object in the media tree.
type MediaFile struct {
	Key      string    `json:"key"`
	URL      string    `json:"url,omitempty"`
	Size     int64     `json:"size"`
	Uploaded time.Time `json:"uploaded"`
	ETag     string    `json:"httpEtag,omitempty"`
}

const (
	ImportStatusSuccess = "success"
	ImportStatusError   = "error"
)

type ImportLog struct {
	Row     int    `json:"row"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

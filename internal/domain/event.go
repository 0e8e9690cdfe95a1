package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Event mirrors the remote CMS /events resource.
type Event struct {
	ID                int    `json:"id,omitempty"`
	EventName         string `json:"event_name"`
	ClubName          string `json:"club_name"`
	EventType         string `json:"event_type"`
	EventFor          string `json:"event_for"`
	PosterPath        string `json:"poster_path"`
	StartDateTime     string `json:"start_date_time"`
	EndDateTime       string `json:"end_date_time"`
	PricePerPerson    Number `json:"price_per_person"`
	ParticipationType string `json:"participation_type"`
	EventVenue        string `json:"event_venue"`
	ShortDescription  string `json:"short_description"`
	LongDescription   string `json:"long_description"`
	IsSpecialEvent    Flag   `json:"is_special_event"`
	RegistrationLink  string `json:"registration_link"`
	TeamSize          Number `json:"team_size"`
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.EventName) == "" {
		return errors.New("event_name is required")
	}
	if e.PricePerPerson < 0 {
		return errors.New("price_per_person must not be negative")
	}
	if e.TeamSize < 0 {
		return errors.New("team_size must not be negative")
	}
	return nil
}

// Normalize rewrites form-style date-times into the format the CMS stores.
func (e Event) Normalize() Event {
	e.EventName = strings.TrimSpace(e.EventName)
	e.StartDateTime = NormalizeDateTime(e.StartDateTime)
	e.EndDateTime = NormalizeDateTime(e.EndDateTime)
	return e
}

var formDateTime = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}$`)

// NormalizeDateTime turns "2024-05-01T18:30" into "2024-05-01 18:30:00".
// Anything else is returned trimmed but otherwise untouched.
func NormalizeDateTime(s string) string {
	s = strings.TrimSpace(s)
	if !formDateTime.MatchString(s) {
		return s
	}
	return strings.Replace(s, "T", " ", 1) + ":00"
}

// Flag decodes booleans sent as true/false, 1/0 or their string forms and
// always encodes as 1 or 0.
type Flag bool

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = false
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode flag: %w", err)
	}
	switch v := raw.(type) {
	case bool:
		*f = Flag(v)
	case float64:
		*f = v != 0
	case string:
		*f = ParseFlag(v)
	default:
		return fmt.Errorf("decode flag: unsupported value %s", string(data))
	}
	return nil
}

// ParseFlag accepts "true" (any case) or "1".
func ParseFlag(s string) Flag {
	s = strings.TrimSpace(s)
	return Flag(strings.EqualFold(s, "true") || s == "1")
}

// Number decodes a JSON number or numeric string. Blank strings decode to zero.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode number: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("decode number %q: %w", s, err)
		}
		*n = Number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode number: %w", err)
	}
	*n = Number(v)
	return nil
}

// ParseNumberOr parses s and returns fallback when s is blank, not numeric or zero.
func ParseNumberOr(s string, fallback Number) Number {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v == 0 || math.IsNaN(v) {
		return fallback
	}
	return Number(v)
}

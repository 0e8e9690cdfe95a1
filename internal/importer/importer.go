// Package importer creates events in bulk from CSV or XLSX sheets.
package importer

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"strings"

	"github.com/dunamismax/eventdesk/internal/cmsapi"
	"github.com/dunamismax/eventdesk/internal/domain"
)

const (
	msgCreated     = "Created successfully"
	msgParseFailed = "Failed to parse file"
	msgUnknown     = "Unknown error"
	parseLogName   = "FILE PARSE"
)

type EventCreator interface {
	CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
}

type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

type Report struct {
	Total     int                `json:"total"`
	Processed int                `json:"processed"`
	Created   int                `json:"created"`
	Failed    int                `json:"failed"`
	Skipped   int                `json:"skipped"`
	Logs      []domain.ImportLog `json:"logs"`
}

type Importer struct {
	creator EventCreator
	logger  *log.Logger
}

func New(creator EventCreator, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Importer{creator: creator, logger: logger}
}

// Run parses the file and posts each row as a new event, one at a time.
// Rows without an event name are skipped. Logs are in row order.
func (im *Importer) Run(ctx context.Context, name string, r io.Reader, progress func(Progress)) Report {
	rows, err := Parse(name, r)
	if err != nil {
		im.logger.Printf("import parse failed file=%s err=%v", name, err)
		return Report{Logs: []domain.ImportLog{{
			Row:     0,
			Name:    parseLogName,
			Status:  domain.ImportStatusError,
			Message: msgParseFailed,
		}}}
	}

	report := Report{Total: len(rows), Logs: []domain.ImportLog{}}
	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}

		eventName := row["event_name"]
		if eventName == "" {
			report.Skipped++
		} else {
			entry := domain.ImportLog{Row: i + 1, Name: eventName}
			if _, err := im.creator.CreateEvent(ctx, RowToEvent(row)); err != nil {
				entry.Status = domain.ImportStatusError
				entry.Message = errorMessage(err)
				report.Failed++
				im.logger.Printf("import row failed row=%d name=%q err=%v", i+1, eventName, err)
			} else {
				entry.Status = domain.ImportStatusSuccess
				entry.Message = msgCreated
				report.Created++
			}
			report.Logs = append(report.Logs, entry)
		}

		report.Processed++
		if progress != nil {
			progress(Progress{
				Processed: report.Processed,
				Total:     report.Total,
				Percent:   int(math.Round(float64(report.Processed) / float64(report.Total) * 100)),
			})
		}
	}

	im.logger.Printf("import finished file=%s total=%d created=%d failed=%d skipped=%d",
		name, report.Total, report.Created, report.Failed, report.Skipped)
	return report
}

// RowToEvent maps sheet columns onto the event payload. Prices default to 0,
// team sizes to 1.
func RowToEvent(row Row) domain.Event {
	return domain.Event{
		EventName:         row["event_name"],
		ClubName:          row["club_name"],
		EventType:         row["event_type"],
		EventFor:          row["event_for"],
		PosterPath:        row["poster_path"],
		StartDateTime:     row["start_date_time"],
		EndDateTime:       row["end_date_time"],
		PricePerPerson:    domain.ParseNumberOr(row["price_per_person"], 0),
		ParticipationType: row["participation_type"],
		EventVenue:        row["event_venue"],
		ShortDescription:  row["short_description"],
		LongDescription:   row["long_description"],
		IsSpecialEvent:    domain.ParseFlag(row["is_special_event"]),
		RegistrationLink:  row["registration_link"],
		TeamSize:          domain.ParseNumberOr(row["team_size"], 1),
	}
}

func errorMessage(err error) string {
	var apiErr *cmsapi.APIError
	if errors.As(err, &apiErr) {
		if strings.TrimSpace(apiErr.Message) != "" {
			return apiErr.Message
		}
		return msgUnknown
	}
	return err.Error()
}

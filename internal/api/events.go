package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dunamismax/eventdesk/internal/cmsapi"
	"github.com/dunamismax/eventdesk/internal/domain"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		unavailable(w, "event service")
		return
	}
	events, err := s.events.ListEvents(r.Context())
	if err != nil {
		s.writeUpstreamError(w, "list events", err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		unavailable(w, "event service")
		return
	}
	eventID, ok := eventIDFromPath(w, r)
	if !ok {
		return
	}
	ev, err := s.events.GetEvent(r.Context(), eventID)
	if err != nil {
		s.writeEventError(w, "get event", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		unavailable(w, "event service")
		return
	}
	ev, ok := decodeEvent(w, r)
	if !ok {
		return
	}
	ev.ID = 0

	created, err := s.events.CreateEvent(r.Context(), ev)
	if err != nil {
		s.writeEventError(w, "create event", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		unavailable(w, "event service")
		return
	}
	eventID, ok := eventIDFromPath(w, r)
	if !ok {
		return
	}
	ev, ok := decodeEvent(w, r)
	if !ok {
		return
	}

	if err := s.events.UpdateEvent(r.Context(), eventID, ev); err != nil {
		s.writeEventError(w, "update event", err)
		return
	}
	ev.ID = eventID
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		unavailable(w, "event service")
		return
	}
	eventID, ok := eventIDFromPath(w, r)
	if !ok {
		return
	}
	if err := s.events.DeleteEvent(r.Context(), eventID); err != nil {
		s.writeEventError(w, "delete event", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": eventID})
}

// handleImportEvents creates one event per spreadsheet row and returns the
// per-row report. Parse failures are reported inside the report.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		unavailable(w, "event import")
		return
	}
	file, ok := s.singleFile(w, r)
	if !ok {
		return
	}

	report := s.importer.Run(r.Context(), file.Name, bytes.NewReader(file.Data), nil)
	s.metrics.eventsImported.WithLabelValues("created").Add(float64(report.Created))
	s.metrics.eventsImported.WithLabelValues("failed").Add(float64(report.Failed))
	s.metrics.eventsImported.WithLabelValues("skipped").Add(float64(report.Skipped))
	s.logger.Printf("event import file=%s total=%d created=%d failed=%d skipped=%d",
		file.Name, report.Total, report.Created, report.Failed, report.Skipped)
	writeJSON(w, http.StatusOK, report)
}

func decodeEvent(w http.ResponseWriter, r *http.Request) (domain.Event, bool) {
	var ev domain.Event
	if err := decodeJSON(r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.Event{}, false
	}
	ev = ev.Normalize()
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.Event{}, false
	}
	return ev, true
}

func eventIDFromPath(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.PathValue("id"))
	eventID, err := strconv.Atoi(raw)
	if err != nil || eventID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid event id: "+raw)
		return 0, false
	}
	return eventID, true
}

func (s *Server) writeEventError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, cmsapi.ErrEventNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeUpstreamError(w, op, err)
}

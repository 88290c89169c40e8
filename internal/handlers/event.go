package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/models"
)

type EventService interface {
	LoadEvents(ctx context.Context) ([]models.Event, error)
	LoadArchivedEvents(ctx context.Context) ([]models.Event, error)
	PersistEvent(ctx context.Context, e models.Event) (models.Event, error)
	AddAttendees(ctx context.Context, eventID int64, contacts []models.Contact) (int64, error)
}

type EventHandler struct {
	events    EventService
	lifecycle Lifecycle
	logger    zerolog.Logger
}

func NewEventHandler(events EventService, lifecycle Lifecycle, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		events:    events,
		lifecycle: lifecycle,
		logger:    logger.With().Str("component", "event_handler").Logger(),
	}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	load := h.events.LoadEvents
	if r.URL.Query().Get("archived") == "true" {
		load = h.events.LoadArchivedEvents
	}
	events, err := load(r.Context())
	if err != nil {
		writeError(w, "Failed to list events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Save(w http.ResponseWriter, r *http.Request) {
	var e models.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if id, ok := idFromPath(r); ok {
		e.ID = &id
	}
	created := e.ID == nil

	saved, err := h.events.PersistEvent(r.Context(), e)
	if err != nil {
		writeError(w, "Failed to save event", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

type addAttendeesRequest struct {
	ContactIDs []int64 `json:"contact_ids"`
}

func (h *EventHandler) AddAttendees(w http.ResponseWriter, r *http.Request) {
	eventID, ok := idFromPath(r)
	if !ok {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return
	}
	var req addAttendeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	contacts := make([]models.Contact, len(req.ContactIDs))
	for i := range req.ContactIDs {
		contacts[i] = models.Contact{ID: &req.ContactIDs[i]}
	}
	added, err := h.events.AddAttendees(r.Context(), eventID, contacts)
	if err != nil {
		writeError(w, "Failed to add attendees", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"added": added})
}

func (h *EventHandler) Archive(w http.ResponseWriter, r *http.Request) {
	runTransition(w, r, h.lifecycle.ArchiveEvent, "Failed to archive event")
}

func (h *EventHandler) Restore(w http.ResponseWriter, r *http.Request) {
	runTransition(w, r, h.lifecycle.RestoreEvent, "Failed to restore event")
}

func (h *EventHandler) Purge(w http.ResponseWriter, r *http.Request) {
	runTransition(w, r, h.lifecycle.PurgeEvent, "Failed to purge event")
}

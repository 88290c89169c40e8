package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/orchestrator"
)

type ContactService interface {
	LoadAll(ctx context.Context) ([]models.Contact, error)
	LoadArchived(ctx context.Context) ([]models.Contact, error)
	Persist(ctx context.Context, c models.Contact) (orchestrator.PersistResult, error)
	PersistBatch(ctx context.Context, contacts []models.Contact) ([]models.Contact, error)
	LoadTeam(ctx context.Context) ([]models.TeamMember, error)
}

// Lifecycle archives, restores and purges contacts and events.
type Lifecycle interface {
	ArchiveContact(ctx context.Context, id int64) error
	RestoreContact(ctx context.Context, id int64) error
	PurgeContact(ctx context.Context, id int64) error
	ArchiveEvent(ctx context.Context, id int64) error
	RestoreEvent(ctx context.Context, id int64) error
	PurgeEvent(ctx context.Context, id int64) error
}

type ContactHandler struct {
	contacts  ContactService
	lifecycle Lifecycle
	logger    zerolog.Logger
}

func NewContactHandler(contacts ContactService, lifecycle Lifecycle, logger zerolog.Logger) *ContactHandler {
	return &ContactHandler{
		contacts:  contacts,
		lifecycle: lifecycle,
		logger:    logger.With().Str("component", "contact_handler").Logger(),
	}
}

func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	load := h.contacts.LoadAll
	if r.URL.Query().Get("archived") == "true" {
		load = h.contacts.LoadArchived
	}
	contacts, err := load(r.Context())
	if err != nil {
		writeError(w, "Failed to list contacts", err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

type saveContactResponse struct {
	Contact  models.Contact `json:"contact"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Save creates or updates one contact. Auxiliary failures are reported as
// warnings next to the saved contact.
func (h *ContactHandler) Save(w http.ResponseWriter, r *http.Request) {
	var c models.Contact
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if id, ok := idFromPath(r); ok {
		c.ID = &id
	}
	created := c.ID == nil

	result, err := h.contacts.Persist(r.Context(), c)
	if err != nil {
		writeError(w, "Failed to save contact", err)
		return
	}

	resp := saveContactResponse{Contact: result.Contact}
	for _, warn := range result.Warnings {
		resp.Warnings = append(resp.Warnings, warn.Error())
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

type batchFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// SaveBatch persists contacts in order. One failure does not stop the rest.
func (h *ContactHandler) SaveBatch(w http.ResponseWriter, r *http.Request) {
	var contacts []models.Contact
	if err := json.NewDecoder(r.Body).Decode(&contacts); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	saved, err := h.contacts.PersistBatch(r.Context(), contacts)
	failed := []batchFailure{}
	var batchErr *orchestrator.BatchError
	if errors.As(err, &batchErr) {
		for idx, e := range batchErr.Failed {
			failed = append(failed, batchFailure{Index: idx, Error: e.Error()})
		}
		sort.Slice(failed, func(i, j int) bool { return failed[i].Index < failed[j].Index })
	} else if err != nil {
		writeError(w, "Failed to save contacts", err)
		return
	}

	status := http.StatusOK
	if len(failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]interface{}{"saved": saved, "failed": failed})
}

func (h *ContactHandler) Archive(w http.ResponseWriter, r *http.Request) {
	runTransition(w, r, h.lifecycle.ArchiveContact, "Failed to archive contact")
}

func (h *ContactHandler) Restore(w http.ResponseWriter, r *http.Request) {
	runTransition(w, r, h.lifecycle.RestoreContact, "Failed to restore contact")
}

func (h *ContactHandler) Purge(w http.ResponseWriter, r *http.Request) {
	runTransition(w, r, h.lifecycle.PurgeContact, "Failed to purge contact")
}

func (h *ContactHandler) Team(w http.ResponseWriter, r *http.Request) {
	team, err := h.contacts.LoadTeam(r.Context())
	if err != nil {
		writeError(w, "Failed to list team", err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func runTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) error, message string) {
	id, ok := idFromPath(r)
	if !ok {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return
	}
	if err := fn(r.Context(), id); err != nil {
		writeError(w, message, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/apperrors"
	"github.com/stanstork/alumni-sync/internal/invite"
	"github.com/stanstork/alumni-sync/internal/models"
)

type InviteSender interface {
	Send(ctx context.Context, event invite.EventInfo, attendees []invite.Attendee) []invite.Result
}

type InviteRedeemer interface {
	Redeem(ctx context.Context, raw string, claimed models.RSVPStatus) (invite.Redemption, error)
}

type InviteHandler struct {
	sender   InviteSender
	redeemer InviteRedeemer
	logger   zerolog.Logger
}

func NewInviteHandler(sender InviteSender, redeemer InviteRedeemer, logger zerolog.Logger) *InviteHandler {
	return &InviteHandler{
		sender:   sender,
		redeemer: redeemer,
		logger:   logger.With().Str("component", "invite_handler").Logger(),
	}
}

type sendInviteRequest struct {
	Event     invite.EventInfo  `json:"event"`
	Attendees []invite.Attendee `json:"attendees"`
}

type sendInviteResult struct {
	Email string `json:"email"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// SendInvite issues tokens and mails invitations. The status is 200 when every
// recipient succeeded, 207 when some did and 502 when none did.
func (h *InviteHandler) SendInvite(w http.ResponseWriter, r *http.Request) {
	var req sendInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if req.Event.ID <= 0 {
		http.Error(w, "event id is required", http.StatusBadRequest)
		return
	}
	if len(req.Attendees) == 0 {
		http.Error(w, "at least one attendee is required", http.StatusBadRequest)
		return
	}

	results := h.sender.Send(r.Context(), req.Event, req.Attendees)
	out := make([]sendInviteResult, len(results))
	sent := 0
	for i, res := range results {
		out[i] = sendInviteResult{Email: res.Email, OK: res.OK}
		if res.OK {
			sent++
		} else if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}

	status := http.StatusOK
	switch {
	case sent == 0:
		status = http.StatusBadGateway
	case sent < len(results):
		status = http.StatusMultiStatus
	}
	h.logger.Info().Int64("event_id", req.Event.ID).Int("sent", sent).Int("failed", len(results)-sent).Msg("invites dispatched")
	writeJSON(w, status, map[string]interface{}{"results": out})
}

type claimInviteRequest struct {
	Token         string `json:"token"`
	ClaimedStatus string `json:"claimedStatus"`
}

// ClaimInvite redeems a one-time token. Every rejected token gets the same 410
// response regardless of the cause.
func (h *InviteHandler) ClaimInvite(w http.ResponseWriter, r *http.Request) {
	var req claimInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	red, err := h.redeemer.Redeem(r.Context(), req.Token, models.RSVPStatus(req.ClaimedStatus))
	if err != nil {
		var rerr *invite.RedeemError
		switch {
		case errors.As(err, &rerr):
			writeJSON(w, http.StatusGone, map[string]interface{}{"ok": false, "reason": rerr.PublicReason()})
		case apperrors.Is(err, apperrors.KindValidationFailure):
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "reason": "invalid_request"})
		default:
			h.logger.Error().Err(err).Msg("failed to redeem invite")
			writeJSON(w, statusFor(err), map[string]interface{}{"ok": false, "reason": "server_error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "status": red.Status})
}

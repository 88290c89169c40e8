package invite

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/notification"
)

// EventInfo is the event as described in an invitation.
type EventInfo struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Location string `json:"location"`
}

type Attendee struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	ContactID *int64 `json:"contact_id,omitempty"`
}

// Sender issues a token per attendee and mails the invitation.
type Sender struct {
	tokens     *Service
	dispatcher *Dispatcher
	// claimURL is a format string taking the raw token and the claimed status.
	claimURL string
}

func NewSender(tokens *Service, dispatcher *Dispatcher, claimURLTemplate string) *Sender {
	return &Sender{tokens: tokens, dispatcher: dispatcher, claimURL: claimURLTemplate}
}

func (s *Sender) link(raw string, status models.RSVPStatus) string {
	return fmt.Sprintf(s.claimURL, url.QueryEscape(raw), url.QueryEscape(string(status)))
}

// Send returns one result per attendee in input order. Attendees whose token could
// not be issued are reported failed without sending.
func (s *Sender) Send(ctx context.Context, event EventInfo, attendees []Attendee) []Result {
	results := make([]Result, len(attendees))
	var (
		deliveries []Delivery
		positions  []int
	)
	for i, a := range attendees {
		email := strings.TrimSpace(a.Email)
		token, err := s.tokens.IssueOne(ctx, event.ID, email)
		if err != nil {
			results[i] = Result{Email: email, Err: err}
			continue
		}
		msg := notification.RenderInvite(notification.InviteEmail{
			To:          email,
			Name:        a.Name,
			EventTitle:  event.Title,
			Date:        event.Date,
			Time:        event.Time,
			Location:    event.Location,
			GoingURL:    s.link(token.Raw, models.RSVPGoing),
			NotGoingURL: s.link(token.Raw, models.RSVPNotGoing),
		})
		deliveries = append(deliveries, Delivery{Email: email, Message: msg})
		positions = append(positions, i)
	}

	for j, r := range s.dispatcher.Dispatch(ctx, deliveries) {
		results[positions[j]] = r
	}
	return results
}

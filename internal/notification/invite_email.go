package notification

import (
	"fmt"
	"html"
	"strings"
)

// InviteEmail holds what the RSVP invitation shows a single attendee.
type InviteEmail struct {
	To          string
	Name        string
	EventTitle  string
	Date        string
	Time        string
	Location    string
	GoingURL    string
	NotGoingURL string
}

func (e InviteEmail) when() string {
	return strings.TrimSpace(strings.Join(nonEmpty(e.Date, e.Time), " at "))
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// RenderInvite builds the invitation message with one link per answer.
func RenderInvite(e InviteEmail) Message {
	title := strings.TrimSpace(e.EventTitle)
	if title == "" {
		title = "an alumni event"
	}
	greeting := "Hello,"
	if name := strings.TrimSpace(e.Name); name != "" {
		greeting = fmt.Sprintf("Hello %s,", name)
	}

	text := strings.Builder{}
	text.WriteString(greeting + "\n\n")
	text.WriteString(fmt.Sprintf("You're invited to %s.\n", title))
	if when := e.when(); when != "" {
		text.WriteString(fmt.Sprintf("When: %s\n", when))
	}
	if loc := strings.TrimSpace(e.Location); loc != "" {
		text.WriteString(fmt.Sprintf("Where: %s\n", loc))
	}
	text.WriteString("\nLet us know if you can make it:\n\n")
	text.WriteString("Going: " + e.GoingURL + "\n")
	text.WriteString("Not going: " + e.NotGoingURL + "\n\n")
	text.WriteString("Each link can be used once and expires after a few days.\n\n")
	text.WriteString("Thanks,\nThe Alumni Relations Team\n")

	body := strings.Builder{}
	body.WriteString("<p>" + html.EscapeString(greeting) + "</p>")
	body.WriteString("<p>You're invited to <strong>" + html.EscapeString(title) + "</strong>.</p>")
	if when := e.when(); when != "" {
		body.WriteString("<p>When: " + html.EscapeString(when) + "</p>")
	}
	if loc := strings.TrimSpace(e.Location); loc != "" {
		body.WriteString("<p>Where: " + html.EscapeString(loc) + "</p>")
	}
	body.WriteString(fmt.Sprintf(`<p><a href="%s">Going</a> | <a href="%s">Not going</a></p>`,
		html.EscapeString(e.GoingURL), html.EscapeString(e.NotGoingURL)))
	body.WriteString("<p>Thanks,<br>The Alumni Relations Team</p>")

	return Message{
		To:      e.To,
		Subject: fmt.Sprintf("Invitation: %s", title),
		Text:    text.String(),
		HTML:    body.String(),
	}
}

package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventHolder guards a slice of events the way a UI collection would.
type eventHolder struct {
	mu     sync.Mutex
	events []models.Event
}

func (h *eventHolder) ApplyChange(c Change) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	held := false
	for i := range h.events {
		if PatchEvent(&h.events[i], c) {
			held = true
		}
	}
	return held
}

func (h *eventHolder) status(eventID, contactID int64) models.RSVPStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if *e.ID != eventID {
			continue
		}
		if i := e.AttendeeIndex(contactID); i >= 0 {
			return e.Attendance[i].Status
		}
	}
	return ""
}

func event(id int64, attendees ...int64) models.Event {
	e := models.Event{ID: models.Int64(id), Title: "event"}
	for _, c := range attendees {
		e.Attendance = append(e.Attendance, models.Attendance{EventID: id, ContactID: c, Status: models.RSVPPending})
	}
	return e
}

func TestParseChangeVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Change
	}{
		{"trigger payload", `{"op":"UPDATE","event_id":7,"contact_id":3,"rsvp_status":"going"}`,
			Change{Op: OpUpdate, EventID: 7, ContactID: 3, Status: models.RSVPGoing}},
		{"camel case", `{"type":"insert","eventId":"7","contactId":"4","rsvpStatus":"not_going"}`,
			Change{Op: OpInsert, EventID: 7, ContactID: 4, Status: models.RSVPNotGoing}},
		{"record envelope", `{"eventType":"DELETE","old_record":{"event_id":7,"contact_id":5}}`,
			Change{Op: OpDelete, EventID: 7, ContactID: 5, Status: models.RSVPPending}},
		{"no rsvp column", `{"op":"INSERT","new":{"event_id":1,"contact_id":2}}`,
			Change{Op: OpInsert, EventID: 1, ContactID: 2, Status: models.RSVPPending}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChange([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{`not json`, `{"op":"truncate","event_id":1,"contact_id":1}`, `{"op":"update"}`, `{"event_id":1,"contact_id":2,"rsvp_status":"maybe"}`} {
		_, err := ParseChange([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestPatchEventIsIdempotent(t *testing.T) {
	e := event(7, 3)
	going := Change{Op: OpUpdate, EventID: 7, ContactID: 3, Status: models.RSVPGoing}

	require.True(t, PatchEvent(&e, going))
	require.True(t, PatchEvent(&e, going))
	require.Len(t, e.Attendance, 1)
	assert.Equal(t, models.RSVPGoing, e.Attendance[0].Status)

	insert := Change{Op: OpInsert, EventID: 7, ContactID: 9, Status: models.RSVPPending}
	PatchEvent(&e, insert)
	PatchEvent(&e, insert)
	assert.Len(t, e.Attendance, 2)

	del := Change{Op: OpDelete, EventID: 7, ContactID: 3}
	PatchEvent(&e, del)
	PatchEvent(&e, del)
	require.Len(t, e.Attendance, 1)
	assert.Equal(t, int64(9), e.Attendance[0].ContactID)

	other := event(8, 3)
	assert.False(t, PatchEvent(&other, going))
	assert.Equal(t, models.RSVPPending, other.Attendance[0].Status)
}

func TestReconcilerPatchesEveryHolder(t *testing.T) {
	feed := NewChanFeed(4)
	r := NewReconciler(feed, zerolog.Nop())
	r.Watch(7)

	list := &eventHolder{events: []models.Event{event(6, 3), event(7, 3, 4)}}
	detail := &eventHolder{events: []models.Event{event(7, 3, 4)}}
	r.Register(list)
	r.Register(detail)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.True(t, feed.Publish([]byte(`{"op":"UPDATE","event_id":7,"contact_id":3,"rsvp_status":"going"}`)))
	require.Eventually(t, func() bool {
		return list.status(7, 3) == models.RSVPGoing && detail.status(7, 3) == models.RSVPGoing
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, models.RSVPPending, list.status(6, 3))
	assert.Equal(t, models.RSVPPending, detail.status(7, 4))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, feed.Publish([]byte(`{}`)), "feed is closed on teardown")
}

func TestReconcilerIgnoresUnwatchedEvents(t *testing.T) {
	r := NewReconciler(NewChanFeed(1), zerolog.Nop())
	r.Watch(7)
	holder := &eventHolder{events: []models.Event{event(8, 3)}}
	r.Register(holder)

	assert.Zero(t, r.Apply(Change{Op: OpUpdate, EventID: 8, ContactID: 3, Status: models.RSVPGoing}))
	assert.Equal(t, models.RSVPPending, holder.status(8, 3))

	r.Unwatch(7)
	assert.Equal(t, 1, r.Apply(Change{Op: OpUpdate, EventID: 8, ContactID: 3, Status: models.RSVPGoing}))
}

func TestReconcilerUnregister(t *testing.T) {
	r := NewReconciler(NewChanFeed(1), zerolog.Nop())
	holder := &eventHolder{events: []models.Event{event(1, 2)}}
	unregister := r.Register(holder)
	unregister()

	assert.Zero(t, r.Apply(Change{Op: OpUpdate, EventID: 1, ContactID: 2, Status: models.RSVPGoing}))
	assert.Equal(t, models.RSVPPending, holder.status(1, 2))
}

func TestReconcilerStopsWritingAfterFeedCloses(t *testing.T) {
	feed := NewChanFeed(2)
	r := NewReconciler(feed, zerolog.Nop())
	holder := &eventHolder{events: []models.Event{event(1, 2)}}
	r.Register(holder)

	require.True(t, feed.Publish([]byte(`garbage`)))
	require.NoError(t, feed.Close())
	require.NoError(t, r.Run(context.Background()))

	assert.Zero(t, r.Apply(Change{Op: OpUpdate, EventID: 1, ContactID: 2, Status: models.RSVPGoing}))
	assert.Equal(t, models.RSVPPending, holder.status(1, 2))
}

func TestChanFeedCloseReleasesBlockedPublish(t *testing.T) {
	feed := NewChanFeed(1)
	require.True(t, feed.Publish([]byte(`{}`)))

	published := make(chan bool, 1)
	go func() { published <- feed.Publish([]byte(`{}`)) }()

	closed := make(chan struct{})
	go func() {
		assert.NoError(t, feed.Close())
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a full feed")
	}
	select {
	case ok := <-published:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("blocked Publish was not released")
	}
	assert.NoError(t, feed.Close())
	assert.False(t, feed.Publish([]byte(`{}`)))

	var drained int
	for range feed.Changes() {
		drained++
	}
	assert.Equal(t, 1, drained)
}

func TestHolderFunc(t *testing.T) {
	var got []Change
	var h Holder = HolderFunc(func(c Change) bool {
		got = append(got, c)
		return true
	})
	r := NewReconciler(NewChanFeed(1), zerolog.Nop())
	r.Register(h)
	r.Apply(Change{Op: OpInsert, EventID: 1, ContactID: 1})
	assert.Len(t, got, 1)
}

package apperrors

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"undefined column", &pq.Error{Code: "42703", Message: `column "rsvp_status" does not exist`}, KindSchemaDrift},
		{"undefined table", &pq.Error{Code: "42P01", Message: `relation "address_link" does not exist`}, KindSchemaDrift},
		{"insufficient privilege", &pq.Error{Code: "42501", Message: "permission denied for table college"}, KindPermissionDenied},
		{"unique violation", &pq.Error{Code: "23505", Message: "duplicate key"}, KindConflict},
		{"foreign key", &pq.Error{Code: "23503", Message: "violates foreign key"}, KindReferentialViolation},
		{"connection failure", &pq.Error{Code: "08006"}, KindTransientTransport},
		{"wrapped pq", fmt.Errorf("insert contact: %w", &pq.Error{Code: "23505"}), KindConflict},
		{"no rows", sql.ErrNoRows, KindNotFound},
		{"message drift", errors.New("unknown column alumni_type_id"), KindSchemaDrift},
		{"message drift without sqlstate", errors.New(`column contact.alumni_type_id does not exist`), KindSchemaDrift},
		{"unknown relation message", errors.New("unknown relation address_link"), KindSchemaDrift},
		{"app error", Validation("persist", "name required"), KindValidationFailure},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrapKeepsChain(t *testing.T) {
	cause := &pq.Error{Code: "23505", Message: "duplicate key value"}
	err := Wrap("insert college", cause)

	assert.True(t, Is(err, KindConflict))
	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr))
	assert.True(t, errors.Is(err, New(KindConflict, "", "")))
	assert.False(t, errors.Is(err, New(KindConflict, "other op", "")))
	assert.Contains(t, err.Error(), "insert college")
	assert.Nil(t, Wrap("noop", nil))
}

func TestMentions(t *testing.T) {
	err := &pq.Error{Code: "42703", Message: `column "rsvp_status" does not exist`}
	assert.True(t, Mentions(err, "rsvp_status"))
	assert.False(t, Mentions(err, "alumni_type_id", "alumni_type"))
	assert.False(t, Mentions(nil, "rsvp_status"))
}

package models

import (
	"strings"
	"time"
)

// VerificationStatus is the state of an email record shared by every contact using it.
type VerificationStatus string

const (
	Unverified VerificationStatus = "Unverified"
	Verified   VerificationStatus = "Verified"
)

// Bool converts the status to the column value stored on the email record.
func (s VerificationStatus) Bool() bool {
	return s == Verified
}

// VerificationFromBool maps the email.verified column to a status.
func VerificationFromBool(v bool) VerificationStatus {
	if v {
		return Verified
	}
	return Unverified
}

// Contact is an alumni network member.
type Contact struct {
	ID        *int64 `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`

	College    string `json:"college,omitempty"`
	Program    string `json:"program,omitempty"`
	Company    string `json:"company,omitempty"`
	Occupation string `json:"occupation,omitempty"`
	Location   string `json:"location,omitempty"`
	AlumniType string `json:"alumni_type,omitempty"`

	CollegeID    *int64 `json:"college_id,omitempty"`
	ProgramID    *int64 `json:"program_id,omitempty"`
	CompanyID    *int64 `json:"company_id,omitempty"`
	OccupationID *int64 `json:"occupation_id,omitempty"`
	LocationID   *int64 `json:"location_id,omitempty"`
	AlumniTypeID *int64 `json:"alumni_type_id,omitempty"`

	Email        string             `json:"email,omitempty"`
	EmailID      *int64             `json:"email_id,omitempty"`
	Verification VerificationStatus `json:"verification"`

	Phone          string     `json:"phone,omitempty"`
	GraduationDate *time.Time `json:"graduation_date,omitempty"`

	Address       string `json:"address,omitempty"`
	AddressLinkID *int64 `json:"address_link_id,omitempty"`

	Active bool `json:"active"`
}

// Persisted reports whether the contact has an identity key.
func (c Contact) Persisted() bool {
	return c.ID != nil
}

// DisplayName is the explicit full name if set, else first and last name joined.
func (c Contact) DisplayName() string {
	if name := strings.TrimSpace(c.FullName); name != "" {
		return name
	}
	return JoinName(c.FirstName, c.LastName)
}

// NormalizedEmail is the lower-cased, trimmed email used as the shared record key.
func (c Contact) NormalizedEmail() string {
	return NormalizeEmail(c.Email)
}

// JoinName builds "first last" trimmed.
func JoinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps the digits of a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

package models

// TeamMember is a staff member of the alumni office.
type TeamMember struct {
	ID        *int64 `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	Active    bool   `json:"active"`
}

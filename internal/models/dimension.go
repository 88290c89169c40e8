package models

// Dimension names a lookup table resolved with find-or-create semantics.
type Dimension string

const (
	DimensionCollege    Dimension = "college"
	DimensionProgram    Dimension = "program"
	DimensionCompany    Dimension = "company"
	DimensionOccupation Dimension = "occupation"
	DimensionLocation   Dimension = "location"
	DimensionAlumniType Dimension = "alumni_type"
)

// Dimensions lists every known dimension table.
var Dimensions = []Dimension{
	DimensionCollege,
	DimensionProgram,
	DimensionCompany,
	DimensionOccupation,
	DimensionLocation,
	DimensionAlumniType,
}

// Valid reports whether d is one of the known tables.
func (d Dimension) Valid() bool {
	for _, known := range Dimensions {
		if d == known {
			return true
		}
	}
	return false
}

// DimensionEntry is a (label, key) pair.
type DimensionEntry struct {
	Key   int64  `json:"id"`
	Label string `json:"label"`
}

// Location is the location dimension with its optional address parts.
type Location struct {
	ID      int64  `json:"id"`
	Label   string `json:"label"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// AddressLink maps a contact to a location.
type AddressLink struct {
	ID         int64 `json:"id"`
	ContactID  int64 `json:"contact_id"`
	LocationID int64 `json:"location_id"`
}

// EmailRecord is the verification record shared by contacts with the same address.
type EmailRecord struct {
	ID       int64  `json:"id"`
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
}

package mapper

import (
	"strings"

	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/repository"
)

// RowToContact maps one joined contact row.
func RowToContact(row repository.Row) (models.Contact, error) {
	doc, err := parse(row)
	if err != nil {
		return models.Contact{}, err
	}
	f := ContactFields

	c := models.Contact{
		ID:             f.ID.Int64(doc),
		FirstName:      f.FirstName.String(doc),
		LastName:       f.LastName.String(doc),
		College:        f.College.String(doc),
		Program:        f.Program.String(doc),
		Company:        f.Company.String(doc),
		Occupation:     f.Occupation.String(doc),
		AlumniType:     f.AlumniType.String(doc),
		CollegeID:      f.CollegeID.Int64(doc),
		ProgramID:      f.ProgramID.Int64(doc),
		CompanyID:      f.CompanyID.Int64(doc),
		OccupationID:   f.OccupationID.Int64(doc),
		LocationID:     f.LocationID.Int64(doc),
		AlumniTypeID:   f.AlumniTypeID.Int64(doc),
		Email:          f.Email.String(doc),
		EmailID:        f.EmailID.Int64(doc),
		Verification:   models.VerificationFromBool(f.Verified.Bool(doc, false)),
		Phone:          models.NormalizePhone(f.Phone.String(doc)),
		GraduationDate: f.GraduationDate.Date(doc),
		Address:        f.Address.String(doc),
		AddressLinkID:  f.AddressLinkID.Int64(doc),
		Active:         f.Active.Bool(doc, true),
	}
	if name := f.Location.String(doc); name != "" {
		c.Location = LocationLabel(models.Location{
			Label:   name,
			City:    f.LocationCity.String(doc),
			Country: f.LocationCountry.String(doc),
		})
	}
	c.FullName = models.Contact{FullName: f.FullName.String(doc), FirstName: c.FirstName, LastName: c.LastName}.DisplayName()
	return c, nil
}

// ContactsFromRows maps every row, failing on the first malformed one.
func ContactsFromRows(rows []repository.Row) ([]models.Contact, error) {
	out := make([]models.Contact, 0, len(rows))
	for _, row := range rows {
		c, err := RowToContact(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ContactToUpsertPayload builds the upsert columns for c. Dimension keys must already
// be resolved onto the contact. Optional columns are written only when shape has them.
// active is written on insert only; archive and restore own it afterwards.
func ContactToUpsertPayload(c models.Contact, shape capability.Shape) repository.Payload {
	var p repository.Payload
	if c.ID != nil {
		p.Set("id", *c.ID)
	}
	p.Set("first_name", strings.TrimSpace(c.FirstName))
	p.Set("last_name", strings.TrimSpace(c.LastName))
	p.Set("email_id", nullable(c.EmailID))
	p.Set("college_id", nullable(c.CollegeID))
	p.Set("program_id", nullable(c.ProgramID))
	p.Set("company_id", nullable(c.CompanyID))
	p.Set("occupation_id", nullable(c.OccupationID))
	p.Set("location_id", nullable(c.LocationID))
	p.Set("contact_number", nullString(models.NormalizePhone(c.Phone)))
	if c.GraduationDate != nil {
		p.Set("graduation_date", c.GraduationDate.UTC().Format("2006-01-02"))
	} else {
		p.Set("graduation_date", nil)
	}
	p.Set("address", nullString(strings.TrimSpace(c.Address)))
	if c.ID == nil {
		p.Set("active", c.Active)
	}
	if shape.AlumniType {
		p.Set("alumni_type_id", nullable(c.AlumniTypeID))
	}
	if shape.AddressLink && c.AddressLinkID != nil {
		p.Set("address_link_id", *c.AddressLinkID)
	}
	return p
}

func nullable(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// LocationLabel renders "name • city, country", omitting empty parts.
func LocationLabel(loc models.Location) string {
	name := strings.TrimSpace(loc.Label)
	var place []string
	if city := strings.TrimSpace(loc.City); city != "" {
		place = append(place, city)
	}
	if country := strings.TrimSpace(loc.Country); country != "" {
		place = append(place, country)
	}
	if len(place) == 0 {
		return name
	}
	if name == "" {
		return strings.Join(place, ", ")
	}
	return name + " • " + strings.Join(place, ", ")
}

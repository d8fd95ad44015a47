package domain

import "time"

// Merchant is an enrolled merchant identity. Enrollment happens elsewhere; the voice
// authentication core only reads it.
type Merchant struct {
	ID                string
	DisplayName       string
	Phone             string // canonical +<country><national>
	Persona           string
	PreferredLanguage string
	LocationID        string // empty when the merchant has no market
	CreatedAt         time.Time
}

// Location is the market a merchant is attached to. Coordinates are optional.
type Location struct {
	ID        string
	Name      string
	Latitude  *float64
	Longitude *float64
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

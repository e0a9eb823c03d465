package model

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ICLength is the number of digits in a national identity card number.
const ICLength = 12

// ErrValidation is returned by service methods when the caller supplies invalid
// input. Handlers should convert this to HTTP 400 rather than 500.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ErrValidation{Msg: fmt.Sprintf(format, args...)}
}

// NormalizeIC strips separators from an IC number and checks it is
// exactly ICLength digits.
func NormalizeIC(ic string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, ic)
	if cleaned == "" {
		return "", invalid("IC number is required")
	}
	if len(cleaned) != ICLength {
		return "", invalid("IC number must be %d digits", ICLength)
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", invalid("IC number must contain digits only")
		}
	}
	return cleaned, nil
}

// Gender values accepted on a death record.
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
)

// DeathRecord is the death certificate form as submitted.
type DeathRecord struct {
	FullName        string `json:"fullName"`
	IC              string `json:"ic"`
	Age             int    `json:"age"`
	Gender          string `json:"gender"`
	DateTimeOfDeath string `json:"dateTimeOfDeath"`
	Race            string `json:"race"`
	LastAddress     string `json:"lastAddress"`
	PlaceOfDeath    string `json:"placeOfDeath"`
	CauseOfDeath    string `json:"causeOfDeath"`
}

// Document is the JSON document pinned for a death record.
// DateTimeOfDeath is in unix seconds.
type Document struct {
	FullName        string `json:"fullName"`
	IC              string `json:"ic"`
	Age             int    `json:"age"`
	Gender          string `json:"gender"`
	DateTimeOfDeath int64  `json:"dateTimeOfDeath"`
	Race            string `json:"race"`
	LastAddress     string `json:"lastAddress"`
	PlaceOfDeath    string `json:"placeOfDeath"`
	CauseOfDeath    string `json:"causeOfDeath"`
}

// deathTimeLayouts are the accepted forms of DateTimeOfDeath. The zone-less
// forms are read in the location of the submission clock.
var deathTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Document validates r and returns the document to pin. A DateTimeOfDeath
// without an offset is local to now.Location().
func (r *DeathRecord) Document(now time.Time) (*Document, error) {
	ic, err := NormalizeIC(r.IC)
	if err != nil {
		return nil, err
	}

	required := []struct{ name, value string }{
		{"fullName", r.FullName},
		{"gender", r.Gender},
		{"dateTimeOfDeath", r.DateTimeOfDeath},
		{"race", r.Race},
		{"lastAddress", r.LastAddress},
		{"placeOfDeath", r.PlaceOfDeath},
		{"causeOfDeath", r.CauseOfDeath},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return nil, invalid("%s is required", f.name)
		}
	}

	if r.Age < 0 || r.Age > 150 {
		return nil, invalid("age must be between 0 and 150")
	}
	if r.Gender != GenderMale && r.Gender != GenderFemale {
		return nil, invalid("gender must be %q or %q", GenderMale, GenderFemale)
	}

	died, err := parseDeathTime(r.DateTimeOfDeath, now.Location())
	if err != nil {
		return nil, err
	}
	if died.After(now) {
		return nil, invalid("dateTimeOfDeath is in the future")
	}

	return &Document{
		FullName:        strings.TrimSpace(r.FullName),
		IC:              ic,
		Age:             r.Age,
		Gender:          r.Gender,
		DateTimeOfDeath: died.Unix(),
		Race:            strings.TrimSpace(r.Race),
		LastAddress:     strings.TrimSpace(r.LastAddress),
		PlaceOfDeath:    strings.TrimSpace(r.PlaceOfDeath),
		CauseOfDeath:    strings.TrimSpace(r.CauseOfDeath),
	}, nil
}

func parseDeathTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range deathTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalid("dateTimeOfDeath %q is not a recognised date-time", s)
}

// DocumentName is the pin name used for the document of ic.
func DocumentName(ic string) string {
	return "death-certificate-" + ic
}

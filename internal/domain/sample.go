package domain

import (
	"regexp"
	"strings"
	"time"
)

type Status string

const (
	StatusAvailable Status = "Available"
	StatusTaken     Status = "Taken"
)

// Ref addresses a stored sample: the site, the brand partition it lives
// under and its document key.
type Ref struct {
	Site  string
	Brand string
	Key   string
}

// IsZero reports whether any part of the address is missing.
func (r Ref) IsZero() bool {
	return r.Site == "" || r.Brand == "" || r.Key == ""
}

// Sample is one finished-goods reference sample. Audit fields are optional
// and depend on Status; records with inconsistent fields are tolerated and
// reported by Issues.
type Sample struct {
	Ref Ref

	Brand       string
	MFG         string
	BatchNumber string
	PackSize    string
	Barcode     string
	Description string
	ImageURL    string
	SampleDate  string
	By          string
	Status      Status

	TakenBy string
	Line    string
	Date    string
	Time    string
	// Name is a legacy take-audit field that the return screen blanks.
	Name string

	ReturnBy   string
	ReturnedBy string
	ReturnLine string
	ReturnDate string
	ReturnTime string

	UploadedAt time.Time
	UpdatedAt  time.Time
	Timestamp  time.Time
}

// ID is the sample's document key.
func (s *Sample) ID() string {
	return s.Ref.Key
}

// Returner is whoever last returned the sample, whichever return field was
// written.
func (s *Sample) Returner() string {
	if s.ReturnBy != "" {
		return s.ReturnBy
	}
	return s.ReturnedBy
}

// Issues lists field combinations that should not occur but that stored
// records are allowed to have.
func (s *Sample) Issues() []string {
	var issues []string
	switch s.Status {
	case StatusTaken:
		if s.TakenBy == "" {
			issues = append(issues, "taken sample has no takenBy")
		}
		if s.Line == "" {
			issues = append(issues, "taken sample has no line")
		}
	case StatusAvailable:
	case "":
		issues = append(issues, "sample has no status")
	default:
		issues = append(issues, "unknown status "+string(s.Status))
	}
	return issues
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize replaces every whitespace run with an underscore and lower-cases
// the result. It is used for brand partitions, blob folders and sample keys.
func Normalize(s string) string {
	return strings.ToLower(whitespaceRun.ReplaceAllString(s, "_"))
}

// Key derives the sample document key from its description and barcode.
func Key(description, barcode string) string {
	return Normalize(description + "_" + barcode)
}

// Package search filters a loaded sample set by free-text queries.
package search

import (
	"strings"

	"github.com/vbonduro/fgsamples/internal/domain"
)

// Result is the outcome of Match. Selected is set when the query was a
// single token equal to exactly one sample's barcode, as a scanner produces.
type Result struct {
	Matches  []*domain.Sample
	Selected *domain.Sample
}

// Keywords lower-cases q and splits it on whitespace.
func Keywords(q string) []string {
	return strings.Fields(strings.ToLower(q))
}

// Text is the lower-cased searchable text of s.
func Text(s *domain.Sample) string {
	parts := make([]string, 0, 6)
	for _, f := range []string{s.ID(), s.Barcode, s.MFG, s.BatchNumber, s.Description, s.Brand} {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Matches reports whether every keyword is a substring of the sample's text.
func Matches(s *domain.Sample, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	text := Text(s)
	for _, k := range keywords {
		if !strings.Contains(text, k) {
			return false
		}
	}
	return true
}

// Match returns the samples matching every keyword of q, in input order.
// An empty query matches nothing.
func Match(samples []*domain.Sample, q string) Result {
	keywords := Keywords(q)
	if len(keywords) == 0 {
		return Result{}
	}

	var res Result
	for _, s := range samples {
		if Matches(s, keywords) {
			res.Matches = append(res.Matches, s)
		}
	}
	if len(keywords) == 1 {
		res.Selected = byBarcode(samples, keywords[0])
	}
	return res
}

// byBarcode returns the only sample whose barcode equals code, or nil when
// none or several do.
func byBarcode(samples []*domain.Sample, code string) *domain.Sample {
	var found *domain.Sample
	for _, s := range samples {
		if s.Barcode == "" || !strings.EqualFold(s.Barcode, code) {
			continue
		}
		if found != nil {
			return nil
		}
		found = s
	}
	return found
}

// ContainsAny is the looser filter used by the return screen and the report:
// q, lower-cased and trimmed, must appear in at least one of mfg, batch
// number, description or brand. An empty q matches everything.
func ContainsAny(s *domain.Sample, q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, f := range []string{s.MFG, s.BatchNumber, s.Description, s.Brand} {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Package report builds the weekly activity report and its CSV export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vbonduro/fgsamples/internal/domain"
	"github.com/vbonduro/fgsamples/internal/search"
)

const (
	Window   = 7 * 24 * time.Hour
	Filename = "weekly_fg_sample_report.csv"

	placeholder = "-"
	isoMillis   = "2006-01-02T15:04:05.000Z07:00"
	dayFormat   = "02/01/2006"
)

var Header = []string{
	"Date", "Time", "Status", "MFG", "BatchNumber", "Description", "PackSize",
	"Name", "Line", "ReturnBy", "ReturnLine", "ReturnDate", "ReturnTime",
}

// Weekly keeps samples that have a status and were touched within Window of
// now, most recent first.
func Weekly(samples []*domain.Sample, now time.Time) []*domain.Sample {
	since := now.Add(-Window)
	out := make([]*domain.Sample, 0, len(samples))
	for _, s := range samples {
		if s.Status == "" || s.Timestamp.IsZero() || s.Timestamp.Before(since) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Filter narrows rows by free text (see search.ContainsAny) and by status,
// compared case-insensitively. Empty arguments do not filter.
func Filter(samples []*domain.Sample, query, status string) []*domain.Sample {
	status = strings.TrimSpace(status)
	out := make([]*domain.Sample, 0, len(samples))
	for _, s := range samples {
		if !search.ContainsAny(s, query) {
			continue
		}
		if status != "" && !strings.EqualFold(string(s.Status), status) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Row is one line of the on-screen report. Take columns are only shown for
// taken samples and return columns only for available ones.
type Row struct {
	Date        string
	Time        string
	Status      string
	Taken       bool
	MFG         string
	BatchNumber string
	Brand       string
	Description string
	PackSize    string
	Name        string
	Line        string
	ReturnBy    string
	ReturnLine  string
	ReturnDate  string
	ReturnTime  string
}

// Rows formats samples for display, rendering dates in loc.
func Rows(samples []*domain.Sample, loc *time.Location) []Row {
	rows := make([]Row, 0, len(samples))
	for _, s := range samples {
		r := Row{
			Date:        placeholder,
			Time:        placeholder,
			Status:      string(s.Status),
			Taken:       s.Status == domain.StatusTaken,
			MFG:         s.MFG,
			BatchNumber: s.BatchNumber,
			Brand:       orDash(s.Brand),
			Description: s.Description,
			PackSize:    s.PackSize,
			Name:        placeholder,
			Line:        placeholder,
			ReturnBy:    placeholder,
			ReturnLine:  placeholder,
			ReturnDate:  placeholder,
			ReturnTime:  placeholder,
		}
		switch s.Status {
		case domain.StatusTaken:
			r.Date = s.Timestamp.In(loc).Format(dayFormat)
			r.Time = orDash(s.Time)
			r.Name = orDash(takenBy(s))
			r.Line = orDash(s.Line)
		case domain.StatusAvailable:
			r.ReturnBy = orDash(s.Returner())
			r.ReturnLine = orDash(s.ReturnLine)
			r.ReturnDate = formatDay(s.ReturnDate, loc)
			r.ReturnTime = orDash(s.ReturnTime)
		}
		rows = append(rows, r)
	}
	return rows
}

// WriteCSV writes the header and one record per sample.
func WriteCSV(w io.Writer, samples []*domain.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, s := range samples {
		if err := cw.Write(Record(s)); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// Record is the CSV record for s in Header order. Date is the UTC write
// timestamp in ISO 8601.
func Record(s *domain.Sample) []string {
	date := placeholder
	if !s.Timestamp.IsZero() {
		date = s.Timestamp.UTC().Format(isoMillis)
	}
	return []string{
		date,
		orDash(s.Time),
		string(s.Status),
		orDash(s.MFG),
		orDash(s.BatchNumber),
		orDash(s.Description),
		orDash(s.PackSize),
		orDash(takenBy(s)),
		orDash(s.Line),
		orDash(s.Returner()),
		orDash(s.ReturnLine),
		orDash(s.ReturnDate),
		orDash(s.ReturnTime),
	}
}

// takenBy falls back to the legacy name field older records carry.
func takenBy(s *domain.Sample) string {
	if s.TakenBy != "" {
		return s.TakenBy
	}
	return s.Name
}

var dayPattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// formatDay normalizes a stored day to DD/MM/YYYY. Values already in that
// shape pass through; RFC 3339 values are converted; anything else is "-".
func formatDay(v string, loc *time.Location) string {
	v = strings.TrimSpace(v)
	if v == "" || v == placeholder {
		return placeholder
	}
	if dayPattern.MatchString(v) {
		return v
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.In(loc).Format(dayFormat)
		}
	}
	return placeholder
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return placeholder
	}
	return v
}

package ml

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Occurrence is one labeled historical record as read from the training CSV.
type Occurrence struct {
	Line      int
	Local     string
	Timestamp string
	Tipo      string
}

// Features are the model inputs derived from one occurrence.
type Features struct {
	Local     string `json:"local"`
	Hora      int    `json:"hora"`
	DiaSemana int    `json:"dia_semana"`
}

// Row is a single pipeline input. Numeric columns are kept as float64 because
// request values are passed through without range or integer checks.
type Row struct {
	Local     string
	Hora      float64
	DiaSemana float64
}

func (f Features) Row() Row {
	return Row{Local: f.Local, Hora: float64(f.Hora), DiaSemana: float64(f.DiaSemana)}
}

var ErrEmptyTimestamp = errors.New("empty timestamp")

// isoLayouts covers what datetime.fromisoformat accepts for the extended format.
// Fractional seconds are accepted by time.Parse after the seconds field.
var isoLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
}

// ParseISOTimestamp parses an ISO-8601 date or datetime. A space may replace
// the 'T' separator. Naive values keep their wall clock.
func ParseISOTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, ErrEmptyTimestamp
	}
	normalized := value
	if len(normalized) > 10 && normalized[10] == ' ' {
		normalized = normalized[:10] + "T" + normalized[11:]
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid isoformat string: %q", strings.TrimSpace(value))
}

// Weekday returns the Monday-first weekday index (Monday=0 ... Sunday=6).
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ExtractTimeFeatures derives hora and dia_semana from the occurrence timestamp.
func ExtractTimeFeatures(o Occurrence) (Features, error) {
	ts, err := ParseISOTimestamp(o.Timestamp)
	if err != nil {
		return Features{}, err
	}
	return Features{
		Local:     o.Local,
		Hora:      ts.Hour(),
		DiaSemana: Weekday(ts),
	}, nil
}

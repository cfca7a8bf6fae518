package transform

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the canonical observed_at form.
const DateLayout = "2006-01-02"

// timestampLayouts are tried in order; the first match wins.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z", // 2025-03-13T06:33:19.812Z
	"1/2/2006",                       // 3/13/2025
	DateLayout,                       // 2025-03-13
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses any supported timestamp representation.
// Zone-less forms are interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Wrapf(ErrMalformedTimestamp, "transform: parse %q", s)
}

// NormalizeTimestamp returns the YYYY-MM-DD date of a supported timestamp.
func NormalizeTimestamp(s string) (string, error) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

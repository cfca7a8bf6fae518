package transform

import (
	"strings"

	"github.com/sells-group/esg-pipeline/internal/model"
)

// DefaultRequired lists the score columns every ingested row must carry.
var DefaultRequired = []string{"total_score", "environment_score", "social_score", "governance_score"}

// NamedRequired extends DefaultRequired for drops that carry the entity name.
var NamedRequired = append(append([]string{}, DefaultRequired...), "company_name")

// missingTokens are cell values treated as absent, matching common NA markers.
var missingTokens = map[string]bool{
	"":     true,
	"nan":  true,
	"na":   true,
	"n/a":  true,
	"null": true,
	"none": true,
	"#n/a": true,
}

// Validator decides whether a row has all required fields populated.
type Validator struct {
	Required []string
}

// NewValidator returns a Validator for the given columns, or DefaultRequired when none are given.
func NewValidator(required ...string) Validator {
	if len(required) == 0 {
		required = DefaultRequired
	}
	return Validator{Required: required}
}

// Valid reports whether every required field is present and not missing.
func (v Validator) Valid(row model.RawRow) bool {
	for _, field := range v.Required {
		val, ok := row.Get(field)
		if !ok || IsMissing(val) {
			return false
		}
	}
	return true
}

// IsMissing reports whether a cell value counts as absent.
func IsMissing(val string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(val))]
}

package transform

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-pipeline/internal/model"
)

// Source column names.
const (
	ColTicker          = "ticker"
	ColTimestamp       = "timestamp"
	ColLastProcessing  = "last_processing_date"
	ColTotalScore      = "total_score"
	ColEnvironmentalSc = "environment_score"
	ColSocialScore     = "social_score"
	ColGovernanceScore = "governance_score"
	ColCompanyName     = "company_name"
)

// Result is the outcome of building one row: a record or a classified error.
type Result struct {
	Row    model.RawRow
	Record model.Record
	Err    error

	// DateSubstituted is set when the row's timestamp could not be parsed
	// and the processing date was used instead.
	DateSubstituted bool
}

// OK reports whether the row produced a record.
func (r Result) OK() bool { return r.Err == nil }

// Builder converts validated rows into canonical records.
type Builder struct {
	// Now returns the processing time. Defaults to time.Now.
	Now func() time.Time
}

// NewBuilder returns a Builder pinned to the given processing clock.
func NewBuilder(now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{Now: now}
}

// Build converts a single row. Rows with unparseable timestamps fall back to the
// processing date; rows missing a ticker or carrying non-numeric scores fail with
// ErrWriteFailure.
func (b *Builder) Build(row model.RawRow) Result {
	now := b.now().UTC()
	res := Result{Row: row}

	ticker, ok := row.Get(ColTicker)
	if !ok || IsMissing(ticker) {
		res.Err = eris.Wrapf(ErrWriteFailure, "transform: missing field %s", ColTicker)
		return res
	}

	observed := now.Format(DateLayout)
	if ts, ok := row.Get(ColTimestamp); ok && !IsMissing(ts) {
		norm, err := NormalizeTimestamp(ts)
		if err != nil {
			zap.L().Warn("invalid timestamp, defaulting to processing date",
				zap.String("ticker", ticker),
				zap.String("timestamp", ts),
				zap.String("substitute", observed),
			)
			res.DateSubstituted = true
		} else {
			observed = norm
		}
	}

	lastProcessed := now.Format(time.RFC3339Nano)
	if v, ok := row.Get(ColLastProcessing); ok && !IsMissing(v) {
		lastProcessed = strings.TrimSpace(v)
	}

	scores := make(map[string]float64, 4)
	for _, col := range []string{ColTotalScore, ColEnvironmentalSc, ColSocialScore, ColGovernanceScore} {
		raw, ok := row.Get(col)
		if !ok {
			res.Err = eris.Wrapf(ErrWriteFailure, "transform: missing field %s", col)
			return res
		}
		v, err := ParseScore(raw)
		if err != nil {
			res.Err = eris.Wrapf(err, "transform: column %s", col)
			return res
		}
		scores[col] = v
	}

	res.Record = model.Record{
		EntityID:           strings.ToLower(strings.TrimSpace(ticker)),
		ObservedAt:         observed,
		LastProcessedAt:    lastProcessed,
		TotalScore:         int(scores[ColTotalScore]),
		EnvironmentalScore: int(scores[ColEnvironmentalSc]),
		SocialScore:        int(scores[ColSocialScore]),
		GovernanceScore:    int(scores[ColGovernanceScore]),
		Rating:             Classify(scores[ColTotalScore]),
	}
	if name, ok := row.Get(ColCompanyName); ok && !IsMissing(name) {
		res.Record.EntityName = strings.TrimSpace(name)
	}
	return res
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

package transform

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-pipeline/internal/model"
)

// Classify maps a total score to its letter grade using half-open buckets of width 10.
func Classify(score float64) model.Rating {
	switch {
	case score < 10:
		return model.RatingA
	case score < 20:
		return model.RatingB
	case score < 30:
		return model.RatingC
	case score < 40:
		return model.RatingD
	default:
		return model.RatingE
	}
}

// ParseScore coerces a cell to a finite float whose integer part fits a
// 32-bit score column.
func ParseScore(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, eris.Wrapf(ErrWriteFailure, "transform: score %q is not numeric", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Wrapf(ErrWriteFailure, "transform: score %q is not finite", s)
	}
	if t := math.Trunc(v); t < math.MinInt32 || t > math.MaxInt32 {
		return 0, eris.Wrapf(ErrWriteFailure, "transform: score %q is out of range", s)
	}
	return v, nil
}

package fraud

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/bookkeeping/internal/observability/metrics"
)

// Engine combines the local rules with the optional remote scorer. It never fails:
// a broken scorer leaves the partial score and adds SCORER_UNAVAILABLE.
type Engine struct {
	scorers []Scorer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewEngine(logger *slog.Logger, m *metrics.Metrics, scorers ...Scorer) *Engine {
	if m == nil {
		m = metrics.Nop()
	}
	active := make([]Scorer, 0, len(scorers))
	for _, s := range scorers {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Engine{scorers: active, metrics: m, logger: logger}
}

func (e *Engine) Score(ctx context.Context, in Input) (Result, error) {
	total := Result{Flags: []string{}}
	for _, s := range e.scorers {
		res, err := s.Score(ctx, in)
		if err != nil {
			e.metrics.FraudScorerError()
			e.logger.Warn("fraud scorer unavailable",
				"tracking_code", in.TrackingCode,
				"company_id", in.CompanyID,
				"error", err)
			total.Flags = MergeFlags(total.Flags, []string{FlagScorerUnavailable})
			continue
		}
		total = Merge(total, res)
	}
	e.metrics.FraudScore(total.Score)
	return total, nil
}

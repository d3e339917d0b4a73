package usecase

import (
	"context"

	"github.com/example/dermscan/internal/decision"
	"github.com/example/dermscan/internal/repository"
)

// Summary aggregates a user's prediction history.
type Summary struct {
	Total       int64                   `json:"total"`
	Unknown     int64                   `json:"unknown"`
	UnknownRate float64                 `json:"unknown_rate"`
	Labels      []repository.LabelCount `json:"labels"`
}

// GetSummary counts userID's records per primary label.
func (uc *PredictionUseCase) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	counts, err := uc.store.SummarizeByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Labels: counts}
	if summary.Labels == nil {
		summary.Labels = []repository.LabelCount{}
	}
	for _, c := range counts {
		summary.Total += c.Count
		if c.Label == decision.UnknownLabel {
			summary.Unknown += c.Count
		}
	}
	if summary.Total > 0 {
		summary.UnknownRate = float64(summary.Unknown) / float64(summary.Total)
	}
	return summary, nil
}

package service

import (
	"context"

	"github.com/iliyamo/limited-drops/internal/model"
)

// GetStats returns aggregate counts across all drops and entries.
func (s *DropService) GetStats(ctx context.Context) (model.Stats, error) {
	st, err := s.drops.Stats(ctx)
	if err != nil {
		return model.Stats{}, translate(err)
	}
	return st, nil
}

// Package recorder keeps a local audit log of currency conversions.
package recorder

import (
	"context"

	"github.com/trogers1052/stocks-daily/internal/models"
)

// Recorder persists conversions for later inspection.
type Recorder interface {
	RecordConversion(ctx context.Context, c *models.Conversion) error
	RecentConversions(ctx context.Context, limit int) ([]models.Conversion, error)
	Close() error
}

// NoopRecorder is used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordConversion(_ context.Context, _ *models.Conversion) error { return nil }
func (n *NoopRecorder) RecentConversions(_ context.Context, _ int) ([]models.Conversion, error) {
	return []models.Conversion{}, nil
}
func (n *NoopRecorder) Close() error { return nil }

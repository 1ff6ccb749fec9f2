package patterns

import (
	"context"

	"github.com/pulsestack/pulse-insights/internal/models"
)

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, tenantID string, patterns []models.AnomalyPattern) error

// StorePatterns implements Store.
func (f StoreFunc) StorePatterns(ctx context.Context, tenantID string, patterns []models.AnomalyPattern) error {
	return f(ctx, tenantID, patterns)
}

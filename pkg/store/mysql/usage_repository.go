package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "chatplane/internal/model"
	"chatplane/pkg/store/mysql/model"

	"gorm.io/gorm"
)

// UsageRepository records per-tenant daily usage and serves the trailing
// window the cost optimizer analyzes.
type UsageRepository struct {
	ds *Datastore
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(ds *Datastore) *UsageRepository {
	return &UsageRepository{ds: ds}
}

// RecordMessage folds one processed message into today's row. Response
// time is tracked as a running average; failures increment the error count.
func (r *UsageRepository) RecordMessage(ctx context.Context, tenantID string, responseTimeMs float64, failed bool) error {
	day := time.Now().UTC().Truncate(24 * time.Hour)

	var row model.UsageStat
	err := r.ds.DB(ctx).Where("tenant_id = ? AND day = ?", tenantID, day).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.UsageStat{TenantID: tenantID, Day: day}
	} else if err != nil {
		return fmt.Errorf("failed to load usage row: %w", err)
	}

	// Running average over the day's volume
	total := row.AvgResponseTimeMs*float64(row.MessageVolume) + responseTimeMs
	row.MessageVolume++
	row.AvgResponseTimeMs = total / float64(row.MessageVolume)
	if failed {
		row.ErrorCount++
	}

	hour := time.Now().UTC().Hour()
	if !containsInt(row.PeakHours, hour) {
		row.PeakHours = append(row.PeakHours, hour)
	}
	row.UpdatedAt = time.Now()

	return r.ds.DB(ctx).Save(&row).Error
}

// SetConcurrentConnections updates today's concurrency high-water mark.
func (r *UsageRepository) SetConcurrentConnections(ctx context.Context, tenantID string, connections int) error {
	day := time.Now().UTC().Truncate(24 * time.Hour)

	var row model.UsageStat
	err := r.ds.DB(ctx).Where("tenant_id = ? AND day = ?", tenantID, day).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.UsageStat{TenantID: tenantID, Day: day}
	} else if err != nil {
		return fmt.Errorf("failed to load usage row: %w", err)
	}

	if connections > row.ConcurrentConnections {
		row.ConcurrentConnections = connections
	}
	row.UpdatedAt = time.Now()

	return r.ds.DB(ctx).Save(&row).Error
}

// GetWindow aggregates the trailing N days into a usage summary.
func (r *UsageRepository) GetWindow(ctx context.Context, tenantID string, days int) (*domain.UsageStats, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	var rows []*model.UsageStat
	err := r.ds.DB(ctx).
		Where("tenant_id = ? AND day >= ?", tenantID, since).
		Order("day").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load usage window: %w", err)
	}

	stats := &domain.UsageStats{
		TenantID:   tenantID,
		WindowDays: days,
		UpdatedAt:  time.Now(),
	}

	var (
		weightedResponse float64
		errorCount       int64
		peakSeen         = make(map[int]struct{})
	)
	for _, row := range rows {
		stats.MessageVolume += row.MessageVolume
		weightedResponse += row.AvgResponseTimeMs * float64(row.MessageVolume)
		errorCount += row.ErrorCount
		if row.ConcurrentConnections > stats.ConcurrentConnections {
			stats.ConcurrentConnections = row.ConcurrentConnections
		}
		for _, h := range row.PeakHours {
			peakSeen[h] = struct{}{}
		}
	}

	if stats.MessageVolume > 0 {
		stats.AvgResponseTimeMs = weightedResponse / float64(stats.MessageVolume)
		stats.ErrorRate = float64(errorCount) / float64(stats.MessageVolume) * 100
	}
	stats.DailyMessageAvg = float64(stats.MessageVolume) / float64(days)
	for h := range peakSeen {
		stats.PeakHours = append(stats.PeakHours, h)
	}

	return stats, nil
}

// DeleteOlderThan prunes daily usage rows past the retention horizon.
func (r *UsageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.ds.DB(ctx).Where("day < ?", cutoff).Delete(&model.UsageStat{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune usage rows: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func containsInt(values model.JSONIntArray, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

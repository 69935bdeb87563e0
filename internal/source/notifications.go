package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/session"
)

// NotificationBackend stores notification records.
type NotificationBackend interface {
	ListNotifications(ctx context.Context) ([]model.NotificationRecord, error)
	// ForceRecompute asks the backend to rebuild its derived data.
	ForceRecompute(ctx context.Context) error
}

// NotificationSource reads notification records. When the store comes back
// empty it forces one backend recompute per session and reads again.
type NotificationSource struct {
	backend NotificationBackend
	settle  time.Duration
	logger  *slog.Logger
}

func NewNotificationSource(b NotificationBackend, settle time.Duration, logger *slog.Logger) *NotificationSource {
	return &NotificationSource{backend: b, settle: settle, logger: logger}
}

// FetchNotifications never fails: read errors are logged and treated as an
// empty store.
func (s *NotificationSource) FetchNotifications(ctx context.Context, state *session.State) []model.NotificationRecord {
	records := s.read(ctx)
	if len(records) > 0 {
		return records
	}
	if !state.ClaimForcedRefresh() {
		return records
	}

	s.logger.Info("notification store empty, forcing recompute", "settle", s.settle)
	if err := s.backend.ForceRecompute(ctx); err != nil {
		s.logger.Warn("force recompute failed", "error", err)
		return records
	}

	if err := sleepCtx(ctx, s.settle); err != nil {
		return records
	}
	return s.read(ctx)
}

func (s *NotificationSource) read(ctx context.Context) []model.NotificationRecord {
	records, err := s.backend.ListNotifications(ctx)
	if err != nil {
		s.logger.Warn("read notifications failed", "error", err)
		return []model.NotificationRecord{}
	}
	if records == nil {
		return []model.NotificationRecord{}
	}
	return records
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

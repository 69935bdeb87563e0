package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/store"
)

// LocalBackend exposes the SQLite notification store through the same
// context-aware interface as the host integration.
type LocalBackend struct {
	store *store.NotificationStore
	now   func() time.Time
}

func NewLocalBackend(s *store.NotificationStore) *LocalBackend {
	return &LocalBackend{store: s, now: time.Now}
}

func (b *LocalBackend) ListNotifications(ctx context.Context) ([]model.NotificationRecord, error) {
	return b.store.List()
}

// ForceRecompute prunes expired records, the local equivalent of the host
// rebuilding its notification sensor.
func (b *LocalBackend) ForceRecompute(ctx context.Context) error {
	_, err := b.store.DeleteExpired(b.now())
	return err
}

func (b *LocalBackend) AddNotification(ctx context.Context, req model.NotificationRequest) (string, error) {
	r, err := b.store.Create(req)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

func (b *LocalBackend) RemoveNotification(ctx context.Context, id string) error {
	return b.store.Delete(id)
}

func (b *LocalBackend) ToggleNotification(ctx context.Context, id string) error {
	r, err := b.store.Toggle(id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("toggle notification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

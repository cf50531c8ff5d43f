package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/occasio/occasio/storage"
)

// StartMaintenance refreshes the session every refresh interval while a
// refresh token is stored. The loop runs in its own goroutine until ctx is
// done or the Manager is closed.
func (m *Manager) StartMaintenance(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				if err := m.refreshIfPresent(ctx); err != nil {
					m.logger.Warn("periodic token refresh failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Focus is called when the application regains focus. It refreshes the
// session if a refresh token is stored.
func (m *Manager) Focus(ctx context.Context) error {
	return m.refreshIfPresent(ctx)
}

func (m *Manager) refreshIfPresent(ctx context.Context) error {
	refresh, err := storage.Lookup(m.store, storage.KeyRefresh)
	if err != nil || refresh == "" {
		return err
	}
	_, err = m.Refresh(ctx)
	return err
}

package memory

import (
	"context"
	"sync"
	"time"
)

// AlertMarkers is an in-memory AlertMarkerRepository.
type AlertMarkers struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewAlertMarkers returns an empty marker set.
func NewAlertMarkers() *AlertMarkers {
	return &AlertMarkers{expires: make(map[string]time.Time), now: time.Now}
}

func (m *AlertMarkers) MarkIfAbsent(_ context.Context, caseID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if exp, ok := m.expires[caseID]; ok && now.Before(exp) {
		return false, nil
	}
	m.expires[caseID] = now.Add(ttl)
	return true, nil
}

func (m *AlertMarkers) Clear(_ context.Context, caseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expires, caseID)
	return nil
}

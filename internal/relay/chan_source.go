package relay

import (
	"context"
	"sync"
)

// ChanSource is an in-process EventSource used when no REDIS_URL is set and
// in tests. Publish fans out to every subscriber of the organization.
type ChanSource struct {
	mu   sync.Mutex
	subs map[string][]chan ChangeEvent
}

func NewChanSource() *ChanSource {
	return &ChanSource{subs: map[string][]chan ChangeEvent{}}
}

// Subscribe registers a feed for one organization. The subscriber is removed
// once ctx ends, so abandoned watchers stop consuming Publish fan-out.
func (s *ChanSource) Subscribe(ctx context.Context, orgID string) (<-chan ChangeEvent, error) {
	ch := make(chan ChangeEvent, 16)
	s.mu.Lock()
	s.subs[orgID] = append(s.subs[orgID], ch)
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.remove(orgID, ch)
	}()
	return ch, nil
}

// Publish delivers an event to current subscribers, dropping for any that
// cannot keep up.
func (s *ChanSource) Publish(orgID string, evt ChangeEvent) {
	s.mu.Lock()
	subs := s.subs[orgID]
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *ChanSource) remove(orgID string, ch chan ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[orgID]
	for i := range subs {
		if subs[i] == ch {
			s.subs[orgID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(s.subs[orgID]) == 0 {
		delete(s.subs, orgID)
	}
}

// subscriberCount reports the live feeds for an organization.
func (s *ChanSource) subscriberCount(orgID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[orgID])
}

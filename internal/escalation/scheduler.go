package escalation

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry is one pending escalation firing, keyed by (alertID, level).
type timerEntry struct {
	at      time.Time
	alertID string
	level   int
	index   int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any)        { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// scheduler is a time-ordered set of escalation timers. All timers belonging
// to one alert are cancelled together; a cancelled timer can never fire.
type scheduler struct {
	mu      sync.Mutex
	heap    timerHeap
	byAlert map[string][]*timerEntry
}

func newScheduler() *scheduler {
	return &scheduler{byAlert: make(map[string][]*timerEntry)}
}

func (s *scheduler) schedule(alertID string, level int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &timerEntry{at: at, alertID: alertID, level: level}
	heap.Push(&s.heap, e)
	s.byAlert[alertID] = append(s.byAlert[alertID], e)
}

// cancel removes every pending timer for the alert as a unit. Partial
// cancellation is not a valid state.
func (s *scheduler) cancel(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.byAlert[alertID] {
		if e.index >= 0 && e.index < len(s.heap) && s.heap[e.index] == e {
			heap.Remove(&s.heap, e.index)
		}
	}
	delete(s.byAlert, alertID)
}

// due pops every timer whose deadline has passed.
func (s *scheduler) due(now time.Time) []*timerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []*timerEntry
	for len(s.heap) > 0 && !s.heap[0].at.After(now) {
		e := heap.Pop(&s.heap).(*timerEntry)
		fired = append(fired, e)
		s.detach(e)
	}
	return fired
}

func (s *scheduler) detach(e *timerEntry) {
	entries := s.byAlert[e.alertID]
	for i, other := range entries {
		if other == e {
			s.byAlert[e.alertID] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(s.byAlert[e.alertID]) == 0 {
		delete(s.byAlert, e.alertID)
	}
}

func (s *scheduler) pending(alertID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byAlert[alertID])
}

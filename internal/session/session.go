// Package session holds the per-class scan state machine and the published
// result cache. Every mutation happens under one mutex so readers never see
// a torn view of progress and groups.
package session

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"mediadupfinder/internal/models"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrMemberNotFound = errors.New("member not found")
)

// Session is the scan state of one asset class
type Session struct {
	class models.AssetClass
	log   zerolog.Logger

	mu        sync.RWMutex
	state     models.ScanState
	processed int
	total     int
	groups    []models.DuplicateGroup
	buckets   []models.MonthBucket
	deleted   map[string]bool // reconciled during the current run

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// New creates an idle Session
func New(class models.AssetClass, opts ...Option) *Session {
	s := &Session{
		class: class,
		state: models.StateIdle,
		log:   zerolog.Nop(),
		subs:  make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Class returns the asset class the session scans
func (s *Session) Class() models.AssetClass {
	return s.class
}

// Start enters Scanning. It returns false without touching progress or
// groups when a scan is already running. A total of zero completes the
// session immediately with no groups.
func (s *Session) Start(total int) bool {
	s.mu.Lock()
	if s.state == models.StateScanning {
		s.mu.Unlock()
		return false
	}
	s.processed = 0
	s.total = total
	s.groups = nil
	s.buckets = nil
	s.deleted = nil
	s.state = models.StateScanning
	if total <= 0 {
		s.total = 0
		s.state = models.StateComplete
	}
	state := s.state
	s.mu.Unlock()

	s.log.Debug().Str("class", string(s.class)).Int("total", total).Str("state", string(state)).Msg("scan started")
	s.notify()
	return true
}

// Advance records that n assets have been processed. The counter never moves
// backwards and is clamped at the total.
func (s *Session) Advance(n int) {
	s.mu.Lock()
	if s.state != models.StateScanning || n <= s.processed {
		s.mu.Unlock()
		return
	}
	if n > s.total {
		n = s.total
	}
	s.processed = n
	s.mu.Unlock()
	s.notify()
}

// Publish replaces the published group list. Selections the user changed
// on a group that is still present are kept. Assets reconciled since Start
// are dropped, since the groups may come from a snapshot taken before the
// deletion.
func (s *Session) Publish(groups []models.DuplicateGroup) {
	next := models.CloneGroups(groups)

	s.mu.Lock()
	if len(s.deleted) > 0 {
		next, _ = reconcileGroups(next, s.deleted)
	}
	prev := make(map[string]models.DuplicateGroup, len(s.groups))
	for _, g := range s.groups {
		prev[g.ID] = g
	}
	for i := range next {
		old, ok := prev[next[i].ID]
		if !ok {
			continue
		}
		selected := make(map[string]bool, len(old.Members))
		for _, m := range old.Members {
			selected[m.Asset.ID] = m.Selected
		}
		for j := range next[i].Members {
			if sel, ok := selected[next[i].Members[j].Asset.ID]; ok {
				next[i].Members[j].Selected = sel
			}
		}
	}
	s.groups = next
	s.mu.Unlock()
	s.notify()
}

// SetMonthBuckets replaces the published month buckets
func (s *Session) SetMonthBuckets(buckets []models.MonthBucket) {
	s.mu.Lock()
	s.buckets = models.CloneBuckets(buckets)
	s.mu.Unlock()
	s.notify()
}

// Finish moves a running scan to Complete, or Cancelled when cancelled is
// set. Groups published so far are kept either way.
func (s *Session) Finish(cancelled bool) {
	s.mu.Lock()
	if s.state != models.StateScanning {
		s.mu.Unlock()
		return
	}
	if cancelled {
		s.state = models.StateCancelled
	} else {
		s.state = models.StateComplete
		s.processed = s.total
	}
	groups := len(s.groups)
	s.mu.Unlock()

	s.log.Info().Str("class", string(s.class)).Bool("cancelled", cancelled).Int("groups", groups).Msg("scan finished")
	s.notify()
}

// Restore loads a previously persisted result into an idle session
func (s *Session) Restore(groups []models.DuplicateGroup, buckets []models.MonthBucket) {
	s.mu.Lock()
	if s.state == models.StateScanning {
		s.mu.Unlock()
		return
	}
	s.groups = models.CloneGroups(groups)
	s.buckets = models.CloneBuckets(buckets)
	s.state = models.StateComplete
	s.processed, s.total = 0, 0
	s.mu.Unlock()
	s.notify()
}

// State returns the current lifecycle state
func (s *Session) State() models.ScanState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Progress returns processed/total in [0, 1]
func (s *Session) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress()
}

func (s *Session) progress() float64 {
	if s.total == 0 {
		if s.state.Terminal() {
			return 1
		}
		return 0
	}
	return float64(s.processed) / float64(s.total)
}

// Status returns an immutable snapshot of the session
func (s *Session) Status() models.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Status{
		Class:      s.class,
		State:      s.state,
		IsScanning: s.state == models.StateScanning,
		Processed:  s.processed,
		Total:      s.total,
		Progress:   s.progress(),
		Groups:     models.CloneGroups(s.groups),
	}
}

// MonthBuckets returns a copy of the published month buckets
func (s *Session) MonthBuckets() []models.MonthBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneBuckets(s.buckets)
}

// Toggle flips the deletion selection of one member and returns the new value
func (s *Session) Toggle(groupID, assetID string) (bool, error) {
	s.mu.Lock()
	var selected bool
	err := ErrGroupNotFound
	for i := range s.groups {
		if s.groups[i].ID != groupID {
			continue
		}
		err = ErrMemberNotFound
		for j := range s.groups[i].Members {
			m := &s.groups[i].Members[j]
			if m.Asset.ID == assetID {
				m.Selected = !m.Selected
				selected, err = m.Selected, nil
				break
			}
		}
		break
	}
	s.mu.Unlock()

	if err != nil {
		return false, err
	}
	s.notify()
	return selected, nil
}

// Subscribe returns a channel that receives a signal after every change,
// and a function that releases it. Signals coalesce: a slow reader sees one
// pending signal, never a backlog.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

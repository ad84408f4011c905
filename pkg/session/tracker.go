package session

import (
	"fmt"
	"sync"
	"time"

	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errs.New(errs.ErrorTypeNotFound, "")
	// ErrConflict is returned for transitions the session does not allow.
	ErrConflict = errs.New(errs.ErrorTypeConflict, "")
)

const completedMessage = "Analysis complete!"

type record struct {
	mu   sync.Mutex
	sess Session
	subs map[int]chan Session
	next int
}

// Tracker is a concurrency-safe store of sessions.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*record
	ttl      time.Duration
	now      func() time.Time
	logger   logger.Logger
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates an empty tracker whose terminal sessions expire after ttl.
// A zero ttl keeps sessions until deleted.
func NewTracker(ttl time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		sessions: make(map[string]*record),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithField("component", "session_tracker")
	return t
}

// Create registers a new queued session.
func (t *Tracker) Create(id string) (Session, error) {
	if id == "" {
		return Session{}, errs.New(errs.ErrorTypeValidation, "session id is required")
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[id]; exists {
		return Session{}, errs.New(errs.ErrorTypeConflict, fmt.Sprintf("session %s already exists", id))
	}
	rec := &record{
		sess: Session{
			ID:        id,
			Status:    StatusQueued,
			Message:   "Queued",
			CreatedAt: now,
			UpdatedAt: now,
		},
		subs: make(map[int]chan Session),
	}
	t.sessions[id] = rec

	logger.LogSessionTransition(id, string(StatusQueued), 0, "Session created")
	return rec.sess.clone(), nil
}

func (t *Tracker) lookup(id string) (*record, error) {
	t.mu.RLock()
	rec, ok := t.sessions[id]
	t.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.ErrorTypeNotFound, fmt.Sprintf("session %s not found", id))
	}
	return rec, nil
}

// Get returns a snapshot of the session.
func (t *Tracker) Get(id string) (Session, error) {
	rec, err := t.lookup(id)
	if err != nil {
		return Session{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.sess.clone(), nil
}

// Update moves an active session forward. It rejects phase regression,
// backward progress and any change to a terminal session. Terminal states
// are reached through Finalize only.
func (t *Tracker) Update(id string, u Update) (Session, error) {
	if u.Status != "" && !u.Status.Valid() {
		return Session{}, errs.New(errs.ErrorTypeValidation, fmt.Sprintf("unknown status %q", u.Status))
	}
	if u.Status.Terminal() {
		return Session{}, errs.New(errs.ErrorTypeValidation, "terminal status requires Finalize")
	}
	if u.Progress < 0 || u.Progress > 100 {
		return Session{}, errs.New(errs.ErrorTypeValidation, fmt.Sprintf("progress %d out of range", u.Progress))
	}

	rec, err := t.lookup(id)
	if err != nil {
		return Session{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	cur := rec.sess
	if cur.Status.Terminal() {
		return Session{}, errs.New(errs.ErrorTypeConflict, fmt.Sprintf("session %s is %s", id, cur.Status))
	}
	status := cur.Status
	if u.Status != "" {
		if phaseRank[u.Status] < phaseRank[cur.Status] {
			return Session{}, errs.New(errs.ErrorTypeConflict,
				fmt.Sprintf("cannot move session %s from %s back to %s", id, cur.Status, u.Status))
		}
		status = u.Status
	}
	if u.Progress < cur.Progress {
		return Session{}, errs.New(errs.ErrorTypeConflict,
			fmt.Sprintf("progress of session %s cannot go from %d to %d", id, cur.Progress, u.Progress))
	}

	rec.sess.Status = status
	rec.sess.Progress = u.Progress
	if u.Message != "" {
		rec.sess.Message = u.Message
	}
	if u.Preview != nil {
		rec.sess.Preview = u.Preview
	}
	rec.sess.UpdatedAt = t.now()

	if status != cur.Status {
		logger.LogSessionTransition(id, string(status), u.Progress, rec.sess.Message)
	}
	snap := rec.sess.clone()
	rec.publish(snap, false)
	return snap, nil
}

// Finalize ends the session: completed at 100 when runErr is nil, error
// otherwise with progress frozen. A second call returns ErrConflict.
func (t *Tracker) Finalize(id string, result any, runErr error) (Session, error) {
	rec, err := t.lookup(id)
	if err != nil {
		return Session{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.sess.Status.Terminal() {
		return Session{}, errs.New(errs.ErrorTypeConflict, fmt.Sprintf("session %s already finalized as %s", id, rec.sess.Status))
	}

	now := t.now()
	if runErr == nil {
		rec.sess.Status = StatusCompleted
		rec.sess.Progress = 100
		rec.sess.Message = completedMessage
		rec.sess.Result = result
	} else {
		msg := errs.Sanitize(runErr)
		rec.sess.Status = StatusError
		rec.sess.Error = msg
		rec.sess.Message = "Error: " + msg
	}
	rec.sess.UpdatedAt = now
	rec.sess.FinishedAt = now

	logger.LogSessionTransition(id, string(rec.sess.Status), rec.sess.Progress, rec.sess.Message)
	snap := rec.sess.clone()
	rec.publish(snap, true)
	return snap, nil
}

// Subscribe returns a channel of snapshots for the session and a func that
// ends the subscription. The channel holds only the latest snapshot and is
// closed after the terminal one.
func (t *Tracker) Subscribe(id string) (<-chan Session, func(), error) {
	rec, err := t.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	ch := make(chan Session, 1)
	ch <- rec.sess.clone()
	if rec.sess.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	key := rec.next
	rec.next++
	rec.subs[key] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			if c, ok := rec.subs[key]; ok {
				delete(rec.subs, key)
				close(c)
			}
		})
	}
	return ch, cancel, nil
}

// publish fans out a snapshot without blocking. Callers hold rec.mu.
func (rec *record) publish(snap Session, final bool) {
	for key, ch := range rec.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
		if final {
			close(ch)
			delete(rec.subs, key)
		}
	}
}

func (rec *record) closeSubscribers() {
	for key, ch := range rec.subs {
		close(ch)
		delete(rec.subs, key)
	}
}

// Delete removes a session and ends its subscriptions.
func (t *Tracker) Delete(id string) error {
	t.mu.Lock()
	rec, ok := t.sessions[id]
	delete(t.sessions, id)
	t.mu.Unlock()
	if !ok {
		return errs.New(errs.ErrorTypeNotFound, fmt.Sprintf("session %s not found", id))
	}

	rec.mu.Lock()
	rec.closeSubscribers()
	rec.mu.Unlock()
	return nil
}

// Sweep evicts terminal sessions that finished more than the TTL before now
// and returns how many were removed. Active sessions are never evicted.
func (t *Tracker) Sweep(now time.Time) int {
	if t.ttl <= 0 {
		return 0
	}

	var expired []string
	t.mu.RLock()
	for id, rec := range t.sessions {
		rec.mu.Lock()
		if rec.sess.Status.Terminal() && now.Sub(rec.sess.FinishedAt) > t.ttl {
			expired = append(expired, id)
		}
		rec.mu.Unlock()
	}
	t.mu.RUnlock()

	for _, id := range expired {
		_ = t.Delete(id)
	}
	if len(expired) > 0 {
		t.logger.InfoWithFields("Expired sessions evicted", map[string]interface{}{
			"evicted":   len(expired),
			"remaining": t.Len(),
		})
	}
	return len(expired)
}

// SweepNow is Sweep at the tracker's current time, suitable for a scheduler.
func (t *Tracker) SweepNow() {
	t.Sweep(t.now())
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// List returns snapshots of all sessions.
func (t *Tracker) List() []Session {
	t.mu.RLock()
	recs := make([]*record, 0, len(t.sessions))
	for _, rec := range t.sessions {
		recs = append(recs, rec)
	}
	t.mu.RUnlock()

	out := make([]Session, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.sess.clone())
		rec.mu.Unlock()
	}
	return out
}

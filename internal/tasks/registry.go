// Package tasks provides the in-process registry of asynchronous processing jobs.
//
// The registry lives for the lifetime of the process and is not a durable
// store: after a restart the history store is the only source of truth.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultRetention is how long a terminal task stays pollable
const DefaultRetention = time.Hour

// subscriberBuffer bounds the snapshots queued for a slow subscriber
const subscriberBuffer = 16

var (
	// ErrNotFound is returned for unknown or evicted task IDs
	ErrNotFound = errors.New("task not found")
	// ErrTaskFinished is returned when updating a task that already terminated
	ErrTaskFinished = errors.New("task already finished")
)

// TransitionError reports a status change that would move a task backwards
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// InvariantError reports a terminal record that does not carry exactly one of result or error
type InvariantError struct {
	Status  Status
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invalid %s task: %s", e.Status, e.Message)
}

// Registry is a concurrency-safe store of tasks. All fields of a task change
// together under one lock, so readers always see a consistent snapshot.
type Registry struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	subs      map[string]map[int]chan Task
	nextSub   int
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithRetention sets how long terminal tasks remain after they finish
func WithRetention(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithClock overrides the time source (for tests)
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the registry logger
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tasks:     make(map[string]*Task),
		subs:      make(map[string]map[int]chan Task),
		retention: DefaultRetention,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new pending task and returns its freshly generated ID
func (r *Registry) Create(meta Metadata, res Resources) string {
	now := r.now()
	t := &Task{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Stage:     StageUpload,
		Metadata:  meta,
		Resources: res,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()

	r.logger.Debug().Str("task_id", t.ID).Str("filename", meta.Filename).Msg("tasks.created")
	return t.ID
}

// Get returns a snapshot of the task. The first read of a terminal task
// attaches its expiry timestamp; expired tasks are evicted and reported as
// not found.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookup(id)
	if !ok {
		return Task{}, ErrNotFound
	}
	if t.Status.Terminal() && t.ExpiresAt == nil {
		exp := r.now().Add(r.retention)
		t.ExpiresAt = &exp
	}
	return t.clone(), nil
}

// Update applies mutate to a working copy of the task and commits it only if
// the result is a valid transition. Terminal tasks are frozen.
func (r *Registry) Update(id string, mutate func(*Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookup(id)
	if !ok {
		return ErrNotFound
	}
	if t.Status.Terminal() {
		return ErrTaskFinished
	}

	work := t.clone()
	mutate(&work)

	if err := r.validate(t, &work); err != nil {
		return err
	}

	now := r.now()
	work.ID = t.ID
	work.CreatedAt = t.CreatedAt
	work.UpdatedAt = now
	work.Progress = clampProgress(work.Progress)
	if work.Status.Terminal() {
		work.FinishedAt = &now
		work.ExpiresAt = nil
	}
	*t = work

	r.publish(t)
	return nil
}

func (r *Registry) validate(cur, next *Task) error {
	if next.Status.rank() < 0 {
		return &TransitionError{From: cur.Status, To: next.Status}
	}
	if next.Status.rank() < cur.Status.rank() {
		return &TransitionError{From: cur.Status, To: next.Status}
	}
	switch next.Status {
	case StatusCompleted:
		if next.Result == nil {
			return &InvariantError{Status: next.Status, Message: "result is required"}
		}
		if next.Error != "" {
			return &InvariantError{Status: next.Status, Message: "error must be empty"}
		}
	case StatusFailed:
		if next.Error == "" {
			return &InvariantError{Status: next.Status, Message: "error is required"}
		}
		if next.Result != nil {
			return &InvariantError{Status: next.Status, Message: "result must be empty"}
		}
	}
	return nil
}

// Subscribe returns a channel receiving a snapshot after every update of the
// task, starting with its current state. The channel is closed once the task
// terminates or cancel is called.
func (r *Registry) Subscribe(id string) (<-chan Task, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookup(id)
	if !ok {
		return nil, nil, ErrNotFound
	}

	ch := make(chan Task, subscriberBuffer)
	ch <- t.clone()
	if t.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	subID := r.nextSub
	r.nextSub++
	if r.subs[id] == nil {
		r.subs[id] = make(map[int]chan Task)
	}
	r.subs[id][subID] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if c, ok := r.subs[id][subID]; ok {
				delete(r.subs[id], subID)
				close(c)
			}
		})
	}
	return ch, cancel, nil
}

// List returns snapshots of all live tasks, oldest first
func (r *Registry) List() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Task, 0, len(r.tasks))
	for id := range r.tasks {
		if t, ok := r.lookup(id); ok {
			out = append(out, t.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Reap evicts every expired terminal task and returns how many were removed
func (r *Registry) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	now := r.now()
	for id, t := range r.tasks {
		if r.expired(t, now) {
			r.evict(id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug().Int("removed", removed).Msg("tasks.reaped")
	}
	return removed
}

// RunReaper calls Reap every interval until ctx is done
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap()
		}
	}
}

// lookup returns the task if present and not expired. Caller holds r.mu.
func (r *Registry) lookup(id string) (*Task, bool) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, false
	}
	if r.expired(t, r.now()) {
		r.evict(id)
		return nil, false
	}
	return t, true
}

func (r *Registry) expired(t *Task, now time.Time) bool {
	if !t.Status.Terminal() {
		return false
	}
	if t.ExpiresAt != nil {
		return now.After(*t.ExpiresAt)
	}
	return t.FinishedAt != nil && now.After(t.FinishedAt.Add(r.retention))
}

// evict removes a task and closes its subscribers. Caller holds r.mu.
func (r *Registry) evict(id string) {
	delete(r.tasks, id)
	for subID, ch := range r.subs[id] {
		close(ch)
		delete(r.subs[id], subID)
	}
	delete(r.subs, id)
}

// publish fans a snapshot out to subscribers, dropping the oldest queued
// snapshot for a subscriber that has fallen behind. Caller holds r.mu.
func (r *Registry) publish(t *Task) {
	subs := r.subs[t.ID]
	if len(subs) == 0 {
		return
	}
	for subID, ch := range subs {
		snap := t.clone()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
		if t.Status.Terminal() {
			close(ch)
			delete(subs, subID)
		}
	}
	if t.Status.Terminal() {
		delete(r.subs, t.ID)
	}
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// Package registry resolves NFC tags to the students they are issued to.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"campus-access-backend/internal/broker"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/store"
)

// ErrNotFound is returned by Resolve for unknown or inactive tags. It is an
// expected outcome of a mis-scan, not a fault.
var ErrNotFound = errors.New("tag not found")

// ErrStudentNotFound is returned when an operation names an unknown student.
var ErrStudentNotFound = errors.New("student not found")

// ErrInvalidStudent marks a rejected profile.
var ErrInvalidStudent = errors.New("invalid student")

// TagStore is the persistence the registry needs.
type TagStore interface {
	FindActiveTag(ctx context.Context, uid string) (*model.Tag, error)
	IssueTag(ctx context.Context, uid, usn string, at time.Time) (*model.Tag, error)
	RevokeTag(ctx context.Context, uid string, at time.Time) error
	UpsertStudent(ctx context.Context, student *model.Student) error
	GetStudent(ctx context.Context, usn string) (*model.Student, error)
	SearchStudents(ctx context.Context, query string, limit int) ([]model.Student, error)
	SetStudentImage(ctx context.Context, usn, key string) error
}

// InvalidationTopic carries registry changes between instances sharing a broker.
const InvalidationTopic = "registry"

// Registry maps tags to students. Resolutions are cached for a short TTL and
// the cache is flushed on every registry mutation, locally and, once Share is
// called, on every other instance.
type Registry struct {
	store TagStore
	cache *cache.Cache
	now   func() time.Time

	// generation counts flushes. A lookup that overlapped one is not cached.
	mu         sync.Mutex
	generation uint64

	events broker.Broker
	origin string
}

// New creates a registry. A zero ttl disables caching.
func New(s TagStore, ttl time.Duration) *Registry {
	r := &Registry{store: s, now: time.Now, origin: uuid.NewString()}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// Resolve returns the student an active tag is bound to.
func (r *Registry) Resolve(ctx context.Context, uid string) (model.Student, error) {
	var gen uint64
	if r.cache != nil {
		if v, ok := r.cache.Get(uid); ok {
			return v.(model.Student), nil
		}
		r.mu.Lock()
		gen = r.generation
		r.mu.Unlock()
	}

	tag, err := r.store.FindActiveTag(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return model.Student{}, ErrNotFound
	}
	if err != nil {
		return model.Student{}, fmt.Errorf("failed to resolve tag %s: %w", uid, err)
	}

	if r.cache != nil {
		r.mu.Lock()
		if r.generation == gen {
			r.cache.SetDefault(uid, tag.Student)
		}
		r.mu.Unlock()
	}
	return tag.Student, nil
}

// IssueTag binds a tag to a student, replacing the student's previous tag.
func (r *Registry) IssueTag(ctx context.Context, uid, usn string) (*model.Tag, error) {
	defer r.invalidate(ctx)
	tag, err := r.store.IssueTag(ctx, uid, usn, r.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrStudentNotFound
	}
	return tag, err
}

// RevokeTag deactivates a tag so it no longer resolves.
func (r *Registry) RevokeTag(ctx context.Context, uid string) error {
	defer r.invalidate(ctx)
	err := r.store.RevokeTag(ctx, uid, r.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// SaveStudent creates or updates a student profile.
func (r *Registry) SaveStudent(ctx context.Context, student *model.Student) error {
	if student.USN == "" || student.Name == "" {
		return fmt.Errorf("%w: usn and name are required", ErrInvalidStudent)
	}
	if student.ValidUpto.IsZero() {
		return fmt.Errorf("%w: valid_upto is required", ErrInvalidStudent)
	}
	if !student.ValidFrom.IsZero() && student.ValidUpto.Before(student.ValidFrom) {
		return fmt.Errorf("%w: valid_upto precedes valid_from", ErrInvalidStudent)
	}
	defer r.invalidate(ctx)
	return r.store.UpsertStudent(ctx, student)
}

// Student returns a profile by USN.
func (r *Registry) Student(ctx context.Context, usn string) (*model.Student, error) {
	student, err := r.store.GetStudent(ctx, usn)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrStudentNotFound
	}
	return student, err
}

// Search finds students by name, USN or contact number.
func (r *Registry) Search(ctx context.Context, query string, limit int) ([]model.Student, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return r.store.SearchStudents(ctx, query, limit)
}

// SetPhoto records the storage key of a student's photo; empty clears it.
func (r *Registry) SetPhoto(ctx context.Context, usn, key string) error {
	defer r.invalidate(ctx)
	err := r.store.SetStudentImage(ctx, usn, key)
	if errors.Is(err, store.ErrNotFound) {
		return ErrStudentNotFound
	}
	return err
}

// Share publishes this registry's invalidations on events and flushes the
// cache when another instance announces one. It returns once subscribed and
// follows the broker until ctx ends.
func (r *Registry) Share(ctx context.Context, events broker.Broker) error {
	msgs, err := events.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to registry invalidations: %w", err)
	}
	r.mu.Lock()
	r.events = events
	r.mu.Unlock()

	go func() {
		for msg := range msgs {
			if msg.Topic == InvalidationTopic && string(msg.Body) != r.origin {
				r.flush()
			}
		}
	}()
	return nil
}

func (r *Registry) invalidate(ctx context.Context) {
	r.flush()

	r.mu.Lock()
	events := r.events
	r.mu.Unlock()
	if events == nil {
		return
	}
	// The mutation is committed; announce it even if the request was cancelled.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := events.Publish(pubCtx, broker.Message{Topic: InvalidationTopic, Body: []byte(r.origin)}); err != nil {
		log.Printf("Failed to announce registry change: %v", err)
	}
}

func (r *Registry) flush() {
	if r.cache == nil {
		return
	}
	r.mu.Lock()
	r.generation++
	r.cache.Flush()
	r.mu.Unlock()
}

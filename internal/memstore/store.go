// Package memstore keeps appointments, payments and the directory in process
// memory. It enforces the same uniqueness and atomicity rules as the Postgres
// schema and backs STORAGE_DRIVER=memory as well as tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/directory"
	"github.com/hackgods/physio-appointments/internal/payment"
	redisclient "github.com/hackgods/physio-appointments/internal/redis"
)

var (
	_ appointment.Repository = (*Store)(nil)
	_ payment.Repository     = (*Store)(nil)
	_ directory.Directory    = (*Store)(nil)
	_ redisclient.Locker     = (*Store)(nil)
)

type Store struct {
	mu sync.Mutex

	therapists   map[uuid.UUID]directory.Profile
	patients     map[uuid.UUID]directory.Profile
	appointments map[uuid.UUID]appointment.Appointment
	payments     map[uuid.UUID]payment.Payment
	events       []appointment.EventLog
	locks        map[string]struct{}

	now func() time.Time
}

func New() *Store {
	return &Store{
		therapists:   make(map[uuid.UUID]directory.Profile),
		patients:     make(map[uuid.UUID]directory.Profile),
		appointments: make(map[uuid.UUID]appointment.Appointment),
		payments:     make(map[uuid.UUID]payment.Payment),
		locks:        make(map[string]struct{}),
		now:          time.Now,
	}
}

// SetClock replaces the clock used for created/updated stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Directory

func (s *Store) AddTherapist(p directory.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.therapists[p.ID] = p
}

func (s *Store) AddPatient(p directory.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.patients[p.ID] = p
}

func (s *Store) Therapist(_ context.Context, id uuid.UUID) (*directory.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.therapists[id]
	if !ok {
		return nil, directory.ErrTherapistNotFound
	}
	return &p, nil
}

func (s *Store) Patient(_ context.Context, id uuid.UUID) (*directory.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, directory.ErrPatientNotFound
	}
	return &p, nil
}

func (s *Store) SearchPatients(_ context.Context, term string, limit int) ([]directory.Entry, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	result := []directory.Entry{}
	if term == "" {
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.patients {
		if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(strings.ToLower(p.Email), term) {
			result = append(result, directory.Entry{ID: p.ID, Name: p.Name, Email: p.Email})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Locker

// WithLock fails fast when key is held, like the Redis locker.
func (s *Store) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if _, held := s.locks[key]; held {
		s.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	s.locks[key] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.locks, key)
		s.mu.Unlock()
	}()

	return fn(ctx)
}

// Events returns a copy of every event logged so far.
func (s *Store) Events() []appointment.EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]appointment.EventLog(nil), s.events...)
}

func (s *Store) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = int64(len(s.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	s.events = append(s.events, ev)
	return nil
}

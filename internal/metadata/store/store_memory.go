package store

import (
	"context"
	"fmt"
	"sync"

	"tokenmeta/internal/metadata/models"
	"tokenmeta/pkg/platform/sentinel"
)

// InMemory keeps metadata objects in a map. Callers always receive copies, so
// the stored objects are never shared with request code.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string]*models.Object
}

func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string]*models.Object)}
}

func (s *InMemory) FindOne(_ context.Context, subject string) (*models.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[subject]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return obj.Clone(), nil
}

// InsertOne stores obj unless the subject is already taken.
func (s *InMemory) InsertOne(_ context.Context, obj *models.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[obj.Subject]; ok {
		return fmt.Errorf("subject %s: %w", obj.Subject, sentinel.ErrConflict)
	}
	s.objects[obj.Subject] = obj.Clone()
	return nil
}

// UpdateOne applies u atomically; see models.Object.Apply for the conflict
// rules.
func (s *InMemory) UpdateOne(_ context.Context, subject string, u models.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[subject]
	if !ok {
		return sentinel.ErrNotFound
	}
	next := obj.Clone()
	if err := next.Apply(u); err != nil {
		return err
	}
	s.objects[subject] = next
	return nil
}

// Find returns the objects for the subjects that exist, in request order.
func (s *InMemory) Find(_ context.Context, subjects []string) ([]*models.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Object, 0, len(subjects))
	for _, subject := range subjects {
		if obj, ok := s.objects[subject]; ok {
			out = append(out, obj.Clone())
		}
	}
	return out, nil
}

func (s *InMemory) Ping(context.Context) error { return nil }

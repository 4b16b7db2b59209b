package store

import (
	"context"
	"fmt"
	"sync"

	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
)

// InMemoryFileStore keeps uploaded bytes keyed by certificate.
type InMemoryFileStore struct {
	mu    sync.RWMutex
	files map[id.CertificateID][]byte
}

func NewInMemoryFileStore() *InMemoryFileStore {
	return &InMemoryFileStore{files: make(map[id.CertificateID][]byte)}
}

func (s *InMemoryFileStore) Put(_ context.Context, certID id.CertificateID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[certID] = append([]byte(nil), data...)
	return nil
}

func (s *InMemoryFileStore) Get(_ context.Context, certID id.CertificateID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[certID]
	if !ok {
		return nil, fmt.Errorf("certificate file not found: %w", sentinel.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *InMemoryFileStore) Delete(_ context.Context, certID id.CertificateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, certID)
	return nil
}

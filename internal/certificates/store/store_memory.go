package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"shareledger/internal/certificates/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
)

// InMemoryStore keeps certificate records in a map guarded by one mutex, so
// supersession and promotion are atomic with the write that causes them.
type InMemoryStore struct {
	mu    sync.RWMutex
	certs map[id.CertificateID]*models.Certificate
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{certs: make(map[id.CertificateID]*models.Certificate)}
}

// AddVersion supersedes the share's latest version and inserts the one
// build returns, in one step.
func (s *InMemoryStore) AddVersion(_ context.Context, owner id.UserID, shareID id.ShareID, build VersionFunc) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []*models.Certificate
	for _, c := range s.certs {
		if c.OwnerID == owner {
			owned = append(owned, c.Clone())
		}
	}
	latest := latestFor(owned, shareID)
	next, err := build(owned, latest)
	if err != nil {
		return nil, err
	}
	if _, ok := s.certs[next.ID]; ok {
		return nil, fmt.Errorf("certificate %s: %w", next.ID, sentinel.ErrConflict)
	}
	if latest != nil {
		s.certs[latest.ID].Supersede(next.UploadedAt)
	}
	s.certs[next.ID] = next.Clone()
	return next.Clone(), nil
}

func (s *InMemoryStore) FindByID(_ context.Context, certID id.CertificateID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.certs[certID]; ok {
		return c.Clone(), nil
	}
	return nil, fmt.Errorf("certificate not found: %w", sentinel.ErrNotFound)
}

// Update applies fn to a copy and stores it only when fn succeeds.
func (s *InMemoryStore) Update(_ context.Context, certID id.CertificateID, fn UpdateFunc) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.certs[certID]
	if !ok {
		return nil, fmt.Errorf("certificate not found: %w", sentinel.ErrNotFound)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.certs[certID] = next
	return next.Clone(), nil
}

// List returns matching certificates newest first and the total before
// paging.
func (s *InMemoryStore) List(_ context.Context, opts ListOptions) ([]*models.Certificate, int, error) {
	if opts.Access.IsEmpty() {
		return []*models.Certificate{}, 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Certificate
	for _, c := range s.certs {
		if matches(c, opts) {
			matched = append(matched, c)
		}
	}
	sortCertificates(matched)
	start, end := opts.Page.Window(len(matched))
	out := make([]*models.Certificate, 0, end-start)
	for _, c := range matched[start:end] {
		out = append(out, c.Clone())
	}
	return out, len(matched), nil
}

// ListByOwner returns every version owner has uploaded, unpaged.
func (s *InMemoryStore) ListByOwner(_ context.Context, owner id.UserID) ([]*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Certificate
	for _, c := range s.certs {
		if c.OwnerID == owner {
			out = append(out, c.Clone())
		}
	}
	sortCertificates(out)
	return out, nil
}

// Remove deletes the record once check approves it. Removing the latest
// version promotes its predecessor; removing an older one relinks its
// successor. It returns the removed record.
func (s *InMemoryStore) Remove(_ context.Context, certID id.CertificateID, now time.Time, check RemoveFunc) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certs[certID]
	if !ok {
		return nil, fmt.Errorf("certificate not found: %w", sentinel.ErrNotFound)
	}
	if err := check(c.Clone()); err != nil {
		return nil, err
	}
	delete(s.certs, certID)
	for _, other := range s.certs {
		if other.PreviousID != nil && *other.PreviousID == certID {
			other.PreviousID = c.PreviousID
			other.UpdatedAt = now
		}
	}
	if c.Latest && c.PreviousID != nil {
		if prev, ok := s.certs[*c.PreviousID]; ok {
			prev.Latest = true
			prev.UpdatedAt = now
		}
	}
	return c.Clone(), nil
}

func sortCertificates(certs []*models.Certificate) {
	slices.SortFunc(certs, func(a, b *models.Certificate) int {
		if c := b.UploadedAt.Compare(a.UploadedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

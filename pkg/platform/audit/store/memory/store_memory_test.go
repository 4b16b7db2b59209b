package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "shareledger/pkg/domain"
	audit "shareledger/pkg/platform/audit"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) append(actor id.UserID, action audit.Action, at time.Time) audit.Entry {
	e, err := audit.Prepare(audit.Entry{ActorID: audit.Actor(actor), Action: action, Success: true, Timestamp: at}, at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(s.ctx, e))
	return e
}

func (s *InMemoryStoreSuite) TestQuery() {
	alice := id.UserID(uuid.New())
	bob := id.UserID(uuid.New())
	s.append(alice, audit.ActionLogin, s.now.Add(-3*time.Hour))
	s.append(bob, audit.ActionShareViewed, s.now.Add(-2*time.Hour))
	s.append(alice, audit.ActionSettingsChanged, s.now.Add(-1*time.Hour))

	s.Run("unrestricted returns newest first", func() {
		got, total, err := s.store.Query(s.ctx, audit.Unrestricted, audit.Filter{}, audit.Page{})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Require().Len(got, 3)
		s.Equal(audit.ActionSettingsChanged, got[0].Action)
		s.Equal(audit.ActionLogin, got[2].Action)
	})

	s.Run("scope applies before filter", func() {
		scope := audit.Scope{ExcludeActor: &alice, ExcludeCategories: []audit.Category{audit.CategorySystem}}
		got, total, err := s.store.Query(s.ctx, scope, audit.Filter{ActorID: &alice}, audit.Page{})
		s.Require().NoError(err)
		s.Zero(total)
		s.Empty(got)
	})

	s.Run("deny scope is empty", func() {
		got, total, err := s.store.Query(s.ctx, audit.Scope{Deny: true}, audit.Filter{}, audit.Page{})
		s.Require().NoError(err)
		s.Zero(total)
		s.Empty(got)
	})

	s.Run("paging reports total", func() {
		got, total, err := s.store.Query(s.ctx, audit.Unrestricted, audit.Filter{}, audit.Page{Limit: 1, Offset: 1})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Require().Len(got, 1)
		s.Equal(audit.ActionShareViewed, got[0].Action)
	})
}

func (s *InMemoryStoreSuite) TestDeleteExpired() {
	actor := id.UserID(uuid.New())
	old := s.now.AddDate(-2, 0, 0)
	s.append(actor, audit.ActionLogin, old)
	s.append(actor, audit.ActionUserDeleted, old)
	s.append(actor, audit.ActionShareViewed, s.now)

	s.Run("keeps high severity and risky entries without retained horizon", func() {
		deleted, err := s.store.DeleteExpired(s.ctx, s.now.AddDate(-1, 0, 0), time.Time{})
		s.Require().NoError(err)
		s.Equal(1, deleted)

		all, err := s.store.ListAll(s.ctx)
		s.Require().NoError(err)
		s.Len(all, 2)
	})

	s.Run("retained horizon eventually removes them", func() {
		deleted, err := s.store.DeleteExpired(s.ctx, s.now.AddDate(-1, 0, 0), s.now.AddDate(-1, -6, 0))
		s.Require().NoError(err)
		s.Equal(1, deleted)
	})
}

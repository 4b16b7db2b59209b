// Package models holds the share register vocabulary. Prices are decimals;
// a share's value is always count × price.
package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
)

// HistoryAction names a lifecycle event on a share.
type HistoryAction string

const (
	HistoryAssigned     HistoryAction = "assigned"
	HistoryModified     HistoryAction = "modified"
	HistoryTransferred  HistoryAction = "transferred"
	HistoryValueUpdated HistoryAction = "value_updated"
	HistoryDeleted      HistoryAction = "deleted"
	HistoryReinstated   HistoryAction = "reinstated"
)

// Valuation is the before/after state carried by each history entry.
type Valuation struct {
	OwnerID id.UserID       `json:"owner_id"`
	Count   int             `json:"count"`
	Price   decimal.Decimal `json:"price"`
	Value   decimal.Decimal `json:"value"`
	Active  bool            `json:"active"`
}

type HistoryEntry struct {
	Action  HistoryAction `json:"action"`
	ActorID id.UserID     `json:"actor_id"`
	At      time.Time     `json:"at"`
	Before  *Valuation    `json:"before,omitempty"`
	After   Valuation     `json:"after"`
	Note    string        `json:"note,omitempty"`
}

// Share is a holding assigned to one shareholder. Deletion is a soft flag.
type Share struct {
	ID            id.ShareID      `json:"id"`
	OwnerID       id.UserID       `json:"owner_id"`
	Count         int             `json:"count"`
	Price         decimal.Decimal `json:"price"`
	Value         decimal.Decimal `json:"value"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	AssignedBy    id.UserID       `json:"assigned_by"`
	Active        bool            `json:"active"`
	// RetiredWithOwner marks shares deactivated by the owner's deletion,
	// which are the only ones a restore brings back.
	RetiredWithOwner bool           `json:"-"`
	History          []HistoryEntry `json:"history"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Assignment carries the fields a director sets on a new share.
type Assignment struct {
	OwnerID       id.UserID
	Count         int
	Price         decimal.Decimal
	PurchaseDate  time.Time
	PurchasePrice decimal.Decimal
	Note          string
}

// NewShare validates a and returns an active share with its first history
// entry.
func NewShare(shareID id.ShareID, a Assignment, actor id.UserID, now time.Time) (*Share, error) {
	if err := validateCount(a.Count); err != nil {
		return nil, err
	}
	if err := validatePrice(a.Price); err != nil {
		return nil, err
	}
	if a.PurchasePrice.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "purchase price cannot be negative")
	}
	if a.PurchaseDate.IsZero() {
		a.PurchaseDate = now
	}
	if a.PurchasePrice.IsZero() {
		a.PurchasePrice = a.Price
	}
	s := &Share{
		ID:            shareID,
		OwnerID:       a.OwnerID,
		Count:         a.Count,
		Price:         a.Price,
		PurchaseDate:  a.PurchaseDate,
		PurchasePrice: a.PurchasePrice,
		AssignedBy:    actor,
		Active:        true,
		CreatedAt:     now,
	}
	s.record(HistoryAssigned, actor, now, nil, a.Note)
	return s, nil
}

func validateCount(n int) error {
	if n <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "share count must be positive")
	}
	return nil
}

func validatePrice(p decimal.Decimal) error {
	if p.IsNegative() {
		return dErrors.New(dErrors.CodeInvariantViolation, "share price cannot be negative")
	}
	return nil
}

// Valuation snapshots the current state.
func (s *Share) Valuation() Valuation {
	return Valuation{OwnerID: s.OwnerID, Count: s.Count, Price: s.Price, Value: s.Value, Active: s.Active}
}

// record recomputes the value and appends a history entry in one step, so
// no mutation can persist without its history.
func (s *Share) record(action HistoryAction, actor id.UserID, now time.Time, before *Valuation, note string) {
	s.Value = s.Price.Mul(decimal.NewFromInt(int64(s.Count)))
	s.UpdatedAt = now
	s.History = append(s.History, HistoryEntry{
		Action:  action,
		ActorID: actor,
		At:      now,
		Before:  before,
		After:   s.Valuation(),
		Note:    note,
	})
}

// ErrInactive is returned for mutations on a deleted share.
var ErrInactive = dErrors.New(dErrors.CodeInvariantViolation, "share has been deleted")

// Modify changes count and/or price. A nil field is left alone.
func (s *Share) Modify(count *int, price *decimal.Decimal, actor id.UserID, now time.Time) error {
	if !s.Active {
		return ErrInactive
	}
	if count == nil && price == nil {
		return dErrors.New(dErrors.CodeValidation, "nothing to update")
	}
	if count != nil {
		if err := validateCount(*count); err != nil {
			return err
		}
	}
	if price != nil {
		if err := validatePrice(*price); err != nil {
			return err
		}
	}
	before := s.Valuation()
	if count != nil {
		s.Count = *count
	}
	if price != nil {
		s.Price = *price
	}
	s.record(HistoryModified, actor, now, &before, "")
	return nil
}

// UpdateValue reprices the share.
func (s *Share) UpdateValue(price decimal.Decimal, actor id.UserID, now time.Time, note string) error {
	if !s.Active {
		return ErrInactive
	}
	if err := validatePrice(price); err != nil {
		return err
	}
	before := s.Valuation()
	s.Price = price
	s.record(HistoryValueUpdated, actor, now, &before, note)
	return nil
}

// Transfer moves the share to another owner.
func (s *Share) Transfer(to id.UserID, actor id.UserID, now time.Time, note string) error {
	if !s.Active {
		return ErrInactive
	}
	if to == s.OwnerID {
		return dErrors.New(dErrors.CodeValidation, "share already belongs to that owner")
	}
	before := s.Valuation()
	s.OwnerID = to
	s.record(HistoryTransferred, actor, now, &before, note)
	return nil
}

// Delete flips the active flag. withOwner marks the share for reinstatement
// when the owner is restored.
func (s *Share) Delete(actor id.UserID, now time.Time, note string, withOwner bool) error {
	if !s.Active {
		return ErrInactive
	}
	before := s.Valuation()
	s.Active = false
	s.RetiredWithOwner = withOwner
	s.record(HistoryDeleted, actor, now, &before, note)
	return nil
}

// Reinstate reverses a deletion made together with the owner's.
func (s *Share) Reinstate(actor id.UserID, now time.Time) error {
	if s.Active || !s.RetiredWithOwner {
		return dErrors.New(dErrors.CodeInvariantViolation, "share was not retired with its owner")
	}
	before := s.Valuation()
	s.Active = true
	s.RetiredWithOwner = false
	s.record(HistoryReinstated, actor, now, &before, "owner_restored")
	return nil
}

// Clone returns a deep copy.
func (s *Share) Clone() *Share {
	c := *s
	c.History = slices.Clone(s.History)
	for i := range c.History {
		if b := c.History[i].Before; b != nil {
			v := *b
			c.History[i].Before = &v
		}
	}
	return &c
}

// Portfolio aggregates one owner's active holdings.
type Portfolio struct {
	OwnerID     id.UserID       `json:"owner_id"`
	Holdings    int             `json:"holdings"`
	TotalShares int             `json:"total_shares"`
	TotalValue  decimal.Decimal `json:"total_value"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Gain        decimal.Decimal `json:"gain"`
}

// NewPortfolio sums the active shares in shares.
func NewPortfolio(owner id.UserID, shares []*Share) Portfolio {
	p := Portfolio{OwnerID: owner, TotalValue: decimal.Zero, TotalCost: decimal.Zero}
	for _, s := range shares {
		if !s.Active || s.OwnerID != owner {
			continue
		}
		p.Holdings++
		p.TotalShares += s.Count
		p.TotalValue = p.TotalValue.Add(s.Value)
		p.TotalCost = p.TotalCost.Add(s.PurchasePrice.Mul(decimal.NewFromInt(int64(s.Count))))
	}
	p.Gain = p.TotalValue.Sub(p.TotalCost)
	return p
}

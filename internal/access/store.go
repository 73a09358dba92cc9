// Package access owns the whitelist: which users may use the bot, how many
// conversions each has left, and who the owners are.
//
// Every mutation is persisted through a Backend before it returns, and all
// mutations are serialized inside the process.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Atoilah/vcf-confreter/core/logger"
)

var (
	// ErrNotWhitelisted is returned when a mutation targets an unknown user.
	ErrNotWhitelisted = errors.New("access: user is not whitelisted")
	// ErrInvalidLimit is returned for negative limits.
	ErrInvalidLimit = errors.New("access: limit must be >= 0")
	// ErrInvalidUser is returned for a zero user id.
	ErrInvalidUser = errors.New("access: invalid user id")
)

// Entry is one whitelisted user. A nil Limit means unlimited use.
type Entry struct {
	Limit *int64
}

// Unlimited reports whether the entry has no usage limit.
func (e Entry) Unlimited() bool { return e.Limit == nil }

func (e Entry) clone() Entry {
	if e.Limit == nil {
		return e
	}
	v := *e.Limit
	return Entry{Limit: &v}
}

// Snapshot is the complete persisted access state.
type Snapshot struct {
	Users  map[int64]Entry
	Owners []int64
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		Users:  make(map[int64]Entry, len(s.Users)),
		Owners: slices.Clone(s.Owners),
	}
	for id, e := range s.Users {
		out.Users[id] = e.clone()
	}
	return out
}

// ChangeKind names the kind of mutation handed to a Backend.
type ChangeKind int

const (
	// ChangeUpsert creates or updates Snapshot.Users[UserID].
	ChangeUpsert ChangeKind = iota + 1
	// ChangeDelete removes UserID from the whitelist.
	ChangeDelete
	// ChangeOwners replaces the owner list.
	ChangeOwners
)

// Change describes one mutation. Backends that rewrite the whole state may ignore it.
type Change struct {
	Kind   ChangeKind
	UserID int64
}

// Backend persists access state.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	// Apply persists snap, which already includes the change described by ch.
	Apply(ctx context.Context, snap Snapshot, ch Change) error
}

// Store is the in-process authority over access state.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	snap    Snapshot
}

// Open loads the persisted state from backend.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("access: nil backend")
	}
	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: load: %w", err)
	}
	if snap.Users == nil {
		snap.Users = make(map[int64]Entry)
	}
	for id, e := range snap.Users {
		if e.Limit != nil && *e.Limit < 0 {
			snap.Users[id] = Entry{Limit: ptr(0)}
		}
	}
	slices.Sort(snap.Owners)
	snap.Owners = slices.Compact(snap.Owners)
	return &Store{backend: backend, snap: snap}, nil
}

// IsWhitelisted reports whether the user is on the whitelist.
func (s *Store) IsWhitelisted(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.snap.Users[userID]
	return ok
}

// Limit returns the user's remaining uses; nil for unlimited or unknown users.
func (s *Store) Limit(userID int64) *int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.snap.Users[userID]
	if !ok || e.Limit == nil {
		return nil
	}
	v := *e.Limit
	return &v
}

// Lookup returns a copy of the user's entry.
func (s *Store) Lookup(userID int64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.snap.Users[userID]
	return e.clone(), ok
}

// HasQuota is the authorization gate: the user is whitelisted and either
// unlimited or has at least one use left.
func (s *Store) HasQuota(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.snap.Users[userID]
	if !ok {
		return false
	}
	return e.Limit == nil || *e.Limit > 0
}

// IsOwner reports whether the user is an owner.
func (s *Store) IsOwner(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := slices.BinarySearch(s.snap.Owners, userID)
	return found
}

// Owners returns the owner ids in ascending order.
func (s *Store) Owners() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Owners)
}

// List returns every whitelisted user. Owner bookkeeping is not part of the result.
func (s *Store) List() map[int64]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]Entry, len(s.snap.Users))
	for id, e := range s.snap.Users {
		out[id] = e.clone()
	}
	return out
}

// Add whitelists the user with an optional limit. It reports false when the
// user was already whitelisted, leaving the existing entry untouched.
func (s *Store) Add(ctx context.Context, userID int64, limit *int64) (bool, error) {
	if userID == 0 {
		return false, ErrInvalidUser
	}
	if limit != nil && *limit < 0 {
		return false, ErrInvalidLimit
	}
	added := false
	err := s.mutate(ctx, Change{Kind: ChangeUpsert, UserID: userID}, func(snap *Snapshot) error {
		if _, ok := snap.Users[userID]; ok {
			return errNoop
		}
		snap.Users[userID] = Entry{Limit: copyLimit(limit)}
		added = true
		return nil
	})
	return added, err
}

// Remove drops the user from the whitelist and reports whether it was present.
func (s *Store) Remove(ctx context.Context, userID int64) (bool, error) {
	removed := false
	err := s.mutate(ctx, Change{Kind: ChangeDelete, UserID: userID}, func(snap *Snapshot) error {
		if _, ok := snap.Users[userID]; !ok {
			return errNoop
		}
		delete(snap.Users, userID)
		removed = true
		return nil
	})
	return removed, err
}

// SetLimit replaces the user's remaining uses.
func (s *Store) SetLimit(ctx context.Context, userID, limit int64) error {
	if limit < 0 {
		return ErrInvalidLimit
	}
	return s.mutate(ctx, Change{Kind: ChangeUpsert, UserID: userID}, func(snap *Snapshot) error {
		if _, ok := snap.Users[userID]; !ok {
			return ErrNotWhitelisted
		}
		snap.Users[userID] = Entry{Limit: ptr(limit)}
		return nil
	})
}

// ClearLimit makes the user unlimited.
func (s *Store) ClearLimit(ctx context.Context, userID int64) error {
	return s.mutate(ctx, Change{Kind: ChangeUpsert, UserID: userID}, func(snap *Snapshot) error {
		e, ok := snap.Users[userID]
		if !ok {
			return ErrNotWhitelisted
		}
		if e.Limit == nil {
			return errNoop
		}
		snap.Users[userID] = Entry{}
		return nil
	})
}

// Decrement consumes one use. It is a no-op for unknown or unlimited users
// and never takes a limit below zero.
func (s *Store) Decrement(ctx context.Context, userID int64) error {
	return s.mutate(ctx, Change{Kind: ChangeUpsert, UserID: userID}, func(snap *Snapshot) error {
		e, ok := snap.Users[userID]
		if !ok || e.Limit == nil || *e.Limit <= 0 {
			return errNoop
		}
		snap.Users[userID] = Entry{Limit: ptr(*e.Limit - 1)}
		return nil
	})
}

// AddOwner makes the user an owner. Owners are whitelisted with unlimited use.
func (s *Store) AddOwner(ctx context.Context, userID int64) error {
	if userID == 0 {
		return ErrInvalidUser
	}
	if err := s.mutate(ctx, Change{Kind: ChangeUpsert, UserID: userID}, func(snap *Snapshot) error {
		if e, ok := snap.Users[userID]; ok && e.Limit == nil {
			return errNoop
		}
		snap.Users[userID] = Entry{}
		return nil
	}); err != nil {
		return err
	}
	return s.mutate(ctx, Change{Kind: ChangeOwners}, func(snap *Snapshot) error {
		i, found := slices.BinarySearch(snap.Owners, userID)
		if found {
			return errNoop
		}
		snap.Owners = slices.Insert(snap.Owners, i, userID)
		return nil
	})
}

// RemoveOwner revokes ownership; the user stays whitelisted.
func (s *Store) RemoveOwner(ctx context.Context, userID int64) (bool, error) {
	removed := false
	err := s.mutate(ctx, Change{Kind: ChangeOwners}, func(snap *Snapshot) error {
		i, found := slices.BinarySearch(snap.Owners, userID)
		if !found {
			return errNoop
		}
		snap.Owners = slices.Delete(snap.Owners, i, i+1)
		removed = true
		return nil
	})
	return removed, err
}

// EnsureOwner bootstraps userID as owner when no owner exists yet.
// It must run after Open and before the bot starts serving updates.
func (s *Store) EnsureOwner(ctx context.Context, userID int64) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	s.mu.RLock()
	hasOwner := len(s.snap.Owners) > 0
	s.mu.RUnlock()
	if hasOwner {
		return false, nil
	}
	if err := s.AddOwner(ctx, userID); err != nil {
		return false, err
	}
	logger.ACL.Info("owner bootstrapped",
		slog.String("event", "owner.bootstrap"),
		slog.Int64("user_id", userID),
	)
	return true, nil
}

var errNoop = errors.New("access: no change")

// mutate applies fn to a copy of the state, persists it and only then publishes it.
func (s *Store) mutate(ctx context.Context, ch Change, fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.clone()
	if err := fn(&next); err != nil {
		if errors.Is(err, errNoop) {
			return nil
		}
		return err
	}
	if err := s.backend.Apply(ctx, next, ch); err != nil {
		logger.ACL.Error("persist failed",
			slog.String("event", "access.persist"),
			slog.Int64("user_id", ch.UserID),
			slog.Int("kind", int(ch.Kind)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("access: persist: %w", err)
	}
	s.snap = next
	return nil
}

func ptr(v int64) *int64 { return &v }

func copyLimit(limit *int64) *int64 {
	if limit == nil {
		return nil
	}
	return ptr(*limit)
}

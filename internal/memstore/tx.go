package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/JonMunkholm/institution-import/internal/core"
)

type snapshot struct {
	institutions map[uuid.UUID]core.Institution
	order        []uuid.UUID
	profiles     map[uuid.UUID]core.Profile
	contacts     map[uuid.UUID]core.Contact
	contactOrder []uuid.UUID
}

// InRowTx runs fn against the store and restores the previous contents if
// fn returns an error. Transactions are serialised.
func (s *Store) InRowTx(ctx context.Context, fn func(core.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		institutions: make(map[uuid.UUID]core.Institution, len(s.institutions)),
		order:        append([]uuid.UUID(nil), s.order...),
		profiles:     make(map[uuid.UUID]core.Profile, len(s.profiles)),
		contacts:     make(map[uuid.UUID]core.Contact, len(s.contacts)),
		contactOrder: append([]uuid.UUID(nil), s.contactOrder...),
	}
	for k, v := range s.institutions {
		snap.institutions[k] = cloneInstitution(v)
	}
	for k, v := range s.profiles {
		snap.profiles[k] = cloneProfile(v)
	}
	for k, v := range s.contacts {
		snap.contacts[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.institutions = snap.institutions
	s.order = snap.order
	s.profiles = snap.profiles
	s.contacts = snap.contacts
	s.contactOrder = snap.contactOrder
}

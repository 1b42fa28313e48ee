// Package memstore is a thread-safe, in-memory core.Repository.
//
// It backs the test suites and CLI dry runs (importctl --memory). Row
// transactions are implemented by snapshotting the whole store and
// restoring it when the row fails.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/institution-import/internal/core"
)

// Store holds institutions, profiles and contacts in maps.
type Store struct {
	txMu sync.Mutex // serialises row transactions

	mu           sync.RWMutex
	institutions map[uuid.UUID]core.Institution
	order        []uuid.UUID
	profiles     map[uuid.UUID]core.Profile
	contacts     map[uuid.UUID]core.Contact
	contactOrder []uuid.UUID
	faults       map[string]error

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		institutions: make(map[uuid.UUID]core.Institution),
		profiles:     make(map[uuid.UUID]core.Profile),
		contacts:     make(map[uuid.UUID]core.Contact),
		faults:       make(map[string]error),
		now:          time.Now,
	}
}

var (
	_ core.Repository    = (*Store)(nil)
	_ core.RowTransactor = (*Store)(nil)
)

// FailOn makes every later call of the named method (e.g. "CreateContact")
// return err. A nil err clears the fault.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

func (s *Store) fault(method string) error {
	if err, ok := s.faults[method]; ok {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Seed inserts inst as-is, generating an ID when it has none.
func (s *Store) Seed(inst core.Institution) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	if _, ok := s.institutions[inst.ID]; !ok {
		s.order = append(s.order, inst.ID)
	}
	s.institutions[inst.ID] = cloneInstitution(inst)
	return inst.ID
}

// Institutions returns every institution in insertion order.
func (s *Store) Institutions() []core.Institution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Institution, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneInstitution(s.institutions[id]))
	}
	return out
}

// Contacts returns the contacts of an institution in insertion order.
func (s *Store) Contacts(institutionID uuid.UUID) []core.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Contact
	for _, id := range s.contactOrder {
		if c := s.contacts[id]; c.InstitutionID == institutionID {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) FindInstitutionByAccountingNumber(_ context.Context, code string) (*core.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("FindInstitutionByAccountingNumber"); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	for _, id := range s.order {
		inst := s.institutions[id]
		if inst.AccountingNumber != "" && strings.EqualFold(strings.TrimSpace(inst.AccountingNumber), code) {
			out := cloneInstitution(inst)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) FindInstitutionsByNameAndCity(_ context.Context, name, city string, limit int) ([]core.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("FindInstitutionsByNameAndCity"); err != nil {
		return nil, err
	}

	var out []core.Institution
	for _, id := range s.order {
		inst := s.institutions[id]
		if sameText(inst.City, city) {
			out = append(out, cloneInstitution(inst))
		}
	}

	// best name candidates first, like the trigram ordering in Postgres
	want := core.NormalizeName(name)
	sort.SliceStable(out, func(i, j int) bool {
		return core.DiceSimilarity(want, core.NormalizeName(out[i].Name)) >
			core.DiceSimilarity(want, core.NormalizeName(out[j].Name))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) FindInstitutionsByAddress(_ context.Context, street, city, zipCode string) ([]core.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("FindInstitutionsByAddress"); err != nil {
		return nil, err
	}

	var out []core.Institution
	for _, id := range s.order {
		inst := s.institutions[id]
		if sameText(inst.Street, street) && sameText(inst.City, city) && sameText(inst.ZipCode, zipCode) {
			out = append(out, cloneInstitution(inst))
		}
	}
	return out, nil
}

func (s *Store) GetInstitution(_ context.Context, id uuid.UUID) (*core.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("GetInstitution"); err != nil {
		return nil, err
	}
	inst, ok := s.institutions[id]
	if !ok {
		return nil, fmt.Errorf("institution %s: %w", id, core.ErrNotFound)
	}
	out := cloneInstitution(inst)
	return &out, nil
}

func (s *Store) CreateInstitution(_ context.Context, inst *core.Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateInstitution"); err != nil {
		return err
	}
	inst.ID = uuid.New()
	inst.CreatedAt = s.now()
	inst.UpdatedAt = inst.CreatedAt
	s.institutions[inst.ID] = cloneInstitution(*inst)
	s.order = append(s.order, inst.ID)
	return nil
}

func (s *Store) UpdateInstitution(_ context.Context, inst *core.Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpdateInstitution"); err != nil {
		return err
	}
	if _, ok := s.institutions[inst.ID]; !ok {
		return fmt.Errorf("institution %s: %w", inst.ID, core.ErrNotFound)
	}
	inst.UpdatedAt = s.now()
	s.institutions[inst.ID] = cloneInstitution(*inst)
	return nil
}

// GetProfile returns core.ErrNotFound when the institution has no profile.
func (s *Store) GetProfile(_ context.Context, institutionID uuid.UUID) (*core.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("GetProfile"); err != nil {
		return nil, err
	}
	p, ok := s.profiles[institutionID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", institutionID, core.ErrNotFound)
	}
	out := cloneProfile(p)
	return &out, nil
}

func (s *Store) CreateOrUpdateProfile(_ context.Context, p *core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateOrUpdateProfile"); err != nil {
		return err
	}
	if _, ok := s.institutions[p.InstitutionID]; !ok {
		return fmt.Errorf("profile violates foreign key constraint: institution %s", p.InstitutionID)
	}
	s.profiles[p.InstitutionID] = cloneProfile(*p)
	return nil
}

func (s *Store) FindContact(_ context.Context, institutionID uuid.UUID, identity core.ContactIdentity) (*core.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("FindContact"); err != nil {
		return nil, err
	}
	for _, id := range s.contactOrder {
		c := s.contacts[id]
		if c.InstitutionID == institutionID && c.MatchesIdentity(identity) {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateContact(_ context.Context, c *core.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateContact"); err != nil {
		return err
	}
	if _, ok := s.institutions[c.InstitutionID]; !ok {
		return fmt.Errorf("contact violates foreign key constraint: institution %s", c.InstitutionID)
	}
	c.ID = uuid.New()
	s.contacts[c.ID] = *c
	s.contactOrder = append(s.contactOrder, c.ID)
	return nil
}

func (s *Store) UpdateContact(_ context.Context, c *core.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpdateContact"); err != nil {
		return err
	}
	if _, ok := s.contacts[c.ID]; !ok {
		return fmt.Errorf("contact %s: %w", c.ID, core.ErrNotFound)
	}
	s.contacts[c.ID] = *c
	return nil
}

func sameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func cloneInstitution(in core.Institution) core.Institution {
	in.Tags = append([]string(nil), in.Tags...)
	return in
}

func cloneProfile(p core.Profile) core.Profile {
	p.Specialties = append([]string(nil), p.Specialties...)
	p.Departments = append([]string(nil), p.Departments...)
	if p.BedCapacity != nil {
		v := *p.BedCapacity
		p.BedCapacity = &v
	}
	if p.SurgicalRooms != nil {
		v := *p.SurgicalRooms
		p.SurgicalRooms = &v
	}
	return p
}

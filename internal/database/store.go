package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/institution-import/internal/core"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements core.Repository over a pool or a transaction.
type Store struct {
	db   DBTX
	pool *pgxpool.Pool // nil inside a transaction
}

var (
	_ core.Repository    = (*Store)(nil)
	_ core.RowTransactor = (*Store)(nil)
)

// New returns a store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

// InRowTx runs fn in one transaction. The transaction commits only when fn
// returns nil.
func (s *Store) InRowTx(ctx context.Context, fn func(core.Repository) error) error {
	if s.pool == nil {
		// already inside a transaction
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin row transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit row transaction: %w", err)
	}
	return nil
}

const institutionColumns = `id, name, type, accounting_number, street, city, state, zip_code, country,
	phone, email, website, tags, notes, external_ref, owner_id, created_at, updated_at`

func scanInstitution(row pgx.Row) (core.Institution, error) {
	var (
		inst                           core.Institution
		acct, phone, email, web, notes pgtype.Text
		extRef                         pgtype.Text
		owner                          pgtype.UUID
	)
	err := row.Scan(
		&inst.ID, &inst.Name, &inst.Type, &acct, &inst.Street, &inst.City, &inst.State, &inst.ZipCode, &inst.Country,
		&phone, &email, &web, &inst.Tags, &notes, &extRef, &owner, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return core.Institution{}, err
	}
	inst.AccountingNumber = FromPgText(acct)
	inst.Phone = FromPgText(phone)
	inst.Email = FromPgText(email)
	inst.Website = FromPgText(web)
	inst.Notes = FromPgText(notes)
	inst.ExternalRef = FromPgText(extRef)
	inst.OwnerID = FromPgUUID(owner)
	return inst, nil
}

func (s *Store) queryInstitutions(ctx context.Context, sql string, args ...any) ([]core.Institution, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *Store) FindInstitutionByAccountingNumber(ctx context.Context, code string) (*core.Institution, error) {
	inst, err := scanInstitution(s.db.QueryRow(ctx,
		`SELECT `+institutionColumns+` FROM institutions
		WHERE lower(btrim(accounting_number)) = lower(btrim($1))
		LIMIT 1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find institution by accounting number: %w", err)
	}
	return &inst, nil
}

// FindInstitutionsByNameAndCity ranks same-city rows by trigram similarity
// so the limit keeps the most plausible candidates.
func (s *Store) FindInstitutionsByNameAndCity(ctx context.Context, name, city string, limit int) ([]core.Institution, error) {
	list, err := s.queryInstitutions(ctx,
		`SELECT `+institutionColumns+` FROM institutions
		WHERE lower(btrim(city)) = lower(btrim($2))
		ORDER BY similarity(lower(name), lower($1)) DESC, id
		LIMIT $3`, name, city, limit)
	if err != nil {
		return nil, fmt.Errorf("find institutions by city: %w", err)
	}
	return list, nil
}

func (s *Store) FindInstitutionsByAddress(ctx context.Context, street, city, zipCode string) ([]core.Institution, error) {
	list, err := s.queryInstitutions(ctx,
		`SELECT `+institutionColumns+` FROM institutions
		WHERE lower(btrim(street)) = lower(btrim($1))
		  AND lower(btrim(city)) = lower(btrim($2))
		  AND lower(btrim(zip_code)) = lower(btrim($3))
		ORDER BY id`, street, city, zipCode)
	if err != nil {
		return nil, fmt.Errorf("find institutions by address: %w", err)
	}
	return list, nil
}

func (s *Store) GetInstitution(ctx context.Context, id uuid.UUID) (*core.Institution, error) {
	inst, err := scanInstitution(s.db.QueryRow(ctx,
		`SELECT `+institutionColumns+` FROM institutions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("institution %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get institution %s: %w", id, err)
	}
	return &inst, nil
}

func (s *Store) CreateInstitution(ctx context.Context, inst *core.Institution) error {
	inst.ID = uuid.New()
	err := s.db.QueryRow(ctx, `
		INSERT INTO institutions (id, name, type, accounting_number, street, city, state, zip_code, country,
			phone, email, website, tags, notes, external_ref, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`,
		inst.ID, inst.Name, inst.Type, ToPgText(inst.AccountingNumber),
		inst.Street, inst.City, inst.State, inst.ZipCode, inst.Country,
		ToPgText(inst.Phone), ToPgText(inst.Email), ToPgText(inst.Website),
		ToTextArray(inst.Tags), ToPgText(inst.Notes), ToPgText(inst.ExternalRef), ToPgUUID(inst.OwnerID),
	).Scan(&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		inst.ID = uuid.Nil
		return fmt.Errorf("insert institution: %w", err)
	}
	return nil
}

func (s *Store) UpdateInstitution(ctx context.Context, inst *core.Institution) error {
	err := s.db.QueryRow(ctx, `
		UPDATE institutions SET
			name = $2, type = $3, accounting_number = $4, street = $5, city = $6, state = $7,
			zip_code = $8, country = $9, phone = $10, email = $11, website = $12, tags = $13,
			notes = $14, external_ref = $15, owner_id = $16, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		inst.ID, inst.Name, inst.Type, ToPgText(inst.AccountingNumber),
		inst.Street, inst.City, inst.State, inst.ZipCode, inst.Country,
		ToPgText(inst.Phone), ToPgText(inst.Email), ToPgText(inst.Website),
		ToTextArray(inst.Tags), ToPgText(inst.Notes), ToPgText(inst.ExternalRef), ToPgUUID(inst.OwnerID),
	).Scan(&inst.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("institution %s: %w", inst.ID, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update institution %s: %w", inst.ID, err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, institutionID uuid.UUID) (*core.Profile, error) {
	p := core.Profile{InstitutionID: institutionID}
	var (
		beds, rooms pgtype.Int4
		audit, exp  pgtype.Date
		status      pgtype.Text
	)
	err := s.db.QueryRow(ctx, `
		SELECT bed_capacity, surgical_rooms, specialties, departments,
			last_audit_date, compliance_status, compliance_expiration_date
		FROM institution_profiles WHERE institution_id = $1`, institutionID,
	).Scan(&beds, &rooms, &p.Specialties, &p.Departments, &audit, &status, &exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", institutionID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", institutionID, err)
	}

	p.BedCapacity = FromPgInt4(beds)
	p.SurgicalRooms = FromPgInt4(rooms)
	p.LastAuditDate = FromPgDate(audit)
	p.ComplianceStatus = FromPgText(status)
	p.ComplianceExpirationDate = FromPgDate(exp)
	return &p, nil
}

func (s *Store) CreateOrUpdateProfile(ctx context.Context, p *core.Profile) error {
	beds, err := ToPgInt4(p.BedCapacity)
	if err != nil {
		return fmt.Errorf("upsert profile %s: bedCapacity: %w", p.InstitutionID, err)
	}
	rooms, err := ToPgInt4(p.SurgicalRooms)
	if err != nil {
		return fmt.Errorf("upsert profile %s: surgicalRooms: %w", p.InstitutionID, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO institution_profiles (institution_id, bed_capacity, surgical_rooms, specialties, departments,
			last_audit_date, compliance_status, compliance_expiration_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (institution_id) DO UPDATE SET
			bed_capacity = EXCLUDED.bed_capacity,
			surgical_rooms = EXCLUDED.surgical_rooms,
			specialties = EXCLUDED.specialties,
			departments = EXCLUDED.departments,
			last_audit_date = EXCLUDED.last_audit_date,
			compliance_status = EXCLUDED.compliance_status,
			compliance_expiration_date = EXCLUDED.compliance_expiration_date,
			updated_at = now()`,
		p.InstitutionID, beds, rooms,
		ToTextArray(p.Specialties), ToTextArray(p.Departments),
		ToPgDate(p.LastAuditDate), ToPgText(p.ComplianceStatus), ToPgDate(p.ComplianceExpirationDate),
	)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.InstitutionID, err)
	}
	return nil
}

// FindContact applies the identity rule of core.Contact.MatchesIdentity in
// SQL: email when given, otherwise name and phone, otherwise name alone
// against contacts with neither email nor phone.
func (s *Store) FindContact(ctx context.Context, institutionID uuid.UUID, identity core.ContactIdentity) (*core.Contact, error) {
	var (
		where string
		args  = []any{institutionID}
	)
	switch {
	case identity.Email != "":
		where = "lower(btrim(email)) = lower(btrim($2))"
		args = append(args, identity.Email)
	case identity.Name != "" && identity.Phone != "":
		where = "lower(btrim(name)) = lower(btrim($2)) AND btrim(phone) = btrim($3)"
		args = append(args, identity.Name, identity.Phone)
	case identity.Name != "":
		where = "lower(btrim(name)) = lower(btrim($2)) AND btrim(email) = '' AND btrim(phone) = ''"
		args = append(args, identity.Name)
	default:
		return nil, nil
	}

	c := core.Contact{InstitutionID: institutionID}
	err := s.db.QueryRow(ctx, `
		SELECT id, name, title, email, phone FROM institution_contacts
		WHERE institution_id = $1 AND `+where+`
		ORDER BY created_at, id
		LIMIT 1`, args...,
	).Scan(&c.ID, &c.Name, &c.Title, &c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find contact: %w", err)
	}
	return &c, nil
}

func (s *Store) CreateContact(ctx context.Context, c *core.Contact) error {
	c.ID = uuid.New()
	_, err := s.db.Exec(ctx, `
		INSERT INTO institution_contacts (id, institution_id, name, title, email, phone)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.InstitutionID, strings.TrimSpace(c.Name), strings.TrimSpace(c.Title),
		strings.TrimSpace(c.Email), strings.TrimSpace(c.Phone),
	)
	if err != nil {
		c.ID = uuid.Nil
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (s *Store) UpdateContact(ctx context.Context, c *core.Contact) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE institution_contacts SET name = $2, title = $3, email = $4, phone = $5
		WHERE id = $1`,
		c.ID, strings.TrimSpace(c.Name), strings.TrimSpace(c.Title),
		strings.TrimSpace(c.Email), strings.TrimSpace(c.Phone),
	)
	if err != nil {
		return fmt.Errorf("update contact %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contact %s: %w", c.ID, core.ErrNotFound)
	}
	return nil
}

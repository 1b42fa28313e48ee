package database

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

/* ----------------------------------------
	Go -> pgtype
---------------------------------------- */

// ToPgText maps blank strings to NULL.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgInt4 maps nil to NULL and rejects values int4 cannot hold.
func ToPgInt4(n *int) (pgtype.Int4, error) {
	if n == nil {
		return pgtype.Int4{Valid: false}, nil
	}
	if *n < math.MinInt32 || *n > math.MaxInt32 {
		return pgtype.Int4{}, fmt.Errorf("value %d out of range for int4", *n)
	}
	return pgtype.Int4{Int32: int32(*n), Valid: true}, nil
}

func ToPgDate(t *time.Time) pgtype.Date {
	if t == nil || t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func ToPgUUID(id uuid.NullUUID) pgtype.UUID {
	if !id.Valid {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: id.UUID, Valid: true}
}

// ToTextArray never returns nil so NOT NULL array columns accept it.
func ToTextArray(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

/* ----------------------------------------
	pgtype -> Go
---------------------------------------- */

func FromPgText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

func FromPgInt4(n pgtype.Int4) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int32)
	return &v
}

func FromPgDate(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

func FromPgUUID(id pgtype.UUID) uuid.NullUUID {
	if !id.Valid {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(id.Bytes), Valid: true}
}

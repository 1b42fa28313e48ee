package database

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestToPgText(t *testing.T) {
	tests := []struct {
		in        string
		wantValid bool
		want      string
	}{
		{"", false, ""},
		{"   ", false, ""},
		{" ACCT-1 ", true, "ACCT-1"},
	}
	for _, tt := range tests {
		got := ToPgText(tt.in)
		if got.Valid != tt.wantValid || got.String != tt.want {
			t.Errorf("ToPgText(%q) = %+v", tt.in, got)
		}
		if FromPgText(got) != tt.want {
			t.Errorf("FromPgText(ToPgText(%q)) = %q", tt.in, FromPgText(got))
		}
	}
}

func TestPgInt4RoundTrip(t *testing.T) {
	null, err := ToPgInt4(nil)
	if err != nil || null.Valid {
		t.Errorf("nil should map to NULL, got %v, %v", null, err)
	}
	if FromPgInt4(null) != nil {
		t.Error("NULL should map back to nil")
	}
	n := 250
	v, err := ToPgInt4(&n)
	if err != nil {
		t.Fatalf("ToPgInt4(250): %v", err)
	}
	back := FromPgInt4(v)
	if back == nil || *back != 250 {
		t.Errorf("round trip = %v", back)
	}
}

func TestPgInt4Range(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{"max int4", math.MaxInt32, false},
		{"min int4", math.MinInt32, false},
		{"above max", math.MaxInt32 + 1, true},
		{"below min", math.MinInt32 - 1, true},
		{"wraps to one", 4294967297, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.n
			got, err := ToPgInt4(&n)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ToPgInt4(%d) = %v, want error", n, got)
				}
				if !strings.Contains(err.Error(), "out of range") {
					t.Errorf("error = %v", err)
				}
				return
			}
			if err != nil || !got.Valid || int(got.Int32) != n {
				t.Errorf("ToPgInt4(%d) = %v, %v", n, got, err)
			}
		})
	}
}

func TestPgDateRoundTrip(t *testing.T) {
	if ToPgDate(nil).Valid || ToPgDate(&time.Time{}).Valid {
		t.Error("nil and zero times should map to NULL")
	}
	d := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	back := FromPgDate(ToPgDate(&d))
	if back == nil || !back.Equal(d) {
		t.Errorf("round trip = %v", back)
	}
}

func TestPgUUIDRoundTrip(t *testing.T) {
	if ToPgUUID(uuid.NullUUID{}).Valid {
		t.Error("invalid NullUUID should map to NULL")
	}
	id := uuid.New()
	back := FromPgUUID(ToPgUUID(uuid.NullUUID{UUID: id, Valid: true}))
	if !back.Valid || back.UUID != id {
		t.Errorf("round trip = %v", back)
	}
}

func TestToTextArray(t *testing.T) {
	if got := ToTextArray(nil); got == nil || len(got) != 0 {
		t.Errorf("ToTextArray(nil) = %#v", got)
	}
}

func TestDatabaseName(t *testing.T) {
	if got := databaseName("postgres://u:p@localhost:5432/institutions?sslmode=disable"); got != "institutions" {
		t.Errorf("databaseName = %q", got)
	}
}

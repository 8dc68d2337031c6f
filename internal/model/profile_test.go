package model

import (
	"testing"
	"time"
)

func TestBirthProfile_Merge(t *testing.T) {
	base := BirthProfile{Name: "Nok"}
	merged := base.Merge(BirthProfile{BirthDate: "1998-05-12"})
	merged = merged.Merge(BirthProfile{Gender: GenderFemale})
	merged = merged.Merge(BirthProfile{BirthTime: &BirthTime{Period: "unknown", Unknown: true}})

	if merged.Name != "Nok" {
		t.Errorf("Name = %q, want Nok", merged.Name)
	}
	if merged.BirthDate != "1998-05-12" {
		t.Errorf("BirthDate = %q", merged.BirthDate)
	}
	if merged.Gender != GenderFemale {
		t.Errorf("Gender = %q", merged.Gender)
	}
	if merged.BirthHour() != nil {
		t.Error("BirthHour should be nil when time is unknown")
	}

	// 空値で既存の回答は消えない
	again := merged.Merge(BirthProfile{})
	if again.Name != "Nok" || again.BirthDate != "1998-05-12" {
		t.Errorf("empty patch must not clear fields: %+v", again)
	}
}

func TestBirthProfile_BirthHour(t *testing.T) {
	p := BirthProfile{BirthTime: &BirthTime{Period: "morning", ChineseHour: 7}}
	h := p.BirthHour()
	if h == nil || *h != 7 {
		t.Fatalf("BirthHour = %v, want 7", h)
	}

	if (BirthProfile{}).BirthHour() != nil {
		t.Error("BirthHour should be nil without birth time")
	}
}

func TestBirthProfile_ParsedBirthDate(t *testing.T) {
	d, err := BirthProfile{BirthDate: "1998-05-12"}.ParsedBirthDate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(time.Date(1998, 5, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", d)
	}

	if _, err := (BirthProfile{}).ParsedBirthDate(); err == nil {
		t.Error("expected error for empty birth date")
	}
	if _, err := (BirthProfile{BirthDate: "12/05/1998"}).ParsedBirthDate(); err == nil {
		t.Error("expected error for malformed birth date")
	}
}

func TestInvite_IsExpired(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inv := &Invite{CreatedAt: created, ExpiresAt: created.Add(7 * 24 * time.Hour)}

	if inv.IsExpired(created.Add(6 * 24 * time.Hour)) {
		t.Error("invite should be valid on day 6")
	}
	if !inv.IsExpired(inv.ExpiresAt) {
		t.Error("invite should be expired exactly at expiry")
	}
	if !inv.IsExpired(created.Add(8 * 24 * time.Hour)) {
		t.Error("invite should be expired on day 8")
	}
}

func TestParseProvider(t *testing.T) {
	for _, s := range []string{"google", "x"} {
		if _, ok := ParseProvider(s); !ok {
			t.Errorf("ParseProvider(%q) should succeed", s)
		}
	}
	for _, s := range []string{"", "guest", "github", "Google"} {
		if _, ok := ParseProvider(s); ok {
			t.Errorf("ParseProvider(%q) should fail", s)
		}
	}
}

package models

import (
	"errors"
	"testing"
	"time"
)

func TestMembership(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("DefaultMembership", func(t *testing.T) {
		m := DefaultMembership(now)
		if m.Tier != TierFree || m.MaxDailyUsage != 5 || m.TotalStorage != 100*1024*1024 {
			t.Errorf("unexpected free tier %+v", m)
		}
		if !m.EndDate.Equal(now.AddDate(1, 0, 0)) {
			t.Errorf("expected one year term, got %v", m.EndDate)
		}
	})

	t.Run("Allow", func(t *testing.T) {
		m := DefaultMembership(now)
		m.DailyUsage = 3

		if !m.Allow(2) || m.Allow(3) {
			t.Errorf("expected exactly 2 remaining, got %d", m.Remaining())
		}

		m.DailyUsage = 9
		if m.Remaining() != 0 {
			t.Errorf("expected remaining to floor at 0, got %d", m.Remaining())
		}

		m.Tier = TierVIP
		if !m.Allow(1000) {
			t.Error("expected paid tier to be unlimited")
		}
	})

	t.Run("WithMembership", func(t *testing.T) {
		u := User{ID: "u1", Username: "admin"}

		if got := u.WithMembership(nil, now); got.Membership.Tier != TierFree {
			t.Errorf("expected free tier default, got %v", got.Membership.Tier)
		}

		server := &Membership{Tier: TierPremium, MaxDailyUsage: 1000}
		if got := u.WithMembership(server, now); got.Membership.Tier != TierPremium {
			t.Errorf("expected server membership to win, got %v", got.Membership.Tier)
		}

		u.Membership = Membership{Tier: TierVIP}
		if got := u.WithMembership(&Membership{}, now); got.Membership.Tier != TierVIP {
			t.Errorf("expected existing membership to be kept, got %v", got.Membership.Tier)
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("User", func(t *testing.T) {
		ok := User{ID: "u1", Username: "admin", Membership: Membership{Tier: TierFree}}
		if err := ok.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}

		for _, u := range []User{
			{Username: "admin", Membership: Membership{Tier: TierFree}},
			{ID: "u1", Membership: Membership{Tier: TierFree}},
			{ID: "u1", Username: "admin"},
		} {
			if err := u.Validate(); !errors.Is(err, ErrInvalidModel) {
				t.Errorf("expected ErrInvalidModel for %+v, got %v", u, err)
			}
		}
	})

	t.Run("HistoryEntry", func(t *testing.T) {
		h := NewHistoryEntry("u1", OpCompress, "a.png", 2048)
		if err := h.Validate(); !errors.Is(err, ErrInvalidModel) {
			t.Errorf("expected missing id to fail, got %v", err)
		}

		h.SetID("h1")
		if err := h.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}

		guest := NewHistoryEntry("", OpCrop, "a.png", 1)
		if guest.SubjectID() != GuestSubject {
			t.Errorf("expected guest subject, got %q", guest.SubjectID())
		}

		bad := NewHistoryEntry("u1", "sharpen", "a.png", 1)
		bad.SetID("h2")
		if err := bad.Validate(); !errors.Is(err, ErrInvalidModel) {
			t.Errorf("expected unknown operation to fail, got %v", err)
		}

		h.SetErrorMessage("too large")
		if !h.Failed() {
			t.Error("expected entry with error message to report failed")
		}
	})
}

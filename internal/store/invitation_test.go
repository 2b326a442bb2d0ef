package store

import (
	"testing"

	"github.com/nestlinghq/nestling/internal/database"
	"github.com/nestlinghq/nestling/internal/model"
)

func setupInvitationTestDB(t *testing.T) (*InvitationStore, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := NewUserStore(db)
	bs := NewBabyStore(db)
	user, err := us.Create("mom", "mom@example.com", "Mom")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	baby, err := bs.Create("Ida", nil, nil, "", user.ID)
	if err != nil {
		t.Fatalf("create baby: %v", err)
	}
	return NewInvitationStore(db), baby.ID
}

func TestInvitationCreateAndRedeem(t *testing.T) {
	is, babyID := setupInvitationTestDB(t)

	inv, code, err := is.Create("aunt@example.com", babyID, model.RelationAuntMaternal, nil, 1)
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("code = %q, want 6 digits", code)
	}
	if inv.AcceptedAt != nil {
		t.Error("fresh invitation should not be accepted")
	}

	got, err := is.Redeem("aunt@example.com", code)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got == nil {
		t.Fatal("redeem with the right code should succeed")
	}
	if got.AcceptedAt == nil {
		t.Error("redeemed invitation should record accepted_at")
	}
	if got.Relation != model.RelationAuntMaternal {
		t.Errorf("relation = %q", got.Relation)
	}

	// A redeemed invitation cannot be redeemed again.
	again, err := is.Redeem("aunt@example.com", code)
	if err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	if again != nil {
		t.Error("second redeem should fail")
	}
}

func TestInvitationWrongCodeBurnsAttempts(t *testing.T) {
	is, babyID := setupInvitationTestDB(t)

	_, code, err := is.Create("aunt@example.com", babyID, model.RelationAuntMaternal, nil, 1)
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	for i := 0; i < 5; i++ {
		got, err := is.Redeem("aunt@example.com", "000000")
		if err != nil {
			t.Fatalf("wrong code attempt %d: %v", i+1, err)
		}
		if got != nil {
			t.Fatal("wrong code should not redeem")
		}
	}

	// The attempt budget is gone; even the right code is rejected now.
	got, err := is.Redeem("aunt@example.com", code)
	if err != nil {
		t.Fatalf("redeem after burn: %v", err)
	}
	if got != nil {
		t.Error("burned invitation should reject the correct code")
	}
}

func TestInvitationReissueExpiresPrevious(t *testing.T) {
	is, babyID := setupInvitationTestDB(t)

	_, oldCode, err := is.Create("aunt@example.com", babyID, model.RelationAuntMaternal, nil, 1)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, newCode, err := is.Create("aunt@example.com", babyID, model.RelationAuntMaternal, nil, 1)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	if got, err := is.Redeem("aunt@example.com", oldCode); err != nil {
		t.Fatalf("redeem old: %v", err)
	} else if got != nil && oldCode != newCode {
		t.Error("superseded code should not redeem")
	}

	got, err := is.Redeem("aunt@example.com", newCode)
	if err != nil {
		t.Fatalf("redeem new: %v", err)
	}
	if got == nil {
		t.Error("newest code should redeem")
	}
}

func TestInvitationNoOpenInvitation(t *testing.T) {
	is, _ := setupInvitationTestDB(t)

	got, err := is.Redeem("nobody@example.com", "123456")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got != nil {
		t.Error("redeem without an open invitation should fail")
	}
}

func TestInvitationPermissionsRoundTrip(t *testing.T) {
	is, babyID := setupInvitationTestDB(t)

	perms := []model.Permission{model.PermView, model.PermUploadMedia}
	inv, _, err := is.Create("aunt@example.com", babyID, model.RelationAuntMaternal, perms, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(inv.Permissions) != 2 {
		t.Errorf("permissions = %v, want 2 entries", inv.Permissions)
	}

	inv2, _, err := is.Create("nanny@example.com", babyID, model.RelationNanny, nil, 1)
	if err != nil {
		t.Fatalf("create without perms: %v", err)
	}
	if inv2.Permissions != nil {
		t.Errorf("nil perms should round-trip as nil, got %v", inv2.Permissions)
	}
}

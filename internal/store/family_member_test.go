package store

import (
	"database/sql"
	"testing"

	"github.com/nestlinghq/nestling/internal/database"
	"github.com/nestlinghq/nestling/internal/model"
)

func setupFamilyMemberTestDB(t *testing.T) (*FamilyMemberStore, int64, int64) {
	fms, babyID, userID, _ := setupFamilyMemberStores(t)
	return fms, babyID, userID
}

func setupFamilyMemberStores(t *testing.T) (*FamilyMemberStore, int64, int64, *sql.DB) {
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
	return NewFamilyMemberStore(db), baby.ID, user.ID, db
}

func TestFamilyMemberPermissionsNullRoundTrip(t *testing.T) {
	fms, babyID, userID := setupFamilyMemberTestDB(t)

	// Nil permissions persist as NULL and come back as nil, so the
	// relation-defaults semantics survive storage.
	m, err := fms.Create(babyID, userID, model.RelationMother, "", true, nil, nil)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if m.Permissions != nil {
		t.Errorf("nil permissions should round-trip as nil, got %v", m.Permissions)
	}

	// An explicit set comes back verbatim, even when empty of defaults.
	explicit := []model.Permission{model.PermView}
	updated, err := fms.Update(m.ID, m.Relation, m.DisplayName, explicit, nil)
	if err != nil {
		t.Fatalf("update member: %v", err)
	}
	if len(updated.Permissions) != 1 || updated.Permissions[0] != model.PermView {
		t.Errorf("explicit permissions = %v, want [view]", updated.Permissions)
	}

	// And NULL can be restored by writing nil again.
	reset, err := fms.Update(m.ID, m.Relation, m.DisplayName, nil, nil)
	if err != nil {
		t.Fatalf("reset member: %v", err)
	}
	if reset.Permissions != nil {
		t.Errorf("reset permissions = %v, want nil", reset.Permissions)
	}
}

func TestCreateTxRollbackDiscardsBoth(t *testing.T) {
	fms, _, userID, db := setupFamilyMemberStores(t)
	bs := NewBabyStore(db)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	baby, err := bs.CreateTx(tx, "Max", nil, nil, "", userID)
	if err != nil {
		t.Fatalf("create baby in tx: %v", err)
	}
	member, err := fms.CreateTx(tx, baby.ID, userID, model.RelationFather, "", true, nil, nil)
	if err != nil {
		t.Fatalf("create member in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if got, err := bs.GetByID(baby.ID); err != nil || got != nil {
		t.Errorf("rolled-back baby should be gone, got %v err %v", got, err)
	}
	if got, err := fms.GetByID(member.ID); err != nil || got != nil {
		t.Errorf("rolled-back member should be gone, got %v err %v", got, err)
	}
}

func TestCountPrimary(t *testing.T) {
	fms, babyID, userID := setupFamilyMemberTestDB(t)

	m, err := fms.Create(babyID, userID, model.RelationMother, "", true, nil, nil)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	count, err := fms.CountPrimary(babyID)
	if err != nil {
		t.Fatalf("count primary: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	if _, err := fms.SetPrimary(m.ID, false); err != nil {
		t.Fatalf("set primary: %v", err)
	}
	count, err = fms.CountPrimary(babyID)
	if err != nil {
		t.Fatalf("recount primary: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestListUserIDs(t *testing.T) {
	fms, babyID, userID := setupFamilyMemberTestDB(t)

	if _, err := fms.Create(babyID, userID, model.RelationMother, "", true, nil, nil); err != nil {
		t.Fatalf("create member: %v", err)
	}

	ids, err := fms.ListUserIDs(babyID)
	if err != nil {
		t.Fatalf("list user ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != userID {
		t.Errorf("ids = %v, want [%d]", ids, userID)
	}

	ids, err = fms.ListUserIDs(babyID + 1)
	if err != nil {
		t.Fatalf("list for unknown baby: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("unknown baby ids = %v, want empty", ids)
	}
}

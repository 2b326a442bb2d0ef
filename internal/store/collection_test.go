package store

import (
	"testing"
	"time"

	"github.com/nestlinghq/nestling/internal/database"
	"github.com/nestlinghq/nestling/internal/model"
)

type collectionFixture struct {
	collections *CollectionStore
	user        *model.User
	baby        *model.Baby
	badge       *model.Badge
}

func setupCollectionTestDB(t *testing.T) *collectionFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := NewUserStore(db)
	bs := NewBabyStore(db)
	bds := NewBadgeStore(db)

	user, err := us.Create("mom", "mom@example.com", "Mom")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	baby, err := bs.Create("Ida", nil, nil, "", user.ID)
	if err != nil {
		t.Fatalf("create baby: %v", err)
	}
	badge, err := bds.Create("First Steps", "", model.CategoryMotor, model.DifficultyEasy, nil, nil, false)
	if err != nil {
		t.Fatalf("create badge: %v", err)
	}
	return &collectionFixture{
		collections: NewCollectionStore(db),
		user:        user,
		baby:        baby,
		badge:       badge,
	}
}

func TestCollectionCreateWithMedia(t *testing.T) {
	f := setupCollectionTestDB(t)

	media := []model.MediaRef{
		{ObjectKey: "media/1/a.jpg", ContentType: "image/jpeg", SizeBytes: 1024},
		{ObjectKey: "media/1/b.mp4", ContentType: "video/mp4", SizeBytes: 2048},
	}
	c, err := f.collections.Create(f.baby.ID, f.badge.ID, f.user.ID, time.Now().Add(-time.Hour), "first steps!", media, model.StatusPending)
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if c.Status != model.StatusPending {
		t.Errorf("status = %q, want pending", c.Status)
	}
	if len(c.Media) != 2 {
		t.Fatalf("got %d media refs, want 2", len(c.Media))
	}
	if c.Media[0].ObjectKey != "media/1/a.jpg" {
		t.Errorf("media[0].ObjectKey = %q", c.Media[0].ObjectKey)
	}

	got, err := f.collections.GetByID(c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Note != "first steps!" || len(got.Media) != 2 {
		t.Errorf("round trip lost content: %+v", got)
	}
}

func TestCollectionFinalizeGuard(t *testing.T) {
	f := setupCollectionTestDB(t)
	c, err := f.collections.Create(f.baby.ID, f.badge.ID, f.user.ID, time.Now().Add(-time.Hour), "", nil, model.StatusPending)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := f.collections.Finalize(c.ID, model.StatusApproved, f.user.ID, "nice")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !ok {
		t.Fatal("first finalize should apply")
	}

	// The WHERE status='pending' guard rejects the second transition.
	ok, err = f.collections.Finalize(c.ID, model.StatusRejected, f.user.ID, "no")
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if ok {
		t.Fatal("second finalize must not apply")
	}

	got, _ := f.collections.GetByID(c.ID)
	if got.Status != model.StatusApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if got.VerificationNote != "nice" {
		t.Errorf("verification_note = %q, want nice", got.VerificationNote)
	}
}

func TestCollectionUpdateContentPendingOnly(t *testing.T) {
	f := setupCollectionTestDB(t)
	c, _ := f.collections.Create(f.baby.ID, f.badge.ID, f.user.ID, time.Now().Add(-time.Hour), "old", nil, model.StatusPending)

	media := []model.MediaRef{{ObjectKey: "media/1/c.png", ContentType: "image/png", SizeBytes: 10}}
	ok, err := f.collections.UpdateContent(c.ID, "new", media)
	if err != nil {
		t.Fatalf("update content: %v", err)
	}
	if !ok {
		t.Fatal("update of pending collection should apply")
	}

	got, _ := f.collections.GetByID(c.ID)
	if got.Note != "new" || len(got.Media) != 1 {
		t.Errorf("content not replaced: %+v", got)
	}

	f.collections.Finalize(c.ID, model.StatusApproved, f.user.ID, "")
	ok, err = f.collections.UpdateContent(c.ID, "after approval", nil)
	if err != nil {
		t.Fatalf("update finalized: %v", err)
	}
	if ok {
		t.Fatal("update of finalized collection must not apply")
	}
}

func TestCountSameDay(t *testing.T) {
	f := setupCollectionTestDB(t)
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := f.collections.Create(f.baby.ID, f.badge.ID, f.user.ID, day.Add(time.Duration(i)*time.Hour), "", nil, model.StatusPending); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	// A submission on the previous calendar day does not count.
	if _, err := f.collections.Create(f.baby.ID, f.badge.ID, f.user.ID, day.AddDate(0, 0, -1), "", nil, model.StatusPending); err != nil {
		t.Fatalf("create previous day: %v", err)
	}

	count, err := f.collections.CountSameDay(f.user.ID, day, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	scoped, err := f.collections.CountSameDay(f.user.ID, day, &f.baby.ID)
	if err != nil {
		t.Fatalf("scoped count: %v", err)
	}
	if scoped != 3 {
		t.Errorf("scoped count = %d, want 3", scoped)
	}

	other := f.baby.ID + 100
	none, err := f.collections.CountSameDay(f.user.ID, day, &other)
	if err != nil {
		t.Fatalf("other baby count: %v", err)
	}
	if none != 0 {
		t.Errorf("other baby count = %d, want 0", none)
	}
}

func TestListPendingExcludesTerminal(t *testing.T) {
	f := setupCollectionTestDB(t)

	f.collections.Create(f.baby.ID, f.badge.ID, f.user.ID, time.Now().Add(-2*time.Hour), "", nil, model.StatusPending)
	f.collections.Create(f.baby.ID, f.badge.ID, f.user.ID, time.Now().Add(-time.Hour), "", nil, model.StatusPending)
	f.collections.Create(f.baby.ID, f.badge.ID, f.user.ID, time.Now().Add(-time.Hour), "", nil, model.StatusAutoApproved)

	queue, err := f.collections.ListPending(10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("queue length = %d, want 2", len(queue))
	}
	for _, c := range queue {
		if c.Status != model.StatusPending {
			t.Errorf("queue contains status %q", c.Status)
		}
	}

	limited, err := f.collections.ListPending(1)
	if err != nil {
		t.Fatalf("list pending limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited queue length = %d, want 1", len(limited))
	}
}

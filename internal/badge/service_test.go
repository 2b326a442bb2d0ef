package badge

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nestlinghq/nestling/internal/database"
	"github.com/nestlinghq/nestling/internal/family"
	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/store"
)

type badgeFixture struct {
	svc    *Service
	users  *store.UserStore
	badges *store.BadgeStore
	family *family.Service
	mom    *model.User
	mod    *model.User
	baby   *model.Baby
	badge  *model.Badge
	events []string
}

func setupBadgeService(t *testing.T, cfg Config) *badgeFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	badges := store.NewBadgeStore(db)
	collections := store.NewCollectionStore(db)
	familySvc := family.NewService(db, store.NewBabyStore(db), store.NewFamilyMemberStore(db))

	f := &badgeFixture{users: users, badges: badges, family: familySvc}
	f.svc = NewService(collections, badges, users, familySvc, cfg, func(action string, c *model.BadgeCollection) {
		f.events = append(f.events, action)
	})

	f.mom, err = users.Create("mom", "mom@example.com", "Mom")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	mod, err := users.Create("mod", "mod@example.com", "Mod")
	if err != nil {
		t.Fatalf("create moderator: %v", err)
	}
	f.mod, err = users.SetRole(mod.ID, model.RoleModerator)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	f.baby, err = familySvc.CreateBaby(f.mom.ID, "Ida", nil, nil, "", model.RelationMother)
	if err != nil {
		t.Fatalf("create baby: %v", err)
	}
	f.badge, err = badges.Create("First Steps", "Walked unassisted", model.CategoryMotor, model.DifficultyMedium, nil, nil, false)
	if err != nil {
		t.Fatalf("create badge: %v", err)
	}
	return f
}

func (f *badgeFixture) submit(t *testing.T) *model.BadgeCollection {
	t.Helper()
	c, err := f.svc.Submit(SubmitParams{
		BabyID:      f.baby.ID,
		BadgeID:     f.badge.ID,
		SubmittedBy: f.mom.ID,
		CompletedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return c
}

func TestSubmitCreatesPending(t *testing.T) {
	f := setupBadgeService(t, Config{})

	c := f.submit(t)
	if c.Status != model.StatusPending {
		t.Errorf("status = %q, want pending", c.Status)
	}
	if c.VerifiedBy != nil || c.VerifiedAt != nil {
		t.Error("fresh submission should carry no verifier")
	}
	if len(f.events) != 1 || f.events[0] != "submitted" {
		t.Errorf("events = %v, want [submitted]", f.events)
	}
}

func TestSubmitValidationOrder(t *testing.T) {
	f := setupBadgeService(t, Config{})

	// A submission with a bad date AND an oversized note must be rejected
	// on the date, the first check in the sequence.
	_, err := f.svc.Submit(SubmitParams{
		BabyID:      f.baby.ID,
		BadgeID:     f.badge.ID,
		SubmittedBy: f.mom.ID,
		CompletedAt: time.Now().Add(48 * time.Hour),
		Note:        strings.Repeat("x", MaxNoteLen+1),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if verr.Field != "completed_at" {
		t.Errorf("field = %q, want completed_at", verr.Field)
	}
}

func TestSubmitDateBounds(t *testing.T) {
	f := setupBadgeService(t, Config{})

	cases := []struct {
		name string
		date time.Time
	}{
		{"zero", time.Time{}},
		{"future", time.Now().Add(24 * time.Hour)},
		{"too old", time.Now().AddDate(-MaxPastYears, 0, -1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(SubmitParams{
				BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
				CompletedAt: tc.date,
			})
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != "completed_at" {
				t.Errorf("got %v, want completed_at ValidationError", err)
			}
		})
	}
}

func TestSubmitMediaValidation(t *testing.T) {
	f := setupBadgeService(t, Config{})
	completed := time.Now().Add(-time.Hour)

	tooMany := make([]model.MediaRef, MaxMediaCount+1)
	for i := range tooMany {
		tooMany[i] = model.MediaRef{ObjectKey: fmt.Sprintf("k%d", i), ContentType: "image/jpeg", SizeBytes: 100}
	}

	cases := []struct {
		name  string
		media []model.MediaRef
	}{
		{"too many items", tooMany},
		{"oversized item", []model.MediaRef{{ObjectKey: "k", ContentType: "image/png", SizeBytes: MaxMediaBytes + 1}}},
		{"unsupported type", []model.MediaRef{{ObjectKey: "k", ContentType: "application/pdf", SizeBytes: 100}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(SubmitParams{
				BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
				CompletedAt: completed, Media: tc.media,
			})
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != "media" {
				t.Errorf("got %v, want media ValidationError", err)
			}
		})
	}

	// Rejected submissions leave no record behind.
	list, err := f.svc.ListByBaby(f.mom.ID, f.baby.ID, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no collections after rejected submissions, got %d", len(list))
	}
}

func TestSubmitNonMemberDenied(t *testing.T) {
	f := setupBadgeService(t, Config{})
	outsider, _ := f.users.Create("out", "out@example.com", "Out")

	_, err := f.svc.Submit(SubmitParams{
		BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: outsider.ID,
		CompletedAt: time.Now().Add(-time.Hour),
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("got %v, want ErrPermissionDenied", err)
	}
}

func TestSubmitMediaRequiresUploadPermission(t *testing.T) {
	f := setupBadgeService(t, Config{})
	viewer, _ := f.users.Create("viewer", "viewer@example.com", "Viewer")
	if _, err := f.family.AddMember(f.mom.ID, f.baby.ID, viewer.ID, model.RelationOther, "", false, nil); err != nil {
		t.Fatalf("add viewer: %v", err)
	}

	_, err := f.svc.Submit(SubmitParams{
		BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: viewer.ID,
		CompletedAt: time.Now().Add(-time.Hour),
		Media:       []model.MediaRef{{ObjectKey: "k", ContentType: "image/jpeg", SizeBytes: 100}},
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("submit with media: got %v, want ErrPermissionDenied", err)
	}

	// Without media the view-only member may still submit.
	if _, err := f.svc.Submit(SubmitParams{
		BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: viewer.ID,
		CompletedAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Errorf("submit without media: %v", err)
	}
}

func TestSubmitInactiveBadge(t *testing.T) {
	f := setupBadgeService(t, Config{})
	if _, err := f.badges.SetActive(f.badge.ID, false); err != nil {
		t.Fatalf("deactivate badge: %v", err)
	}

	_, err := f.svc.Submit(SubmitParams{
		BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
		CompletedAt: time.Now().Add(-time.Hour),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSubmitNoteLimitCountsRunes(t *testing.T) {
	f := setupBadgeService(t, Config{})

	// A 400-rune note of multi-byte characters is well inside the limit
	// even though it exceeds it in bytes.
	if _, err := f.svc.Submit(SubmitParams{
		BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
		CompletedAt: time.Now().Add(-time.Hour),
		Note:        strings.Repeat("é", 400),
	}); err != nil {
		t.Errorf("multi-byte note within limit: %v", err)
	}

	_, err := f.svc.Submit(SubmitParams{
		BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
		CompletedAt: time.Now().Add(-time.Hour),
		Note:        strings.Repeat("é", MaxNoteLen+1),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "note" {
		t.Errorf("over-limit note: got %v, want note ValidationError", err)
	}
}

func TestSetConfigAppliesWithoutRestart(t *testing.T) {
	f := setupBadgeService(t, Config{DailyLimit: 5})
	completed := time.Now().Add(-time.Hour)

	if _, err := f.svc.Submit(SubmitParams{
		BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
		CompletedAt: completed,
	}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// Tightening the limit at runtime takes effect on the next submission.
	f.svc.SetConfig(Config{DailyLimit: 1})
	_, err := f.svc.Submit(SubmitParams{
		BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
		CompletedAt: completed,
	})
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("got %v, want ErrRateLimitExceeded", err)
	}
}

func TestSubmitRateLimit(t *testing.T) {
	f := setupBadgeService(t, Config{DailyLimit: 3})
	completed := time.Now().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Submit(SubmitParams{
			BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
			CompletedAt: completed,
		}); err != nil {
			t.Fatalf("submission %d: %v", i+1, err)
		}
	}

	_, err := f.svc.Submit(SubmitParams{
		BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
		CompletedAt: completed,
	})
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("4th submission: got %v, want ErrRateLimitExceeded", err)
	}

	// A different calendar day does not count against the quota.
	if _, err := f.svc.Submit(SubmitParams{
		BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
		CompletedAt: completed.AddDate(0, 0, -2),
	}); err != nil {
		t.Errorf("different day: %v", err)
	}
}

func TestSubmitRateLimitPerBabyScope(t *testing.T) {
	f := setupBadgeService(t, Config{DailyLimit: 2, Scope: RateScopePerBaby})
	completed := time.Now().Add(-time.Hour)

	baby2, err := f.family.CreateBaby(f.mom.ID, "Ada", nil, nil, "", model.RelationMother)
	if err != nil {
		t.Fatalf("create second baby: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Submit(SubmitParams{
			BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
			CompletedAt: completed,
		}); err != nil {
			t.Fatalf("submission %d: %v", i+1, err)
		}
	}
	if _, err := f.svc.Submit(SubmitParams{
		BabyID: f.baby.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
		CompletedAt: completed,
	}); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("first baby over quota: got %v, want ErrRateLimitExceeded", err)
	}

	// Per-baby scope leaves the second baby's quota untouched.
	if _, err := f.svc.Submit(SubmitParams{
		BabyID: baby2.ID, BadgeID: f.badge.ID, SubmittedBy: f.mom.ID,
		CompletedAt: completed,
	}); err != nil {
		t.Errorf("second baby: %v", err)
	}
}

func TestAutoApprovePolicy(t *testing.T) {
	f := setupBadgeService(t, Config{
		AutoApprove: func(submitter *model.User, babyID int64) bool {
			return submitter.UID == "mom"
		},
	})

	c := f.submit(t)
	if c.Status != model.StatusAutoApproved {
		t.Errorf("status = %q, want auto-approved", c.Status)
	}

	// Auto-approved is terminal: moderation is rejected.
	if _, err := f.svc.Verify(c.ID, ActionApprove, f.mod.ID, ""); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("verify auto-approved: got %v, want ErrAlreadyFinalized", err)
	}
}

func TestVerifyApprove(t *testing.T) {
	f := setupBadgeService(t, Config{})
	c := f.submit(t)

	got, err := f.svc.Verify(c.ID, ActionApprove, f.mod.ID, "looks great")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Status != model.StatusApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if got.VerifiedBy == nil || *got.VerifiedBy != f.mod.ID {
		t.Errorf("verified_by = %v, want %d", got.VerifiedBy, f.mod.ID)
	}
	if got.VerifiedAt == nil {
		t.Error("verified_at not set")
	}
	if got.VerificationNote != "looks great" {
		t.Errorf("verification_note = %q", got.VerificationNote)
	}
	if f.events[len(f.events)-1] != "verified" {
		t.Errorf("events = %v, want trailing verified", f.events)
	}
}

func TestVerifyIdempotent(t *testing.T) {
	f := setupBadgeService(t, Config{})
	c := f.submit(t)

	first, err := f.svc.Verify(c.ID, ActionApprove, f.mod.ID, "")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	// A second decision must not change the recorded verifier or outcome.
	if _, err := f.svc.Verify(c.ID, ActionReject, f.mod.ID, "changed my mind"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("re-verify: got %v, want ErrAlreadyFinalized", err)
	}

	got, _ := f.svc.Get(c.ID)
	if got.Status != model.StatusApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if got.VerifiedAt == nil || !got.VerifiedAt.Equal(*first.VerifiedAt) {
		t.Error("verified_at changed on re-verification")
	}
}

func TestVerifyRequiresModerator(t *testing.T) {
	f := setupBadgeService(t, Config{})
	c := f.submit(t)

	if _, err := f.svc.Verify(c.ID, ActionApprove, f.mom.ID, ""); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("caregiver verifies: got %v, want ErrPermissionDenied", err)
	}

	got, _ := f.svc.Get(c.ID)
	if got.Status != model.StatusPending {
		t.Errorf("status = %q, should remain pending", got.Status)
	}
}

func TestVerifyUnknownCollection(t *testing.T) {
	f := setupBadgeService(t, Config{})

	if _, err := f.svc.Verify(999, ActionApprove, f.mod.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestVerifyBadAction(t *testing.T) {
	f := setupBadgeService(t, Config{})
	c := f.submit(t)

	var verr *ValidationError
	if _, err := f.svc.Verify(c.ID, Action("escalate"), f.mod.ID, ""); !errors.As(err, &verr) {
		t.Errorf("got %v, want ValidationError", err)
	}
}

func TestBatchVerifyPartialFailure(t *testing.T) {
	f := setupBadgeService(t, Config{})
	c1 := f.submit(t)
	c2 := f.submit(t)

	// Finalize c2 up front so the batch hits a terminal entry.
	if _, err := f.svc.Verify(c2.ID, ActionReject, f.mod.ID, ""); err != nil {
		t.Fatalf("pre-reject: %v", err)
	}

	result, err := f.svc.BatchVerify([]int64{c1.ID, c2.ID, 999}, ActionApprove, f.mod.ID, "")
	if err != nil {
		t.Fatalf("batch verify: %v", err)
	}

	if len(result.Successful) != 1 || result.Successful[0].ID != c1.ID {
		t.Errorf("successful = %v, want [%d]", result.Successful, c1.ID)
	}
	if len(result.Failed) != 2 {
		t.Fatalf("failed = %v, want 2 entries", result.Failed)
	}
	labels := map[int64]string{}
	for _, fail := range result.Failed {
		labels[fail.ID] = fail.Error
	}
	if labels[c2.ID] != "AlreadyFinalized" {
		t.Errorf("c2 label = %q, want AlreadyFinalized", labels[c2.ID])
	}
	if labels[999] != "NotFound" {
		t.Errorf("999 label = %q, want NotFound", labels[999])
	}
}

func TestUpdatePendingOnly(t *testing.T) {
	f := setupBadgeService(t, Config{})
	c := f.submit(t)

	got, err := f.svc.Update(c.ID, f.mom.ID, "she walked!", nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Note != "she walked!" {
		t.Errorf("note = %q", got.Note)
	}

	if _, err := f.svc.Verify(c.ID, ActionApprove, f.mod.ID, ""); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := f.svc.Update(c.ID, f.mom.ID, "edited after approval", nil); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("update finalized: got %v, want ErrAlreadyFinalized", err)
	}
}

func TestUpdateSubmitterOnly(t *testing.T) {
	f := setupBadgeService(t, Config{})
	c := f.submit(t)

	if _, err := f.svc.Update(c.ID, f.mod.ID, "not yours", nil); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("got %v, want ErrPermissionDenied", err)
	}
}

func TestListByBabyMemberGate(t *testing.T) {
	f := setupBadgeService(t, Config{})
	f.submit(t)
	outsider, _ := f.users.Create("out", "out@example.com", "Out")

	if _, err := f.svc.ListByBaby(outsider.ID, f.baby.ID, ""); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("outsider list: got %v, want ErrPermissionDenied", err)
	}

	list, err := f.svc.ListByBaby(f.mom.ID, f.baby.ID, model.StatusPending)
	if err != nil {
		t.Fatalf("member list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d pending collections, want 1", len(list))
	}
}

func TestListPendingModeratorGate(t *testing.T) {
	f := setupBadgeService(t, Config{})
	f.submit(t)

	if _, err := f.svc.ListPending(f.mom.ID, 0); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("caregiver lists queue: got %v, want ErrPermissionDenied", err)
	}

	queue, err := f.svc.ListPending(f.mod.ID, 0)
	if err != nil {
		t.Fatalf("moderator lists queue: %v", err)
	}
	if len(queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(queue))
	}
}

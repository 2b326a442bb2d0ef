// Package badge manages the lifecycle of achievement submissions: validation,
// rate limiting, and moderation state transitions.
package badge

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/nestlinghq/nestling/internal/family"
	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/store"
)

var (
	// ErrNotFound is returned when the referenced collection, badge, or
	// baby does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the actor lacks the required
	// capability for the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRateLimitExceeded is returned when the submitter's daily
	// submission quota is exhausted.
	ErrRateLimitExceeded = errors.New("daily submission limit exceeded")

	// ErrAlreadyFinalized is returned on a transition attempt out of a
	// terminal verification status.
	ErrAlreadyFinalized = errors.New("collection already finalized")
)

// ValidationError describes a rejected submission field. No state was
// mutated.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Submission content limits.
const (
	MaxNoteLen    = 500
	MaxMediaCount = 5
	MaxMediaBytes = 10 << 20 // 10 MB per item
	MaxPastYears  = 5
)

// AllowedMediaTypes is the closed set of evidence content types.
var AllowedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"video/mp4":  true,
}

// RateScope selects how the daily submission limit is counted.
type RateScope string

const (
	// RateScopeSubmitter counts all of a submitter's same-day submissions
	// regardless of baby. This is the default.
	RateScopeSubmitter RateScope = "submitter"
	// RateScopePerBaby counts a submitter's same-day submissions per baby.
	RateScopePerBaby RateScope = "per-baby"
)

// Action is a moderation decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// AutoApprovePolicy decides whether a submission bypasses moderation and is
// created directly in the auto-approved status. The trigger is deliberately
// externalized; the default policy never auto-approves.
type AutoApprovePolicy func(submitter *model.User, babyID int64) bool

// Config tunes the workflow.
type Config struct {
	DailyLimit  int
	Scope       RateScope
	AutoApprove AutoApprovePolicy
}

// EventCallback receives every finalized or newly created collection, for
// realtime broadcast and notification fan-out.
type EventCallback func(action string, c *model.BadgeCollection)

// Service runs the achievement verification workflow. Submission counting is
// serialized per submitter so the rate check and the insert apply atomically.
type Service struct {
	collections *store.CollectionStore
	badges      *store.BadgeStore
	users       *store.UserStore
	families    *family.Service
	callback    EventCallback
	now         func() time.Time

	cfgMu sync.RWMutex
	cfg   Config

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewService(collections *store.CollectionStore, badges *store.BadgeStore, users *store.UserStore, families *family.Service, cfg Config, callback EventCallback) *Service {
	s := &Service{
		collections: collections,
		badges:      badges,
		users:       users,
		families:    families,
		callback:    callback,
		now:         time.Now,
		locks:       make(map[int64]*sync.Mutex),
	}
	s.SetConfig(cfg)
	return s
}

// SetConfig replaces the workflow tuning at runtime, so settings edits take
// effect without a restart. Zero values fall back to the defaults.
func (s *Service) SetConfig(cfg Config) {
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = 20
	}
	if cfg.Scope == "" {
		cfg.Scope = RateScopeSubmitter
	}
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Service) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *Service) emit(action string, c *model.BadgeCollection) {
	if s.callback != nil {
		s.callback(action, c)
	}
}

func (s *Service) submitterLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// SubmitParams carries a caregiver's claim that a baby achieved a badge.
type SubmitParams struct {
	BabyID      int64
	BadgeID     int64
	SubmittedBy int64
	CompletedAt time.Time
	Note        string
	Media       []model.MediaRef
}

// Submit validates and records a submission. Validation short-circuits on the
// first failure, in order: completion date, note, media, rate limit. Nothing
// is written unless every check passes.
func (s *Service) Submit(p SubmitParams) (*model.BadgeCollection, error) {
	if err := s.validateContent(p.CompletedAt, p.Note, p.Media); err != nil {
		return nil, err
	}

	member, err := s.families.Member(p.BabyID, p.SubmittedBy)
	if err != nil {
		if errors.Is(err, family.ErrNotFound) {
			return nil, ErrPermissionDenied
		}
		return nil, err
	}
	if len(p.Media) > 0 && !family.CanPerform(member, model.PermUploadMedia) {
		return nil, ErrPermissionDenied
	}

	badge, err := s.badges.GetByID(p.BadgeID)
	if err != nil {
		return nil, err
	}
	if badge == nil || !badge.Active {
		return nil, ErrNotFound
	}

	cfg := s.config()

	status := model.StatusPending
	if cfg.AutoApprove != nil {
		submitter, err := s.users.GetByID(p.SubmittedBy)
		if err != nil {
			return nil, err
		}
		if submitter != nil && cfg.AutoApprove(submitter, p.BabyID) {
			status = model.StatusAutoApproved
		}
	}

	// The count check and the insert form one atomic unit per submitter;
	// without the lock two concurrent submissions could both pass the
	// boundary check.
	lock := s.submitterLock(p.SubmittedBy)
	lock.Lock()
	defer lock.Unlock()

	var scopeBaby *int64
	if cfg.Scope == RateScopePerBaby {
		scopeBaby = &p.BabyID
	}
	count, err := s.collections.CountSameDay(p.SubmittedBy, p.CompletedAt, scopeBaby)
	if err != nil {
		return nil, err
	}
	if count >= cfg.DailyLimit {
		return nil, ErrRateLimitExceeded
	}

	c, err := s.collections.Create(p.BabyID, p.BadgeID, p.SubmittedBy, p.CompletedAt, p.Note, p.Media, status)
	if err != nil {
		return nil, err
	}
	s.emit("submitted", c)
	return c, nil
}

// Verify applies a moderation decision to a pending collection. Terminal
// collections are left untouched: re-invocation returns ErrAlreadyFinalized
// without changing the recorded verifier or timestamp.
func (s *Service) Verify(collectionID int64, action Action, verifierUserID int64, note string) (*model.BadgeCollection, error) {
	if action != ActionApprove && action != ActionReject {
		return nil, &ValidationError{Field: "action", Msg: "must be approve or reject"}
	}

	verifier, err := s.users.GetByID(verifierUserID)
	if err != nil {
		return nil, err
	}
	if verifier == nil || !verifier.IsModerator() {
		return nil, ErrPermissionDenied
	}

	status := model.StatusApproved
	if action == ActionReject {
		status = model.StatusRejected
	}

	ok, err := s.collections.Finalize(collectionID, status, verifierUserID, note)
	if err != nil {
		return nil, err
	}
	if !ok {
		existing, err := s.collections.GetByID(collectionID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyFinalized
	}

	c, err := s.collections.GetByID(collectionID)
	if err != nil {
		return nil, err
	}
	s.emit("verified", c)
	return c, nil
}

// BatchFailure records one failed id within a batch.
type BatchFailure struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

// BatchResult partitions a batch moderation outcome.
type BatchResult struct {
	Successful []model.BadgeCollection `json:"successful"`
	Failed     []BatchFailure          `json:"failed"`
}

// BatchVerify applies Verify independently per id. A failure on one id does
// not block the others.
func (s *Service) BatchVerify(collectionIDs []int64, action Action, verifierUserID int64, note string) (*BatchResult, error) {
	result := &BatchResult{
		Successful: []model.BadgeCollection{},
		Failed:     []BatchFailure{},
	}
	for _, id := range collectionIDs {
		c, err := s.Verify(id, action, verifierUserID, note)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{ID: id, Error: errorLabel(err)})
			continue
		}
		result.Successful = append(result.Successful, *c)
	}
	return result, nil
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyFinalized):
		return "AlreadyFinalized"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrPermissionDenied):
		return "PermissionDenied"
	default:
		return err.Error()
	}
}

// Update edits the note and media of a pending collection, re-running the
// submission content validation. Only the original submitter may edit.
func (s *Service) Update(collectionID, actorUserID int64, note string, media []model.MediaRef) (*model.BadgeCollection, error) {
	existing, err := s.collections.GetByID(collectionID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	if existing.SubmittedBy != actorUserID {
		return nil, ErrPermissionDenied
	}
	if existing.Status.Terminal() {
		return nil, ErrAlreadyFinalized
	}

	if err := s.validateContent(existing.CompletedAt, note, media); err != nil {
		return nil, err
	}

	ok, err := s.collections.UpdateContent(collectionID, note, media)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyFinalized
	}

	c, err := s.collections.GetByID(collectionID)
	if err != nil {
		return nil, err
	}
	s.emit("updated", c)
	return c, nil
}

// Get returns a collection by id.
func (s *Service) Get(collectionID int64) (*model.BadgeCollection, error) {
	c, err := s.collections.GetByID(collectionID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// ListByBaby returns a baby's collections, requiring the actor to be a
// family member.
func (s *Service) ListByBaby(actorUserID, babyID int64, status model.VerificationStatus) ([]model.BadgeCollection, error) {
	if _, err := s.families.Member(babyID, actorUserID); err != nil {
		if errors.Is(err, family.ErrNotFound) {
			return nil, ErrPermissionDenied
		}
		return nil, err
	}
	return s.collections.ListByBaby(babyID, status)
}

// ListPending returns the moderation queue, moderator-only.
func (s *Service) ListPending(verifierUserID int64, limit int) ([]model.BadgeCollection, error) {
	verifier, err := s.users.GetByID(verifierUserID)
	if err != nil {
		return nil, err
	}
	if verifier == nil || !verifier.IsModerator() {
		return nil, ErrPermissionDenied
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.collections.ListPending(limit)
}

// validateContent applies the ordered submission checks shared by Submit and
// Update.
func (s *Service) validateContent(completedAt time.Time, note string, media []model.MediaRef) error {
	now := s.now()
	if completedAt.IsZero() {
		return &ValidationError{Field: "completed_at", Msg: "invalid date"}
	}
	if completedAt.After(now) {
		return &ValidationError{Field: "completed_at", Msg: "must not be in the future"}
	}
	if completedAt.Before(now.AddDate(-MaxPastYears, 0, 0)) {
		return &ValidationError{Field: "completed_at", Msg: fmt.Sprintf("must not be more than %d years in the past", MaxPastYears)}
	}

	if utf8.RuneCountInString(note) > MaxNoteLen {
		return &ValidationError{Field: "note", Msg: fmt.Sprintf("must be at most %d characters", MaxNoteLen)}
	}

	if len(media) > MaxMediaCount {
		return &ValidationError{Field: "media", Msg: fmt.Sprintf("at most %d items allowed", MaxMediaCount)}
	}
	for _, m := range media {
		if m.SizeBytes > MaxMediaBytes {
			return &ValidationError{Field: "media", Msg: "item exceeds 10MB"}
		}
		if !AllowedMediaTypes[m.ContentType] {
			return &ValidationError{Field: "media", Msg: fmt.Sprintf("unsupported type %q", m.ContentType)}
		}
	}
	return nil
}

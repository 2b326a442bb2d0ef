package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/store"
)

// Scheduler periodically reminds moderators about the pending moderation
// queue. At most one digest goes out per calendar day.
type Scheduler struct {
	mu          sync.RWMutex
	service     *Service
	push        *store.PushStore
	collections *store.CollectionStore
	users       *store.UserStore
	logger      *slog.Logger
	interval    time.Duration
	lastDigest  string
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewScheduler(svc *Service, pushStore *store.PushStore, collectionStore *store.CollectionStore, userStore *store.UserStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service:     svc,
		push:        pushStore,
		collections: collectionStore,
		users:       userStore,
		logger:      logger,
		interval:    60 * time.Second,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick() {
	now := time.Now().UTC()
	if now.Hour() != 9 || now.Minute() != 0 {
		return
	}

	day := now.Format("2006-01-02")
	s.mu.Lock()
	if s.lastDigest == day {
		s.mu.Unlock()
		return
	}
	s.lastDigest = day
	s.mu.Unlock()

	s.sendDigest()
}

func (s *Scheduler) sendDigest() {
	pending, err := s.collections.ListPending(200)
	if err != nil {
		s.logger.Error("list pending collections", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	moderators, err := s.users.ListModerators()
	if err != nil {
		s.logger.Error("list moderators", "error", err)
		return
	}

	body := fmt.Sprintf("%d badge submissions are waiting for review", len(pending))
	if len(pending) == 1 {
		body = "1 badge submission is waiting for review"
	}
	payload := Payload{
		Title: "Moderation Queue",
		Body:  body,
		URL:   "/moderation",
		Tag:   "moderation-digest",
	}

	for _, mod := range moderators {
		enabled, err := s.push.IsEnabled(mod.ID, model.NotifTypeBadgePending)
		if err != nil || !enabled {
			continue
		}
		subs, err := s.push.ListByUser(mod.ID)
		if err != nil {
			s.logger.Error("list push subscriptions", "error", err)
			continue
		}
		for _, sub := range subs {
			if err := s.service.Send(&sub, payload); err != nil {
				if errors.Is(err, ErrExpired) {
					s.push.DeleteByEndpoint(sub.Endpoint)
				} else {
					s.logger.Error("send moderation digest", "error", err)
				}
			}
		}
	}
}

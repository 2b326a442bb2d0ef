// Package tips serves curated care-guidance content through a TTL cache, so
// repeated reads of the same listing avoid the database while staying
// time-bounded fresh.
package tips

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nestlinghq/nestling/internal/cache"
	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/store"
)

// ErrLoadInFlight is returned when a page load for the same listing is
// already running. Callers should retry after the current load settles.
var ErrLoadInFlight = errors.New("page load already in flight")

// Content freshness windows per listing kind. Trending decays fastest,
// important tips are the most stable.
const (
	TTLWeek      = 60 * time.Minute
	TTLImportant = 120 * time.Minute
	TTLTrending  = 30 * time.Minute
	TTLDefault   = 30 * time.Minute
)

// Service answers tip queries, caching each distinct filter-and-page result
// under its own expiry.
type Service struct {
	tips  *store.TipStore
	cache *cache.Cache[string, []model.Tip]

	mu       sync.Mutex
	inflight map[string]bool
}

func NewService(tips *store.TipStore) *Service {
	return &Service{
		tips:     tips,
		cache:    cache.New[string, []model.Tip](),
		inflight: make(map[string]bool),
	}
}

// NewServiceWithClock constructs a service whose cache uses the given clock.
// Test hook.
func NewServiceWithClock(tips *store.TipStore, now func() time.Time) *Service {
	return &Service{
		tips:     tips,
		cache:    cache.NewWithClock[string, []model.Tip](now),
		inflight: make(map[string]bool),
	}
}

// listKey is the canonical signature of a listing, page excluded. Two
// requests for the same filter always map to the same key.
func listKey(f store.TipFilter, limit int) string {
	week := -1
	if f.Week != nil {
		week = *f.Week
	}
	return fmt.Sprintf("cat=%s|week=%d|trending=%t|important=%t|limit=%d",
		f.Category, week, f.Trending, f.Important, limit)
}

func pageKey(list string, page int) string {
	return fmt.Sprintf("%s|page=%d", list, page)
}

// ttlFor picks the freshness window for a filter. When filters combine, the
// shortest applicable window wins.
func ttlFor(f store.TipFilter) time.Duration {
	var windows []time.Duration
	if f.Week != nil {
		windows = append(windows, TTLWeek)
	}
	if f.Important {
		windows = append(windows, TTLImportant)
	}
	if f.Trending {
		windows = append(windows, TTLTrending)
	}
	if len(windows) == 0 {
		return TTLDefault
	}
	ttl := windows[0]
	for _, w := range windows[1:] {
		if w < ttl {
			ttl = w
		}
	}
	return ttl
}

// Query returns one page of tips, from cache when fresh.
func (s *Service) Query(f store.TipFilter, page, limit int) ([]model.Tip, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	key := pageKey(listKey(f, limit), page)
	if tips, ok := s.cache.Get(key); ok {
		return tips, nil
	}

	tips, err := s.tips.Query(f, page, limit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, tips, ttlFor(f))
	return tips, nil
}

// LoadMore fetches the next page of a listing. Loads for the same listing are
// serialized: a second request while one is running gets ErrLoadInFlight
// instead of racing it.
func (s *Service) LoadMore(f store.TipFilter, page, limit int) ([]model.Tip, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	list := listKey(f, limit)

	s.mu.Lock()
	if s.inflight[list] {
		s.mu.Unlock()
		return nil, ErrLoadInFlight
	}
	s.inflight[list] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, list)
		s.mu.Unlock()
	}()

	return s.Query(f, page, limit)
}

// Invalidate drops every cached page. Called after tip writes.
func (s *Service) Invalidate() {
	s.cache.Purge()
}

// Create stores a new tip and invalidates the cache.
func (s *Service) Create(title, body, category string, week *int, important bool, trendingScore int) (*model.Tip, error) {
	t, err := s.tips.Create(title, body, category, week, important, trendingScore)
	if err != nil {
		return nil, err
	}
	s.Invalidate()
	return t, nil
}

// SweepLoop evicts expired entries every interval until stop is closed.
func (s *Service) SweepLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cache.Sweep()
		case <-stop:
			return
		}
	}
}

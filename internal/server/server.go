package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nestlinghq/nestling/internal/badge"
	"github.com/nestlinghq/nestling/internal/email"
	"github.com/nestlinghq/nestling/internal/family"
	"github.com/nestlinghq/nestling/internal/handler"
	"github.com/nestlinghq/nestling/internal/media"
	"github.com/nestlinghq/nestling/internal/middleware"
	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/push"
	"github.com/nestlinghq/nestling/internal/store"
	"github.com/nestlinghq/nestling/internal/tips"
	ws "github.com/nestlinghq/nestling/internal/websocket"
)

type Server struct {
	db     *sql.DB
	hub    *ws.Hub
	logger *slog.Logger

	authH     *handler.AuthHandler
	babyH     *handler.BabyHandler
	memberH   *handler.FamilyMemberHandler
	badgeH    *handler.BadgeHandler
	tipH      *handler.TipHandler
	inviteH   *handler.InvitationHandler
	mediaH    *handler.MediaHandler
	settingsH *handler.SettingsHandler
	pushH     *handler.PushHandler

	sessionStore    *store.SessionStore
	userStore       *store.UserStore
	invitationStore *store.InvitationStore
	tipService      *tips.Service
	rateLimiter     *middleware.RateLimiter
	pushScheduler   *push.Scheduler
}

// Config carries the externally provided server configuration.
type Config struct {
	BaseURL      string
	SecureCookie bool
	S3           media.S3Config
	Push         push.Config
}

func New(db *sql.DB, cfg Config, emailClient *email.Client, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	babyStore := store.NewBabyStore(db)
	memberStore := store.NewFamilyMemberStore(db)
	badgeStore := store.NewBadgeStore(db)
	collectionStore := store.NewCollectionStore(db)
	tipStore := store.NewTipStore(db)
	invitationStore := store.NewInvitationStore(db)
	settingsStore := store.NewSettingsStore(db)
	pushStore := store.NewPushStore(db)

	pushLogger := logger.With("component", "push")

	var pushSvc *push.Service
	var pushSched *push.Scheduler
	var pushH *handler.PushHandler
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey)
		pushSched = push.NewScheduler(pushSvc, pushStore, collectionStore, userStore, pushLogger)
		pushH = handler.NewPushHandler(pushStore, pushSvc, pushLogger)
	}
	notifier := push.NewNotifier(pushSvc, pushStore, badgeStore, pushLogger)

	familySvc := family.NewService(db, babyStore, memberStore)

	badgeCfg := badgeConfig(settingsStore, userStore, logger)
	badgeSvc := badge.NewService(collectionStore, badgeStore, userStore, familySvc, badgeCfg, func(action string, c *model.BadgeCollection) {
		ids, err := memberStore.ListUserIDs(c.BabyID)
		if err != nil {
			logger.Error("list member ids", "error", err)
			return
		}
		hub.SendToUsers(ids, ws.NewMessage("badge_collection", action, c.ID, map[string]any{
			"baby_id": c.BabyID,
			"status":  string(c.Status),
		}))
		if action == "verified" && pushSvc != nil {
			notifier.NotifyVerified(c)
		}
	})

	tipSvc := tips.NewService(tipStore)
	storage := media.NewStorage(mediaConfig(settingsStore, cfg.S3, logger))

	// Settings edits apply to the running services immediately.
	reloadBadge := func() {
		badgeSvc.SetConfig(badgeConfig(settingsStore, userStore, logger))
	}
	reloadS3 := func() {
		storage.Reconfigure(mediaConfig(settingsStore, cfg.S3, logger))
	}

	return &Server{
		db:     db,
		hub:    hub,
		logger: logger,

		authH:     handler.NewAuthHandler(userStore, sessionStore, cfg.SecureCookie, logger.With("component", "auth")),
		babyH:     handler.NewBabyHandler(babyStore, familySvc, hub, logger.With("component", "baby")),
		memberH:   handler.NewFamilyMemberHandler(familySvc, hub, notifier, logger.With("component", "family_member")),
		badgeH:    handler.NewBadgeHandler(badgeStore, badgeSvc, familySvc, logger.With("component", "badge")),
		tipH:      handler.NewTipHandler(tipSvc, logger.With("component", "tip")),
		inviteH:   handler.NewInvitationHandler(invitationStore, userStore, babyStore, familySvc, emailClient, notifier, logger.With("component", "invitation")),
		mediaH:    handler.NewMediaHandler(storage, familySvc, logger.With("component", "media")),
		settingsH: handler.NewSettingsHandler(settingsStore, reloadBadge, reloadS3, logger.With("component", "settings")),
		pushH:     pushH,

		sessionStore:    sessionStore,
		userStore:       userStore,
		invitationStore: invitationStore,
		tipService:      tipSvc,
		rateLimiter:     middleware.NewRateLimiter(),
		pushScheduler:   pushSched,
	}
}

// badgeConfig assembles the workflow config from stored settings. Missing
// settings fall back to defaults.
func badgeConfig(settings *store.SettingsStore, users *store.UserStore, logger *slog.Logger) badge.Config {
	cfg := badge.Config{}

	stored, err := settings.GetBadgeSettings()
	if err != nil {
		logger.Warn("load badge settings", "error", err)
		return cfg
	}

	if v := stored["badge_daily_limit"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DailyLimit = n
		}
	}
	if v := stored["badge_rate_scope"]; v != "" {
		cfg.Scope = badge.RateScope(v)
	}
	if v := stored["badge_trusted_uids"]; v != "" {
		trusted := make(map[string]bool)
		for _, uid := range strings.Split(v, ",") {
			if uid = strings.TrimSpace(uid); uid != "" {
				trusted[uid] = true
			}
		}
		cfg.AutoApprove = func(submitter *model.User, babyID int64) bool {
			return trusted[submitter.UID]
		}
	}
	return cfg
}

// mediaConfig overlays the admin-tunable endpoint, bucket, and region from
// stored settings on the environment-provided base. Credentials only ever
// come from the environment.
func mediaConfig(settings *store.SettingsStore, base media.S3Config, logger *slog.Logger) media.S3Config {
	stored, err := settings.GetMediaSettings()
	if err != nil {
		logger.Warn("load media settings", "error", err)
		return base
	}
	if v := stored["media_s3_endpoint"]; v != "" {
		base.Endpoint = v
	}
	if v := stored["media_s3_bucket"]; v != "" {
		base.Bucket = v
	}
	if v := stored["media_s3_region"]; v != "" {
		base.Region = v
	}
	return base
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// InvitationStore returns the invitation store for cleanup tasks.
func (s *Server) InvitationStore() *store.InvitationStore {
	return s.invitationStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// TipService returns the tip service for the cache sweep loop.
func (s *Server) TipService() *tips.Service {
	return s.tipService
}

// PushScheduler returns the moderation digest scheduler, nil when push is
// not configured.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	// Babies
	mux.HandleFunc("POST /api/babies", s.babyH.Create)
	mux.HandleFunc("GET /api/babies", s.babyH.List)
	mux.HandleFunc("GET /api/babies/{id}", s.babyH.Get)
	mux.HandleFunc("PUT /api/babies/{id}", s.babyH.Update)
	mux.HandleFunc("DELETE /api/babies/{id}", s.babyH.Delete)

	// Family members
	mux.HandleFunc("GET /api/babies/{baby_id}/family", s.memberH.List)
	mux.HandleFunc("POST /api/babies/{baby_id}/family", s.memberH.Add)
	mux.HandleFunc("PUT /api/babies/{baby_id}/family/{user_id}", s.memberH.Update)
	mux.HandleFunc("DELETE /api/babies/{baby_id}/family/{user_id}", s.memberH.Remove)
	mux.HandleFunc("GET /api/babies/{baby_id}/family/{user_id}/permissions", s.memberH.Permissions)

	// Invitations
	mux.HandleFunc("POST /api/babies/{baby_id}/invitations", s.inviteH.Create)
	mux.HandleFunc("POST /api/invitations/accept", s.inviteH.Accept)

	// Badges and collections
	mux.HandleFunc("GET /api/badges", s.badgeH.ListBadges)
	mux.Handle("POST /api/badges", middleware.RequireAdmin(http.HandlerFunc(s.badgeH.CreateBadge)))
	mux.HandleFunc("POST /api/babies/{baby_id}/collections", s.badgeH.Submit)
	mux.HandleFunc("GET /api/babies/{baby_id}/collections", s.badgeH.ListByBaby)
	mux.HandleFunc("GET /api/collections/{id}", s.badgeH.Get)
	mux.HandleFunc("PUT /api/collections/{id}", s.badgeH.Update)
	mux.Handle("POST /api/collections/{id}/verify", middleware.RequireModerator(http.HandlerFunc(s.badgeH.Verify)))
	mux.Handle("POST /api/collections/verify-batch", middleware.RequireModerator(http.HandlerFunc(s.badgeH.BatchVerify)))
	mux.Handle("GET /api/moderation/pending", middleware.RequireModerator(http.HandlerFunc(s.badgeH.ListPending)))

	// Evidence media
	mux.HandleFunc("POST /api/babies/{baby_id}/media", s.mediaH.Upload)
	mux.HandleFunc("GET /api/babies/{baby_id}/media", s.mediaH.Download)

	// Tips
	mux.HandleFunc("GET /api/tips", s.tipH.List)
	mux.HandleFunc("GET /api/tips/more", s.tipH.LoadMore)
	mux.Handle("POST /api/tips", middleware.RequireAdmin(http.HandlerFunc(s.tipH.Create)))

	// Settings (admin)
	mux.Handle("GET /api/settings/badge", middleware.RequireAdmin(http.HandlerFunc(s.settingsH.GetBadge)))
	mux.Handle("PUT /api/settings/badge", middleware.RequireAdmin(http.HandlerFunc(s.settingsH.UpdateBadge)))
	mux.Handle("GET /api/settings/s3", middleware.RequireAdmin(http.HandlerFunc(s.settingsH.GetS3)))
	mux.Handle("PUT /api/settings/s3", middleware.RequireAdmin(http.HandlerFunc(s.settingsH.UpdateS3)))

	// Push notifications
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("GET /api/push/preferences", s.pushH.GetPreferences)
		mux.HandleFunc("PUT /api/push/preferences", s.pushH.UpdatePreferences)
		mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}

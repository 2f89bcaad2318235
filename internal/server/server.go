package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/niramay/internal/account"
	"github.com/dukerupert/niramay/internal/assignment"
	"github.com/dukerupert/niramay/internal/config"
	"github.com/dukerupert/niramay/internal/email"
	"github.com/dukerupert/niramay/internal/filestore"
	"github.com/dukerupert/niramay/internal/handler"
	"github.com/dukerupert/niramay/internal/integrity"
	"github.com/dukerupert/niramay/internal/ledger"
	"github.com/dukerupert/niramay/internal/maps"
	"github.com/dukerupert/niramay/internal/metrics"
	"github.com/dukerupert/niramay/internal/middleware"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/notify"
	"github.com/dukerupert/niramay/internal/push"
	"github.com/dukerupert/niramay/internal/store"
	"github.com/dukerupert/niramay/internal/vision"
	ws "github.com/dukerupert/niramay/internal/websocket"
)

var (
	authPolicy   = middleware.Policy{Name: "auth", Limit: 10, Window: time.Minute, Key: middleware.ByIP}
	reportPolicy = middleware.Policy{Name: "report", Limit: 20, Window: time.Hour, Key: middleware.ByUser}
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	authH          *handler.AuthHandler
	reportH        *handler.ReportHandler
	workerH        *handler.WorkerHandler
	rewardH        *handler.RewardHandler
	notificationH  *handler.NotificationHandler
	pushH          *handler.PushHandler
	mapsH          *handler.MapsHandler
	integrityH     *handler.IntegrityHandler
	sessionStore   *store.SessionStore
	profileStore   *store.ProfileStore
	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	logger         *slog.Logger
}

// Options overrides collaborators that otherwise come from cfg. Tests use
// it to inject fakes.
type Options struct {
	Files    filestore.Store
	Vision   handler.Classifier
	Geocoder handler.Geocoder
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger, opts Options) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	sessionStore := store.NewSessionStore(db, cfg.SessionTTL)
	profileStore := store.NewProfileStore(db)

	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	mailer := email.NewClient(cfg.PostmarkToken, cfg.EmailFrom, cfg.BaseURL)
	dispatcher := notify.NewDispatcher(db, pushSvc, mailer, hub, logger.With("component", "notify"))

	mapsSvc := maps.NewService(cfg.Maps)
	files := opts.Files
	if files == nil {
		files = filestore.New(cfg.S3)
	}
	var classifier handler.Classifier = vision.NewClient(cfg.Vision, logger.With("component", "vision"))
	if opts.Vision != nil {
		classifier = opts.Vision
	}
	var geocoder handler.Geocoder = mapsSvc
	if opts.Geocoder != nil {
		geocoder = opts.Geocoder
	}

	if !pushSvc.Enabled() {
		logger.Info("web push disabled, VAPID keys not set")
	}
	if !mailer.Configured() {
		logger.Info("email disabled, postmark token not set")
	}

	accounts := account.NewService(db)
	tasks := assignment.NewService(db, dispatcher, hub, logger.With("component", "assignment"))
	ldg := ledger.New(db, dispatcher, logger.With("component", "ledger"))

	return &Server{
		db:  db,
		hub: hub,
		authH: handler.NewAuthHandler(accounts, sessionStore, profileStore, cfg.SessionBootstrap, cfg.BaseURL,
			logger.With("component", "auth")),
		reportH: handler.NewReportHandler(store.NewReportStore(db), tasks, files, classifier, geocoder, dispatcher, hub,
			logger.With("component", "report")),
		workerH:        handler.NewWorkerHandler(tasks, accounts, hub, logger.With("component", "worker")),
		rewardH:        handler.NewRewardHandler(store.NewItemStore(db), store.NewRewardStore(db), ldg, hub, logger.With("component", "eco_store")),
		notificationH:  handler.NewNotificationHandler(store.NewNotificationStore(db), logger.With("component", "notification")),
		pushH:          handler.NewPushHandler(store.NewPushStore(db), pushSvc, logger.With("component", "push")),
		mapsH:          handler.NewMapsHandler(mapsSvc, logger.With("component", "maps")),
		integrityH:     handler.NewIntegrityHandler(integrity.NewScanner(db, logger.With("component", "integrity")), logger.With("component", "integrity")),
		sessionStore:   sessionStore,
		profileStore:   profileStore,
		rateLimiter:    middleware.NewRateLimiter(),
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the realtime hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Router registers every route on one mux so the metrics middleware sees
// the matched pattern. Access control is applied per route.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.Handle("POST /api/auth/signup", s.limit(authPolicy, s.authH.Signup))
	mux.Handle("POST /api/auth/signin", s.limit(authPolicy, s.authH.Signin))
	mux.HandleFunc("GET /api/auth/session", s.authH.Session)
	mux.Handle("POST /api/auth/signout", s.authed(s.authH.Signout))

	mux.Handle("GET /ws", s.authed(ws.HandleWebSocket(s.hub, s.allowedOrigins, s.logger.With("component", "websocket"))))

	// Reports
	mux.Handle("POST /api/reports", s.role(s.limit(reportPolicy, s.reportH.Create).ServeHTTP, model.RoleCitizen))
	mux.Handle("GET /api/reports", s.authed(s.reportH.List))
	mux.Handle("GET /api/reports/{id}", s.authed(s.reportH.Get))
	mux.Handle("POST /api/reports/{id}/assign", s.admin(s.reportH.Assign))
	mux.Handle("POST /api/reports/{id}/unassign", s.admin(s.reportH.Unassign))
	mux.Handle("POST /api/reports/{id}/start", s.role(s.reportH.Start, model.RoleSubworker))
	mux.Handle("POST /api/reports/{id}/proof", s.role(s.reportH.Proof, model.RoleSubworker))
	mux.Handle("POST /api/reports/{id}/approve", s.admin(s.reportH.Approve))
	mux.Handle("POST /api/reports/{id}/reject", s.admin(s.reportH.Reject))
	mux.Handle("GET /api/reports/{id}/directions", s.authed(s.reportH.Directions))
	mux.Handle("GET /api/files/{key...}", s.authed(s.reportH.File))

	// Workers
	mux.Handle("GET /api/workers", s.admin(s.workerH.List))
	mux.Handle("POST /api/workers", s.admin(s.workerH.Create))
	mux.Handle("GET /api/workers/{id}/eligibility", s.admin(s.workerH.Eligibility))
	mux.Handle("PUT /api/workers/me/status", s.role(s.workerH.SetStatus, model.RoleSubworker))

	// Eco-store
	mux.Handle("GET /api/store/items", s.authed(s.rewardH.ListItems))
	mux.Handle("POST /api/store/items", s.admin(s.rewardH.CreateItem))
	mux.Handle("PUT /api/store/items/{id}", s.admin(s.rewardH.UpdateItem))
	mux.Handle("DELETE /api/store/items/{id}", s.admin(s.rewardH.DeleteItem))
	mux.Handle("POST /api/store/items/{id}/redeem", s.authed(s.rewardH.Redeem))
	mux.Handle("GET /api/redemptions", s.authed(s.rewardH.ListRedemptions))
	mux.Handle("GET /api/points", s.authed(s.rewardH.GetPointBalance))
	mux.Handle("POST /api/admin/points/{id}", s.admin(s.rewardH.Adjust))

	// Notifications and push
	mux.Handle("GET /api/notifications", s.authed(s.notificationH.List))
	mux.Handle("POST /api/notifications/{id}/read", s.authed(s.notificationH.MarkRead))
	mux.Handle("POST /api/notifications/read-all", s.authed(s.notificationH.MarkAllRead))
	mux.Handle("POST /api/push/subscribe", s.authed(s.pushH.Subscribe))
	mux.Handle("DELETE /api/push/subscriptions/{id}", s.authed(s.pushH.Unsubscribe))
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)

	// Maps
	mux.Handle("GET /api/maps/config", s.authed(s.mapsH.Config))
	mux.Handle("GET /api/maps/reverse", s.authed(s.mapsH.Reverse))

	// Integrity
	mux.Handle("GET /api/admin/integrity", s.admin(s.integrityH.Scan))
	mux.Handle("POST /api/admin/integrity/fix", s.admin(s.integrityH.Fix))

	return middleware.RequestLogger(s.logger.With("component", "http"))(middleware.Metrics(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check ping", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"status": status, "clients": s.hub.ClientCount()})
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(s.sessionStore, s.profileStore)(h)
}

func (s *Server) role(h http.HandlerFunc, roles ...model.Role) http.Handler {
	return s.authed(middleware.RequireRole(roles...)(h).ServeHTTP)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.role(h, model.RoleAdmin)
}

func (s *Server) limit(p middleware.Policy, h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, p)(h)
}

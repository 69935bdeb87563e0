package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dukerupert/homecal/internal/config"
	"github.com/dukerupert/homecal/internal/database"
	"github.com/dukerupert/homecal/internal/editor"
	"github.com/dukerupert/homecal/internal/google"
	"github.com/dukerupert/homecal/internal/handler"
	"github.com/dukerupert/homecal/internal/host"
	"github.com/dukerupert/homecal/internal/middleware"
	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/notify"
	"github.com/dukerupert/homecal/internal/reconcile"
	"github.com/dukerupert/homecal/internal/session"
	"github.com/dukerupert/homecal/internal/source"
	"github.com/dukerupert/homecal/internal/store"
	ws "github.com/dukerupert/homecal/internal/websocket"
)

// notificationBackend is the store that owns notification records: the
// host integration or the local SQLite table.
type notificationBackend interface {
	source.NotificationBackend
	editor.NotificationWriter
}

var (
	_ notificationBackend = (*host.Client)(nil)
	_ notificationBackend = (*notify.LocalBackend)(nil)
)

type Server struct {
	cfg    *config.Config
	loc    *time.Location
	hub    *ws.Hub
	logger *slog.Logger
	schema int64

	settingsStore *store.SettingsStore
	host          *host.Client
	backend       notificationBackend
	engine        *reconcile.Engine
	poller        *reconcile.Poller
	dispatcher    *notify.Dispatcher
	rateLimiter   *middleware.RateLimiter

	eventsH    *handler.EventsHandler
	summaryH   *handler.SummaryHandler
	editorH    *handler.EditorHandler
	settingsH  *handler.SettingsHandler
	directoryH *handler.DirectoryHandler
	pushH      *handler.PushHandler

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(ctx context.Context, cfg *config.Config, db *sql.DB, logger *slog.Logger) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(logger.With("component", "websocket"))
	settingsStore := store.NewSettingsStore(db)
	pushStore := store.NewPushStore(db)
	notificationStore := store.NewNotificationStore(db, loc)

	s := &Server{
		cfg:           cfg,
		loc:           loc,
		hub:           hub,
		logger:        logger,
		settingsStore: settingsStore,
		rateLimiter:   middleware.NewRateLimiter(),
	}
	if s.schema, err = database.Version(db); err != nil {
		logger.Warn("read schema version", "error", err)
	}

	// Calendar providers: the host serves every calendar not routed to
	// Google.
	var fallback source.Provider
	if cfg.Host.URL != "" {
		s.host = host.NewClient(host.Config{
			BaseURL:            cfg.Host.URL,
			Token:              cfg.Host.Token,
			Domain:             cfg.Host.Domain,
			NotificationSensor: cfg.Host.NotificationSensor,
			Timeout:            cfg.Host.Timeout,
			Retries:            uint64(cfg.Host.Retries),
		}, logger.With("component", "host"))
		fallback = s.host
	}
	var routes []source.RoutedProvider
	if cfg.Google.CredentialsFile != "" && len(cfg.Google.Calendars) > 0 {
		gc, err := google.NewFromCredentialsFile(ctx, cfg.Google.CredentialsFile, cfg.Google.Calendars)
		if err != nil {
			return nil, fmt.Errorf("google calendar: %w", err)
		}
		routes = append(routes, gc)
	}
	events := source.NewEventSource(source.NewRouter(fallback, routes...), loc, logger.With("component", "source"))
	events.SetConcurrency(cfg.Refresh.Concurrency)

	switch cfg.Backend {
	case config.BackendHost:
		if s.host == nil {
			return nil, errors.New("host backend selected but host.url is not set")
		}
		s.backend = s.host
	default:
		s.backend = notify.NewLocalBackend(notificationStore)
	}

	notifications := source.NewNotificationSource(s.backend, cfg.Refresh.Settle, logger.With("component", "notifications"))
	s.engine = reconcile.NewEngine(events, notifications, session.New(), logger.With("component", "reconcile"))
	s.engine.OnUpdate(func(res reconcile.Result) {
		hub.Broadcast(ws.EventsRefreshed(map[string]any{
			"events":        len(res.Events),
			"notifications": res.Notifications,
			"updated_at":    res.UpdatedAt,
		}))
	})
	s.poller = reconcile.NewPoller(s.engine, s.Request, s.backend, cfg.Refresh.Interval, cfg.Refresh.ForceEvery)
	hub.OnRequest(func(req ws.Request) {
		if req.Type == ws.RequestSync {
			s.poller.Trigger()
		}
	})

	// Web push always backs the push endpoints; the dispatcher only runs
	// when reminders are stored locally; the host integration delivers
	// its own.
	pushSvc := notify.NewPushService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
	webPush := notify.NewWebPushSender(pushSvc, pushStore, loc, logger.With("component", "push"))
	if cfg.Backend == config.BackendLocal {
		senders := notify.MultiSender{webPush}
		if s.host != nil {
			senders = append(senders, notify.NewHostSender(s.host, loc))
		}
		s.dispatcher = notify.NewDispatcher(notificationStore, senders, loc, logger.With("component", "dispatcher"))
		s.dispatcher.OnDelivered(func(rec model.NotificationRecord) {
			hub.Broadcast(ws.NewMessage(ws.EntityNotification, "delivered", rec.ID, map[string]any{"event_id": rec.EventID}))
			s.poller.Trigger()
		})
	}

	var calendarWriter editor.CalendarWriter = readOnlyCalendar{}
	var calendars handler.CalendarLister = configuredCalendars{cfg: cfg}
	var targets handler.TargetLister
	if s.host != nil {
		calendarWriter = s.host
		calendars = s.host
		targets = s.host
	}

	ed := editor.New(editor.Deps{
		Calendar:      calendarWriter,
		Notifications: s.backend,
		Snapshot:      s.engine,
		Resync:        s.poller,
		Primary: func() string {
			w, err := settingsStore.GetWidget(cfg.WidgetDefaults())
			if err != nil {
				return cfg.WidgetDefaults().PrimaryCalendar
			}
			return w.PrimaryCalendar
		},
	}, cfg.Refresh.Settle, loc, logger.With("component", "editor"))

	s.eventsH = handler.NewEventsHandler(s.engine, s.Request, s.backend, loc, logger.With("component", "events"))
	s.summaryH = handler.NewSummaryHandler(events, s.Request, loc, logger.With("component", "summary"))
	s.editorH = handler.NewEditorHandler(ed, loc, hub, logger.With("component", "editor_handler"))
	s.settingsH = handler.NewSettingsHandler(settingsStore, cfg.WidgetDefaults(), hub, func(model.WidgetSettings) {
		s.poller.Trigger()
	}, logger.With("component", "settings"))
	s.directoryH = handler.NewDirectoryHandler(calendars, targets, logger.With("component", "directory"))
	s.pushH = handler.NewPushHandler(pushStore, pushSvc, webPush, logger.With("component", "push_handler"))

	return s, nil
}

// Request builds a refresh request from the saved widget settings.
func (s *Server) Request(ctx context.Context) (reconcile.Request, error) {
	w, err := s.settingsStore.GetWidget(s.cfg.WidgetDefaults())
	if err != nil {
		return reconcile.Request{}, fmt.Errorf("load widget settings: %w", err)
	}
	return reconcile.Request{
		Calendars: w.SelectedCalendars,
		Primary:   w.PrimaryCalendar,
		View:      w.View,
	}, nil
}

// Engine returns the reconciliation engine.
func (s *Server) Engine() *reconcile.Engine {
	return s.engine
}

// Start launches the poller, the local dispatcher, and rate limiter
// cleanup.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	if s.dispatcher != nil {
		if err := s.dispatcher.Start(ctx); err != nil {
			s.cancel()
			return err
		}
	}
	s.poller.Start(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rateLimiter.Cleanup()
			}
		}
	}()

	s.logger.Info("background workers started", "backend", s.cfg.Backend, "interval", s.cfg.Refresh.Interval)
	return nil
}

// Stop stops background work and waits for it to finish.
func (s *Server) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.poller.Stop()
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}
	if done != nil {
		<-done
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), nil))

	// Events
	mux.HandleFunc("GET /api/events", s.eventsH.List)
	mux.HandleFunc("GET /api/days/{date}", s.eventsH.Day)
	mux.HandleFunc("GET /api/summary", s.summaryH.Summary)
	mux.HandleFunc("GET /api/calendar.ics", s.eventsH.Export)
	mux.HandleFunc("POST /api/sync", s.rateLimitedHandler(s.eventsH.Sync))
	mux.HandleFunc("POST /api/events", s.editorH.CreateEvent)
	mux.HandleFunc("PUT /api/events/{id}", s.editorH.UpdateEvent)
	mux.HandleFunc("DELETE /api/events/{id}", s.editorH.DeleteEvent)

	// Notifications
	mux.HandleFunc("POST /api/events/{id}/notifications", s.editorH.AddNotification)
	mux.HandleFunc("POST /api/events/{id}/snooze", s.editorH.Snooze)
	mux.HandleFunc("POST /api/events/{id}/actions", s.editorH.Action)
	mux.HandleFunc("DELETE /api/notifications/{id}", s.editorH.RemoveNotification)
	mux.HandleFunc("POST /api/notifications/{id}/toggle", s.editorH.ToggleNotification)
	mux.HandleFunc("POST /api/notifications/offset", s.editorH.PreviewOffset)

	// Settings and pickers
	mux.HandleFunc("GET /api/settings", s.settingsH.Get)
	mux.HandleFunc("PUT /api/settings", s.settingsH.Update)
	mux.HandleFunc("GET /api/calendars", s.directoryH.Calendars)
	mux.HandleFunc("GET /api/targets", s.directoryH.Targets)

	// Web push
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)

	var h http.Handler = mux
	if ba := s.cfg.BasicAuth; ba != nil {
		h = middleware.BasicAuth(ba.Username, ba.PasswordHash, "/health")(h)
	}
	return middleware.RequestLogger(s.logger.With("component", "http"), "/health")(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	state := s.engine.State()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"backend":    s.cfg.Backend,
		"events":     len(state.Events()),
		"updated_at": state.UpdatedAt(),
		"clients":    s.hub.ClientCount(),
		"schema":     s.schema,
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, 6, time.Minute)(h).ServeHTTP
}

// readOnlyCalendar rejects writes when no host is configured.
type readOnlyCalendar struct{}

func (readOnlyCalendar) CreateEvent(ctx context.Context, d model.EventDraft) error {
	return fmt.Errorf("create event on %s: no calendar host configured: %w", d.CalendarID, editor.ErrNotEditable)
}

func (readOnlyCalendar) DeleteEvent(ctx context.Context, calendarID, uid string) error {
	return fmt.Errorf("delete event on %s: no calendar host configured: %w", calendarID, editor.ErrNotEditable)
}

func (readOnlyCalendar) DeleteIntegrationEvent(ctx context.Context, eventID string) error {
	return fmt.Errorf("delete event %s: no calendar host configured: %w", eventID, editor.ErrNotEditable)
}

// configuredCalendars lists calendars from the config when there is no host
// to enumerate them.
type configuredCalendars struct {
	cfg *config.Config
}

func (c configuredCalendars) Calendars(ctx context.Context) ([]host.CalendarInfo, error) {
	seen := map[string]bool{}
	var out []host.CalendarInfo
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, host.CalendarInfo{ID: id, Name: id, Provider: model.InferProvider(id)})
	}
	for _, id := range c.cfg.Widget.Calendars {
		add(id)
	}
	ids := make([]string, 0, len(c.cfg.Google.Calendars))
	for id := range c.cfg.Google.Calendars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		add(id)
	}
	return out, nil
}

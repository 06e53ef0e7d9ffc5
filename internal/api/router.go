package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yegors/voice-agent/internal/config"
	"github.com/yegors/voice-agent/internal/metrics"
	"github.com/yegors/voice-agent/internal/websocket"
	"github.com/yegors/voice-agent/internal/widget"
	"github.com/yegors/voice-agent/pkg/logger"
)

// Router wires the handlers into a chi router
type Router struct {
	handler *Handler
	static  http.Handler
	metrics *metrics.Recorder
	logger  *logger.Logger
}

// NewRouter creates a new router
func NewRouter(host *widget.Host, engine *widget.Engine, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server, recorder *metrics.Recorder) *Router {
	return &Router{
		handler: NewHandler(host, engine, cfg, log, wsServer),
		static:  NewStaticFileHandler(cfg.Server.StaticFilesDir, widget.StaticFS(), log),
		metrics: recorder,
		logger:  log.Named("router"),
	}
}

// Routes returns the HTTP handler with all routes mounted
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(r.requestLogger)
	router.Use(middleware.Recoverer)
	if r.metrics != nil {
		router.Use(r.metrics.Middleware)
	}

	router.Get("/", r.handler.GetPage)
	router.Get("/health", r.handler.GetHealth)
	router.Get("/ws", r.handler.HandleWebSocket)
	router.Handle("/static/*", http.StripPrefix("/static/", r.static))

	router.Route("/admin", func(ar chi.Router) {
		ar.Get("/settings", r.handler.GetSettingsPage)
		ar.Post("/settings", r.handler.PostSettingsPage)
	})

	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/config", r.handler.GetConfig)
		api.Get("/settings", r.handler.GetSettings)
		api.Put("/settings", r.handler.PutSettings)

		api.Route("/call", func(cr chi.Router) {
			cr.Get("/", r.handler.GetCall)
			cr.Post("/toggle", r.handler.ToggleCall)
			cr.Post("/stop", r.handler.StopCall)
		})
	})

	if r.metrics != nil {
		router.Handle("/metrics", r.metrics.Handler())
	}

	return router
}

// requestLogger logs each request at debug level
func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		r.logger.Debug("HTTP request",
			logger.String("method", req.Method),
			logger.String("path", req.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(req.Context())))
	})
}

package http

import (
	"net/http"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/metrics"
	"assessment-engine/internal/notify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Service     *app.AssessmentService
	Auth        *Authenticator
	Broadcaster *notify.Broadcaster
	Metrics     *metrics.Metrics
	MetricsPath string
	CORSOrigins []string
	Logger      *zap.Logger
}

// Handler serves the REST API.
type Handler struct {
	service  *app.AssessmentService
	validate *validator.Validate
	log      *zap.Logger
}

// NewRouter builds the chi router with REST, websocket, health and metrics routes.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = NewAuthenticator("", "")
	}
	h := &Handler{service: cfg.Service, validate: validator.New(), log: log}
	ws := NewWSHandler(cfg.Service, cfg.Broadcaster, log)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(requestLogger(log), instrument(cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-User-ID", "X-User-Role"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.Metrics.Handler())
	}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.Middleware)
		pr.Get("/ws", ws.ServeWS)

		pr.Route("/api", func(api chi.Router) {
			api.Route("/quizzes", func(qr chi.Router) {
				qr.With(RequireInstructor).Post("/", h.publishQuiz)
				qr.Post("/{quizID}/attempts", h.startAttempt)
				qr.With(RequireInstructor).Get("/{quizID}/attempts", h.listQuizAttempts)
				qr.With(RequireInstructor).Get("/{quizID}/analytics", h.analytics)
			})
			api.Route("/attempts", func(ar chi.Router) {
				ar.Get("/", h.listOwnAttempts)
				ar.Get("/{attemptID}", h.getAttempt)
				ar.Put("/{attemptID}/responses/{questionID}", h.submitResponse)
				ar.Post("/{attemptID}/complete", h.completeAttempt)
			})
			api.With(RequireInstructor).Post("/responses/{responseID}/grade", h.gradeResponse)
		})
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// instrument records request metrics labelled by route pattern, not raw path.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(r.Method, route, status, time.Since(start))
		})
	}
}

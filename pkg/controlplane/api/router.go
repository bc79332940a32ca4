package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittoswap/internal/controlplane/api/auth"
	"github.com/marmos91/dittoswap/internal/controlplane/api/handlers"
	apiMiddleware "github.com/marmos91/dittoswap/internal/controlplane/api/middleware"
	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/internal/telemetry"
)

// Dependencies are what the router serves.
type Dependencies struct {
	// Cache is the page cache the routes drive.
	Cache handlers.Cache

	// Device is checked by the readiness probe.
	Device handlers.HealthChecker

	// DeviceKind names the backing device in health output.
	DeviceKind string

	// Instance identifies this daemon.
	Instance string
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe (backing device health)
//   - GET /api/v1/stats - Cache counters
//   - DELETE /api/v1/stats - Reset event counters (admin)
//   - GET /api/v1/grace, PUT /api/v1/grace (admin) - Grace period in seconds
//   - GET /api/v1/promoted, GET /api/v1/promoted/disk - Reset-on-read counters
//   - POST /api/v1/prefetch - Read-ahead pass (admin)
//   - GET /api/v1/regions - Initialized regions
//   - POST|DELETE /api/v1/regions/{region} - Region lifecycle (admin)
//   - PUT|GET|DELETE /api/v1/regions/{region}/pages/{offset} - Pages (admin)
//
// When jwtService is nil no route requires a token.
func NewRouter(deps Dependencies, jwtService *auth.JWTService) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(deps.Cache, deps.Device, deps.DeviceKind, deps.Instance)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	if deps.Cache == nil {
		return r
	}

	statsHandler := handlers.NewStatsHandler(deps.Cache)
	graceHandler := handlers.NewGraceHandler(deps.Cache)
	prefetchHandler := handlers.NewPrefetchHandler(deps.Cache)
	regionHandler := handlers.NewRegionHandler(deps.Cache)

	authenticated := passthrough
	admin := passthrough
	if jwtService != nil {
		authenticated = apiMiddleware.JWTAuth(jwtService)
		admin = func(next http.Handler) http.Handler {
			return authenticated(apiMiddleware.RequireAdmin()(next))
		}
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Read-only, unauthenticated
		r.Get("/stats", statsHandler.Get)
		r.Get("/grace", graceHandler.Get)
		r.Get("/regions", regionHandler.List)

		// Reading the promoted counters resets them, so any token will do
		// but one is required.
		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Get("/promoted", statsHandler.Promoted)
			r.Get("/promoted/disk", statsHandler.DiskPromoted)
		})

		r.Group(func(r chi.Router) {
			r.Use(admin)

			r.With(apiMiddleware.Audit("reset_stats")).Delete("/stats", statsHandler.Reset)
			r.With(apiMiddleware.Audit("set_grace")).Put("/grace", graceHandler.Put)
			r.With(apiMiddleware.Audit("prefetch")).Post("/prefetch", prefetchHandler.Prefetch)

			r.Route("/regions/{region}", func(r chi.Router) {
				r.With(apiMiddleware.Audit("init_region")).Post("/", regionHandler.Init)
				r.With(apiMiddleware.Audit("invalidate_area")).Delete("/", regionHandler.Invalidate)

				r.Route("/pages/{offset}", func(r chi.Router) {
					r.Put("/", regionHandler.StorePage)
					r.Get("/", regionHandler.LoadPage)
					r.Delete("/", regionHandler.InvalidatePage)
				})
			})
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler { return next }

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger traces every request and logs its outcome. The request id,
// client address and trace ids are attached to the request context so that
// cache log lines emitted while serving it carry them too. Health and page
// traffic is logged at DEBUG.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := telemetry.StartAPISpan(r.Context(), r.Method, r.URL.Path, r.RemoteAddr)
		defer span.End()

		req := logger.Request{
			ID:       middleware.GetReqID(ctx),
			ClientIP: r.RemoteAddr,
		}
		req.TraceID, req.SpanID = telemetry.SpanIDs(ctx)
		ctx = logger.NewContext(ctx, req)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if route := chi.RouteContext(ctx); route != nil && route.RoutePattern() != "" {
			span.SetAttributes(telemetry.HTTPRoute(route.RoutePattern()))
		}
		span.SetAttributes(telemetry.HTTPStatus(ww.Status()))

		args := []any{
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(ww.Status()),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(logger.Duration(start)),
		}
		if isHealthPath(r.URL.Path) || strings.Contains(r.URL.Path, "/pages/") {
			logger.DebugCtx(ctx, "API request", args...)
			return
		}
		logger.InfoCtx(ctx, "API request", args...)
	})
}

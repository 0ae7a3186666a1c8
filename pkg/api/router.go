package api

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/carbonledger/evidenced/internal/logger"
	"github.com/carbonledger/evidenced/pkg/admin"
	"github.com/carbonledger/evidenced/pkg/api/handlers"
	"github.com/carbonledger/evidenced/pkg/api/middleware"
	"github.com/carbonledger/evidenced/pkg/auth"
	"github.com/carbonledger/evidenced/pkg/blobstore"
	"github.com/carbonledger/evidenced/pkg/ingest"
	"github.com/carbonledger/evidenced/pkg/metrics"
	"github.com/carbonledger/evidenced/pkg/retrieval"
)

// localObjectsPrefix is where the local driver's presigned URLs land.
const localObjectsPrefix = "/local-objects"

// Deps carries everything the router wires together.
type Deps struct {
	Ingest    *ingest.Service
	Retrieval *retrieval.Service
	Admin     *admin.Service

	Keyring *auth.Keyring
	JWT     *auth.JWTService // nil disables bearer auth

	// PublicRead opens artifact downloads to unauthenticated callers.
	PublicRead bool

	// CORSOrigins enables CORS when non-empty.
	CORSOrigins []string

	// Readiness probes the catalog for /ready. May be nil.
	Readiness handlers.ReadinessCheck

	// LocalObjects, when non-nil, mounts the raw object endpoint the
	// local driver presigns against.
	LocalObjects blobstore.Store
}

// NewRouter creates and configures the chi router with all middleware
// and routes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack, order matters.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.HeaderAppKey, auth.HeaderAppSig},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	uploadHandler := handlers.NewUploadHandler(deps.Ingest)
	artifactHandler := handlers.NewArtifactHandler(deps.Retrieval)
	adminHandler := handlers.NewAdminHandler(deps.Admin)
	healthHandler := handlers.NewHealthHandler(deps.Readiness)

	hmacAuth := middleware.HMACAuth(deps.Keyring)
	readAuth := middleware.BearerOrHMAC(deps.JWT, deps.Keyring)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(hmacAuth)
			r.Post("/upload/init", uploadHandler.Init)
			r.Post("/upload/complete", uploadHandler.Complete)
		})

		r.Route("/artifacts/{digest}", func(r chi.Router) {
			if deps.PublicRead {
				r.Get("/", artifactHandler.Download)
			} else {
				r.With(readAuth).Get("/", artifactHandler.Download)
			}
			r.With(readAuth).Get("/meta", artifactHandler.Meta)
			r.Get("/verify", artifactHandler.Verify)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(hmacAuth)
			r.Use(middleware.RequireAdmin())
			r.Post("/retention/sweep", adminHandler.Sweep)
			r.Post("/ipfs/pin", adminHandler.Pin)
			r.Post("/ipfs/unpin", adminHandler.Unpin)
			r.Post("/rescan", adminHandler.Rescan)
		})
	})

	r.Get("/health", healthHandler.Liveness)
	r.Get("/ready", healthHandler.Readiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if deps.LocalObjects != nil {
		localHandler := handlers.NewLocalObjectHandler(deps.LocalObjects, localObjectsPrefix)
		r.Put(localObjectsPrefix+"/*", localHandler.Put)
		r.Get(localObjectsPrefix+"/*", localHandler.Get)
	}

	return r
}

// requestLogger installs the request-scoped log context and logs every
// request with its status and duration. Downstream *Ctx log calls pick up
// request_id, client_ip and, once authenticated, app_key from the context.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lc := logger.NewLogContext(chimw.GetReqID(r.Context()), clientIP(r))
		r = r.WithContext(logger.WithContext(r.Context(), lc))

		logger.DebugCtx(r.Context(), "request started",
			logger.String(logger.KeyOperation, r.Method+" "+r.URL.Path),
		)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.InfoCtx(r.Context(), "request completed",
			logger.String(logger.KeyOperation, r.Method+" "+r.URL.Path),
			logger.Int(logger.KeyStatus, ww.Status()),
			logger.DurationMs(lc.DurationMs()),
		)
	})
}

// clientIP strips the port that RemoteAddr carries when no proxy header
// rewrote it.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

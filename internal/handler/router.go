package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"comfycollab/internal/pkg/auth/jwt"
	"comfycollab/internal/pkg/limiter"
	"comfycollab/internal/pkg/logx"
	"comfycollab/internal/pkg/metrics"
	"comfycollab/internal/pkg/resp"
)

const (
	LoginRate  = 0.2
	LoginBurst = 5
	JoinRate   = 1
	JoinBurst  = 10
)

// Router sets up the HTTP routing table: global middleware, the REST API
// under /api and the presence websocket under /ws/{canvas}.
func Router(deps *AppDeps) http.Handler {
	loginLimiter := limiter.NewIPRateLimiter(rate.Limit(LoginRate), LoginBurst)
	joinLimiter := limiter.NewIPRateLimiter(rate.Limit(JoinRate), JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			// non-browser clients send no Origin
			if origin == "" {
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"status":   "ok",
			"service":  "comfycollab",
			"canvases": deps.Hub.CanvasCount(),
		})
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.With(loginLimiter.Middleware).Post("/auth/token", HandleLogin(deps))

		api.Group(func(authed chi.Router) {
			authed.Use(jwt.RequireIdentity)

			authed.Get("/users/me", HandleGetMe(deps))
			authed.Get("/users", HandleListUsers(deps))

			authed.Get("/canvases/{canvas}", HandleCanvasStatus(deps))

			authed.Route("/outputs", func(outputs chi.Router) {
				outputs.Post("/presign-upload", HandlePresignUploadURL(deps))
				outputs.Get("/presign-download", HandlePresignDownloadURL(deps))
				outputs.Post("/upload", HandleUploadOutput(deps))
				outputs.Get("/object", HandleOutputMetadata(deps))
				outputs.Delete("/object", HandleDeleteOutput(deps))
			})
		})
	})

	r.Get("/ws/{canvas}", HandleWebSocket(wsUpgrader, joinLimiter, deps))

	return r
}

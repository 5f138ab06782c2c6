package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nexusflow/backend/internal/api/handlers"
	"github.com/nexusflow/backend/internal/api/middleware"
	"github.com/nexusflow/backend/internal/auth"
	"github.com/nexusflow/backend/internal/config"
	"github.com/nexusflow/backend/internal/email"
	"github.com/nexusflow/backend/internal/outreach"
	"github.com/nexusflow/backend/internal/rag"
	"github.com/nexusflow/backend/internal/stats"
)

// Deps carries everything the router wires into handlers. DB, Redis and
// Enqueuer are optional; nil disables the corresponding checks or moves
// background work in-process.
type Deps struct {
	Cfg      *config.Config
	Engine   *rag.Engine
	Outreach *outreach.Service
	Email    *email.Manager
	Stats    *stats.Service
	Enqueuer handlers.BackfillEnqueuer
	DB       *pgxpool.Pool
	Redis    *redis.Client
}

type Router struct {
	mux  *chi.Mux
	deps Deps
	jwt  *auth.JWTMiddleware
}

func NewRouter(deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		deps: deps,
		jwt:  auth.NewJWTMiddleware(deps.Cfg.Auth.JWTSecret),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	health := handlers.NewHealthHandler(rt.deps.DB, rt.deps.Redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	knowledgeH := handlers.NewKnowledgeHandler(rt.deps.Engine, rt.deps.Enqueuer, rt.deps.Cfg.LLM.EmbeddingModel)
	outreachH := handlers.NewOutreachHandler(rt.deps.Outreach)
	emailH := handlers.NewEmailHandler(rt.deps.Email, rt.deps.Stats)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		r.Post("/outbound/generate", outreachH.GenerateOutbound)
		r.Post("/inbound/analyze", outreachH.AnalyzeInbound)

		r.Route("/email", func(r chi.Router) {
			r.Post("/summarize", outreachH.Summarize)
			r.Post("/send", emailH.Send)
			r.Post("/configure", emailH.Configure)
			r.Get("/stats", emailH.Stats)
		})

		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/stats", knowledgeH.Stats)
			r.Get("/config", knowledgeH.Config)
			r.Post("/", knowledgeH.Upload)
			r.Delete("/{filename}", knowledgeH.Delete)
			r.Post("/search", knowledgeH.Search)
			r.Post("/regenerate", knowledgeH.Regenerate)
		})
	})

	return r
}

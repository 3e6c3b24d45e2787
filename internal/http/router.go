// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Streaming routes stay uncompressed so chunks reach the client at once
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-support-chat/docs"
	"github.com/tbourn/go-support-chat/internal/agents"
	"github.com/tbourn/go-support-chat/internal/config"
	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/http/handlers"
	"github.com/tbourn/go-support-chat/internal/http/middleware"
	"github.com/tbourn/go-support-chat/internal/llm"
	"github.com/tbourn/go-support-chat/internal/search"
	"github.com/tbourn/go-support-chat/internal/services"
	"github.com/tbourn/go-support-chat/internal/stream"
	"github.com/tbourn/go-support-chat/internal/tools"
)

// AgentDeps carries the model-facing dependencies of the chat pipeline.
// FAQ may be nil, in which case search_faq reports that no knowledge base
// is loaded.
type AgentDeps struct {
	Model      llm.ChatModel
	Classifier llm.Classifier
	Profiles   agents.Profiles
	FAQ        search.Index
}

var (
	corsMethods       = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsAllowHeaders  = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	corsExposeHeaders = []string{"X-Request-ID", "Content-Length", stream.HeaderChatID}
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath. It returns the rate
// limiter so the caller can stop its sweeper on shutdown.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (fixed window per client address, bypass on replay)
//  9. CORS and Security headers
//  10. gzip for JSON routes
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps AgentDeps, cfg config.Config) *middleware.RateLimiter {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	base := normalizedBase(cfg.APIBasePath)
	rl := middleware.NewRateLimiter(cfg.RateMaxRequests, cfg.RateWindow, cfg.RateSweepInterval, middleware.KeyByForwardedFor())
	h, chat := newHandlers(db, deps, cfg, rl)

	// 7) Idempotency validation (before rate limiting). Only confirmed
	// replays skip the limiter, judged by the rule the chat service replays by.
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Routes: []string{http.MethodPost + " " + base + "/chat/messages"},
		},
		chat.Replayable,
	))

	// 8) Fixed-window rate limiter per client address
	r.Use(rl.Handler())

	// 9) CORS posture (allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    corsExposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist.
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    corsExposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       false,
		EnablePolicy:  true,
		ExposeHeaders: []string{stream.HeaderChatID},
	}))

	// 10) Compress JSON; chunked chat text and sockets must pass through untouched.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		base + "/chat/messages",
		base + "/chat/ws",
		"/metrics",
	})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", h.Health)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, base)
	{
		// Chat
		api.POST("/chat/messages", h.PostMessage)
		if cfg.WSEnabled {
			api.GET("/chat/ws", h.ChatSocket)
		}

		// Conversations
		api.GET("/chat/conversations", h.ListConversations)
		api.GET("/chat/conversations/:id", h.GetConversation)
		api.DELETE("/chat/conversations/:id", h.DeleteConversation)

		// Agents
		api.GET("/agents", h.ListAgents)
		api.GET("/agents/:type/capabilities", h.AgentCapabilities)
	}
	return rl
}

// newHandlers builds the dependency graph: repo/db → services → tools →
// executors → chat orchestrator → handlers. WebSocket turns are charged to rl.
func newHandlers(db *gorm.DB, deps AgentDeps, cfg config.Config, rl *middleware.RateLimiter) (*handlers.Handlers, *services.ChatService) {
	convSvc := services.NewConversationService(db)
	orderSvc := services.NewOrderService(db)
	billingSvc := services.NewBillingService(db)

	reg := tools.NewAgentRegistry(orderSvc, billingSvc, convSvc, deps.FAQ)

	opts := agents.ExecutorOptions{
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		MaxToolRounds: cfg.LLM.MaxToolRounds,
	}
	exec := func(t domain.AgentType) *agents.Executor {
		p, ok := deps.Profiles.Get(t)
		if !ok {
			// Partial override files fall back to the built-in persona.
			p, _ = agents.DefaultProfiles().Get(t)
		}
		return agents.NewExecutor(p, deps.Model, reg, opts)
	}

	prompt := deps.Profiles.RouterPrompt
	if prompt == "" {
		prompt = agents.RouterPrompt
	}
	chatSvc := services.NewChatService(db,
		agents.NewRouter(deps.Classifier, prompt),
		exec(domain.AgentSupport),
		exec(domain.AgentOrder),
		exec(domain.AgentBilling),
	)
	if cfg.LLM.GenerationTimeout > 0 {
		chatSvc.GenerationTimeout = cfg.LLM.GenerationTimeout
	}
	if cfg.IdempotencyTTL > 0 {
		chatSvc.IdempotencyTTL = cfg.IdempotencyTTL
	}

	h := handlers.New(chatSvc, convSvc, agents.NewCatalog(deps.Profiles, reg)).
		WithWebSocket(handlers.WSOptions{AllowedOrigins: cfg.CORS.AllowedOrigins}).
		WithRateLimit(rl)
	return h, chatSvc
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// normalizedBase maps "/" to "" so joined paths never start with "//".
func normalizedBase(prefix string) string {
	if prefix == "/" {
		return ""
	}
	return prefix
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mesa-digital/api/internal/config"
	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
	"github.com/mesa-digital/api/internal/events"
	"github.com/mesa-digital/api/internal/handler"
	"github.com/mesa-digital/api/internal/metrics"
	mw "github.com/mesa-digital/api/internal/middleware"
	"github.com/mesa-digital/api/internal/service"
	"github.com/mesa-digital/api/internal/storage"
	"github.com/mesa-digital/api/internal/ws"
)

// Deps carries the collaborators built by the caller. Publisher, Uploader
// and Limiter are optional.
type Deps struct {
	Queries   *database.Queries
	DB        service.DB
	Hub       *ws.Hub
	Publisher events.Publisher
	Uploader  storage.Uploader
	Limiter   *mw.RateLimiter
}

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, deps Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.FrontendOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(deps.Hub, cfg.JWTSecret, w, r)
	})

	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	limit := func(next http.Handler) http.Handler { return next }
	if deps.Limiter != nil {
		limit = deps.Limiter.Handler
	}

	queries := deps.Queries

	sessionService := service.NewSessionService(deps.DB, func(db database.DBTX) service.SessionStore {
		return database.New(db)
	}, cfg.JWTSecret)
	tableService := service.NewTableService(deps.DB, func(db database.DBTX) service.TableStore {
		return database.New(db)
	}, publisher)
	orderService := service.NewOrderService(deps.DB, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}, publisher, cfg.VerifyOrderPrices)
	categoryService := service.NewCategoryService(deps.DB, func(db database.DBTX) service.CategoryStore {
		return database.New(db)
	})
	establishmentService := service.NewEstablishmentService(deps.DB, func(db database.DBTX) service.EstablishmentStore {
		return database.New(db)
	})

	authHandler := handler.NewAuthHandler(sessionService, cfg.CookieSecure)
	tableHandler := handler.NewTableHandler(tableService, queries)
	orderHandler := handler.NewOrderHandler(orderService)
	productHandler := handler.NewProductHandler(queries, deps.Uploader)
	categoryHandler := handler.NewCategoryHandler(queries, categoryService)
	userHandler := handler.NewUserHandler(queries)
	feedbackHandler := handler.NewFeedbackHandler(queries)
	establishmentHandler := handler.NewEstablishmentHandler(queries, establishmentService)
	reportsHandler := handler.NewReportsHandler(queries)

	r.Route("/api", func(r chi.Router) {
		// Public reads
		tableHandler.RegisterPublicRoutes(r, mw.WithEstablishment(queries))
		productHandler.RegisterPublicRoutes(r)
		categoryHandler.RegisterPublicRoutes(r)
		feedbackHandler.RegisterPublicRoutes(r)
		establishmentHandler.RegisterPublicRoutes(r)

		// Order listing narrows by caller; staff see everything.
		r.Group(func(r chi.Router) {
			r.Use(mw.OptionalAuthenticate(cfg.JWTSecret))
			orderHandler.RegisterPublicRoutes(r)
		})

		// Customer writes, rate limited per client IP
		r.Group(func(r chi.Router) {
			r.Use(limit)
			authHandler.RegisterRoutes(r)
			tableHandler.RegisterCustomerRoutes(r)
			feedbackHandler.RegisterCustomerRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(mw.OptionalAuthenticate(cfg.JWTSecret))
				orderHandler.RegisterCustomerRoutes(r)
			})
		})

		// Protected routes (require authentication)
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.JWTSecret))
			authHandler.RegisterProtectedRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(mw.Authorize(enum.UserRoleAdmin, enum.UserRoleWaiter))
				tableHandler.RegisterStaffRoutes(r)
				orderHandler.RegisterStaffRoutes(r)
			})

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(mw.Authorize(enum.UserRoleAdmin))
				productHandler.RegisterAdminRoutes(r)
				categoryHandler.RegisterAdminRoutes(r)
				userHandler.RegisterRoutes(r)
				establishmentHandler.RegisterAdminRoutes(r)
				reportsHandler.RegisterRoutes(r)
			})
		})
	})

	zap.L().Debug("router initialized")
	return r
}

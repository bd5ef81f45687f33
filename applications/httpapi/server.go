// Package httpapi exposes the marketplace over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unimart/unimart/internal/config"
	"github.com/unimart/unimart/internal/logging"
	"github.com/unimart/unimart/internal/metrics"
	"github.com/unimart/unimart/internal/middleware"
	"github.com/unimart/unimart/services/auth"
	"github.com/unimart/unimart/services/deals"
	"github.com/unimart/unimart/services/otp"
	"github.com/unimart/unimart/services/products"
)

// Services bundles the service dependencies of the HTTP layer.
type Services struct {
	Auth     *auth.Service
	Products *products.Service
	Browser  *products.Browser
	Deals    *deals.Service
	OTP      *otp.Service
}

// Server is the HTTP front of the marketplace.
type Server struct {
	cfg      *config.Config
	services Services
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	logger   *logging.Logger
	actions  *middleware.ActionLimiter
	limiter  *middleware.RateLimiter
	stop     chan struct{}
	httpSrv  *http.Server
}

// publicPaths require no session token.
var publicPaths = []string{
	"/health",
	"/metrics",
	"/api/v1/auth/signup",
	"/api/v1/auth/signin",
	"/api/v1/otp/send",
	"/api/v1/otp/verify",
	"/api/v1/stats/deals",
}

// NewServer creates the server with its routes and middleware chain.
func NewServer(cfg *config.Config, services Services, m *metrics.Metrics, registry *prometheus.Registry, logger *logging.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		services: services,
		metrics:  m,
		registry: registry,
		logger:   logger,
		actions:  middleware.NewActionLimiter(logger),
		limiter:  middleware.NewRateLimiter(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst, logger),
		stop:     make(chan struct{}),
	}
	s.limiter.StartCleanup(10*time.Minute, s.stop)
	s.actions.StartCleanup(10*time.Minute, s.stop)

	router := s.router()
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) router() *mux.Router {
	router := mux.NewRouter()

	cors := middleware.NewCORSMiddleware(s.cfg.Server.AllowedOrigins)
	authn := middleware.NewAuthMiddleware(s.cfg.Auth.JWTSecret, s.logger, publicPaths)

	router.Use(middleware.LoggingMiddleware(s.logger))
	router.Use(middleware.MetricsMiddleware("gateway", s.metrics))
	router.Use(mux.MiddlewareFunc(cors.Handler))
	router.Use(mux.MiddlewareFunc(authn.Handler))
	router.Use(mux.MiddlewareFunc(s.limiter.Handler))

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/signup", s.handleSignUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	api.HandleFunc("/auth/signout", s.handleSignOut).Methods(http.MethodPost)
	api.HandleFunc("/profile", s.handleGetProfile).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.handleUpdateProfile).Methods(http.MethodPatch)
	api.HandleFunc("/profile/stats", s.handleUserStats).Methods(http.MethodGet)

	api.HandleFunc("/otp/send", s.handleOTPSend).Methods(http.MethodPost)
	api.HandleFunc("/otp/verify", s.handleOTPVerify).Methods(http.MethodPost)

	api.HandleFunc("/products", s.handleBrowseProducts).Methods(http.MethodGet)
	api.HandleFunc("/products", s.handleCreateProduct).Methods(http.MethodPost)
	api.HandleFunc("/products/mine", s.handleMyListings).Methods(http.MethodGet)
	api.HandleFunc("/products/count", s.handleProductCount).Methods(http.MethodGet)
	api.HandleFunc("/products/count/refresh", s.handleProductCountRefresh).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}", s.handleGetProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", s.handleDeleteProduct).Methods(http.MethodDelete)

	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)

	api.HandleFunc("/deals", s.handleListDeals).Methods(http.MethodGet)
	api.HandleFunc("/deals", s.handleMarkDeal).Methods(http.MethodPost)
	api.HandleFunc("/deals/{id}/complete", s.handleCompleteDeal).Methods(http.MethodPost)
	api.HandleFunc("/deals/{id}/contact", s.handleDealContact).Methods(http.MethodGet)
	api.HandleFunc("/deals/{id}", s.handleCancelDeal).Methods(http.MethodDelete)

	api.HandleFunc("/stats/deals", s.handleDealsCompleted).Methods(http.MethodGet)

	return router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpSrv.Addr).Info("http server starting")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the limiter janitors.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

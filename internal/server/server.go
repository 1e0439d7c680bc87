package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/webextended/ga4-tracking/internal/config"
	"github.com/webextended/ga4-tracking/internal/currency"
	"github.com/webextended/ga4-tracking/internal/store"
	"github.com/webextended/ga4-tracking/internal/tracking"
)

// AjaxPath is the async endpoint the add_to_cart script posts to.
const AjaxPath = "/wp-admin/admin-ajax.php"

type Options struct {
	Store     store.Store
	Tracker   *tracking.Tracker
	Currency  *currency.Resolver
	Nonces    *tracking.Nonces
	Ecommerce config.EcommerceConfig
	Ajax      config.AjaxConfig
	Addr      string
	TokenFile string

	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxy bool
	Logger     *slog.Logger
}

type Server struct {
	store     store.Store
	tracker   *tracking.Tracker
	currency  *currency.Resolver
	nonces    *tracking.Nonces
	caps      tracking.Capabilities
	ecommerce config.EcommerceConfig
	ajax      config.AjaxConfig
	addr      string
	token     string
	tokenFile string
	proxied   bool
	router    chi.Router
	limiter   *RateLimiter
	log       *slog.Logger
	startTime time.Time
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	srv := &Server{
		store:     opts.Store,
		tracker:   opts.Tracker,
		currency:  opts.Currency,
		nonces:    opts.Nonces,
		caps:      tracking.Capabilities{Ecommerce: opts.Ecommerce.Enabled},
		ecommerce: opts.Ecommerce,
		ajax:      opts.Ajax,
		addr:      opts.Addr,
		token:     generateToken(),
		tokenFile: opts.TokenFile,
		proxied:   opts.TrustProxy,
		log:       log,
		startTime: time.Now(),
	}
	if opts.Ajax.RatePerSecond > 0 {
		srv.limiter = NewRateLimiter(opts.Ajax.RatePerSecond, opts.Ajax.Burst)
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.proxied {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/assets/style.css", s.handleCSS)

	// Storefront
	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)
		r.Use(s.currencyMiddleware)

		r.Get("/", s.handleShop)
		r.Get("/product/{id}", s.handleProduct)
		r.Post("/cart/add", s.handleCartAdd)
		r.Get("/checkout", s.handleCheckout)
		r.Post("/checkout", s.handlePlaceOrder)
		r.Get("/checkout/order-received/{id}", s.handleOrderReceived)
	})

	// Async endpoint
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.ajax.AllowedOrigins,
			AllowedMethods:   []string{"POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Use(s.sessionMiddleware)
		r.Use(s.currencyMiddleware)

		r.Post(AjaxPath, s.handleAjax)
		r.Post("/ajax", s.handleAjax)
	})

	// Admin (protected)
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/admin/settings", s.handleSettings)
		r.Post("/admin/settings", s.handleSaveSettings)
	})

	s.router = r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.log.Warn("failed to write token file", "path", s.tokenFile, "error", err)
		}
	}

	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", s.addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.limiter != nil {
		s.limiter.Close()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

func generateToken() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a time based token if crypto/rand fails
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

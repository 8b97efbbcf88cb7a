package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal-auth/internal/config"
	"portal-auth/internal/factory"
	"portal-auth/internal/handler"
	"portal-auth/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	limiter := handler.NewRateLimiter(cfg.RateLimit)
	go limiter.Run(ctx)

	router := setupRouter(f, limiter)

	var serverAddr string
	if cfg.Server.EnableTLS {
		serverAddr = fmt.Sprintf(":%d", cfg.Server.TLSPort)
	} else {
		serverAddr = cfg.GetServerAddress()
	}

	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.Server.EnableTLS {
		server.TLSConfig = f.TLSManager().GetTLSConfig()

		if cfg.Server.AutoCert {
			startServerWithAutoCert(f, server, cfg, stop)
			return
		}

		util.Info("Starting HTTPS server",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.TLSPort),
		)
	} else {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port),
			util.Bool("trust_proxy", cfg.Server.TrustProxy),
		)
	}

	startServer(f, server, cfg, stop)
}

func setupRouter(f *factory.Factory, limiter *handler.RateLimiter) http.Handler {
	cfg := f.Config()
	logger := util.Get()
	services := f.ServiceFactory()
	auth := services.AuthService()

	routerCfg := handler.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequireTLS:     cfg.IsProduction(),
		TrustProxy:     cfg.Server.TrustProxy,
		CookieName:     cfg.Auth.CookieName,
		SecureCookie:   cfg.SecureCookies(),
	}

	return handler.NewRouter(
		routerCfg,
		auth,
		handler.NewAuthHandler(auth, cfg.Auth.CookieName, cfg.SecureCookies(), util.Named("auth_handler")),
		handler.NewPortalHandler(services.PortalService(), util.Named("portal_handler")),
		limiter,
		f.HealthStatus,
		f.Gatherer(),
		logger,
	)
}

// startServerWithAutoCert serves ACME HTTP-01 challenges on the plain port
// and redirects everything else to HTTPS.
func startServerWithAutoCert(f *factory.Factory, server *http.Server, cfg *config.Config, stop context.CancelFunc) {
	autoCertManager := f.TLSManager().AutocertManager()
	if autoCertManager == nil {
		util.Fatal("AutoCert manager is not available")
	}

	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           autoCertManager.HTTPHandler(nil),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		util.Info("Starting ACME challenge server", util.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Error("ACME challenge server failed", util.ErrorField(err))
		}
	}()

	go func() {
		util.Info("Starting HTTPS server with AutoCert",
			util.String("domain", cfg.Server.Domain),
			util.Int("port", cfg.Server.TLSPort),
		)
		if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Fatal("HTTPS AutoCert server failed", util.ErrorField(err))
		}
	}()

	waitForShutdown(f, stop, server, httpServer)
}

func startServer(f *factory.Factory, server *http.Server, cfg *config.Config, stop context.CancelFunc) {
	go func() {
		var err error
		if cfg.Server.EnableTLS {
			// certificates come from TLSConfig.GetCertificate
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("address", server.Addr),
	)

	waitForShutdown(f, stop, server)
}

func waitForShutdown(f *factory.Factory, stop context.CancelFunc, servers ...*http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
		} else {
			util.Info("Server shutdown completed", util.String("address", srv.Addr))
		}
	}
	stop()
	f.Close()
}

// Package gateway is the local HTTP surface: a REST API for scripts and
// the CLI, a websocket event stream for interactive frontends, health
// and metrics endpoints, and the API docs.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"zerozero/internal/app"
	"zerozero/pkg/config"
	"zerozero/pkg/events"
	"zerozero/pkg/logger"
	"zerozero/pkg/security"
	"zerozero/pkg/utils"
)

// Server serves the gateway for one running app core.
type Server struct {
	app      *app.App
	bus      events.Bus
	cfg      *config.Config
	addr     string
	dataPath string
}

func New(a *app.App, bus events.Bus, cfg *config.Config, addr, dataPath string) *Server {
	return &Server{app: a, bus: bus, cfg: cfg, addr: addr, dataPath: dataPath}
}

// Router builds the full route table behind the security guard.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs"))).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/whoami", s.handleWhoami).Methods(http.MethodGet)
	v1.HandleFunc("/number/renew", s.handleRenew).Methods(http.MethodPost)

	v1.HandleFunc("/inbox", s.handleInbox).Methods(http.MethodGet)
	v1.HandleFunc("/requests", s.handleRequests).Methods(http.MethodGet)
	v1.HandleFunc("/queue", s.handleQueue).Methods(http.MethodGet)

	v1.HandleFunc("/pins", s.handlePinsList).Methods(http.MethodGet)
	v1.HandleFunc("/pins", s.handlePinCreate).Methods(http.MethodPost)
	v1.HandleFunc("/pins/{id}", s.handlePinRevoke).Methods(http.MethodDelete)
	v1.HandleFunc("/pins/{id}/rotate", s.handlePinRotate).Methods(http.MethodPost)
	v1.HandleFunc("/pins/{id}/label", s.handlePinLabel).Methods(http.MethodPut)

	v1.HandleFunc("/threads/{key}/messages", s.handleThreadMessages).Methods(http.MethodGet)
	v1.HandleFunc("/threads/{key}/read", s.handleThreadRead).Methods(http.MethodPost)
	v1.HandleFunc("/messages", s.handleSend).Methods(http.MethodPost)
	v1.HandleFunc("/files", s.handleSendFile).Methods(http.MethodPost)

	v1.HandleFunc("/contacts", s.handleContactsList).Methods(http.MethodGet)
	v1.HandleFunc("/contacts", s.handleContactAdd).Methods(http.MethodPost)
	v1.HandleFunc("/contacts/{id}", s.handleContactRemove).Methods(http.MethodDelete)
	v1.HandleFunc("/contacts/{id}/label", s.handleContactLabel).Methods(http.MethodPut)
	v1.HandleFunc("/contacts/{id}/messages", s.handleContactSend).Methods(http.MethodPost)

	v1.HandleFunc("/maintenance/sweep", s.handleSweep).Methods(http.MethodPost)

	guard := security.Guard(security.GatewayConfig{
		APIKey:         s.cfg.Security.APIKey,
		AllowedOrigins: s.cfg.Security.CORS.AllowedOrigins,
		RPS:            s.cfg.Security.RateLimit.RPS,
		Burst:          s.cfg.Security.RateLimit.Burst,
	})
	return guard(r)
}

// Serve runs the gateway until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		tls := s.cfg.Server.TLS
		if tls.CertFile != "" && tls.KeyFile != "" {
			errCh <- srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("gateway_listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

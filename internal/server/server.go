package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"icgateway/internal/config"
	"icgateway/internal/constants"
	"icgateway/internal/gateway"
	"icgateway/internal/logger"
	"icgateway/internal/security"
	"icgateway/internal/session"
)

type Server struct {
	Config         config.Config
	Store          session.StoreInterface
	Coordinator    *gateway.Coordinator
	ConnLimiter    *security.ConnectionLimiter
	BruteProtector *security.BruteForceProtector
	AuditLogger    *security.AuditLogger

	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewServer(cfg config.Config, store session.StoreInterface, coord *gateway.Coordinator) *Server {
	s := &Server{
		Config:         cfg,
		Store:          store,
		Coordinator:    coord,
		ConnLimiter:    security.NewConnectionLimiter(cfg.MaxConnectionsPerIP),
		BruteProtector: security.NewBruteForceProtector(cfg.MaxHandshakeFailures, constants.HandshakeBlockDuration),
		AuditLogger:    security.NewAuditLogger(),
		log:            logger.Component("server"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  constants.WSBufferSize,
		WriteBufferSize: constants.WSBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return security.ValidateOrigin(r, cfg.AllowedOrigins)
		},
	}
	return s
}

// Handler returns the gateway's routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(constants.EndpointWebSocket, s.HandleWebSocket)
	mux.HandleFunc(constants.EndpointHealth, s.HandleHealth)
	mux.HandleFunc(constants.EndpointSession, s.HandleSession)
	mux.Handle(constants.EndpointMetrics, promhttp.Handler())
	mux.HandleFunc(constants.EndpointRoot, s.HandleWebSocket)

	var handler http.Handler = mux
	handler = RecoveryMiddleware(handler)
	handler = LoggingMiddleware(handler)
	handler = CorsMiddleware(s.Config.AllowedOrigins)(handler)
	handler = security.SecurityHeaders(handler)
	return handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Config.ListenAddr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.Config.ListenAddr).Msg("🚀 Gateway listening (HTTP/2 enabled)")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Cleanup()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", s.Config.ListenAddr)
	case <-ctx.Done():
	}

	s.log.Info().Msg("🛑 Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("Server forced to shutdown")
	}
	s.Cleanup()
	s.log.Info().Msg("✅ Server stopped")
	return nil
}

func (s *Server) Cleanup() {
	s.BruteProtector.Close()
}

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// Server is the admin HTTP listener, on TCP or on a Unix socket.
type Server struct {
	network    string
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a server for the TCP address addr.
func New(addr string, handler http.Handler, log *slog.Logger) *Server {
	return newServer("tcp", addr, handler, log)
}

// NewUnix creates a server on the Unix socket at path. The socket is
// created with mode 0600, so only the service user can reach it.
func NewUnix(path string, handler http.Handler, log *slog.Logger) *Server {
	return newServer("unix", path, handler, log)
}

func newServer(network, addr string, handler http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		network: network,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		},
		logger: log,
	}
}

// Listen binds the address without serving. A stale Unix socket left by a
// crashed process is removed first.
func (s *Server) Listen() (net.Listener, error) {
	addr := s.httpServer.Addr
	if s.network != "unix" {
		return net.Listen(s.network, addr)
	}

	if fi, err := os.Lstat(addr); err == nil && fi.Mode()&os.ModeSocket != 0 {
		if err := os.Remove(addr); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen("unix", addr)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(addr, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return ln, nil
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("admin listener started", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

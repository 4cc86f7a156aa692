// Package transport exposes the sync operations over HTTP with XML bodies.
// The SOAP envelope layer of the original protocol stays outside the core;
// these endpoints carry the same shapes without it.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Snshadow/update-server-server-sync/internal/logging"
	"github.com/Snshadow/update-server-server-sync/internal/server/syncer"
)

type Server struct {
	address string
	syncer  *syncer.Service
	logger  logging.Logger

	// contentDir, when set, serves mirrored payload files under /Content/.
	contentDir string
}

func NewServer(address string, logger logging.Logger, svc *syncer.Service, contentDir string) *Server {
	return &Server{
		address:    address,
		syncer:     svc,
		logger:     logger.With("module", "http_server"),
		contentDir: contentDir,
	}
}

// Router builds the endpoint table. Split out so tests can drive the
// handlers through httptest without binding a socket.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ClientWebService/config", s.handleGetConfig).Methods(http.MethodGet)
	r.HandleFunc("/ClientWebService/cookie", s.handleGetCookie).Methods(http.MethodPost)
	r.HandleFunc("/ClientWebService/sync", s.handleSyncUpdates).Methods(http.MethodPost)
	r.HandleFunc("/ClientWebService/extended", s.handleGetExtendedUpdateInfo).Methods(http.MethodPost)

	// The reporting surface is not part of this server.
	r.PathPrefix("/ReportingWebService/").HandlerFunc(s.handleNotImplemented)

	if s.contentDir != "" {
		r.PathPrefix("/Content/").Handler(
			http.StripPrefix("/Content/", http.FileServer(http.Dir(s.contentDir))))
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

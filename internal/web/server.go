package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/park285/chess-insights-board/internal/insights"
	"github.com/park285/chess-insights-board/internal/msgcat"
	"github.com/park285/chess-insights-board/internal/service/board"
	"go.uber.org/zap"
)

const (
	insightsTimeout = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

type Deps struct {
	Hub      *board.Hub
	Archiver *board.Archiver
	Insights insights.Fetcher
	Messages *msgcat.Catalog
	Logger   *zap.Logger
}

type Server struct {
	hub      *board.Hub
	archiver *board.Archiver
	insights insights.Fetcher
	msgs     *msgcat.Catalog
	log      *zap.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		hub:      d.Hub,
		archiver: d.Archiver,
		insights: d.Insights,
		msgs:     d.Messages,
		log:      d.Logger,
	}
	if s.msgs == nil {
		s.msgs = msgcat.MustDefault()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.archiver == nil {
		s.archiver = board.NewArchiver(nil, s.log)
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/insights/{username}", s.handleInsights)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleSnapshot))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/moves", s.withSession(s.handleMove))
	mux.HandleFunc("POST /api/sessions/{id}/navigate", s.withSession(s.handleNavigate))
	mux.HandleFunc("POST /api/sessions/{id}/undo", s.withSession(s.handleUndo))
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.withSession(s.handleReset))
	mux.HandleFunc("POST /api/sessions/{id}/opening", s.withSession(s.handleOpening))
	mux.HandleFunc("POST /api/sessions/{id}/autoplay", s.withSession(s.handleAutoPlay))
	mux.HandleFunc("POST /api/sessions/{id}/engine-color", s.withSession(s.handleEngineColor))
	mux.HandleFunc("POST /api/sessions/{id}/best", s.withSession(s.handleBestMove))
	mux.HandleFunc("POST /api/sessions/{id}/archive", s.withSession(s.handleArchive))
	mux.HandleFunc("GET /api/sessions/{id}/archive", s.withSession(s.handleListArchive))
	mux.HandleFunc("GET /api/sessions/{id}/archive/{line}", s.withSession(s.handleGetArchivedLine))
	mux.HandleFunc("GET /api/sessions/{id}/evalbar.png", s.withSession(s.handleEvalBar))
	mux.HandleFunc("GET /api/sessions/{id}/ws", s.withSession(s.handleWS))
	return s.recoverer(mux)
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http server shutdown incomplete", zap.Error(err))
		return err
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic in http handler",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, c *board.Coordinator)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.hub.Get(r.PathValue("id"))
		if err != nil {
			s.writeBoardError(w, err)
			return
		}
		h(w, r, c)
	}
}

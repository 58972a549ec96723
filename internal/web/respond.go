package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/park285/chess-insights-board/internal/insights"
	"github.com/park285/chess-insights-board/internal/service/board"
	"github.com/park285/chess-insights-board/pkg/boarddto"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string, retryable bool) {
	s.writeJSON(w, status, boarddto.DomainError{Code: code, Message: message, Retryable: retryable})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, details string, err error) {
	if err != nil {
		s.log.Debug("rejected request body", zap.String("details", details), zap.Error(err))
	}
	if details == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_body", s.msgs.Text("request.invalid_body", nil), false)
		return
	}
	s.writeError(w, http.StatusBadRequest, "invalid_request",
		s.msgs.Text("request.invalid", map[string]any{"Details": details}), false)
}

type boardErrorMapping struct {
	target    error
	status    int
	code      string
	key       string
	retryable bool
}

var boardErrors = []boardErrorMapping{
	{board.ErrSessionNotFound, http.StatusNotFound, "session_not_found", "board.session_not_found", false},
	{board.ErrSessionClosed, http.StatusNotFound, "session_closed", "board.session_closed", false},
	{board.ErrTooManySessions, http.StatusServiceUnavailable, "too_many_sessions", "board.too_many_sessions", true},
	{board.ErrEngineUnavailable, http.StatusServiceUnavailable, "engine_unavailable", "board.engine_unavailable", true},
	{board.ErrLineNotFound, http.StatusNotFound, "line_not_found", "board.line_not_found", false},
	{board.ErrIllegalMove, http.StatusConflict, "illegal_move", "board.illegal_move", false},
	{board.ErrReplayActive, http.StatusConflict, "replay_active", "board.replay_active", true},
	{board.ErrEngineTurn, http.StatusConflict, "engine_turn", "board.engine_turn", true},
	{board.ErrIndexOutOfRange, http.StatusBadRequest, "index_out_of_range", "board.index_out_of_range", false},
	{board.ErrNoBestMove, http.StatusConflict, "no_best_move", "board.no_best_move", true},
	{board.ErrNothingToArchive, http.StatusConflict, "nothing_to_archive", "board.nothing_to_archive", false},
	{board.ErrDuplicateLine, http.StatusConflict, "duplicate_line", "board.duplicate_line", false},
}

func (s *Server) boardErrorBody(err error) (int, boarddto.DomainError) {
	for _, m := range boardErrors {
		if errors.Is(err, m.target) {
			return m.status, boarddto.DomainError{Code: m.code, Message: s.msgs.Text(m.key, nil), Retryable: m.retryable}
		}
	}
	return http.StatusInternalServerError, boarddto.DomainError{Code: "internal", Message: http.StatusText(http.StatusInternalServerError), Retryable: true}
}

func (s *Server) writeBoardError(w http.ResponseWriter, err error) {
	status, body := s.boardErrorBody(err)
	if status == http.StatusInternalServerError {
		s.log.Error("board operation failed", zap.Error(err))
	}
	s.writeJSON(w, status, body)
}

// moveRejected reports whether err is a refused move rather than a failure.
func moveRejected(err error) bool {
	return errors.Is(err, board.ErrIllegalMove) ||
		errors.Is(err, board.ErrReplayActive) ||
		errors.Is(err, board.ErrEngineTurn) ||
		errors.Is(err, board.ErrNoBestMove)
}

func (s *Server) writeInsightsError(w http.ResponseWriter, err error) {
	msg := insights.Message(s.msgs, err)
	var se *insights.StatusError
	switch {
	case errors.Is(err, insights.ErrInvalidUsername):
		s.writeError(w, http.StatusBadRequest, "invalid_username", msg, false)
	case errors.Is(err, insights.ErrPlayerNotFound):
		s.writeError(w, http.StatusNotFound, "player_not_found", msg, true)
	case errors.Is(err, insights.ErrServerError):
		s.writeError(w, http.StatusBadGateway, "insights_server_error", msg, true)
	case errors.As(err, &se):
		s.writeError(w, http.StatusBadGateway, "insights_unexpected_status", msg, true)
	default:
		s.log.Warn("insights fetch failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "insights_unavailable", msg, true)
	}
}

package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/park285/chess-insights-board/internal/chess"
	"github.com/park285/chess-insights-board/internal/domain"
	"github.com/park285/chess-insights-board/internal/insights"
	"github.com/park285/chess-insights-board/internal/render"
	"github.com/park285/chess-insights-board/internal/service/board"
	"github.com/park285/chess-insights-board/pkg/boarddto"
	"go.uber.org/zap"
)

var errInsightsDisabled = errors.New("insights backend not configured")

const (
	defaultArchiveLimit = 20
	maxArchiveLimit     = 100
)

type insightsResponse struct {
	Username string            `json:"username"`
	Profile  *insights.Profile `json:"profile"`
	Summary  insights.Summary  `json:"summary"`
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if s.insights == nil {
		s.writeInsightsError(w, errInsightsDisabled)
		return
	}
	username := strings.TrimSpace(r.PathValue("username"))
	ctx, cancel := context.WithTimeout(r.Context(), insightsTimeout)
	defer cancel()

	var (
		profile *insights.Profile
		err     error
	)
	if rf, ok := s.insights.(insights.Refresher); ok && r.URL.Query().Get("refresh") == "1" {
		profile, err = rf.Refresh(ctx, username)
	} else {
		profile, err = s.insights.Fetch(ctx, username)
	}
	if err != nil {
		s.writeInsightsError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, insightsResponse{
		Username: username,
		Profile:  profile,
		Summary:  insights.Summarize(profile),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	c, err := s.hub.Create(r.Context())
	if err != nil {
		s.writeBoardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, c.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	s.writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Delete(r.PathValue("id")); err != nil {
		s.writeBoardError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	var req moveRequest
	if details, err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, details, err)
		return
	}
	spec := chess.MoveSpec{
		From:      strings.ToLower(req.From),
		To:        strings.ToLower(req.To),
		Promotion: strings.ToLower(req.Promotion),
	}
	rec, err := c.ApplyMove(spec)
	s.writeMoveOutcome(w, c, rec, err)
}

func (s *Server) handleBestMove(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	rec, err := c.PlayBestMove()
	s.writeMoveOutcome(w, c, rec, err)
}

// writeMoveOutcome answers 200 for refused moves; only transport-level failures are errors.
func (s *Server) writeMoveOutcome(w http.ResponseWriter, c *board.Coordinator, rec chess.MoveRecord, err error) {
	if err != nil {
		if !moveRejected(err) {
			s.writeBoardError(w, err)
			return
		}
		_, body := s.boardErrorBody(err)
		snap := c.Snapshot()
		s.writeJSON(w, http.StatusOK, boarddto.MoveOutcome{OK: false, Error: body.Message, Snapshot: &snap})
		return
	}
	snap := c.Snapshot()
	view := board.MoveViewOf(snap.Cursor+1, rec)
	s.writeJSON(w, http.StatusOK, boarddto.MoveOutcome{OK: true, Move: &view, Snapshot: &snap})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	var req navigateRequest
	if details, err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, details, err)
		return
	}
	if err := c.NavigateTo(*req.Index); err != nil {
		s.writeBoardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	if err := c.Undo(); err != nil {
		s.writeBoardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	c.ResetSession()
	s.writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleOpening(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	var req openingRequest
	if details, err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, details, err)
		return
	}
	tokens := req.Moves
	if len(tokens) == 0 {
		tokens = insights.OpeningTokens(req.PGN)
	}
	if len(tokens) == 0 {
		s.writeBadRequest(w, "pgn or moves is required", nil)
		return
	}
	if !c.StartOpeningReplay(tokens) {
		s.writeError(w, http.StatusConflict, "opening_rejected", s.msgs.Text("board.opening_rejected", nil), false)
		return
	}
	s.writeJSON(w, http.StatusAccepted, c.Snapshot())
}

func (s *Server) handleAutoPlay(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	var req autoPlayRequest
	if details, err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, details, err)
		return
	}
	if req.Enabled == nil {
		c.ToggleAutoPlay()
	} else {
		c.SetAutoPlay(*req.Enabled)
	}
	s.writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleEngineColor(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	var req engineColorRequest
	if details, err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, details, err)
		return
	}
	color, err := chess.ParseColor(req.Color)
	if err != nil {
		s.writeBadRequest(w, err.Error(), err)
		return
	}
	c.SetEnginePlaysAs(color)
	s.writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	line, err := s.archiver.Archive(r.Context(), c)
	if err != nil {
		status, body := s.boardErrorBody(err)
		if status == http.StatusInternalServerError {
			s.log.Error("failed to archive line", zap.String("session_id", c.ID()), zap.Error(err))
			body = boarddto.DomainError{Code: "archive_failed", Message: s.msgs.Text("board.archive_failed", nil), Retryable: true}
		}
		s.writeJSON(w, status, body)
		return
	}
	s.writeJSON(w, http.StatusCreated, archivedLineDTO(line))
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	limit := defaultArchiveLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeBadRequest(w, "limit must be a positive number", err)
			return
		}
		limit = min(n, maxArchiveLimit)
	}
	lines, err := s.archiver.List(r.Context(), c.ID(), limit)
	if err != nil {
		s.writeBoardError(w, err)
		return
	}
	out := make([]boarddto.ArchivedLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, archivedLineDTO(line))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetArchivedLine(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	id, err := strconv.ParseInt(r.PathValue("line"), 10, 64)
	if err != nil || id <= 0 {
		s.writeBadRequest(w, "line must be a positive number", err)
		return
	}
	line, err := s.archiver.Get(r.Context(), c.ID(), id)
	if err != nil {
		s.writeBoardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, archivedLineDTO(line))
}

func (s *Server) handleEvalBar(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	q := r.URL.Query()
	opts := render.BarOptions{
		Flipped:   q.Get("orientation") == "black",
		HideLabel: q.Get("label") == "0",
	}
	if v, err := strconv.Atoi(q.Get("w")); err == nil {
		opts.Width = v
	}
	if v, err := strconv.Atoi(q.Get("h")); err == nil {
		opts.Height = v
	}

	var ev *chess.Evaluation
	if cur, ok := c.Evaluation(); ok {
		ev = &cur
	}
	png, err := render.EvalBarPNG(r.Context(), ev, opts)
	if err != nil {
		s.log.Warn("failed to render evaluation bar", zap.String("session_id", c.ID()), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "render_failed", s.msgs.Text("board.render_failed", nil), true)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func archivedLineDTO(line *domain.ArchivedLine) boarddto.ArchivedLine {
	out := boarddto.ArchivedLine{
		ID:        line.ID,
		SessionID: line.SessionUUID,
		PGN:       line.PGN,
		MovesSAN:  line.MovesSAN,
		MovesUCI:  line.MovesUCI,
		Result:    line.Result,
		CreatedAt: line.CreatedAt,
	}
	if line.OpeningName != "" {
		out.Opening = strings.TrimSpace(line.ECO + " " + line.OpeningName)
	}
	return out
}

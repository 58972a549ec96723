package insights

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/chess-insights-board/internal/msgcat"
)

const sampleProfile = `{
  "game_results": {"total_games": 12, "win_rate": 0.5,
    "wins_by": {"checkmate": 4, "resignation": 2},
    "losses_by": {"timeout": 3, "checkmate": 1},
    "draws_by": {"stalemate": 2}},
  "game_shapes": {"long_games_pct": 40, "short_games_pct": 60},
  "game_phases": {"endgame": {"acpl": 61.5, "blunder_rate": 0.04},
    "opening": {"acpl": 22, "blunder_rate": 0.01},
    "middlegame": {"acpl": 48, "blunder_rate": 0.03}},
  "opening_repertoire": {"white": [{"name": "Italian Game", "eco": "C50", "games": 5, "win_rate": 0.6,
    "initial_moves_pgn": "1. e4 e5 2. Nf3 Nc6 3. Bc4 *"}], "black": []},
  "psychological_profile_and_recommendations": {"comment": "steady",
    "recommendation_how_to_play_against": {"as_white": "play d4"}}
}`

func newProfileServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchDecodesProfile(t *testing.T) {
	srv := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/insights/magnus" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleProfile)
	})
	c := NewClient(srv.URL + "/")
	p, err := c.Fetch(context.Background(), "  magnus ")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.GameResults.TotalGames != 12 || len(p.OpeningRepertoire.White) != 1 {
		t.Fatalf("unexpected profile %+v", p)
	}
	if p.Psychology == nil || p.Psychology.Recommendation.AsWhite != "play d4" {
		t.Fatalf("psychology not decoded: %+v", p.Psychology)
	}
}

func TestFetchClassifiesStatus(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusNotFound, func(err error) bool { return errors.Is(err, ErrPlayerNotFound) }},
		{http.StatusInternalServerError, func(err error) bool { return errors.Is(err, ErrServerError) }},
		{http.StatusTeapot, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Code == http.StatusTeapot
		}},
	}
	for _, tc := range cases {
		var hits atomic.Int32
		srv := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(tc.status)
		})
		_, err := NewClient(srv.URL).Fetch(context.Background(), "nobody")
		if !tc.check(err) {
			t.Fatalf("status %d: unexpected error %v", tc.status, err)
		}
		if hits.Load() != 1 {
			t.Fatalf("status %d retried %d times", tc.status, hits.Load())
		}
	}
}

func TestFetchRetriesGatewayErrors(t *testing.T) {
	var hits atomic.Int32
	srv := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, sampleProfile)
	})
	p, err := NewClient(srv.URL, WithRetry(3)).Fetch(context.Background(), "magnus")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if hits.Load() != 3 || p.GameResults.TotalGames != 12 {
		t.Fatalf("hits=%d profile=%+v", hits.Load(), p.GameResults)
	}
}

func TestFetchRejectsEmptyUsername(t *testing.T) {
	if _, err := NewClient("http://127.0.0.1:1").Fetch(context.Background(), "   "); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestFetchHonoursContextDeadline(t *testing.T) {
	srv := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, sampleProfile)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := NewClient(srv.URL, WithRetry(1)).Fetch(ctx, "magnus"); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestMessage(t *testing.T) {
	cat := msgcat.MustDefault()
	cases := []struct {
		err  error
		want string
	}{
		{ErrPlayerNotFound, "Player not found. Please check the username."},
		{ErrServerError, "Server error. The analysis could not be completed."},
		{&StatusError{Code: 418}, "An unexpected error occurred (HTTP 418)"},
		{fmt.Errorf("wrap: %w", ErrInvalidUsername), "Please enter a valid username"},
		{errors.New("dial tcp: refused"), "The insights service is unavailable. Please try again."},
	}
	for _, tc := range cases {
		if got := Message(cat, tc.err); got != tc.want {
			t.Fatalf("Message(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	srv := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, sampleProfile) })
	p, err := NewClient(srv.URL).Fetch(context.Background(), "magnus")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	s := Summarize(p)
	if s.Outcomes[0].Count != 6 || s.Outcomes[1].Count != 4 || s.Outcomes[2].Count != 2 {
		t.Fatalf("outcomes = %+v", s.Outcomes)
	}
	if len(s.Shapes) != 2 || s.Shapes[0].Name != "Long Games" {
		t.Fatalf("shapes = %+v", s.Shapes)
	}
	if len(s.Phases) != 3 || s.Phases[0].Name != "Opening" || s.Phases[2].Name != "Endgame" {
		t.Fatalf("phases = %+v", s.Phases)
	}
	if math.Abs(s.Phases[2].BlunderRate-4) > 1e-9 {
		t.Fatalf("endgame blunder rate = %v", s.Phases[2].BlunderRate)
	}
}

func TestOpeningTokens(t *testing.T) {
	got := OpeningTokens("1. e4 e5 2. Nf3 Nc6 3...Bc4 *")
	want := []string{"e4", "e5", "Nf3", "Nc6", "Bc4"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokens = %v", got)
		}
	}
	if len(OpeningTokens("")) != 0 {
		t.Fatalf("empty pgn should give no tokens")
	}
}

package insights

import (
	"regexp"
	"sort"
	"strings"
)

// Profile is the precomputed insights document served by the statistics backend.
type Profile struct {
	GameResults         GameResults           `json:"game_results"`
	GameShapes          map[string]float64    `json:"game_shapes,omitempty"`
	GamePhases          map[string]PhaseStats `json:"game_phases,omitempty"`
	OpeningRepertoire   OpeningRepertoire     `json:"opening_repertoire"`
	PerformanceVsRating []RatingBracket       `json:"performance_vs_rating,omitempty"`
	Psychology          *PsychologicalProfile `json:"psychological_profile_and_recommendations,omitempty"`
}

type GameResults struct {
	TotalGames int            `json:"total_games"`
	WinRate    float64        `json:"win_rate"`
	WinsBy     map[string]int `json:"wins_by,omitempty"`
	LossesBy   map[string]int `json:"losses_by,omitempty"`
	DrawsBy    map[string]int `json:"draws_by,omitempty"`
}

type PhaseStats struct {
	ACPL        float64 `json:"acpl"`
	BlunderRate float64 `json:"blunder_rate"`
}

type OpeningRepertoire struct {
	White []Opening `json:"white"`
	Black []Opening `json:"black"`
}

type Opening struct {
	Name            string  `json:"name"`
	ECO             string  `json:"eco"`
	Games           int     `json:"games"`
	WinRate         float64 `json:"win_rate"`
	InitialMovesPGN string  `json:"initial_moves_pgn,omitempty"`
}

type RatingBracket struct {
	Bracket string  `json:"bracket"`
	ACPL    float64 `json:"acpl"`
	WinRate float64 `json:"win_rate"`
}

type PsychologicalProfile struct {
	Comment               string          `json:"comment,omitempty"`
	Tendencies            string          `json:"opponent_psychological_tendencies,omitempty"`
	FearAndOverconfidence string          `json:"pattern_recognition_fear_and_overconfidence,omitempty"`
	BlunderPatterns       string          `json:"blunder_patterns_under_pressure,omitempty"`
	MoveBasedProfiling    string          `json:"specific_move_based_psychological_profiling,omitempty"`
	Recommendation        *Recommendation `json:"recommendation_how_to_play_against,omitempty"`
}

type Recommendation struct {
	OverallStrategy string `json:"overall_strategy,omitempty"`
	AsWhite         string `json:"as_white,omitempty"`
	AsBlack         string `json:"as_black,omitempty"`
}

// Summary holds the chart rows the dashboard draws from a profile.
type Summary struct {
	Outcomes []OutcomeRow `json:"outcomes"`
	Shapes   []ShapeRow   `json:"shapes"`
	Phases   []PhaseRow   `json:"phases"`
}

type OutcomeRow struct {
	Result string `json:"result"`
	Count  int    `json:"count"`
}

type ShapeRow struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type PhaseRow struct {
	Name        string  `json:"name"`
	ACPL        float64 `json:"acpl"`
	BlunderRate float64 `json:"blunder_rate"` // percent
}

var phaseOrder = map[string]int{"opening": 0, "middlegame": 1, "endgame": 2}

// Summarize sums the already-aggregated counters of p into chart rows.
func Summarize(p *Profile) Summary {
	var s Summary
	if p == nil {
		return s
	}
	s.Outcomes = []OutcomeRow{
		{Result: "Wins", Count: sumCounts(p.GameResults.WinsBy)},
		{Result: "Losses", Count: sumCounts(p.GameResults.LossesBy)},
		{Result: "Draws", Count: sumCounts(p.GameResults.DrawsBy)},
	}

	for _, key := range sortedKeys(p.GameShapes) {
		s.Shapes = append(s.Shapes, ShapeRow{Name: shapeLabel(key), Value: p.GameShapes[key]})
	}

	phases := sortedKeys(p.GamePhases)
	sort.SliceStable(phases, func(i, j int) bool {
		oi, iok := phaseOrder[phases[i]]
		oj, jok := phaseOrder[phases[j]]
		if iok && jok {
			return oi < oj
		}
		return iok && !jok
	})
	for _, name := range phases {
		st := p.GamePhases[name]
		s.Phases = append(s.Phases, PhaseRow{
			Name:        capitalize(name),
			ACPL:        st.ACPL,
			BlunderRate: st.BlunderRate * 100,
		})
	}
	return s
}

func sumCounts(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shapeLabel turns "long_games_pct" into "Long Games".
func shapeLabel(key string) string {
	key = strings.TrimSuffix(key, "_pct")
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var moveNumberRe = regexp.MustCompile(`\d+\.+`)

// OpeningTokens turns "1. e4 e5 2. Nf3 *" into the SAN tokens e4, e5, Nf3.
func OpeningTokens(pgn string) []string {
	cleaned := moveNumberRe.ReplaceAllString(pgn, " ")
	var out []string
	for _, tok := range strings.Fields(cleaned) {
		if strings.Contains(tok, "*") {
			continue
		}
		out = append(out, tok)
	}
	return out
}

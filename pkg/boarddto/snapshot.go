package boarddto

// Board states reported in Snapshot.State.
const (
	StateIdle           = "idle"
	StateLive           = "live"
	StateBrowsing       = "browsing"
	StateOpeningReplay  = "opening_replay"
	StateEngineThinking = "engine_thinking"
)

// Snapshot is everything the browser needs to draw one analysis board.
type Snapshot struct {
	SessionID   string       `json:"session_id,omitempty"`
	FEN         string       `json:"fen"`
	Turn        string       `json:"turn"`
	Status      string       `json:"status"`
	InCheck     bool         `json:"in_check"`
	GameOver    bool         `json:"game_over"`
	Moves       []MoveView   `json:"moves"`
	Cursor      int          `json:"cursor"`
	State       string       `json:"state"`
	AutoPlay    bool         `json:"auto_play"`
	EngineColor string       `json:"engine_color,omitempty"`
	CanDrag     bool         `json:"can_drag"`
	Evaluation  *Evaluation  `json:"evaluation,omitempty"`
	Depth       int          `json:"depth"`
	BestLine    BestLine     `json:"best_line"`
	BestMove    *Arrow       `json:"best_move,omitempty"`
	LastMove    *Arrow       `json:"last_move,omitempty"`
	Commentary  *Commentary  `json:"commentary,omitempty"`
	Phase       string       `json:"phase"`
	Opening     *OpeningName `json:"opening,omitempty"`
	Notice      string       `json:"notice,omitempty"`
	Replay      *ReplayState `json:"replay,omitempty"`
}

type MoveView struct {
	Ply   int      `json:"ply"`
	SAN   string   `json:"san"`
	UCI   string   `json:"uci"`
	Color string   `json:"color"`
	Flags []string `json:"flags,omitempty"`
}

// Evaluation is White-perspective. Percentage is White's share of the bar.
type Evaluation struct {
	Pawns       float64 `json:"pawns"`
	Mate        *int    `json:"mate,omitempty"`
	Text        string  `json:"text"`
	Description string  `json:"description"`
	Percentage  float64 `json:"percentage"`
}

type BestLine struct {
	Moves     []string `json:"moves"`
	Truncated bool     `json:"truncated"`
}

type Arrow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Commentary struct {
	Quality     string  `json:"quality,omitempty"`
	Loss        float64 `json:"loss"`
	Explanation string  `json:"explanation"`
	Suggestion  string  `json:"suggestion,omitempty"`
}

type OpeningName struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

type ReplayState struct {
	Total int `json:"total"`
	Next  int `json:"next"`
}

// MoveOutcome answers a move request. A rejected move is a normal outcome, not a transport error.
type MoveOutcome struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	Move     *MoveView `json:"move,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

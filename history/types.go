package history

// GameSummary is one archived game in the leaderboard.
type GameSummary struct {
	GameID     string `json:"game_id"`
	Score      int32  `json:"score"`
	MaxTick    int32  `json:"max_tick"`
	TickCount  int32  `json:"tick_count"`
	MaxLength  int32  `json:"max_length"`
	Finished   bool   `json:"finished"`
	StartedNs  int64  `json:"started_ns"`
	Source     string `json:"source"`
	SourceFile string `json:"file"`
}

// GamesResponse is the response for the /api/games endpoint.
type GamesResponse struct {
	Total int64         `json:"total"`
	Games []GameSummary `json:"games"`
}

type Point struct {
	X int32 `json:"x"`
	Z int32 `json:"z"`
}

// Tick is one archived snapshot, as served for replays.
type Tick struct {
	Tick    int32   `json:"tick"`
	Score   int32   `json:"score"`
	State   string  `json:"state"`
	Head    Point   `json:"head"`
	Facing  Point   `json:"facing"`
	Body    []Point `json:"body"`
	Food    *Point  `json:"food,omitempty"`
	Special *Point  `json:"special,omitempty"`
	// SpecialRemaining is the countdown shown above the special item, in seconds.
	SpecialRemaining float32 `json:"special_remaining,omitempty"`
}

// TicksResponse is the response for /api/games/{id}.
type TicksResponse struct {
	GameID string `json:"game_id"`
	Ticks  []Tick `json:"ticks"`
}

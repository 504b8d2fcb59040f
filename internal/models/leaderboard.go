package models

import "time"

// LeaderboardMode selects which derived balance the leaderboard ranks.
type LeaderboardMode string

const (
	LeaderboardCurrent LeaderboardMode = "current"
	LeaderboardTotal   LeaderboardMode = "total"
)

// UserPointsAggregate is one user's windowed ledger fold, as read from
// the store. Users with no receipts in the window still produce a row
// with zero sums.
type UserPointsAggregate struct {
	UserID        string `db:"user_id" json:"user_id"`
	Username      string `db:"username" json:"username"`
	PointsTotal   int    `db:"points_total" json:"points_total"`
	SpentPositive int    `db:"spent_positive" json:"spent_positive"`
}

// LeaderboardRow is a ranked leaderboard entry.
type LeaderboardRow struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Metric   int    `json:"metric"`
	Rank     int    `json:"rank"`
}

// LeaderboardWindow bounds the receipts considered for ranking,
// half-open: [Start, End).
type LeaderboardWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

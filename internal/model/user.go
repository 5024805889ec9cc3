// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered player account.
//
// ID is an internal string ID (xid) generated by the repository on insert.
// Username is the login name and is unique across all accounts. Wins is the
// long-term tally, incremented whenever the user wins a game, including
// wins by forfeit.
//
// PasswordHash is a bcrypt hash and must never reach a client, hence the
// `json:"-"` tag.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	Wins         int       `json:"wins"      db:"wins"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// PublicUser is the subset of User safe to show to other players:
// search results, the matchmaking pool, friend lists.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ScoreboardEntry is one row of the win-count leaderboard.
type ScoreboardEntry struct {
	Username string `json:"username"`
	Wins     int    `json:"wins"`
}

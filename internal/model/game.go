package model

import "time"

// GameStatus is the lifecycle state of a game session.
//
// Transitions are monotonic: Pending → Active → one of the three terminal
// states. A terminal status never changes again. The string values double as
// the wire format sent to clients and the column value stored in sqlite.
type GameStatus string

const (
	StatusPending       GameStatus = "pending"
	StatusActive        GameStatus = "active"
	StatusFinishedXWins GameStatus = "finished_x_wins"
	StatusFinishedOWins GameStatus = "finished_o_wins"
	StatusDraw          GameStatus = "draw"
)

// Terminal reports whether the status is one of the finished states.
func (s GameStatus) Terminal() bool {
	return s == StatusFinishedXWins || s == StatusFinishedOWins || s == StatusDraw
}

// Board cell marks. The board is a 9-character string, one character per
// cell, row-major: cells 0-2 are the top row.
const (
	MarkX     byte = 'X'
	MarkO     byte = 'O'
	MarkEmpty byte = ' '
)

// EmptyBoard is the board value of a freshly created game.
const EmptyBoard = "         "

// Game is the durable record of one match. The sqlite repository is the
// authority for this struct; the coordinator loads it, mutates a copy through
// the game package, and persists the result before treating the transition as
// committed.
//
// PlayerOID is empty while the game is pending and waiting for a second
// player. TurnID holds the user whose move is next and is cleared exactly
// when the game leaves the active state. WinnerID is set only in the two
// finished_*_wins states.
type Game struct {
	ID        string     `json:"id"        db:"id"`
	RoomID    string     `json:"roomId"    db:"room_id"`
	PlayerXID string     `json:"playerXId" db:"player_x_id"`
	PlayerOID string     `json:"playerOId" db:"player_o_id"`
	Board     string     `json:"-"         db:"board"`
	TurnID    string     `json:"turnId"    db:"turn_id"`
	Status    GameStatus `json:"status"    db:"status"`
	Public    bool       `json:"public"    db:"public"`
	WinnerID  string     `json:"winnerId"  db:"winner_id"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// Seated reports whether userID occupies either seat of the game.
func (g *Game) Seated(userID string) bool {
	return userID != "" && (userID == g.PlayerXID || userID == g.PlayerOID)
}

// Opponent returns the seat opposite to userID, or "" if userID is not
// seated or the other seat is empty.
func (g *Game) Opponent(userID string) string {
	switch userID {
	case g.PlayerXID:
		return g.PlayerOID
	case g.PlayerOID:
		return g.PlayerXID
	}
	return ""
}

// Mark returns the board mark for userID's seat, or MarkEmpty if unseated.
func (g *Game) Mark(userID string) byte {
	switch userID {
	case g.PlayerXID:
		return MarkX
	case g.PlayerOID:
		return MarkO
	}
	return MarkEmpty
}

// GameView is the client-facing shape of a Game. It carries usernames
// resolved from the account store and the board as an array, which is what
// the frontend renders directly.
type GameView struct {
	ID           string     `json:"id"`
	RoomID       string     `json:"roomId"`
	PlayerXID    string     `json:"playerXId"`
	PlayerXName  string     `json:"playerXUsername,omitempty"`
	PlayerOID    string     `json:"playerOId,omitempty"`
	PlayerOName  string     `json:"playerOUsername,omitempty"`
	Board        []string   `json:"board"`
	TurnID       string     `json:"turnId,omitempty"`
	Status       GameStatus `json:"status"`
	Public       bool       `json:"public"`
	WinnerID     string     `json:"winnerId,omitempty"`
	YourSymbol   string     `json:"yourSymbol,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	WinnerName   string     `json:"winnerUsername,omitempty"`
	TurnUsername string     `json:"turnUsername,omitempty"`
}

// BoardCells splits the 9-character board string into the per-cell slice
// used by GameView.
func BoardCells(board string) []string {
	cells := make([]string, 0, len(board))
	for i := 0; i < len(board); i++ {
		if board[i] == MarkEmpty {
			cells = append(cells, "")
		} else {
			cells = append(cells, string(board[i]))
		}
	}
	return cells
}

// Package game implements the tic-tac-toe state machine.
//
// Everything here is pure: functions take a *model.Game, validate the
// requested transition, and mutate the struct in memory. Persistence and
// broadcasting are the caller's problem; the coordinator loads a game,
// applies a transition, persists it, and only then emits events. That split
// keeps the rules testable without a database or a socket in sight.
package game

import (
	"fmt"
	"strings"

	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/model"
)

// Transition errors. All wrap apperror sentinels so the command boundary can
// map them to HTTP codes or websocket error events without knowing the
// specific rule that fired.
var (
	ErrInvalidChallenge = apperror.ValidationFailed("opponent", "cannot play against yourself")
	ErrNotJoinable      = apperror.InvalidState("room is not available for joining")
	ErrGameNotActive    = apperror.InvalidState("game is not active")
	ErrNotYourTurn      = apperror.InvalidState("not your turn")
	ErrInvalidCell      = apperror.ValidationFailed("index", "invalid move")
)

// winLines are the eight triples that decide a game: three rows, three
// columns, two diagonals.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Outcome describes what a successful ApplyMove did to the game.
type Outcome struct {
	WinnerID string // set when the move completed a line
	Draw     bool   // set when the board filled with no line
	Over     bool   // WinnerID != "" || Draw
}

// NewPending creates a game waiting for a second player. The creator is
// seated as X and moves first once someone joins.
func NewPending(creatorID string, public bool) *model.Game {
	return &model.Game{
		PlayerXID: creatorID,
		Board:     model.EmptyBoard,
		TurnID:    creatorID,
		Status:    model.StatusPending,
		Public:    public,
	}
}

// NewDirect creates a game from a direct challenge: both seats filled, active
// immediately, challenger is X and moves first. Direct games are private
// and never show up in the public pending list.
func NewDirect(challengerID, opponentID string) (*model.Game, error) {
	if challengerID == opponentID {
		return nil, ErrInvalidChallenge
	}
	return &model.Game{
		PlayerXID: challengerID,
		PlayerOID: opponentID,
		Board:     model.EmptyBoard,
		TurnID:    challengerID,
		Status:    model.StatusActive,
		Public:    false,
	}, nil
}

// Join seats joinerID as player O and activates the game. Fails with
// ErrNotJoinable unless the game is pending, the O seat is empty, and the
// joiner is not the creator. The turn stays with the creator.
func Join(g *model.Game, joinerID string) error {
	if g.Status != model.StatusPending || g.PlayerOID != "" || joinerID == g.PlayerXID {
		return ErrNotJoinable
	}
	g.PlayerOID = joinerID
	g.Status = model.StatusActive
	return nil
}

// ApplyMove writes actorID's mark into cell and advances the game. Exactly
// one outcome path runs per successful call: the move wins, the move fills
// the board for a draw, or the turn flips to the other seat.
func ApplyMove(g *model.Game, actorID string, cell int) (Outcome, error) {
	if g.Status != model.StatusActive {
		return Outcome{}, ErrGameNotActive
	}
	if actorID != g.TurnID {
		return Outcome{}, ErrNotYourTurn
	}
	if cell < 0 || cell >= 9 || g.Board[cell] != model.MarkEmpty {
		return Outcome{}, ErrInvalidCell
	}

	mark := g.Mark(actorID)
	board := []byte(g.Board)
	board[cell] = mark
	g.Board = string(board)

	if winner := winnerMark(g.Board); winner != model.MarkEmpty {
		if winner != mark {
			// Cells are write-once and turns alternate, so only the mark
			// just placed can complete a line.
			panic(fmt.Sprintf("game: win detected for %q after %q moved", winner, mark))
		}
		finish(g, actorID)
		return Outcome{WinnerID: actorID, Over: true}, nil
	}

	if !strings.ContainsRune(g.Board, rune(model.MarkEmpty)) {
		g.Status = model.StatusDraw
		g.TurnID = ""
		return Outcome{Draw: true, Over: true}, nil
	}

	g.TurnID = g.Opponent(actorID)
	return Outcome{}, nil
}

// Forfeit ends an active game because leaverID's connection dropped; the
// other seat wins. It is a no-op (ok=false) when the game is not active or
// the leaver is not seated, so the disconnect path can call it blindly for
// every game a user touches.
func Forfeit(g *model.Game, leaverID string) (winnerID string, ok bool) {
	if g.Status != model.StatusActive || !g.Seated(leaverID) {
		return "", false
	}
	winnerID = g.Opponent(leaverID)
	finish(g, winnerID)
	return winnerID, true
}

// finish moves the game into the terminal state for winnerID's seat.
func finish(g *model.Game, winnerID string) {
	if winnerID == g.PlayerXID {
		g.Status = model.StatusFinishedXWins
	} else {
		g.Status = model.StatusFinishedOWins
	}
	g.WinnerID = winnerID
	g.TurnID = ""
}

// winnerMark scans the eight lines and returns the mark holding a completed
// one, or MarkEmpty when no line is complete.
func winnerMark(board string) byte {
	for _, line := range winLines {
		a, b, c := line[0], line[1], line[2]
		if board[a] != model.MarkEmpty && board[a] == board[b] && board[b] == board[c] {
			return board[a]
		}
	}
	return model.MarkEmpty
}

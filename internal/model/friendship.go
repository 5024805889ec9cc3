package model

import "time"

// FriendshipStatus tracks the lifecycle of a friend request.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipDeclined FriendshipStatus = "declined"
)

// Friendship is a directed friend-request record. RequesterID sent the
// request, AddresseeID received it. A pair of users has at most one row
// between them in either direction (enforced by the repository), so an
// accepted row represents the friendship for both sides.
type Friendship struct {
	ID          string           `json:"id"          db:"id"`
	RequesterID string           `json:"requesterId" db:"requester_id"`
	AddresseeID string           `json:"addresseeId" db:"addressee_id"`
	Status      FriendshipStatus `json:"status"      db:"status"`
	CreatedAt   time.Time        `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time        `json:"updatedAt"   db:"updated_at"`
}

// Friend is one entry of a user's accepted-friends list. Online is filled in
// by the presence layer, not the repository.
type Friend struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// FriendRequest is a pending request as shown to its addressee.
type FriendRequest struct {
	RequestID         string `json:"requestId"`
	RequesterID       string `json:"requesterId"`
	RequesterUsername string `json:"requesterUsername"`
}

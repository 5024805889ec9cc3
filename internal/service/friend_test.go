package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/model"
)

type stubPresence map[string]bool

func (s stubPresence) IsOnline(userID string) bool { return s[userID] }

func newTestFriendService(t *testing.T) (*FriendService, *mockUserRepo) {
	t.Helper()
	users := newMockUserRepo()
	friendships := newMockFriendshipRepo(users)
	return NewFriendService(friendships, users, testLogger()), users
}

func sendAndAccept(t *testing.T, svc *FriendService, requesterID, addresseeID string) {
	t.Helper()
	f, _, err := svc.SendRequest(context.Background(), requesterID, addresseeID)
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if _, err := svc.Respond(context.Background(), addresseeID, f.ID, true); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
}

func TestSendRequest_CreatesPending(t *testing.T) {
	svc, users := newTestFriendService(t)
	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")

	f, requester, err := svc.SendRequest(context.Background(), alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if f.Status != model.FriendshipPending {
		t.Errorf("Status = %s, want pending", f.Status)
	}
	if requester.Username != "alice" {
		t.Errorf("requester = %q, want alice", requester.Username)
	}

	reqs, err := svc.PendingRequests(context.Background(), bob.ID)
	if err != nil {
		t.Fatalf("PendingRequests() error = %v", err)
	}
	if len(reqs) != 1 || reqs[0].RequesterUsername != "alice" {
		t.Errorf("PendingRequests() = %+v, want one request from alice", reqs)
	}
}

func TestSendRequest_Rejections(t *testing.T) {
	svc, users := newTestFriendService(t)
	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")
	carol := seedUser(t, users, "carol")

	// alice and bob are already friends; carol has a request pending to alice.
	sendAndAccept(t, svc, alice.ID, bob.ID)
	if _, _, err := svc.SendRequest(context.Background(), carol.ID, alice.ID); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	tests := []struct {
		name        string
		requesterID string
		addresseeID string
		sentinel    error
	}{
		{"self request", alice.ID, alice.ID, apperror.ErrValidation},
		{"unknown addressee", alice.ID, "nobody", apperror.ErrNotFound},
		{"already friends", alice.ID, bob.ID, apperror.ErrConflict},
		{"already friends reversed", bob.ID, alice.ID, apperror.ErrConflict},
		{"pending duplicate", carol.ID, alice.ID, apperror.ErrConflict},
		{"pending reversed", alice.ID, carol.ID, apperror.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.SendRequest(context.Background(), tt.requesterID, tt.addresseeID)
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("SendRequest() error = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestSendRequest_ReplacesDeclined(t *testing.T) {
	svc, users := newTestFriendService(t)
	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")

	f, _, err := svc.SendRequest(context.Background(), alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if _, err := svc.Respond(context.Background(), bob.ID, f.ID, false); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	// A decline is not permanent: either side can try again.
	f2, _, err := svc.SendRequest(context.Background(), bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("SendRequest() after decline error = %v", err)
	}
	if f2.ID == f.ID {
		t.Error("declined request was reused instead of replaced")
	}
	if f2.Status != model.FriendshipPending {
		t.Errorf("Status = %s, want pending", f2.Status)
	}
}

func TestRespond_AcceptMakesFriendsBothWays(t *testing.T) {
	svc, users := newTestFriendService(t)
	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")

	sendAndAccept(t, svc, alice.ID, bob.ID)

	for _, tc := range []struct {
		userID string
		friend string
	}{
		{alice.ID, "bob"},
		{bob.ID, "alice"},
	} {
		friends, err := svc.ListFriends(context.Background(), tc.userID)
		if err != nil {
			t.Fatalf("ListFriends() error = %v", err)
		}
		if len(friends) != 1 || friends[0].Username != tc.friend {
			t.Errorf("ListFriends(%s) = %+v, want [%s]", tc.userID, friends, tc.friend)
		}
	}
}

func TestRespond_Rejections(t *testing.T) {
	svc, users := newTestFriendService(t)
	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")
	carol := seedUser(t, users, "carol")

	f, _, err := svc.SendRequest(context.Background(), alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	t.Run("unknown request", func(t *testing.T) {
		_, err := svc.Respond(context.Background(), bob.ID, "missing", true)
		if !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("Respond() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("only addressee may respond", func(t *testing.T) {
		for _, id := range []string{alice.ID, carol.ID} {
			_, err := svc.Respond(context.Background(), id, f.ID, true)
			if !errors.Is(err, apperror.ErrForbidden) {
				t.Errorf("Respond(%s) error = %v, want ErrForbidden", id, err)
			}
		}
	})

	t.Run("already answered", func(t *testing.T) {
		if _, err := svc.Respond(context.Background(), bob.ID, f.ID, true); err != nil {
			t.Fatalf("Respond() error = %v", err)
		}
		_, err := svc.Respond(context.Background(), bob.ID, f.ID, false)
		if !errors.Is(err, apperror.ErrConflict) {
			t.Errorf("second Respond() error = %v, want ErrConflict", err)
		}
	})
}

func TestListFriends_OnlineAnnotation(t *testing.T) {
	svc, users := newTestFriendService(t)
	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")
	carol := seedUser(t, users, "carol")

	sendAndAccept(t, svc, alice.ID, bob.ID)
	sendAndAccept(t, svc, carol.ID, alice.ID)

	svc.SetPresence(stubPresence{bob.ID: true})

	friends, err := svc.ListFriends(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("ListFriends() error = %v", err)
	}
	if len(friends) != 2 {
		t.Fatalf("ListFriends() returned %d friends, want 2", len(friends))
	}
	for _, f := range friends {
		wantOnline := f.ID == bob.ID
		if f.Online != wantOnline {
			t.Errorf("%s online = %v, want %v", f.Username, f.Online, wantOnline)
		}
	}
}

func TestSearchUsers(t *testing.T) {
	svc, users := newTestFriendService(t)
	alice := seedUser(t, users, "alice")
	seedUser(t, users, "alicia")
	seedUser(t, users, "bob")

	t.Run("excludes caller", func(t *testing.T) {
		found, err := svc.SearchUsers(context.Background(), "ali", alice.ID)
		if err != nil {
			t.Fatalf("SearchUsers() error = %v", err)
		}
		if len(found) != 1 || found[0].Username != "alicia" {
			t.Errorf("SearchUsers() = %+v, want [alicia]", found)
		}
	})

	t.Run("short query returns nothing", func(t *testing.T) {
		found, err := svc.SearchUsers(context.Background(), "a", alice.ID)
		if err != nil {
			t.Fatalf("SearchUsers() error = %v", err)
		}
		if len(found) != 0 {
			t.Errorf("SearchUsers() = %+v, want empty", found)
		}
	})

	t.Run("caps results at ten", func(t *testing.T) {
		for i := 0; i < 12; i++ {
			seedUser(t, users, fmt.Sprintf("player%02d", i))
		}
		found, err := svc.SearchUsers(context.Background(), "player", alice.ID)
		if err != nil {
			t.Fatalf("SearchUsers() error = %v", err)
		}
		if len(found) != 10 {
			t.Errorf("SearchUsers() returned %d users, want 10", len(found))
		}
	})
}

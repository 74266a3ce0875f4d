package lobby

import (
	"testing"
	"time"

	"spellcast/internal/identity"
)

func mkQueue() chan any { return make(chan any, 8) }

func TestGetOrCreateChannelLobbyIsIdempotent(t *testing.T) {
	m := NewManager(false)
	a := m.GetOrCreateChannelLobby("123", "g1")
	b := m.GetOrCreateChannelLobby("123", "g1")
	if a != b {
		t.Fatalf("expected idempotent lobby id, got %q and %q", a, b)
	}
	if a != "channel:123" {
		t.Fatalf("unexpected lobby id %q", a)
	}
}

func TestJoinElectsFirstJoinerAsHost(t *testing.T) {
	m := NewManager(false)
	lobbyID := m.GetOrCreateChannelLobby("1", "")

	alice := identity.User{UserID: 1, Username: "alice"}
	bob := identity.User{UserID: 2, Username: "bob"}

	r1, err := m.Join(lobbyID, alice, mkQueue())
	if err != nil {
		t.Fatal(err)
	}
	if !r1.IsHost {
		t.Fatal("first joiner should be host")
	}

	r2, err := m.Join(lobbyID, bob, mkQueue())
	if err != nil {
		t.Fatal(err)
	}
	if r2.IsHost {
		t.Fatal("second joiner should not be host")
	}
}

func TestJoinReconnectDoesNotReassignHost(t *testing.T) {
	m := NewManager(false)
	lobbyID := m.GetOrCreateChannelLobby("1", "")

	alice := identity.User{UserID: 1, Username: "alice"}
	bob := identity.User{UserID: 2, Username: "bob"}

	m.Join(lobbyID, alice, mkQueue())
	m.Join(lobbyID, bob, mkQueue())
	m.MarkAwaitingReconnect(lobbyID, 1)

	r, err := m.Join(lobbyID, alice, mkQueue())
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsHost {
		t.Fatal("reconnecting original host should remain host")
	}
}

func TestJoinUnknownLobby(t *testing.T) {
	m := NewManager(false)
	_, err := m.Join("channel:missing", identity.User{UserID: 1}, mkQueue())
	if err != ErrLobbyNotFound {
		t.Fatalf("err = %v, want ErrLobbyNotFound", err)
	}
}

func TestLeaveSetsEmptySince(t *testing.T) {
	m := NewManager(false)
	lobbyID := m.GetOrCreateChannelLobby("1", "")
	m.Join(lobbyID, identity.User{UserID: 1, Username: "alice"}, mkQueue())

	m.Leave(lobbyID, 1)

	l, _ := m.Get(lobbyID)
	l.mu.RLock()
	empty := l.emptySince
	l.mu.RUnlock()
	if empty == nil {
		t.Fatal("expected emptySince to be set after last player leaves")
	}
}

func TestMarkAwaitingReconnectDoesNotBroadcastButStaysVisible(t *testing.T) {
	m := NewManager(false)
	lobbyID := m.GetOrCreateChannelLobby("1", "")
	q := mkQueue()
	m.Join(lobbyID, identity.User{UserID: 1, Username: "alice"}, q)
	// Drain the join broadcast.
	<-q

	m.MarkAwaitingReconnect(lobbyID, 1)

	select {
	case <-q:
		t.Fatal("MarkAwaitingReconnect must not broadcast")
	default:
	}

	players := visiblePlayersForTest(t, m, lobbyID)
	if len(players) != 1 {
		t.Fatalf("expected player to remain visible, got %d", len(players))
	}
}

func visiblePlayersForTest(t *testing.T, m *Manager, lobbyID string) []protocolPlayerView {
	t.Helper()
	l, ok := m.Get(lobbyID)
	if !ok {
		t.Fatal("lobby missing")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]protocolPlayerView, 0, len(l.players))
	for _, p := range l.players {
		out = append(out, protocolPlayerView{UserID: p.UserID, State: p.ConnectionState})
	}
	return out
}

type protocolPlayerView struct {
	UserID int64
	State  ConnectionState
}

func TestTryStartGameIsExclusive(t *testing.T) {
	m := NewManager(false)
	lobbyID := m.GetOrCreateChannelLobby("1", "")

	if !m.TryStartGame(lobbyID) {
		t.Fatal("expected first TryStartGame to succeed")
	}
	if m.TryStartGame(lobbyID) {
		t.Fatal("expected concurrent TryStartGame to fail while one is in flight")
	}

	m.SetActiveGame(lobbyID, "game-1")
	if m.TryStartGame(lobbyID) {
		t.Fatal("expected TryStartGame to fail while a game is active")
	}
}

func TestSweepRemovesExpiredPlayerAndReapsEmptyLobby(t *testing.T) {
	m := NewManager(false)
	lobbyID := m.GetOrCreateChannelLobby("1", "")
	m.Join(lobbyID, identity.User{UserID: 1, Username: "alice"}, mkQueue())
	m.MarkAwaitingReconnect(lobbyID, 1)

	// Past the 60s player grace but inside the 120s lobby grace, which has
	// been running since MarkAwaitingReconnect left no one connected.
	future := time.Now().Add(90 * time.Second)
	m.Sweep(future, 60*time.Second, 120*time.Second)

	l, ok := m.Get(lobbyID)
	if !ok {
		t.Fatal("lobby should still exist immediately after player sweep")
	}
	l.mu.RLock()
	n := len(l.players)
	l.mu.RUnlock()
	if n != 0 {
		t.Fatalf("expected expired player removed, got %d remaining", n)
	}

	if _, ok := m.Get(lobbyID); !ok {
		t.Fatal("lobby should survive until empty-since exceeds the lobby grace")
	}

	// A second sweep, further in the future, reaps the now-empty lobby.
	m.Sweep(future.Add(3*time.Hour), 60*time.Second, 120*time.Second)
	if _, ok := m.Get(lobbyID); ok {
		t.Fatal("expected empty lobby to be reaped")
	}
}

func TestCreateCustomLobbyCodesAreDistinctAndResolvable(t *testing.T) {
	m := NewManager(false)
	id1, code1 := m.CreateCustomLobby()
	id2, code2 := m.CreateCustomLobby()

	if code1 == code2 {
		t.Fatal("expected distinct codes (collision probability is negligible for this test)")
	}

	found1, ok := m.FindLobbyByCode(code1)
	if !ok || found1 != id1 {
		t.Fatal("code1 should resolve to id1")
	}
	found2, ok := m.FindLobbyByCode(code2)
	if !ok || found2 != id2 {
		t.Fatal("code2 should resolve to id2")
	}
}

package sqlstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"spellcast/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// A named in-memory DSN per test keeps tests from sharing a schema;
	// cache=shared lets every pooled connection see the same database,
	// whereas ":memory:" alone opens a distinct database per connection.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	s, err := New(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateGameSessionAndLoadActiveSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	gameID, err := s.CreateGameSession(ctx, "channel:1", 100, 5)
	require.NoError(t, err)
	require.NotEmpty(t, gameID)

	require.NoError(t, s.AddGamePlayersBatch(ctx, gameID, []store.PlayerTurnOrder{
		{UserID: 100, Username: "alice", TurnOrder: 0},
		{UserID: 200, Username: "bob", TurnOrder: 1},
	}))

	grid, err := json.Marshal(map[string]string{"stub": "grid"})
	require.NoError(t, err)
	require.NoError(t, s.SaveGrid(ctx, gameID, grid))
	require.NoError(t, s.SetGameState(ctx, gameID, store.StatusActive))

	snap, err := s.LoadActiveSessionForLobby(ctx, "channel:1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, gameID, snap.GameID)
	require.Equal(t, store.StatusActive, snap.Status)
	require.Len(t, snap.Players, 2)
	require.Equal(t, int64(100), snap.Players[0].UserID)
}

func TestLoadActiveSessionForLobbyNoneReturnsNilNil(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.LoadActiveSessionForLobby(context.Background(), "channel:missing")
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestUpdatePlayerScoreAndUsedWords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	gameID, err := s.CreateGameSession(ctx, "channel:2", 100, 5)
	require.NoError(t, err)
	require.NoError(t, s.AddGamePlayersBatch(ctx, gameID, []store.PlayerTurnOrder{
		{UserID: 100, Username: "alice", TurnOrder: 0},
	}))
	require.NoError(t, s.SaveGrid(ctx, gameID, []byte(`{}`)))
	require.NoError(t, s.SetGameState(ctx, gameID, store.StatusActive))

	require.NoError(t, s.UpdatePlayerScore(ctx, gameID, 100, 42))
	require.NoError(t, s.UpdateUsedWords(ctx, gameID, []string{"ART", "HE"}))

	snap, err := s.LoadActiveSessionForLobby(ctx, "channel:2")
	require.NoError(t, err)
	require.Equal(t, 42, snap.Players[0].Score)
	require.Equal(t, []string{"ART", "HE"}, snap.UsedWords)
}

func TestFinishGameWithAndWithoutWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	gameID, err := s.CreateGameSession(ctx, "channel:3", 100, 5)
	require.NoError(t, err)
	require.NoError(t, s.FinishGame(ctx, gameID, 100, true))

	gameID2, err := s.CreateGameSession(ctx, "channel:4", 100, 5)
	require.NoError(t, err)
	require.NoError(t, s.FinishGame(ctx, gameID2, 0, false))
}

func TestRecordMove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	gameID, err := s.CreateGameSession(ctx, "channel:5", 100, 5)
	require.NoError(t, err)
	require.NoError(t, s.AddGamePlayersBatch(ctx, gameID, []store.PlayerTurnOrder{
		{UserID: 100, Username: "alice", TurnOrder: 0},
	}))

	positions, err := json.Marshal([]struct{ Row, Col int }{{0, 0}, {0, 1}})
	require.NoError(t, err)
	require.NoError(t, s.RecordMove(ctx, gameID, 100, 1, "HE", 5, positions))
}

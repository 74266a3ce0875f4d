// Package session implements the game session engine: grid generation and
// turn handling for a single round-based word game, wired to the lobby
// manager and the persistence port (spec §4.6). Authoritative state lives
// in the store; Engine keeps a rebuildable in-memory view per lobby so a
// hot loop of submissions does not round-trip the database on every read.
package session

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"spellcast/internal/dictionary"
	"spellcast/internal/gridgen"
	"spellcast/internal/lobby"
	"spellcast/internal/protocol"
	"spellcast/internal/scorer"
	"spellcast/internal/store"
	"spellcast/internal/validator"
)

// Status mirrors GameSession.status from spec §3.
type Status string

const (
	StatusWaitingToStart Status = "waiting_to_start"
	StatusInProgress     Status = "in_progress"
	// StatusRoundEnding is defined for completeness but never entered; the
	// source has no intra-round pause state.
	StatusRoundEnding Status = "round_ending"
	StatusFinished    Status = "finished"
)

// ModeWordGrid is the only mode this engine plays.
const ModeWordGrid = "word_grid"

const (
	// MinPlayers and MaxPlayers bound StartGame per spec §4.6 step 3.
	MinPlayers = 2
	MaxPlayers = 6

	// DefaultTotalRounds is the round count a session is created with.
	DefaultTotalRounds = 5
)

// SessionPlayer is one seat in turn order.
type SessionPlayer struct {
	UserID    int64
	Username  string
	AvatarURL string
	Score     int
	TurnOrder int
}

// GameSession is the in-memory, rebuildable view of a session's
// authoritative (persisted) state.
type GameSession struct {
	GameID             string
	LobbyID            string
	Mode               string
	Grid               *gridgen.Grid
	Players            []SessionPlayer
	CurrentRound       int
	TotalRounds        int
	CurrentPlayerIndex int
	UsedWords          map[string]struct{}
	Status             Status
	CreatedAt          time.Time
}

// Engine runs StartGame, SubmitWord, and PassTurn against a lobby manager
// and a persistence port.
type Engine struct {
	lobbies *lobby.Manager
	db      store.Port
	dict    *dictionary.Dictionary
	verbose bool

	mu    sync.Mutex
	live  map[string]*GameSession
	locks map[string]*sync.Mutex
}

// NewEngine builds an Engine. verbose enables per-operation logging in the
// same style as lobby.Manager.
func NewEngine(lobbies *lobby.Manager, db store.Port, dict *dictionary.Dictionary, verbose bool) *Engine {
	return &Engine{
		lobbies: lobbies,
		db:      db,
		dict:    dict,
		verbose: verbose,
		live:    make(map[string]*GameSession),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.verbose {
		log.Printf("session: "+format, args...)
	}
}

// lockLobby serializes StartGame/SubmitWord/PassTurn for one lobby so a
// session's turn state never advances twice concurrently.
func (e *Engine) lockLobby(lobbyID string) func() {
	e.mu.Lock()
	l, ok := e.locks[lobbyID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[lobbyID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (e *Engine) getLive(lobbyID string) *GameSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live[lobbyID]
}

func (e *Engine) setLive(lobbyID string, s *GameSession) {
	e.mu.Lock()
	e.live[lobbyID] = s
	e.mu.Unlock()
}

func (e *Engine) clearLive(lobbyID string) {
	e.mu.Lock()
	delete(e.live, lobbyID)
	e.mu.Unlock()
}

func dbFail(cause error) error {
	return protocol.NewGameError(protocol.CodeDatabaseError, fmt.Sprintf("database error: %v", cause))
}

func serializationFail(cause error) error {
	return protocol.NewGameError(protocol.CodeSerializationError, fmt.Sprintf("serialization error: %v", cause))
}

// StartGame runs the host-initiated start protocol (spec §4.6). The
// returned GameStarted has already been broadcast to the lobby on success.
func (e *Engine) StartGame(ctx context.Context, lobbyID string, hostUserID int64) (*protocol.GameStarted, error) {
	unlock := e.lockLobby(lobbyID)
	defer unlock()

	if !e.lobbies.IsHost(lobbyID, hostUserID) {
		return nil, protocol.NewGameError(protocol.CodeNotHost, "only the lobby host can start the game")
	}
	if !e.lobbies.TryStartGame(lobbyID) {
		return nil, protocol.NewGameError(protocol.CodeGameInProgress, "a game is already starting or in progress")
	}

	fail := func(err error) error {
		e.lobbies.ClearGameStarting(lobbyID)
		return err
	}

	connected := e.lobbies.ConnectedPlayers(lobbyID)
	if len(connected) < MinPlayers {
		return nil, fail(protocol.NewGameError(protocol.CodeNotEnoughPlayers, "need at least 2 connected players to start"))
	}
	if len(connected) > MaxPlayers {
		return nil, fail(protocol.NewGameError(protocol.CodeTooManyPlayers, "a lobby holds at most 6 players"))
	}

	shuffled := shufflePlayers(connected)

	grid := gridgen.Generate()

	players := make([]SessionPlayer, len(shuffled))
	turnOrders := make([]store.PlayerTurnOrder, len(shuffled))
	for i, p := range shuffled {
		players[i] = SessionPlayer{UserID: p.UserID, Username: p.Username, AvatarURL: p.AvatarURL, TurnOrder: i}
		turnOrders[i] = store.PlayerTurnOrder{UserID: p.UserID, Username: p.Username, AvatarURL: p.AvatarURL, TurnOrder: i}
	}

	gameID, err := e.db.CreateGameSession(ctx, lobbyID, hostUserID, DefaultTotalRounds)
	if err != nil {
		e.logf("create_game_session lobby=%s: %v", lobbyID, err)
		return nil, fail(dbFail(err))
	}
	if err := e.db.AddGamePlayersBatch(ctx, gameID, turnOrders); err != nil {
		e.logf("add_game_players_batch game=%s: %v", gameID, err)
		return nil, fail(dbFail(err))
	}

	gridJSON, err := json.Marshal(grid)
	if err != nil {
		return nil, fail(serializationFail(err))
	}
	if err := e.db.SaveGrid(ctx, gameID, gridJSON); err != nil {
		e.logf("save_grid game=%s: %v", gameID, err)
		return nil, fail(dbFail(err))
	}

	// The first turn player is whoever landed at turn_order 0 in the
	// shuffle, which need not be the host; reconcile the persisted
	// current_user_id before marking the row Active.
	if err := e.db.UpdateRoundAndTurn(ctx, gameID, 1, players[0].UserID); err != nil {
		e.logf("update_round_and_turn game=%s: %v", gameID, err)
		return nil, fail(dbFail(err))
	}
	if err := e.db.SetGameState(ctx, gameID, store.StatusActive); err != nil {
		e.logf("set_game_state game=%s: %v", gameID, err)
		return nil, fail(dbFail(err))
	}

	sess := &GameSession{
		GameID:             gameID,
		LobbyID:            lobbyID,
		Mode:               ModeWordGrid,
		Grid:               grid,
		Players:            players,
		CurrentRound:       1,
		TotalRounds:        DefaultTotalRounds,
		CurrentPlayerIndex: 0,
		UsedWords:          make(map[string]struct{}),
		Status:             StatusInProgress,
		CreatedAt:          time.Now(),
	}
	e.setLive(lobbyID, sess)

	e.lobbies.SetActiveGame(lobbyID, gameID)
	e.lobbies.ClearGameStarting(lobbyID)

	turnSummaries := make([]protocol.TurnPlayerSummary, len(players))
	for i, p := range players {
		turnSummaries[i] = protocol.TurnPlayerSummary{
			UserID: p.UserID, Username: p.Username, AvatarURL: p.AvatarURL, TurnOrder: p.TurnOrder,
		}
	}
	started := protocol.GameStarted{
		Type:            protocol.TypeGameStarted,
		GameID:          gameID,
		Grid:            grid,
		Players:         turnSummaries,
		CurrentPlayerID: players[0].UserID,
		TotalRounds:     DefaultTotalRounds,
	}
	e.lobbies.Broadcast(lobbyID, started)
	return &started, nil
}

// shufflePlayers returns a uniformly-shuffled copy of players using
// crypto/rand, matching gridgen's avoidance of math/rand.
func shufflePlayers(players []lobby.Player) []lobby.Player {
	shuffled := make([]lobby.Player, len(players))
	copy(shuffled, players)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := cryptoIntn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}

func cryptoIntn(n int) int {
	if n <= 0 {
		return 0
	}
	max := big.NewInt(int64(n))
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		var b [8]byte
		rand.Read(b[:])
		return int(binary.BigEndian.Uint64(b[:]) % uint64(n))
	}
	return int(v.Int64())
}

// loadSession returns the live session for lobbyID, rebuilding it from the
// persistence layer if it is not already cached (spec §4.6's "load session
// (live or from persistence)").
func (e *Engine) loadSession(ctx context.Context, lobbyID string) (*GameSession, error) {
	if s := e.getLive(lobbyID); s != nil {
		return s, nil
	}

	gameID, ok := e.lobbies.ActiveGameID(lobbyID)
	if !ok || gameID == "" {
		return nil, protocol.NewGameError(protocol.CodeNoActiveGame, "lobby has no active game")
	}

	snap, err := e.db.LoadActiveSessionForLobby(ctx, lobbyID)
	if err != nil {
		return nil, dbFail(err)
	}
	if snap == nil {
		return nil, protocol.NewGameError(protocol.CodeGameNotFound, "active game not found")
	}

	sess, err := sessionFromSnapshot(lobbyID, snap)
	if err != nil {
		return nil, serializationFail(err)
	}
	e.setLive(lobbyID, sess)
	return sess, nil
}

func sessionFromSnapshot(lobbyID string, snap *store.SessionSnapshot) (*GameSession, error) {
	var grid gridgen.Grid
	if err := json.Unmarshal(snap.GridJSON, &grid); err != nil {
		return nil, fmt.Errorf("decoding grid: %w", err)
	}

	players := make([]SessionPlayer, len(snap.Players))
	for i, p := range snap.Players {
		players[i] = SessionPlayer{
			UserID: p.UserID, Username: p.Username, AvatarURL: p.AvatarURL,
			Score: p.Score, TurnOrder: p.TurnOrder,
		}
	}

	used := make(map[string]struct{}, len(snap.UsedWords))
	for _, w := range snap.UsedWords {
		used[strings.ToUpper(w)] = struct{}{}
	}

	return &GameSession{
		GameID:             snap.GameID,
		LobbyID:            lobbyID,
		Mode:               ModeWordGrid,
		Grid:               &grid,
		Players:            players,
		CurrentRound:       snap.Round,
		TotalRounds:        snap.TotalRounds,
		CurrentPlayerIndex: snap.CurrentUserIndex,
		UsedWords:          used,
		Status:             StatusInProgress,
		CreatedAt:          snap.CreatedAt,
	}, nil
}

// SubmitWord runs the word submission protocol (spec §4.6). The result is
// one of protocol.InvalidWord (returned, not an error — the connection
// stays open and plays on), *protocol.GameState, or *protocol.GameOver.
func (e *Engine) SubmitWord(ctx context.Context, lobbyID string, userID int64, word string, positions []gridgen.Position) (any, error) {
	unlock := e.lockLobby(lobbyID)
	defer unlock()

	sess, err := e.loadSession(ctx, lobbyID)
	if err != nil {
		return nil, err
	}

	current := sess.Players[sess.CurrentPlayerIndex]
	if current.UserID != userID {
		return nil, protocol.NewGameError(protocol.CodeNotYourTurn, "it is not your turn")
	}

	if !validator.PathValid(positions) {
		return protocol.NewInvalidWord("Invalid path"), nil
	}
	if !validator.InDictionary(e.dict, word) {
		return protocol.NewInvalidWord("Word not found in dictionary"), nil
	}
	upper := strings.ToUpper(strings.TrimSpace(word))
	if _, used := sess.UsedWords[upper]; used {
		return protocol.NewInvalidWord("Word already used"), nil
	}
	if !validator.LettersMatch(sess.Grid, word, positions) {
		return protocol.NewInvalidWord("Invalid path"), nil
	}

	result := scorer.Score(sess.Grid, positions)

	for i := range sess.Players {
		if sess.Players[i].UserID == userID {
			sess.Players[i].Score += result.Score
			break
		}
	}
	sess.UsedWords[upper] = struct{}{}

	if err := e.db.UpdatePlayerScore(ctx, sess.GameID, userID, scoreOf(sess.Players, userID)); err != nil {
		e.logf("update_player_score game=%s: %v", sess.GameID, err)
		return nil, dbFail(err)
	}
	if err := e.db.UpdateUsedWords(ctx, sess.GameID, usedWordsSlice(sess.UsedWords)); err != nil {
		e.logf("update_used_words game=%s: %v", sess.GameID, err)
		return nil, dbFail(err)
	}
	positionsJSON, err := json.Marshal(positions)
	if err != nil {
		return nil, serializationFail(err)
	}
	if err := e.db.RecordMove(ctx, sess.GameID, userID, sess.CurrentRound, upper, result.Score, positionsJSON); err != nil {
		e.logf("record_move game=%s: %v", sess.GameID, err)
		return nil, dbFail(err)
	}

	gridgen.Replace(sess.Grid, positions)
	gridJSON, err := json.Marshal(sess.Grid)
	if err != nil {
		return nil, serializationFail(err)
	}
	if err := e.db.UpdateGrid(ctx, sess.GameID, gridJSON); err != nil {
		e.logf("update_grid game=%s: %v", sess.GameID, err)
		return nil, dbFail(err)
	}

	return e.advanceTurn(ctx, sess)
}

// PassTurn runs the turn-advancement tail of the submit protocol with no
// scoring, used_words update, or grid replacement (spec §4.6).
func (e *Engine) PassTurn(ctx context.Context, lobbyID string, userID int64) (any, error) {
	unlock := e.lockLobby(lobbyID)
	defer unlock()

	sess, err := e.loadSession(ctx, lobbyID)
	if err != nil {
		return nil, err
	}

	current := sess.Players[sess.CurrentPlayerIndex]
	if current.UserID != userID {
		return nil, protocol.NewGameError(protocol.CodeNotYourTurn, "it is not your turn")
	}

	return e.advanceTurn(ctx, sess)
}

func scoreOf(players []SessionPlayer, userID int64) int {
	for _, p := range players {
		if p.UserID == userID {
			return p.Score
		}
	}
	return 0
}

func usedWordsSlice(used map[string]struct{}) []string {
	words := make([]string, 0, len(used))
	for w := range used {
		words = append(words, w)
	}
	return words
}

// advanceTurn implements spec §4.6 steps 11-13, shared by SubmitWord and
// PassTurn.
func (e *Engine) advanceTurn(ctx context.Context, sess *GameSession) (any, error) {
	n := len(sess.Players)
	wrapped := sess.CurrentPlayerIndex == n-1
	next := (sess.CurrentPlayerIndex + 1) % n
	sess.CurrentPlayerIndex = next
	if wrapped {
		sess.CurrentRound++
	}

	if sess.CurrentRound > sess.TotalRounds {
		sess.Status = StatusFinished
		winner, hasWinner := computeWinner(sess.Players)

		var winnerID int64
		if hasWinner {
			winnerID = winner.UserID
		}
		if err := e.db.FinishGame(ctx, sess.GameID, winnerID, hasWinner); err != nil {
			e.logf("finish_game game=%s: %v", sess.GameID, err)
			return nil, dbFail(err)
		}

		e.lobbies.ClearActiveGame(sess.LobbyID)
		e.clearLive(sess.LobbyID)

		over := buildGameOver(sess, winnerID, hasWinner)
		e.lobbies.Broadcast(sess.LobbyID, over)
		return &over, nil
	}

	if err := e.db.UpdateRoundAndTurn(ctx, sess.GameID, sess.CurrentRound, sess.Players[sess.CurrentPlayerIndex].UserID); err != nil {
		e.logf("update_round_and_turn game=%s: %v", sess.GameID, err)
		return nil, dbFail(err)
	}

	state := BuildGameState(sess)
	e.lobbies.Broadcast(sess.LobbyID, state)
	return &state, nil
}

// computeWinner returns the highest-scoring player, breaking ties toward
// the lowest turn_order for determinism (spec §4.6 step 12).
func computeWinner(players []SessionPlayer) (SessionPlayer, bool) {
	if len(players) == 0 {
		return SessionPlayer{}, false
	}
	best := players[0]
	for _, p := range players[1:] {
		if p.Score > best.Score || (p.Score == best.Score && p.TurnOrder < best.TurnOrder) {
			best = p
		}
	}
	return best, true
}

func buildGameOver(sess *GameSession, winnerID int64, hasWinner bool) protocol.GameOver {
	finals := make([]protocol.FinalScore, len(sess.Players))
	for i, p := range sess.Players {
		finals[i] = protocol.FinalScore{UserID: p.UserID, Username: p.Username, Score: p.Score}
	}
	var winner int64
	if hasWinner {
		winner = winnerID
	}
	return protocol.GameOver{Type: protocol.TypeGameOver, Winner: winner, FinalScores: finals}
}

// BuildGameState builds the consolidated snapshot sent after a turn
// advances and on mid-game rejoin (spec §4.6, "Mid-game rejoin").
func BuildGameState(sess *GameSession) protocol.GameState {
	players := make([]protocol.ScorePlayerSummary, len(sess.Players))
	for i, p := range sess.Players {
		players[i] = protocol.ScorePlayerSummary{
			UserID: p.UserID, Username: p.Username, AvatarURL: p.AvatarURL, Score: p.Score,
		}
	}
	var currentTurn int64
	if sess.CurrentPlayerIndex >= 0 && sess.CurrentPlayerIndex < len(sess.Players) {
		currentTurn = sess.Players[sess.CurrentPlayerIndex].UserID
	}
	return protocol.GameState{
		Type:        protocol.TypeGameState,
		GameID:      sess.GameID,
		Mode:        sess.Mode,
		Round:       sess.CurrentRound,
		MaxRounds:   sess.TotalRounds,
		Grid:        sess.Grid,
		Players:     players,
		CurrentTurn: currentTurn,
		UsedWords:   usedWordsSlice(sess.UsedWords),
		// No timer mechanism is implemented; the field exists on the wire
		// for forward compatibility with spec §6's shape.
		TimerEnabled: false,
	}
}

// RejoinSnapshot returns the GameState to send a player who joins a lobby
// with an active game (spec §4.6, "Mid-game rejoin"), or nil if the lobby
// has no active game.
func (e *Engine) RejoinSnapshot(ctx context.Context, lobbyID string) (*protocol.GameState, error) {
	unlock := e.lockLobby(lobbyID)
	defer unlock()

	gameID, ok := e.lobbies.ActiveGameID(lobbyID)
	if !ok || gameID == "" {
		return nil, nil
	}
	sess, err := e.loadSession(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	state := BuildGameState(sess)
	return &state, nil
}

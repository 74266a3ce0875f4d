// Package sqlstore is the store.Port implementation backed by
// database/sql, switching between SQLite (github.com/mattn/go-sqlite3)
// and PostgreSQL (github.com/lib/pq) by driver name, in the same style as
// 1kaius1-MUD-Engine's config-selected database backend. Schema is applied
// with goose migrations embedded via migrations.FS.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/google/uuid"

	"spellcast/internal/store"
	"spellcast/internal/store/sqlstore/migrations"
)

// Driver names accepted by New.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store is a store.Port backed by a *sql.DB.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.Mutex // serializes SQLite writes; postgres relies on its own locking
}

// New opens a connection to dsn using driver ("sqlite3" or "postgres"),
// applies goose migrations, and returns a ready Store.
func New(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: pinging %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlstore: enabling foreign keys: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlstore: setting WAL mode: %w", err)
		}
	}

	goose.SetBaseFS(migrations.FS)
	dialect := "sqlite3"
	if driver == DriverPostgres {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ph returns the positional placeholder for parameter index n (1-based),
// "?" for SQLite and "$n" for PostgreSQL.
func (s *Store) ph(n int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

var _ store.Port = (*Store)(nil)

// exec serializes writes when running on SQLite, which only tolerates one
// writer at a time; PostgreSQL connections pool independently.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.driver == DriverSQLite {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Store) CreateGameSession(ctx context.Context, lobbyID string, hostUserID int64, totalRounds int) (string, error) {
	gameID := uuid.NewString()

	query := fmt.Sprintf(
		`INSERT INTO games (game_id, lobby_id, host_user_id, status, round, total_rounds, current_user_id, created_at)
		 VALUES (%s, %s, %s, %s, 1, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7),
	)
	_, err := s.exec(ctx, query, gameID, lobbyID, hostUserID, string(store.StatusWaiting), totalRounds, hostUserID, time.Now())
	if err != nil {
		return "", fmt.Errorf("sqlstore: creating game session: %w", err)
	}
	return gameID, nil
}

func (s *Store) AddGamePlayersBatch(ctx context.Context, gameID string, players []store.PlayerTurnOrder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: beginning player batch insert: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(
		`INSERT INTO game_players (game_id, user_id, username, avatar_url, turn_order, score)
		 VALUES (%s, %s, %s, %s, %s, 0)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5),
	)
	for _, p := range players {
		if _, err := tx.ExecContext(ctx, query, gameID, p.UserID, p.Username, p.AvatarURL, p.TurnOrder); err != nil {
			return fmt.Errorf("sqlstore: inserting player %d: %w", p.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: committing player batch insert: %w", err)
	}
	return nil
}

func (s *Store) SaveGrid(ctx context.Context, gameID string, gridJSON []byte) error {
	query := fmt.Sprintf(
		`INSERT INTO game_boards (game_id, grid_json, used_words_json) VALUES (%s, %s, '[]')`,
		s.ph(1), s.ph(2),
	)
	if _, err := s.exec(ctx, query, gameID, string(gridJSON)); err != nil {
		return fmt.Errorf("sqlstore: saving grid: %w", err)
	}
	return nil
}

func (s *Store) SetGameState(ctx context.Context, gameID string, status store.GameStatus) error {
	query := fmt.Sprintf(`UPDATE games SET status = %s WHERE game_id = %s`, s.ph(1), s.ph(2))
	if _, err := s.exec(ctx, query, string(status), gameID); err != nil {
		return fmt.Errorf("sqlstore: setting game state: %w", err)
	}
	return nil
}

func (s *Store) UpdatePlayerScore(ctx context.Context, gameID string, userID int64, score int) error {
	query := fmt.Sprintf(
		`UPDATE game_players SET score = %s WHERE game_id = %s AND user_id = %s`,
		s.ph(1), s.ph(2), s.ph(3),
	)
	if _, err := s.exec(ctx, query, score, gameID, userID); err != nil {
		return fmt.Errorf("sqlstore: updating player score: %w", err)
	}
	return nil
}

func (s *Store) UpdateUsedWords(ctx context.Context, gameID string, words []string) error {
	b, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("sqlstore: %w", store.ErrSerialization(err))
	}
	query := fmt.Sprintf(`UPDATE game_boards SET used_words_json = %s WHERE game_id = %s`, s.ph(1), s.ph(2))
	if _, err := s.exec(ctx, query, string(b), gameID); err != nil {
		return fmt.Errorf("sqlstore: updating used words: %w", err)
	}
	return nil
}

func (s *Store) UpdateGrid(ctx context.Context, gameID string, gridJSON []byte) error {
	query := fmt.Sprintf(`UPDATE game_boards SET grid_json = %s WHERE game_id = %s`, s.ph(1), s.ph(2))
	if _, err := s.exec(ctx, query, string(gridJSON), gameID); err != nil {
		return fmt.Errorf("sqlstore: updating grid: %w", err)
	}
	return nil
}

func (s *Store) UpdateRoundAndTurn(ctx context.Context, gameID string, round int, currentUserID int64) error {
	query := fmt.Sprintf(
		`UPDATE games SET round = %s, current_user_id = %s WHERE game_id = %s`,
		s.ph(1), s.ph(2), s.ph(3),
	)
	if _, err := s.exec(ctx, query, round, currentUserID, gameID); err != nil {
		return fmt.Errorf("sqlstore: updating round/turn: %w", err)
	}
	return nil
}

func (s *Store) FinishGame(ctx context.Context, gameID string, winnerUserID int64, hasWinner bool) error {
	var winner any
	if hasWinner {
		winner = winnerUserID
	}
	query := fmt.Sprintf(
		`UPDATE games SET status = %s, winner_user_id = %s, finished_at = %s WHERE game_id = %s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4),
	)
	if _, err := s.exec(ctx, query, string(store.StatusFinished), winner, time.Now(), gameID); err != nil {
		return fmt.Errorf("sqlstore: finishing game: %w", err)
	}
	return nil
}

func (s *Store) LoadActiveSessionForLobby(ctx context.Context, lobbyID string) (*store.SessionSnapshot, error) {
	query := fmt.Sprintf(
		`SELECT game_id, status, round, total_rounds, current_user_id, created_at
		 FROM games WHERE lobby_id = %s AND status = %s
		 ORDER BY created_at DESC LIMIT 1`,
		s.ph(1), s.ph(2),
	)

	var (
		gameID        string
		status        string
		round         int
		totalRounds   int
		currentUserID sql.NullInt64
		createdAt     time.Time
	)
	err := s.db.QueryRowContext(ctx, query, lobbyID, string(store.StatusActive)).
		Scan(&gameID, &status, &round, &totalRounds, &currentUserID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: loading active session: %w", err)
	}

	snap := &store.SessionSnapshot{
		GameID:        gameID,
		LobbyID:       lobbyID,
		Status:        store.GameStatus(status),
		Round:         round,
		TotalRounds:   totalRounds,
		CurrentUserID: currentUserID.Int64,
		CreatedAt:     createdAt,
	}

	boardQuery := fmt.Sprintf(`SELECT grid_json, used_words_json FROM game_boards WHERE game_id = %s`, s.ph(1))
	var gridJSON, usedWordsJSON string
	if err := s.db.QueryRowContext(ctx, boardQuery, gameID).Scan(&gridJSON, &usedWordsJSON); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("sqlstore: loading board: %w", err)
	}
	snap.GridJSON = []byte(gridJSON)
	if usedWordsJSON != "" {
		if err := json.Unmarshal([]byte(usedWordsJSON), &snap.UsedWords); err != nil {
			return nil, fmt.Errorf("sqlstore: %w", store.ErrSerialization(err))
		}
	}

	playersQuery := fmt.Sprintf(
		`SELECT user_id, username, avatar_url, turn_order, score FROM game_players WHERE game_id = %s ORDER BY turn_order`,
		s.ph(1),
	)
	rows, err := s.db.QueryContext(ctx, playersQuery, gameID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: loading players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p store.PlayerScore
		var avatar sql.NullString
		if err := rows.Scan(&p.UserID, &p.Username, &avatar, &p.TurnOrder, &p.Score); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning player: %w", err)
		}
		p.AvatarURL = avatar.String
		snap.Players = append(snap.Players, p)
		if p.UserID == snap.CurrentUserID {
			snap.CurrentUserIndex = len(snap.Players) - 1
		}
	}

	return snap, rows.Err()
}

func (s *Store) RecordMove(ctx context.Context, gameID string, userID int64, round int, word string, score int, positionsJSON []byte) error {
	query := fmt.Sprintf(
		`INSERT INTO game_moves (id, game_id, user_id, round, word, score, positions_json, played_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8),
	)
	if _, err := s.exec(ctx, query, uuid.NewString(), gameID, userID, round, word, score, string(positionsJSON), time.Now()); err != nil {
		return fmt.Errorf("sqlstore: recording move: %w", err)
	}
	return nil
}

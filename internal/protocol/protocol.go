// Package protocol defines the tagged-union JSON messages exchanged over
// the game WebSocket and their (de)serialization, per spec §4.7 and §6.
package protocol

import (
	"encoding/json"
	"fmt"

	"spellcast/internal/gridgen"
)

// Client-to-server message type tags.
const (
	TypeJoinChannelLobby = "join_channel_lobby"
	TypeCreateCustomLobby = "create_custom_lobby"
	TypeJoinCustomLobby   = "join_custom_lobby"
	TypeLeaveLobby        = "leave_lobby"
	TypeStartGame         = "start_game"
	TypeSubmitWord        = "submit_word"
	TypePassTurn          = "pass_turn"
	TypeHeartbeat         = "heartbeat"
)

// Server-to-client message type tags.
const (
	TypeLobbyJoined     = "lobby_joined"
	TypeLobbyCreated    = "lobby_created"
	TypeLobbyPlayerList = "lobby_player_list"
	TypeGameStarted     = "game_started"
	TypeGameState       = "game_state"
	TypeInvalidWord     = "invalid_word"
	TypeGameOver        = "game_over"
	TypeGameError       = "game_error"
	TypeError           = "error"
	TypeHeartbeatAck    = "heartbeat_ack"
)

// Game error codes, per spec §6.
const (
	CodeLobbyNotFound      = "lobby_not_found"
	CodeNotHost            = "not_host"
	CodeGameInProgress     = "game_in_progress"
	CodeNotEnoughPlayers   = "not_enough_players"
	CodeTooManyPlayers     = "too_many_players"
	CodeNotYourTurn        = "not_your_turn"
	CodeNoActiveGame       = "no_active_game"
	CodeGameNotFound       = "game_not_found"
	CodeDatabaseError      = "database_error"
	CodeSerializationError = "serialization_error"
	CodeNotInLobby         = "not_in_lobby"
)

// Envelope is the minimal shape every message shares: a type tag. Inbound
// frames are decoded into Envelope first to dispatch on Type, then
// re-decoded into the concrete payload type.
type Envelope struct {
	Type string `json:"type"`
}

// --- Client -> server payloads ---

type JoinChannelLobby struct {
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
}

type JoinCustomLobby struct {
	LobbyCode string `json:"lobby_code"`
}

type SubmitWord struct {
	Word      string              `json:"word"`
	Positions []gridgen.Position `json:"positions"`
}

// DecodeClientMessage inspects the "type" field of raw and decodes the rest
// into the matching concrete payload. The first return value is the type
// tag. An unrecognized type yields ok=false; callers should reply with a
// generic error and keep the connection open (spec §4.7).
func DecodeClientMessage(raw []byte) (tag string, payload any, ok bool, err error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, false, err
	}

	switch env.Type {
	case TypeJoinChannelLobby:
		var p JoinChannelLobby
		if err := json.Unmarshal(raw, &p); err != nil {
			return env.Type, nil, false, err
		}
		return env.Type, p, true, nil
	case TypeCreateCustomLobby, TypeLeaveLobby, TypeStartGame, TypePassTurn, TypeHeartbeat:
		return env.Type, nil, true, nil
	case TypeJoinCustomLobby:
		var p JoinCustomLobby
		if err := json.Unmarshal(raw, &p); err != nil {
			return env.Type, nil, false, err
		}
		return env.Type, p, true, nil
	case TypeSubmitWord:
		var p SubmitWord
		if err := json.Unmarshal(raw, &p); err != nil {
			return env.Type, nil, false, err
		}
		return env.Type, p, true, nil
	default:
		return env.Type, nil, false, nil
	}
}

// --- Server -> client payloads ---

type PlayerSummary struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type LobbyJoined struct {
	Type         string `json:"type"`
	LobbyID      string `json:"lobby_id"`
	LobbyType    string `json:"lobby_type"`
	LobbyCode    string `json:"lobby_code,omitempty"`
	ActiveGameID string `json:"active_game_id,omitempty"`
}

func NewLobbyJoined(lobbyID, lobbyType, lobbyCode, activeGameID string) LobbyJoined {
	return LobbyJoined{
		Type:         TypeLobbyJoined,
		LobbyID:      lobbyID,
		LobbyType:    lobbyType,
		LobbyCode:    lobbyCode,
		ActiveGameID: activeGameID,
	}
}

type LobbyCreated struct {
	Type      string `json:"type"`
	LobbyCode string `json:"lobby_code"`
}

func NewLobbyCreated(code string) LobbyCreated {
	return LobbyCreated{Type: TypeLobbyCreated, LobbyCode: code}
}

type LobbyPlayerList struct {
	Type      string          `json:"type"`
	Players   []PlayerSummary `json:"players"`
	LobbyCode string          `json:"lobby_code,omitempty"`
}

func NewLobbyPlayerList(players []PlayerSummary, lobbyCode string) LobbyPlayerList {
	return LobbyPlayerList{Type: TypeLobbyPlayerList, Players: players, LobbyCode: lobbyCode}
}

type TurnPlayerSummary struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	TurnOrder int    `json:"turn_order"`
}

type GameStarted struct {
	Type            string              `json:"type"`
	GameID          string              `json:"game_id"`
	Grid            *gridgen.Grid      `json:"grid"`
	Players         []TurnPlayerSummary `json:"players"`
	CurrentPlayerID int64               `json:"current_player_id"`
	TotalRounds     int                 `json:"total_rounds"`
}

type ScorePlayerSummary struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Score     int    `json:"score"`
	Team      string `json:"team,omitempty"`
}

type GameState struct {
	Type            string               `json:"type"`
	GameID          string               `json:"game_id"`
	Mode            string               `json:"mode"`
	Round           int                  `json:"round"`
	MaxRounds       int                  `json:"max_rounds"`
	Grid            *gridgen.Grid       `json:"grid"`
	Players         []ScorePlayerSummary `json:"players"`
	CurrentTurn     int64                `json:"current_turn,omitempty"`
	UsedWords       []string             `json:"used_words"`
	TimerEnabled    bool                 `json:"timer_enabled"`
	TimeRemaining   int                  `json:"time_remaining,omitempty"`
}

type InvalidWord struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func NewInvalidWord(reason string) InvalidWord {
	return InvalidWord{Type: TypeInvalidWord, Reason: reason}
}

type FinalScore struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

type GameOver struct {
	Type        string       `json:"type"`
	Winner      int64        `json:"winner,omitempty"`
	FinalScores []FinalScore `json:"final_scores"`
}

// GameError is both the wire payload and an error value, so the session
// and lobby engines can return it directly and have the connection
// handler serialize it without a separate mapping step.
type GameError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewGameError(code, message string) GameError {
	return GameError{Type: TypeGameError, Code: code, Message: message}
}

func (e GameError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type GenericError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewGenericError(message string) GenericError {
	return GenericError{Type: TypeError, Message: message}
}

type HeartbeatAck struct {
	Type string `json:"type"`
}

func NewHeartbeatAck() HeartbeatAck {
	return HeartbeatAck{Type: TypeHeartbeatAck}
}

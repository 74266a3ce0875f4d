// Package wsconn is the per-socket connection handler: authentication,
// the read/send task pair, and dispatch of decoded protocol messages to
// the lobby manager and session engine (spec §4.8).
package wsconn

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"spellcast/internal/gridgen"
	"spellcast/internal/identity"
	"spellcast/internal/lobby"
	"spellcast/internal/protocol"
	"spellcast/internal/session"
)

// sendQueueCapacity is the bounded per-connection outbound queue depth
// (spec §5, "Resource caps").
const sendQueueCapacity = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades authenticated requests to WebSocket connections and
// runs each connection's lifecycle.
type Handler struct {
	resolver identity.Resolver
	lobbies  *lobby.Manager
	sessions *session.Engine
	verbose  bool
}

// NewHandler builds a connection Handler.
func NewHandler(resolver identity.Resolver, lobbies *lobby.Manager, sessions *session.Engine, verbose bool) *Handler {
	return &Handler{resolver: resolver, lobbies: lobbies, sessions: sessions, verbose: verbose}
}

func (h *Handler) logf(format string, args ...any) {
	if h.verbose {
		log.Printf("wsconn: "+format, args...)
	}
}

// ServeHTTP implements spec §4.8 step 1: extract and validate a bearer
// credential before ever upgrading the socket.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := identity.ExtractBearerToken(r)
	if err != nil {
		http.Error(w, "missing credential", http.StatusUnauthorized)
		return
	}

	user, err := h.resolver.Resolve(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("upgrade: %v", err)
		return
	}

	c := &connection{
		conn: conn,
		send: make(chan any, sendQueueCapacity),
		user: user,
		h:    h,
	}

	go c.writePump()
	c.readPump()
}

// connection is one accepted socket, split into cooperating send/receive
// halves that share only the send channel and currentLobbyID.
type connection struct {
	conn *websocket.Conn
	send chan any
	user identity.User
	h    *Handler

	mu             sync.Mutex
	currentLobbyID string
}

func (c *connection) setCurrentLobby(lobbyID string) {
	c.mu.Lock()
	c.currentLobbyID = lobbyID
	c.mu.Unlock()
}

func (c *connection) clearCurrentLobby() {
	c.mu.Lock()
	c.currentLobbyID = ""
	c.mu.Unlock()
}

func (c *connection) getCurrentLobby() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLobbyID, c.currentLobbyID != ""
}

// pushDirect enqueues a response meant only for this connection. It never
// blocks: a stalled reader drops the newest message rather than wedging
// the session engine behind a slow socket (spec §5's send-queue caps).
func (c *connection) pushDirect(msg any) {
	select {
	case c.send <- msg:
	default:
		c.h.logf("send queue full, dropping message for user=%d", c.user.UserID)
	}
}

// writePump is the send task: it owns the socket for writing and exits
// when the channel closes or a write fails (spec §4.8 step 3).
func (c *connection) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// readPump is the receive task: it owns the socket for reading, dispatches
// decoded messages, and on exit marks the player awaiting reconnect rather
// than leaving the lobby (spec §4.8 steps 4-6).
func (c *connection) readPump() {
	defer func() {
		if lobbyID, ok := c.getCurrentLobby(); ok {
			c.h.lobbies.MarkAwaitingReconnect(lobbyID, c.user.UserID)
		}
		close(c.send)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		tag, payload, ok, err := protocol.DecodeClientMessage(raw)
		if err != nil {
			c.pushDirect(protocol.NewGenericError("malformed message"))
			continue
		}
		if !ok {
			c.pushDirect(protocol.NewGenericError("unrecognized message type"))
			continue
		}

		c.dispatch(tag, payload)
	}
}

func (c *connection) dispatch(tag string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch tag {
	case protocol.TypeJoinChannelLobby:
		p := payload.(protocol.JoinChannelLobby)
		lobbyID := c.h.lobbies.GetOrCreateChannelLobby(p.ChannelID, p.GuildID)
		c.h.joinAndRespond(ctx, c, lobbyID)

	case protocol.TypeCreateCustomLobby:
		_, code := c.h.lobbies.CreateCustomLobby()
		c.pushDirect(protocol.NewLobbyCreated(code))

	case protocol.TypeJoinCustomLobby:
		p := payload.(protocol.JoinCustomLobby)
		lobbyID, found := c.h.lobbies.FindLobbyByCode(p.LobbyCode)
		if !found {
			c.pushDirect(protocol.NewGameError(protocol.CodeLobbyNotFound, "no lobby with that code"))
			return
		}
		c.h.joinAndRespond(ctx, c, lobbyID)

	case protocol.TypeLeaveLobby:
		lobbyID, ok := c.getCurrentLobby()
		if !ok {
			c.pushDirect(protocol.NewGameError(protocol.CodeNotInLobby, "not in a lobby"))
			return
		}
		c.h.lobbies.Leave(lobbyID, c.user.UserID)
		c.clearCurrentLobby()

	case protocol.TypeStartGame:
		lobbyID, ok := c.getCurrentLobby()
		if !ok {
			c.pushDirect(protocol.NewGameError(protocol.CodeNotInLobby, "not in a lobby"))
			return
		}
		if _, err := c.h.sessions.StartGame(ctx, lobbyID, c.user.UserID); err != nil {
			c.pushDirect(err)
		}

	case protocol.TypeSubmitWord:
		lobbyID, ok := c.getCurrentLobby()
		if !ok {
			c.pushDirect(protocol.NewGameError(protocol.CodeNotInLobby, "not in a lobby"))
			return
		}
		p := payload.(protocol.SubmitWord)
		result, err := c.h.sessions.SubmitWord(ctx, lobbyID, c.user.UserID, p.Word, clonePositions(p.Positions))
		if err != nil {
			c.pushDirect(err)
			return
		}
		// GameState/GameOver are already broadcast by the engine; only a
		// non-broadcast InvalidWord needs a direct reply here.
		if invalid, ok := result.(protocol.InvalidWord); ok {
			c.pushDirect(invalid)
		}

	case protocol.TypePassTurn:
		lobbyID, ok := c.getCurrentLobby()
		if !ok {
			c.pushDirect(protocol.NewGameError(protocol.CodeNotInLobby, "not in a lobby"))
			return
		}
		if _, err := c.h.sessions.PassTurn(ctx, lobbyID, c.user.UserID); err != nil {
			c.pushDirect(err)
		}

	case protocol.TypeHeartbeat:
		c.pushDirect(protocol.NewHeartbeatAck())
	}
}

func clonePositions(positions []gridgen.Position) []gridgen.Position {
	out := make([]gridgen.Position, len(positions))
	copy(out, positions)
	return out
}

// joinAndRespond runs the shared join flow for both join_channel_lobby and
// join_custom_lobby: join the lobby, reply with LobbyJoined, and if the
// lobby has an active game, follow up with a GameState rejoin snapshot
// (spec §4.6, "Mid-game rejoin").
func (h *Handler) joinAndRespond(ctx context.Context, c *connection, lobbyID string) {
	result, err := h.lobbies.Join(lobbyID, c.user, lobby.SendQueue(c.send))
	if err != nil {
		c.pushDirect(protocol.NewGameError(protocol.CodeLobbyNotFound, "lobby not found"))
		return
	}
	c.setCurrentLobby(lobbyID)
	c.pushDirect(protocol.NewLobbyJoined(lobbyID, string(result.LobbyType), result.Code, result.ActiveGameID))

	if result.ActiveGameID == "" {
		return
	}
	state, err := h.sessions.RejoinSnapshot(ctx, lobbyID)
	if err != nil {
		h.logf("rejoin snapshot lobby=%s: %v", lobbyID, err)
		return
	}
	if state != nil {
		c.pushDirect(*state)
	}
}

package lobby

import "time"

// Sweep scans every lobby once: players stuck in AwaitingReconnect past
// playerGrace are removed (and the lobby's list is re-broadcast); lobbies
// empty past lobbyGrace are deleted from the registry and code index.
// Called periodically by the cleanup worker (spec §4.5).
func (m *Manager) Sweep(now time.Time, playerGrace, lobbyGrace time.Duration) {
	m.mu.RLock()
	snapshot := make([]*Lobby, 0, len(m.lobbies))
	for _, l := range m.lobbies {
		snapshot = append(snapshot, l)
	}
	m.mu.RUnlock()

	for _, l := range snapshot {
		m.sweepExpiredPlayers(l, now, playerGrace)
	}

	m.sweepEmptyLobbies(now, lobbyGrace)
}

func (m *Manager) sweepExpiredPlayers(l *Lobby, now time.Time, playerGrace time.Duration) {
	l.mu.Lock()
	removedAny := false
	for userID, p := range l.players {
		if p.ConnectionState != AwaitingReconnect {
			continue
		}
		if now.Sub(p.AwaitingSince) > playerGrace {
			delete(l.players, userID)
			removedAny = true
		}
	}
	if removedAny && !anyConnectedLocked(l) && l.emptySince == nil {
		n := now
		l.emptySince = &n
	}
	l.mu.Unlock()

	if removedAny {
		m.logf("swept expired player(s) from %s", l.ID())
		m.broadcastPlayerList(l)
	}
}

func (m *Manager) sweepEmptyLobbies(now time.Time, lobbyGrace time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, l := range m.lobbies {
		l.mu.RLock()
		emptySince := l.emptySince
		code := l.code
		l.mu.RUnlock()

		if emptySince == nil || now.Sub(*emptySince) <= lobbyGrace {
			continue
		}

		delete(m.lobbies, id)
		if code != "" {
			delete(m.codeIndex, code)
		}
		m.logf("reaped empty lobby %s", id)
	}
}

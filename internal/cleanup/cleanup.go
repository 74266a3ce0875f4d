// Package cleanup runs the periodic sweep that reaps expired
// AwaitingReconnect players and empty lobbies (spec §5, "a periodic
// cleanup task is a third long-running cooperative task").
package cleanup

import (
	"context"
	"log"
	"time"

	"spellcast/internal/lobby"
)

// Default grace periods and sweep cadence, per spec §2/§5.
const (
	DefaultPlayerGrace    = 60 * time.Second
	DefaultLobbyGrace     = 120 * time.Second
	DefaultSweepInterval  = 15 * time.Second
)

// Worker periodically sweeps a lobby.Manager until its context is canceled.
type Worker struct {
	lobbies      *lobby.Manager
	interval     time.Duration
	playerGrace  time.Duration
	lobbyGrace   time.Duration
	verbose      bool
}

// NewWorker builds a sweep Worker. Zero durations fall back to the spec
// defaults.
func NewWorker(lobbies *lobby.Manager, interval, playerGrace, lobbyGrace time.Duration, verbose bool) *Worker {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if playerGrace <= 0 {
		playerGrace = DefaultPlayerGrace
	}
	if lobbyGrace <= 0 {
		lobbyGrace = DefaultLobbyGrace
	}
	return &Worker{
		lobbies:     lobbies,
		interval:    interval,
		playerGrace: playerGrace,
		lobbyGrace:  lobbyGrace,
		verbose:     verbose,
	}
}

// Run blocks, sweeping every interval until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.lobbies.Sweep(now, w.playerGrace, w.lobbyGrace)
			if w.verbose {
				log.Printf("cleanup: sweep completed at %s", now.Format(time.RFC3339))
			}
		}
	}
}

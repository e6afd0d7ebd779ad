// Package progress implements the Progress Broker (C9): per-session topics
// multiplexed over the realtime Hub, with replay-from-start for late
// subscribers and a terminal-plus-hold eviction policy.
package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
	"github.com/luissimon96/migration-validation-voe/internal/realtime"
	"github.com/luissimon96/migration-validation-voe/internal/repos"
)

// TerminalHold is how long after a channel is marked terminal Subscribe
// still replays its log. Past it, Subscribe replays nothing and sends no
// snapshot in its place; once the sweep has dropped the mark, a Subscribe
// with isTerminal set marks the channel again and replay resumes.
const TerminalHold = 60 * time.Second

type Broker struct {
	log      *logger.Logger
	hub      *realtime.SSEHub
	sessions repos.SessionRepo

	mu         sync.Mutex
	terminalAt map[string]time.Time
}

func NewBroker(baseLog *logger.Logger, hub *realtime.SSEHub, sessions repos.SessionRepo) *Broker {
	return &Broker{
		log:        baseLog.With("service", "ProgressBroker"),
		hub:        hub,
		sessions:   sessions,
		terminalAt: make(map[string]time.Time),
	}
}

// Start runs the background sweep that forgets a terminal channel's hold
// bookkeeping once TerminalHold has elapsed.
func (b *Broker) Start(ctx context.Context) {
	go b.sweep(ctx)
}

// NotifyTerminal starts channel's hold clock. Idempotent: a channel already
// marked terminal keeps its original mark rather than resetting the clock.
func (b *Broker) NotifyTerminal(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.terminalAt[channel]; ok {
		return
	}
	b.terminalAt[channel] = time.Now()
}

// Subscribe joins client to channel and, while within the replay window,
// replays every structured log entry recorded so far so a late subscriber
// sees the session's history rather than only events from this point
// forward. isTerminal starts the hold clock if the session has already
// reached a terminal status by the time the subscriber joins.
func (b *Broker) Subscribe(ctx context.Context, client *realtime.SSEClient, channel string, sessionID uuid.UUID, isTerminal bool) {
	b.hub.AddChannel(client, channel)
	if isTerminal {
		b.NotifyTerminal(channel)
	}
	if !b.withinReplayWindow(channel) {
		return
	}

	entries, err := b.sessions.ListLogs(ctx, nil, sessionID, time.Time{})
	if err != nil {
		b.log.Warn("replay failed", "channel", channel, "error", err)
		return
	}
	for _, entry := range entries {
		var payload map[string]any
		if len(entry.Payload) > 0 {
			_ = json.Unmarshal(entry.Payload, &payload)
		}
		msg := realtime.SSEMessage{
			Channel: channel,
			Event:   realtime.SSEEventSessionLog,
			Data: map[string]any{
				"level":   entry.Level,
				"message": entry.Message,
				"payload": payload,
				"ts":      entry.Timestamp,
			},
		}
		select {
		case client.Outbound <- msg:
		default:
			b.log.Warn("replay buffer full, dropping remaining backlog", "channel", channel)
			return
		}
	}
}

func (b *Broker) Unsubscribe(client *realtime.SSEClient, channel string) {
	b.hub.RemoveChannel(client, channel)
}

func (b *Broker) withinReplayWindow(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.terminalAt[channel]
	if !ok {
		return true
	}
	return time.Since(t) < TerminalHold
}

func (b *Broker) sweep(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			for channel, t := range b.terminalAt {
				if time.Since(t) > TerminalHold {
					delete(b.terminalAt, channel)
				}
			}
			b.mu.Unlock()
		}
	}
}

package app

import (
	"log/slog"
	"sync"

	"team-quiz-service/internal/domain"
)

// Audience is a broadcast addressing group within a game.
type Audience string

const (
	AudienceAdmin        Audience = "admin"
	AudienceDisplay      Audience = "display"
	AudienceParticipants Audience = "participants"
)

// Conn is a persistent client connection. Send must not block; it reports
// false when the message could not be queued.
type Conn interface {
	ID() string
	Send(ev domain.Event) bool
}

// Membership is one (game, audience) group a connection belongs to.
type Membership struct {
	GameID   int64
	Audience Audience
}

// Router maps (game, audience) groups to connections and fans events out.
// It never inspects payloads.
type Router struct {
	mu      sync.RWMutex
	groups  map[Membership]map[string]Conn
	members map[string]map[Membership]struct{}
	logger  *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		groups:  make(map[Membership]map[string]Conn),
		members: make(map[string]map[Membership]struct{}),
		logger:  logger,
	}
}

// Join adds conn to the group. Joining twice is harmless.
func (r *Router) Join(gameID int64, audience Audience, conn Conn) {
	key := Membership{GameID: gameID, Audience: audience}

	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.groups[key]
	if !ok {
		group = make(map[string]Conn)
		r.groups[key] = group
	}
	group[conn.ID()] = conn

	joined, ok := r.members[conn.ID()]
	if !ok {
		joined = make(map[Membership]struct{})
		r.members[conn.ID()] = joined
	}
	joined[key] = struct{}{}
}

// Leave removes conn from every group and returns the groups it left.
func (r *Router) Leave(conn Conn) []Membership {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.members[conn.ID()]
	left := make([]Membership, 0, len(joined))
	for key := range joined {
		group := r.groups[key]
		delete(group, conn.ID())
		if len(group) == 0 {
			delete(r.groups, key)
		}
		left = append(left, key)
	}
	delete(r.members, conn.ID())
	return left
}

// Broadcast sends ev to every connection of each listed audience. Groups are
// addressed independently: a failed send in one never affects another. It
// returns the number of messages queued.
func (r *Router) Broadcast(gameID int64, ev domain.Event, audiences ...Audience) int {
	sent := 0
	for _, audience := range audiences {
		for _, conn := range r.snapshot(Membership{GameID: gameID, Audience: audience}) {
			if conn.Send(ev) {
				sent++
				continue
			}
			r.logger.Warn("event dropped - client buffer full",
				slog.Int64("game_id", gameID),
				slog.String("audience", string(audience)),
				slog.String("conn_id", conn.ID()),
				slog.String("event", string(ev.Type)))
		}
	}
	return sent
}

// Count returns the number of connections in a group.
func (r *Router) Count(gameID int64, audience Audience) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[Membership{GameID: gameID, Audience: audience}])
}

func (r *Router) snapshot(key Membership) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	group := r.groups[key]
	conns := make([]Conn, 0, len(group))
	for _, c := range group {
		conns = append(conns, c)
	}
	return conns
}

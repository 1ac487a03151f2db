package app

import "sync"

// GameLocks hands out one mutex per game. The coordinator and the catalog
// share an instance so authoring never interleaves with a game starting.
// An entry lives only while someone holds or waits for it.
type GameLocks struct {
	mu    sync.Mutex
	locks map[int64]*gameLock
}

type gameLock struct {
	mu   sync.Mutex
	refs int
}

func NewGameLocks() *GameLocks {
	return &GameLocks{locks: make(map[int64]*gameLock)}
}

// Lock blocks until the game's mutex is held and returns its release func.
func (g *GameLocks) Lock(gameID int64) func() {
	g.mu.Lock()
	l, ok := g.locks[gameID]
	if !ok {
		l = &gameLock{}
		g.locks[gameID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, gameID)
		}
		g.mu.Unlock()
	}
}

func (g *GameLocks) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}

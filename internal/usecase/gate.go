package usecase

import (
	"context"
	"sync"
)

// LocalGate tracks in-flight sessions in process memory. It backs the
// terminal client, where a single process owns every session.
type LocalGate struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewLocalGate() *LocalGate {
	return &LocalGate{inFlight: make(map[string]struct{})}
}

func (g *LocalGate) Acquire(_ context.Context, sessionID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[sessionID]; busy {
		return false, nil
	}
	g.inFlight[sessionID] = struct{}{}
	return true, nil
}

func (g *LocalGate) Release(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, sessionID)
	return nil
}

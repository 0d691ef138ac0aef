package services

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically escalates expired turns. The engine also checks expiry
// lazily when a move comes in, but only the sweep guarantees progress when
// the idle player never calls back.
type Sweeper struct {
	engine   *EngineService
	interval time.Duration
}

func NewSweeper(engine *EngineService, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: interval,
	}
}

// Run blocks, sweeping on every tick. Start it in its own goroutine.
func (s *Sweeper) Run() {
	log.Printf("Turn sweeper running every %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for range ticker.C {
		s.engine.SweepExpiredTurns(context.Background())
	}
}

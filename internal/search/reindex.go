package search

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Reindexer rebuilds the relevance index on a cron schedule.
type Reindexer struct {
	cron    *cron.Cron
	service *Service
	source  IdeaSource
	timeout time.Duration
	mu      sync.Mutex
	running bool
	busy    sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewReindexer(service *Service, source IdeaSource) *Reindexer {
	return &Reindexer{
		cron:    cron.New(),
		service: service,
		source:  source,
		timeout: 30 * time.Minute,
	}
}

// Start schedules the rebuild. schedule accepts standard five-field cron
// expressions and descriptors such as "@every 1h".
func (r *Reindexer) Start(ctx context.Context, schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	if _, err := r.cron.AddFunc(schedule, r.RunOnce); err != nil {
		r.cancel()
		return fmt.Errorf("invalid reindex schedule '%s': %w", schedule, err)
	}

	r.cron.Start()
	r.running = true
	log.Printf("search: reindex scheduled (%s)", schedule)
	return nil
}

// RunOnce performs a single rebuild unless one is already in progress.
func (r *Reindexer) RunOnce() {
	if !r.busy.TryLock() {
		log.Println("search: reindex already running, skipping")
		return
	}
	defer r.busy.Unlock()

	if !r.service.Available() {
		return
	}

	parent := r.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	started := time.Now()
	count, err := r.service.ReindexAll(ctx, r.source)
	if err != nil {
		log.Printf("search: reindex failed after %d ideas: %v", count, err)
		return
	}
	log.Printf("search: reindexed %d ideas in %s", count, time.Since(started).Round(time.Millisecond))
}

// Stop stops the scheduler and waits for a running rebuild to finish.
func (r *Reindexer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.cancel()
	ctx := r.cron.Stop()
	<-ctx.Done()

	r.running = false
	log.Println("search: reindex scheduler stopped")
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
	"github.com/custodia-labs/wikiscope/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

const (
	// sweepLimit caps the pages one embedding sweep claims.
	sweepLimit = 100

	// historyKeep is the number of results retained per task.
	historyKeep = 100
)

// Scheduler runs the embedding sweep and the cluster refresh on intervals.
// Task state survives restarts through the SchedulerStore.
type Scheduler struct {
	config     domain.SchedulerConfig
	store      driven.SchedulerStore
	pageStore  driven.PageStore
	embeddings driving.EmbeddingService
	clusters   driving.ClusterService
	tagging    driving.TaggingService
	tick       time.Duration

	mu       sync.Mutex
	running  bool
	inFlight map[string]bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
// A nil tagging service makes the cluster refresh skip tagging.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	pageStore driven.PageStore,
	embeddings driving.EmbeddingService,
	clusters driving.ClusterService,
	tagging driving.TaggingService,
) *Scheduler {
	return &Scheduler{
		config:     config,
		store:      store,
		pageStore:  pageStore,
		embeddings: embeddings,
		clusters:   clusters,
		tagging:    tagging,
		tick:       time.Minute,
		inFlight:   make(map[string]bool),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		logger.Info("Scheduler disabled")
		<-s.wait(ctx)
		return nil
	}

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Warn("scheduler: failed to initialise tasks: %v", err)
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Scheduler) wait(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
		case <-s.stopCh:
		}
	}()
	return done
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	tasks := []struct {
		id   string
		name string
	}{
		{domain.TaskIDEmbeddingSweep, "Embedding Sweep"},
		{domain.TaskIDClusterRefresh, "Cluster Refresh"},
	}
	for _, t := range tasks {
		if err := s.ensureTask(ctx, t.id, t.name, s.config.GetTaskConfig(t.id)); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now().Add(cfg.Interval),
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if !task.Enabled {
			continue
		}
		if task.NextRun.IsZero() || !task.NextRun.After(now) {
			s.runTask(ctx, task)
		}
	}
}

// runTask executes a single task in the background. A task still running
// from an earlier tick is not started again.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	if s.inFlight[task.ID] {
		s.mu.Unlock()
		return
	}
	s.inFlight[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, task.ID)
			s.mu.Unlock()
		}()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDEmbeddingSweep:
			result.ItemsProcessed, err = s.runEmbeddingSweep(ctx)
		case domain.TaskIDClusterRefresh:
			result.ItemsProcessed, err = s.runClusterRefresh(ctx)
		default:
			logger.Warn("scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = time.Now()
		if err != nil {
			result.Error = err.Error()
			task.LastError = err.Error()
			logger.Warn("scheduler: %s failed: %v", task.ID, err)
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
			logger.Debug("scheduler: %s processed %d items", task.ID, result.ItemsProcessed)
		}

		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
			logger.Warn("scheduler: failed to save task %s: %v", task.ID, saveErr)
		}
		if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
			logger.Warn("scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}
		if pruneErr := s.store.PruneHistory(ctx, historyKeep); pruneErr != nil {
			logger.Warn("scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

// runEmbeddingSweep embeds pending pages and reclaims stale ones.
func (s *Scheduler) runEmbeddingSweep(ctx context.Context) (int, error) {
	if s.embeddings == nil {
		return 0, nil
	}
	run, err := s.embeddings.EmbedPending(ctx, sweepLimit)
	if err != nil {
		return 0, err
	}
	return run.Completed, nil
}

// runClusterRefresh rebuilds clusters for every wiki, then tags them.
// Wikis are processed independently; errors are collected.
func (s *Scheduler) runClusterRefresh(ctx context.Context) (int, error) {
	if s.clusters == nil || s.pageStore == nil {
		return 0, nil
	}
	wikiIDs, err := s.pageStore.ListWikiIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list wikis: %w", err)
	}

	var (
		processed int
		errs      []error
	)
	for _, wikiID := range wikiIDs {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		run, err := s.clusters.Run(ctx, wikiID)
		if errors.Is(err, domain.ErrClusteringInProgress) {
			logger.Debug("scheduler: clustering already running for wiki %s", wikiID)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("cluster wiki %s: %w", wikiID, err))
			continue
		}
		processed += len(run.Clusters)

		if s.tagging == nil {
			continue
		}
		if _, err := s.tagging.TagWiki(ctx, wikiID); err != nil {
			errs = append(errs, fmt.Errorf("tag wiki %s: %w", wikiID, err))
		}
	}
	return processed, errors.Join(errs...)
}

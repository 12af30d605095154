package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ChainPulse/internal/domain/models"
	domsvc "ChainPulse/internal/domain/service"
	"ChainPulse/pkg/logger"
	"ChainPulse/pkg/queue"
)

const narrativeMsgType = "narrative.analyze"

// NarrativeQueue is the enqueue side of the job queue. Satisfied by
// *queue.RedisQueue.
type NarrativeQueue interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// QueueDispatcher hands snapshots to the redis queue for async LLM
// commentary so the signal pass never waits on the analyzer.
type QueueDispatcher struct {
	q NarrativeQueue
}

func NewQueueDispatcher(q NarrativeQueue) *QueueDispatcher {
	return &QueueDispatcher{q: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, cond *models.SignalConditions) error {
	if err := d.q.Enqueue(ctx, narrativeMsgType, cond); err != nil {
		return fmt.Errorf("enqueue narrative: %w", err)
	}
	return nil
}

// NarrativeJob consumes queued snapshots and runs the narrative
// analyzer with its own timeout. Analyzer failures are returned so the
// queue applies its retry/backoff policy.
type NarrativeJob struct {
	analyzer domsvc.NarrativeAnalyzer
	timeout  time.Duration
	log      *logger.Logger

	mu     sync.RWMutex
	latest map[string]*models.NarrativeAnalysis
}

func NewNarrativeJob(analyzer domsvc.NarrativeAnalyzer, timeout time.Duration, log *logger.Logger) *NarrativeJob {
	return &NarrativeJob{
		analyzer: analyzer,
		timeout:  timeout,
		log:      log,
		latest:   make(map[string]*models.NarrativeAnalysis),
	}
}

func (j *NarrativeJob) Name() string { return "narrative-analyzer" }
func (j *NarrativeJob) Type() string { return narrativeMsgType }

func (j *NarrativeJob) Handle(ctx context.Context, payload interface{}) error {
	cond, err := queue.ParsePayload[models.SignalConditions](payload)
	if err != nil {
		return fmt.Errorf("parse narrative payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	analysis, err := j.analyzer.Analyze(ctx, cond.Asset, cond)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", cond.Asset, err)
	}

	j.mu.Lock()
	j.latest[cond.Asset] = analysis
	j.mu.Unlock()

	j.log.Info("narrative analysis stored",
		logger.String("asset", cond.Asset),
		logger.String("kind", string(analysis.Kind)))
	return nil
}

// Latest returns the newest analysis for an asset, nil when none exists.
func (j *NarrativeJob) Latest(asset string) *models.NarrativeAnalysis {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.latest[asset]
}

var _ queue.Job = (*NarrativeJob)(nil)

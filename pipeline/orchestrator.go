package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pagemill/crawl-ingest-service/common/models"
	"github.com/pagemill/crawl-ingest-service/common/services"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// stagerTimeout bounds the synchronous staging phase of a run.
const stagerTimeout = 900 * time.Second

// Orchestrator sequences a full run: create the run record, stage
// candidates synchronously, then hand off to the queue manager in the
// background.
type Orchestrator struct {
	runs   services.RunService
	stager *Stager
	queue  *QueueManager
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(runs services.RunService, stager *Stager, queue *QueueManager) *Orchestrator {
	return &Orchestrator{
		runs:   runs,
		stager: stager,
		queue:  queue,
	}
}

// StartRun kicks off a new run. Staging runs synchronously under its own
// timeout; the publish loop is fire-and-forget so the trigger can return
// immediately.
func (o *Orchestrator) StartRun(ctx context.Context) (string, StageResult, error) {
	runGUID := uuid.NewString()

	if _, err := o.runs.Create(ctx, runGUID); err != nil {
		return "", StageResult{}, fmt.Errorf("creating run: %w", err)
	}
	log.Info().Str("run", runGUID).Msg("Starting pipeline run")

	stageCtx, cancel := context.WithTimeout(ctx, stagerTimeout)
	defer cancel()

	result, err := o.stager.Run(stageCtx)
	if err != nil {
		return runGUID, result, fmt.Errorf("staging run %s: %w", runGUID, err)
	}

	if err := o.runs.SetStatus(ctx, runGUID, models.RunStatusRunning); err != nil {
		return runGUID, result, fmt.Errorf("marking run %s running: %w", runGUID, err)
	}

	// The publish loop outlives the HTTP request that triggered it.
	go func() {
		if err := o.queue.Run(context.Background(), runGUID); err != nil {
			log.Error().Err(err).Str("run", runGUID).Msg("Publish loop exited with error; run left non-terminal")
		}
	}()

	return runGUID, result, nil
}

// Reset wipes all transactional pipeline data via the reset procedure.
func (o *Orchestrator) Reset(ctx context.Context) error {
	return o.runs.ResetPipelineData(ctx)
}

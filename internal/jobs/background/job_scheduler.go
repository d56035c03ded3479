package background

import (
	"context"
	"log"
	"sync"
	"time"

	"edusync/internal/jobs"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// JobScheduler hosts the periodic jobs of the sync engine. The expiry
// sweep runs in singleton mode so overlapping runs cannot race each other
// within this process.
type JobScheduler struct {
	scheduler     gocron.Scheduler
	sweeper       *jobs.ExpirySweeper
	sweepInterval time.Duration
	jobsByName    map[string]gocron.Job
	mu            sync.RWMutex
}

// NewJobScheduler creates a scheduler with the expiry sweep registered.
func NewJobScheduler(sweeper *jobs.ExpirySweeper, sweepInterval time.Duration, clock clockwork.Clock) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, err
	}

	js := &JobScheduler{
		scheduler:     scheduler,
		sweeper:       sweeper,
		sweepInterval: sweepInterval,
		jobsByName:    make(map[string]gocron.Job),
	}

	js.registerJobs()
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler (sweep interval %s)", js.sweepInterval)
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() {
	sweepJob, err := js.scheduler.NewJob(
		gocron.DurationJob(js.sweepInterval),
		gocron.NewTask(js.runExpirySweep, context.Background()),
		gocron.WithName("entitlement-expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create expiry sweep job: %v", err)
	} else {
		js.jobsByName["expiry-sweep"] = sweepJob
	}

	log.Printf("Registered %d background jobs", len(js.jobsByName))
}

func (js *JobScheduler) runExpirySweep(ctx context.Context) error {
	result, err := js.sweeper.Sweep(ctx)
	if err != nil {
		log.Printf("Expiry sweep failed: %v", err)
		return err
	}
	if result.TenantsFound > 0 {
		log.Printf("Expiry sweep handled %d due tenants (%d students)", result.TenantsFound, result.StudentsSynced)
	}
	return nil
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	jobNames := make([]string, 0, len(js.jobsByName))
	for name := range js.jobsByName {
		jobNames = append(jobNames, name)
	}

	return map[string]interface{}{
		"total_jobs":     len(js.jobsByName),
		"jobs":           jobNames,
		"sweep_interval": js.sweepInterval.String(),
	}
}

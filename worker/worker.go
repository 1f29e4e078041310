// Package worker runs agent jobs: one LiveKit room connection plus a
// conversation pipeline per job, with graceful drain on shutdown.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/roomio"
	"github.com/aurelia-labs/voicekit/usecase"
)

// Runner is the conversation pipeline a job drives. Both the STT/LLM/TTS
// pipeline and the realtime speech-to-speech service satisfy it.
type Runner interface {
	Run(ctx context.Context, input <-chan entities.AudioFrame, sink usecase.AudioSink, roomID, participant string) error
}

const (
	defaultDrainTimeout    = time.Minute
	participantWaitTimeout = 5 * time.Minute
)

// Options configures a worker.
type Options struct {
	// URL is the LiveKit server websocket URL.
	URL       string
	APIKey    string
	APISecret string
	// Identity is the agent participant identity published into rooms.
	Identity string
	// DrainTimeout bounds how long Drain waits for running jobs.
	// Zero selects one minute; negative drains immediately.
	DrainTimeout time.Duration
}

// Validate checks required connection settings.
func (o *Options) Validate() error {
	if o.URL == "" {
		return fmt.Errorf("LiveKit URL is required (set LIVEKIT_URL or --url)")
	}
	if o.APIKey == "" {
		return fmt.Errorf("LiveKit API key is required (set LIVEKIT_API_KEY or --api-key)")
	}
	if o.APISecret == "" {
		return fmt.Errorf("LiveKit API secret is required (set LIVEKIT_API_SECRET or --api-secret)")
	}
	return nil
}

// Worker launches and tracks agent jobs.
type Worker struct {
	opts   Options
	runner Runner
	logger *zap.Logger

	mu       sync.Mutex
	jobs     map[string]*job
	draining bool
	wg       sync.WaitGroup
}

type job struct {
	room    string
	started time.Time
	cancel  context.CancelFunc
}

// New creates a worker.
func New(opts Options, runner Runner, logger *zap.Logger) (*Worker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.DrainTimeout == 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}

	return &Worker{
		opts:   opts,
		runner: runner,
		logger: logger,
		jobs:   make(map[string]*job),
	}, nil
}

// Launch connects to a room and runs the conversation pipeline for it.
// participantIdentity optionally pins the job to one participant; empty
// links to the first participant that joins.
func (w *Worker) Launch(ctx context.Context, roomName, participantIdentity string) error {
	w.mu.Lock()
	if w.draining {
		w.mu.Unlock()
		return fmt.Errorf("worker is draining, not accepting jobs")
	}
	if _, exists := w.jobs[roomName]; exists {
		w.mu.Unlock()
		return fmt.Errorf("job already running for room %s", roomName)
	}
	w.mu.Unlock()

	rio, err := roomio.Connect(ctx, roomio.Options{
		URL:                 w.opts.URL,
		APIKey:              w.opts.APIKey,
		APISecret:           w.opts.APISecret,
		RoomName:            roomName,
		Identity:            w.opts.Identity,
		ParticipantIdentity: participantIdentity,
	}, w.logger)
	if err != nil {
		return err
	}

	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{room: roomName, started: time.Now(), cancel: cancel}

	w.mu.Lock()
	w.jobs[roomName] = j
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()
		defer rio.Close()
		defer func() {
			w.mu.Lock()
			delete(w.jobs, roomName)
			w.mu.Unlock()
		}()

		waitCtx, waitCancel := context.WithTimeout(jobCtx, participantWaitTimeout)
		participant, err := rio.Input().WaitForParticipant(waitCtx)
		waitCancel()
		if err != nil {
			w.logger.Warn("Job ended before a participant joined",
				zap.String("room", roomName),
				zap.Error(err))
			return
		}

		w.logger.Info("Job started",
			zap.String("room", roomName),
			zap.String("participant", participant.Identity()))

		err = w.runner.Run(jobCtx, rio.Input().Frames(), rio.Output(), roomName, participant.Identity())
		if err != nil && jobCtx.Err() == nil {
			w.logger.Error("Job failed", zap.String("room", roomName), zap.Error(err))
			return
		}
		w.logger.Info("Job finished", zap.String("room", roomName))
	}()

	return nil
}

// ActiveJobs returns the number of running jobs.
func (w *Worker) ActiveJobs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.jobs)
}

// State reports worker state for the debug endpoint.
func (w *Worker) State() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	rooms := make([]string, 0, len(w.jobs))
	for room := range w.jobs {
		rooms = append(rooms, room)
	}
	return map[string]interface{}{
		"active_jobs": len(w.jobs),
		"rooms":       rooms,
		"draining":    w.draining,
	}
}

// Drain stops accepting new jobs and waits for running ones to finish,
// up to the drain timeout. Jobs still running after that are cancelled.
func (w *Worker) Drain(ctx context.Context) error {
	w.mu.Lock()
	w.draining = true
	active := len(w.jobs)
	w.mu.Unlock()

	w.logger.Info("Draining worker", zap.Int("active_jobs", active))

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timeout := w.opts.DrainTimeout
	if timeout < 0 {
		timeout = 0
	}
	select {
	case <-done:
		w.logger.Info("Worker drained")
		return nil
	case <-time.After(timeout):
	case <-ctx.Done():
	}

	// Force-cancel whatever is left.
	w.mu.Lock()
	for _, j := range w.jobs {
		j.cancel()
	}
	w.mu.Unlock()
	<-done
	w.logger.Info("Worker drained after cancelling remaining jobs")
	return nil
}

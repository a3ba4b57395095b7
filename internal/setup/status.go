package setup

import (
	"errors"
	"time"
)

// State is the lifecycle state of a Runner.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateDeclined  State = "declined"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Status is a point-in-time view of a run, served by the status server.
type Status struct {
	RunID     string    `json:"run_id"`
	State     State     `json:"state"`
	Step      Step      `json:"step,omitempty"`
	Percent   int       `json:"percent"`
	Label     string    `json:"label,omitempty"`
	Channels  int       `json:"channels"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Status returns a snapshot of the run.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Runner) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State != StateIdle {
		return false
	}
	now := time.Now()
	r.status.State = StateRunning
	r.status.StartedAt = now
	r.stepStart = now
	return true
}

// enter marks the start of step, closing the timing of the previous one.
func (r *Runner) enter(step Step, percent int, label string) {
	r.mu.Lock()
	prev, started := r.status.Step, r.stepStart
	r.status.Step = step
	r.stepStart = time.Now()
	r.mu.Unlock()

	if prev != "" {
		r.cfg.Metrics.ObserveStep(string(prev), time.Since(started))
	}
	r.log.WithField("step", string(step)).Debug("setup step")
	r.progress(percent, label)
}

func (r *Runner) progress(percent int, label string) {
	r.mu.Lock()
	r.status.Percent = percent
	r.status.Label = label
	r.mu.Unlock()
	r.cfg.Dialogs.Progress(percent, label)
}

func (r *Runner) setChannels(n int) {
	r.mu.Lock()
	r.status.Channels = n
	r.mu.Unlock()
}

func (r *Runner) end(err error) {
	state := Outcome(err)

	r.mu.Lock()
	step, started := r.status.Step, r.stepStart
	r.status.State = state
	r.status.EndedAt = time.Now()
	if err != nil {
		r.status.Error = err.Error()
	}
	r.mu.Unlock()

	if step != "" {
		r.cfg.Metrics.ObserveStep(string(step), time.Since(started))
	}
	r.cfg.Metrics.RunFinished(string(state))

	log := r.log.WithField("outcome", string(state))
	switch state {
	case StateFailed:
		log.WithError(err).Error("setup failed")
	case StateCancelled, StateDeclined:
		log.Info("setup stopped")
	}
}

// Outcome returns the run outcome for err as returned by Run.
func Outcome(err error) State {
	switch {
	case err == nil:
		return StateCompleted
	case errors.Is(err, ErrDeclined):
		return StateDeclined
	case errors.Is(err, ErrCancelled):
		return StateCancelled
	default:
		return StateFailed
	}
}

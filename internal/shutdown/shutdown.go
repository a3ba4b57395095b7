// Package shutdown turns SIGINT/SIGTERM into cooperative cancellation.
//
// The first signal cancels the run context; the run stops at its next
// checkpoint. A second signal, or the grace period running out, exits the
// process immediately.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// ExitCode is used for a forced exit.
const ExitCode = 130

// Notify cancels via cancel on the first SIGINT or SIGTERM and forces an
// exit on the second or after grace. Call the returned stop func once the
// run is over.
func Notify(cancel context.CancelFunc, grace time.Duration, log *logrus.Entry) (stop func()) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go watch(sigs, done, cancel, grace, os.Exit, log)
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func watch(sigs <-chan os.Signal, done <-chan struct{}, cancel context.CancelFunc, grace time.Duration, exit func(int), log *logrus.Entry) {
	var sig os.Signal
	select {
	case sig = <-sigs:
	case <-done:
		return
	}
	log.WithFields(logrus.Fields{
		"signal": sig.String(),
		"grace":  grace.String(),
	}).Warn("signal received, stopping after the current step")
	cancel()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case sig = <-sigs:
		log.WithField("signal", sig.String()).Error("second signal, forcing exit")
	case <-timer.C:
		log.Error("shutdown timed out, forcing exit")
	case <-done:
		return
	}
	exit(ExitCode)
}

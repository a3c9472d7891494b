package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/irctrakz/wgexporter/pkg/command"
	"github.com/irctrakz/wgexporter/pkg/dump"
	"github.com/irctrakz/wgexporter/pkg/logging"
	"github.com/sirupsen/logrus"
)

// RefresherOptions tunes the refresh loop.
type RefresherOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	Now      func() time.Time
}

// Refresher periodically runs the status command, parses its output and
// installs the result in a Store. At most one refresh runs at a time.
type Refresher struct {
	runner   command.Runner
	argv     []string
	store    *Store
	metrics  *SelfMetrics
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      *logrus.Entry

	inflight atomic.Bool
	failures atomic.Int64

	// last reported counts, so a dump that stays malformed warns once
	lastSkipped    atomic.Int64
	lastMismatched atomic.Int64
}

// NewRefresher returns a refresher that runs argv through runner and stores
// the parsed result in store. A nil metrics gets an unregistered set, so
// counting still works but nothing is exported. Zero options fall back to a
// 15s interval with the timeout equal to the interval.
func NewRefresher(runner command.Runner, argv []string, store *Store, metrics *SelfMetrics, opts RefresherOptions) *Refresher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.Interval
	}
	if len(argv) == 0 {
		argv = command.DefaultCommand
	}
	if metrics == nil {
		metrics = NewSelfMetrics("")
	}
	if opts.Timeout > opts.Interval {
		logging.Warnf("refresh timeout %s exceeds interval %s; ticks will be skipped while a refresh hangs", opts.Timeout, opts.Interval)
	}
	return &Refresher{
		runner:   runner,
		argv:     append([]string(nil), argv...),
		store:    store,
		metrics:  metrics,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		now:      opts.Now,
		log:      logging.WithComponent("refresher"),
	}
}

// Run refreshes immediately and then on every interval until ctx is done.
// Each tick runs in its own goroutine so a slow command never delays the
// ticker; ticks that find a refresh in flight are dropped.
func (r *Refresher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	spawn := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Tick(ctx)
		}()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Infof("refreshing every %s with %q", r.interval, command.String(r.argv))
	spawn()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			spawn()
		}
	}
}

// Tick runs one refresh unless another is in flight. It reports whether a
// refresh was attempted.
func (r *Refresher) Tick(ctx context.Context) bool {
	if !r.inflight.CompareAndSwap(false, true) {
		r.metrics.RefreshSkipped.Inc()
		r.log.Debug("previous refresh still running, skipping tick")
		return false
	}
	defer r.inflight.Store(false)
	_ = r.Refresh(ctx)
	return true
}

// Refresh runs the status command once. On failure the stored snapshot is
// left untouched and the error counter incremented.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := r.now()
	defer func() {
		r.metrics.LastDuration.Set(r.now().Sub(start).Seconds())
	}()
	r.metrics.RefreshTotal.Inc()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.runner.Output(ctx, r.argv[0], r.argv[1:]...)
	if err == nil && len(bytes.TrimSpace(out)) == 0 {
		err = &command.UpstreamCommandError{Command: command.String(r.argv), Err: command.ErrEmptyOutput}
	}
	if err != nil {
		var ce *command.UpstreamCommandError
		if !errors.As(err, &ce) {
			err = &command.UpstreamCommandError{Command: command.String(r.argv), ExitCode: -1, Err: err}
		}
		return r.fail(err)
	}

	snap, err := dump.ParseAt(out, start)
	if err != nil {
		return r.fail(fmt.Errorf("parse status output: %w", err))
	}
	r.report(snap)

	r.store.Swap(snap)
	r.metrics.LastSuccess.Set(float64(start.Unix()))
	r.metrics.Up.Set(1)
	if n := r.failures.Swap(0); n > 0 {
		r.log.Infof("refresh recovered after %d failures", n)
	}
	r.log.WithFields(logrus.Fields{
		"peers":      len(snap.Peers()),
		"interfaces": len(snap.Interfaces()),
	}).Debug("snapshot refreshed")
	return nil
}

func (r *Refresher) fail(err error) error {
	r.metrics.RefreshErrors.Inc()
	n := r.failures.Add(1)
	r.log.WithFields(logrus.Fields{
		"error":                err.Error(),
		"consecutive_failures": n,
		"serving_previous":     r.store.Ready(),
	}).Warn("refresh failed")
	return err
}

// report logs what the parser dropped and interfaces whose keys disagree.
// Lines are logged at warn when the count changed since the previous
// refresh and at debug otherwise.
func (r *Refresher) report(snap *dump.Snapshot) {
	skipped := snap.Skipped()
	r.metrics.SkippedLines.Add(float64(len(skipped)))
	level := logrus.DebugLevel
	if r.lastSkipped.Swap(int64(len(skipped))) != int64(len(skipped)) {
		level = logrus.WarnLevel
	}
	for _, e := range skipped {
		fields := logrus.Fields{"reason": e.Error()}
		var pe *dump.ParseError
		var fe *dump.FieldDecodeError
		switch {
		case errors.As(e, &pe):
			fields["line"] = pe.Line
			fields["fields"] = pe.Fields
		case errors.As(e, &fe):
			fields["line"] = fe.Line
			fields["field"] = fe.Field
		}
		r.log.WithFields(fields).Log(level, "skipping dump line")
	}

	var mismatched []string
	for _, iface := range snap.Interfaces() {
		if iface.KeyMismatch() {
			mismatched = append(mismatched, iface.Interface)
		}
	}
	level = logrus.DebugLevel
	if r.lastMismatched.Swap(int64(len(mismatched))) != int64(len(mismatched)) {
		level = logrus.WarnLevel
	}
	for _, name := range mismatched {
		r.log.WithField("interface", name).Log(level, "interface public key does not match its private key")
	}
}

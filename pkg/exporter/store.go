// Package exporter turns parsed wg dumps into Prometheus series: a refresh
// loop keeps the latest snapshot in a Store and a Collector projects it on
// every scrape.
package exporter

import (
	"sync/atomic"

	"github.com/irctrakz/wgexporter/pkg/dump"
)

// Store holds the current snapshot. Readers see either the previous or the
// next snapshot in full, never a mix.
type Store struct {
	snap atomic.Pointer[dump.Snapshot]
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{} }

// Load returns the current snapshot, or nil before the first refresh.
func (s *Store) Load() *dump.Snapshot { return s.snap.Load() }

// Swap installs snap and returns the one it replaced.
func (s *Store) Swap(snap *dump.Snapshot) *dump.Snapshot { return s.snap.Swap(snap) }

// Ready reports whether a snapshot has been stored.
func (s *Store) Ready() bool { return s.snap.Load() != nil }

package server

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/giantswarm/version-matrix/internal/cluster"
	"github.com/giantswarm/version-matrix/internal/llm"
)

// ServerContext holds shared dependencies for MCP tool handlers.
type ServerContext struct {
	ClusterManager *cluster.Manager
	LLMClient      llm.Client
	Namespace      string
	OutputDir      string
	SuitesDir      string // external test suites directory (optional)
	ReferenceDir   string // stored reference snapshots (optional)
	HistoryDB      string // run history database (optional)

	once    sync.Once
	runs    *semaphore.Weighted
	running atomic.Bool
}

// TryStartRun claims the single matrix run slot. Sessions own the process
// working directory, so runs never overlap. The returned function releases
// the slot.
func (sc *ServerContext) TryStartRun() (release func(), ok bool) {
	sc.once.Do(func() { sc.runs = semaphore.NewWeighted(1) })
	if !sc.runs.TryAcquire(1) {
		return nil, false
	}
	sc.running.Store(true)
	var done sync.Once
	return func() {
		done.Do(func() {
			sc.running.Store(false)
			sc.runs.Release(1)
		})
	}, true
}

// Running reports whether a matrix run holds the slot.
func (sc *ServerContext) Running() bool {
	return sc.running.Load()
}

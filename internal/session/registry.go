// Package session tracks debug-target lifecycle: which instrumented runs are
// live, when their endpoints become known, and when they end. It is the
// event source the launch coordinator consumes.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/vburojevic/dth/internal/domain"
)

// Sink receives target lifecycle events, ordered per target: endpoint
// events always precede the end event.
type Sink interface {
	HandleEndpointKnown(ctx context.Context, target *domain.DebugTarget)
	HandleTargetEnded(target *domain.DebugTarget)
}

// Registry owns the set of debug targets for this process.
type Registry struct {
	mu      sync.Mutex
	targets map[string]*domain.DebugTarget
	sink    Sink
	log     *zap.Logger
}

// NewRegistry creates an empty registry forwarding events to sink.
func NewRegistry(sink Sink, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		targets: make(map[string]*domain.DebugTarget),
		sink:    sink,
		log:     log,
	}
}

// Start registers a new debug target.
func (r *Registry) Start(name, projectRoot string, flutter bool) *domain.DebugTarget {
	target := domain.NewDebugTarget(name, projectRoot)
	target.Flutter = flutter

	r.mu.Lock()
	r.targets[target.ID] = target
	r.mu.Unlock()

	r.log.Debug("debug target started",
		zap.String("id", target.ID), zap.String("name", name))
	return target
}

// EndpointKnown records a target's live endpoint and notifies the sink.
func (r *Registry) EndpointKnown(ctx context.Context, id, uri string) error {
	target, ok := r.get(id)
	if !ok {
		return fmt.Errorf("unknown debug target %q", id)
	}
	target.SetEndpoint(uri)
	r.log.Debug("debug target endpoint known",
		zap.String("id", id), zap.String("uri", uri))
	if r.sink != nil {
		r.sink.HandleEndpointKnown(ctx, target)
	}
	return nil
}

// End marks a target ended and notifies the sink. The target stays in the
// registry so panels bound to it can still be matched for reuse.
func (r *Registry) End(id string) error {
	target, ok := r.get(id)
	if !ok {
		return fmt.Errorf("unknown debug target %q", id)
	}
	target.MarkEnded()
	if r.sink != nil {
		r.sink.HandleTargetEnded(target)
	}
	r.log.Debug("debug target ended", zap.String("id", id))
	return nil
}

// Get returns the target with the given id.
func (r *Registry) Get(id string) (*domain.DebugTarget, bool) {
	return r.get(id)
}

// Live returns targets that have not ended, in no particular order.
func (r *Registry) Live() []*domain.DebugTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(lo.Values(r.targets), func(t *domain.DebugTarget, _ int) bool {
		return !t.Ended()
	})
}

// Stats returns counts of live and ended targets.
func (r *Registry) Stats() (live, ended int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.targets {
		if t.Ended() {
			ended++
		} else {
			live++
		}
	}
	return live, ended
}

func (r *Registry) get(id string) (*domain.DebugTarget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[id]
	return t, ok
}

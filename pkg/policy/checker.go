package policy

import (
	"sort"

	"github.com/cuemby/corral/pkg/log"
	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

// Checker runs the BEFORE/AFTER policy check pipeline for a cluster.
type Checker struct {
	store    storage.Store
	registry *Registry
}

// NewChecker creates a checker over the given store and registry
func NewChecker(store storage.Store, registry *Registry) *Checker {
	return &Checker{store: store, registry: registry}
}

// Check enumerates the cluster's enabled policy bindings in priority order
// (descending, ties broken by binding creation order), invokes PreOp or
// PostOp on each policy whose targets include (phase, verb), and returns
// the final envelope. The first CHECK_FAILED stops the pipeline.
func (c *Checker) Check(clusterID string, phase Phase, action *types.Action) (*Data, error) {
	data := NewData()

	bindings, err := c.store.ListClusterPolicies(clusterID)
	if err != nil {
		return nil, err
	}

	enabled := bindings[:0]
	for _, b := range bindings {
		if b.Enabled {
			enabled = append(enabled, b)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority > enabled[j].Priority
		}
		return enabled[i].CreatedAt.Before(enabled[j].CreatedAt)
	})

	for _, binding := range enabled {
		row, err := c.store.GetPolicy(binding.PolicyID, false)
		if err != nil {
			return nil, err
		}
		p, err := c.registry.New(row)
		if err != nil {
			return nil, err
		}
		if !TargetsInclude(p, phase, action.Action) {
			continue
		}

		logger := log.WithClusterID(clusterID)
		logger.Debug().
			Str("policy", row.Name).
			Str("phase", string(phase)).
			Str("verb", string(action.Action)).
			Msg("policy check")

		if phase == PhaseBefore {
			err = p.PreOp(clusterID, action, data)
		} else {
			err = p.PostOp(clusterID, action, data)
		}
		if err != nil {
			return nil, err
		}
		if data.Status == CheckFailed {
			metrics.PolicyCheckFailures.WithLabelValues(string(phase)).Inc()
			break
		}
	}

	return data, nil
}

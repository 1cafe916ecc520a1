package policy

import (
	"sort"
	"sync"
	"time"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/types"
)

// Phase is one of the two hook points around a verb handler
type Phase string

const (
	PhaseBefore Phase = "BEFORE"
	PhaseAfter  Phase = "AFTER"
)

// CheckStatus is the outcome of a policy check
type CheckStatus string

const (
	CheckOK     CheckStatus = "CHECK_OK"
	CheckFailed CheckStatus = "CHECK_FAILED"
)

// Target declares when a policy must run
type Target struct {
	Phase  Phase
	Action types.ActionName
}

// DeletionData carries deletion hints produced by policy checking
type DeletionData struct {
	Count                int
	Candidates           []string
	DestroyAfterDeletion bool
	GracePeriod          time.Duration
}

// CreationData carries creation hints produced by policy checking
type CreationData struct {
	Count     int
	Placement []map[string]interface{}
}

// Data is the policy envelope threaded through the check pipeline and into
// the verb handler. Policies mutate it in place; a CHECK_FAILED status
// stops the pipeline.
type Data struct {
	Status   CheckStatus
	Reason   string
	Deletion *DeletionData
	Creation *CreationData
}

// NewData returns an envelope in the CHECK_OK state
func NewData() *Data {
	return &Data{Status: CheckOK}
}

// Fail marks the envelope CHECK_FAILED with the given reason
func (d *Data) Fail(reason string) {
	d.Status = CheckFailed
	d.Reason = reason
}

// Policy is the plugin interface for cluster policies. PreOp and PostOp
// mutate the envelope and may mark it CHECK_FAILED; an error return is
// reserved for internal failures.
type Policy interface {
	Type() string
	Targets() []Target
	Attach(cluster *types.Cluster, data *Data) error
	Detach(cluster *types.Cluster, data *Data) error
	PreOp(clusterID string, action *types.Action, data *Data) error
	PostOp(clusterID string, action *types.Action, data *Data) error
}

// TargetsInclude reports whether the policy declares (phase, verb)
func TargetsInclude(p Policy, phase Phase, verb types.ActionName) bool {
	for _, t := range p.Targets() {
		if t.Phase == phase && t.Action == verb {
			return true
		}
	}
	return false
}

// Constructor builds a policy plugin bound to one policy row
type Constructor func(policy *types.Policy) (Policy, error)

type registration struct {
	ctor   Constructor
	schema map[string]interface{}
}

// Registry maps policy type names to constructors, seeded explicitly at
// startup.
type Registry struct {
	mu    sync.RWMutex
	types map[string]registration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]registration)}
}

// Register adds a policy type. Registering the same name twice is a
// Conflict.
func (r *Registry) Register(name string, ctor Constructor, schema map[string]interface{}) error {
	if name == "" {
		return errdefs.Validation("policy type name not specified")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[name]; exists {
		return errdefs.Conflict("policy type %q already registered", name)
	}
	r.types[name] = registration{ctor: ctor, schema: schema}
	return nil
}

// New constructs a policy plugin for the row's type
func (r *Registry) New(row *types.Policy) (Policy, error) {
	r.mu.RLock()
	reg, ok := r.types[row.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, errdefs.Validation("unknown policy type: %s", row.Type)
	}
	return reg.ctor(row)
}

// Types returns the registered type names, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the spec schema for a registered type
func (r *Registry) Schema(name string) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[name]
	if !ok {
		return nil, errdefs.NotFound("unknown policy type: %s", name)
	}
	return reg.schema, nil
}

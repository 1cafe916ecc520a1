package profile

import (
	"sync"
	"time"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/scheduler"
	"github.com/cuemby/corral/pkg/types"
	"github.com/google/uuid"
)

// StackTypeName is the built-in profile type realizing each node as a
// template stack in the provisioning backend.
const StackTypeName = "stack"

// StackSchema describes the spec keys accepted by the stack profile type
var StackSchema = map[string]interface{}{
	"template":         map[string]interface{}{"type": "map", "required": true, "description": "stack template"},
	"parameters":       map[string]interface{}{"type": "map", "description": "parameters passed to stack operations"},
	"files":            map[string]interface{}{"type": "map", "description": "contents of files referenced by the template"},
	"timeout":          map[string]interface{}{"type": "integer", "description": "minutes before a stack operation times out"},
	"disable_rollback": map[string]interface{}{"type": "boolean", "default": true},
	"environment":      map[string]interface{}{"type": "map", "description": "environment used for stack operations"},
}

type stackState struct {
	verb     string
	started  time.Time
	deadline time.Time
	failed   bool
}

// StackBackend simulates the provisioning system that realizes stacks. Each
// operation completes after the configured latency; tests can force the
// next operation to fail. The backend shares the engine clock so fake
// clocks drive it deterministically.
type StackBackend struct {
	mu       sync.Mutex
	clock    scheduler.Clock
	latency  time.Duration
	failNext bool
	stacks   map[string]*stackState
}

// NewStackBackend creates a backend with the given operation latency
func NewStackBackend(clock scheduler.Clock, latency time.Duration) *StackBackend {
	return &StackBackend{
		clock:   clock,
		latency: latency,
		stacks:  make(map[string]*stackState),
	}
}

// FailNext makes the next initiated operation end in <VERB>_FAILED
func (b *StackBackend) FailNext() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = true
}

// SetLatency changes how long operations take to complete
func (b *StackBackend) SetLatency(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latency = d
}

func (b *StackBackend) begin(id, verb string) {
	now := b.clock.Now()
	b.stacks[id] = &stackState{
		verb:     verb,
		started:  now,
		deadline: now.Add(b.latency),
		failed:   b.failNext,
	}
	b.failNext = false
}

// CreateStack initiates stack creation and returns the new physical id
func (b *StackBackend) CreateStack() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New().String()
	b.begin(id, VerbCreate)
	return id
}

// DeleteStack initiates deletion of an existing stack
func (b *StackBackend) DeleteStack(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.stacks[id]; !ok {
		return errdefs.NotFound("stack not found: %s", id)
	}
	b.begin(id, VerbDelete)
	return nil
}

// UpdateStack initiates an in-place update of an existing stack
func (b *StackBackend) UpdateStack(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.stacks[id]; !ok {
		return errdefs.NotFound("stack not found: %s", id)
	}
	b.begin(id, VerbUpdate)
	return nil
}

// Status reports the stack's current "<VERB>_<STAGE>" status word
func (b *StackBackend) Status(id string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.stacks[id]
	if !ok {
		return "", errdefs.NotFound("stack not found: %s", id)
	}
	if b.clock.Now().Before(st.deadline) {
		return st.verb + "_" + StageInProgress, nil
	}
	if st.failed {
		return st.verb + "_" + StageFailed, nil
	}
	return st.verb + "_" + StageComplete, nil
}

// StackDriver realizes nodes as stacks in a StackBackend
type StackDriver struct {
	profile *types.Profile
	backend *StackBackend
}

// NewStackConstructor returns a Constructor binding drivers to the backend
func NewStackConstructor(backend *StackBackend) Constructor {
	return func(p *types.Profile) (Driver, error) {
		if p.Spec == nil || p.Spec["template"] == nil {
			return nil, errdefs.Validation("stack profile %s has no template", p.ID)
		}
		return &StackDriver{profile: p, backend: backend}, nil
	}
}

func (d *StackDriver) Create(node *types.Node) (string, error) {
	return d.backend.CreateStack(), nil
}

func (d *StackDriver) Delete(node *types.Node) error {
	if node.PhysicalID == "" {
		return nil
	}
	return d.backend.DeleteStack(node.PhysicalID)
}

func (d *StackDriver) Update(node *types.Node, newProfile *types.Profile) error {
	if node.PhysicalID == "" {
		return nil
	}
	return d.backend.UpdateStack(node.PhysicalID)
}

func (d *StackDriver) Check(node *types.Node) (string, error) {
	return d.backend.Status(node.PhysicalID)
}

func (d *StackDriver) Validate(node *types.Node) error {
	if d.profile.Spec["template"] == nil {
		return errdefs.Validation("stack profile %s has no template", d.profile.ID)
	}
	return nil
}

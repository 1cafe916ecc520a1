package profile

import (
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/types"
)

// Driver stages. A driver reports progress as a "<VERB>_<STAGE>" status
// word, e.g. CREATE_IN_PROGRESS or DELETE_COMPLETE.
const (
	StageInProgress = "IN_PROGRESS"
	StageComplete   = "COMPLETE"
	StageFailed     = "FAILED"
)

// Driver verbs
const (
	VerbCreate = "CREATE"
	VerbDelete = "DELETE"
	VerbUpdate = "UPDATE"
)

// Driver realizes nodes in an external provisioning system. Create, Delete
// and Update initiate work; Check reports the backing artifact's status as
// a "<VERB>_<STAGE>" word that the node executor polls.
type Driver interface {
	Create(node *types.Node) (string, error)
	Delete(node *types.Node) error
	Update(node *types.Node, newProfile *types.Profile) error
	Check(node *types.Node) (string, error)
	Validate(node *types.Node) error
}

// ParseStatus splits a driver status word into verb and stage
func ParseStatus(status string) (verb, stage string, err error) {
	parts := strings.SplitN(status, "_", 2)
	if len(parts) != 2 {
		return "", "", errdefs.DriverFailure("unparseable driver status %q", status)
	}
	return parts[0], parts[1], nil
}

// CheckComplete interprets a driver status word against the verb the caller
// expects. It returns true when the operation completed, false while it is
// in progress, and an error on failure or on a verb mismatch, which is a
// hard error: it means the backing artifact is being driven by something
// else.
func CheckComplete(status, expectedVerb string) (bool, error) {
	verb, stage, err := ParseStatus(status)
	if err != nil {
		return false, err
	}
	if verb != expectedVerb {
		return false, errdefs.DriverFailure(
			"driver action mismatch: expected=%s actual=%s", expectedVerb, verb)
	}
	switch stage {
	case StageInProgress:
		return false, nil
	case StageComplete:
		return true, nil
	case StageFailed:
		return false, errdefs.DriverFailure("driver reported %s", status)
	default:
		return false, errdefs.DriverFailure("unknown driver stage %q", stage)
	}
}

// Constructor builds a driver bound to one profile row
type Constructor func(profile *types.Profile) (Driver, error)

type registration struct {
	ctor   Constructor
	schema map[string]interface{}
}

// Registry maps profile type names to driver constructors. Types are
// registered explicitly at startup; there is no runtime discovery.
type Registry struct {
	mu    sync.RWMutex
	types map[string]registration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]registration)}
}

// Register adds a profile type. Registering the same name twice is a
// Conflict.
func (r *Registry) Register(name string, ctor Constructor, schema map[string]interface{}) error {
	if name == "" {
		return errdefs.Validation("profile type name not specified")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[name]; exists {
		return errdefs.Conflict("profile type %q already registered", name)
	}
	r.types[name] = registration{ctor: ctor, schema: schema}
	return nil
}

// DriverFor constructs a driver for the profile's type
func (r *Registry) DriverFor(profile *types.Profile) (Driver, error) {
	r.mu.RLock()
	reg, ok := r.types[profile.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, errdefs.Validation("unknown profile type: %s", profile.Type)
	}
	return reg.ctor(profile)
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
		return nil, errdefs.NotFound("unknown profile type: %s", name)
	}
	return reg.schema, nil
}

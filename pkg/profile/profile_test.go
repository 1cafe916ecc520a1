package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/scheduler"
	"github.com/cuemby/corral/pkg/types"
)

func TestParseStatus(t *testing.T) {
	verb, stage, err := ParseStatus("CREATE_IN_PROGRESS")
	assert.NoError(t, err)
	assert.Equal(t, "CREATE", verb)
	assert.Equal(t, "IN_PROGRESS", stage)

	_, _, err = ParseStatus("BOGUS")
	assert.True(t, errdefs.IsDriverFailure(err))
}

func TestCheckComplete(t *testing.T) {
	done, err := CheckComplete("CREATE_IN_PROGRESS", VerbCreate)
	assert.NoError(t, err)
	assert.False(t, done)

	done, err = CheckComplete("CREATE_COMPLETE", VerbCreate)
	assert.NoError(t, err)
	assert.True(t, done)

	_, err = CheckComplete("CREATE_FAILED", VerbCreate)
	assert.True(t, errdefs.IsDriverFailure(err))

	// Verb mismatch means something else drives the artifact: hard error
	_, err = CheckComplete("DELETE_IN_PROGRESS", VerbCreate)
	assert.True(t, errdefs.IsDriverFailure(err))
	assert.Contains(t, err.Error(), "mismatch")

	_, err = CheckComplete("CREATE_EXPLODED", VerbCreate)
	assert.True(t, errdefs.IsDriverFailure(err))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	backend := NewStackBackend(scheduler.RealClock(), time.Millisecond)

	err := r.Register(StackTypeName, NewStackConstructor(backend), StackSchema)
	assert.NoError(t, err)

	// Duplicate registration is a conflict
	err = r.Register(StackTypeName, NewStackConstructor(backend), StackSchema)
	assert.True(t, errdefs.IsConflict(err))

	assert.Equal(t, []string{StackTypeName}, r.Types())

	schema, err := r.Schema(StackTypeName)
	assert.NoError(t, err)
	assert.Contains(t, schema, "template")

	_, err = r.Schema("nova")
	assert.True(t, errdefs.IsNotFound(err))

	// Unknown profile type fails construction
	_, err = r.DriverFor(&types.Profile{ID: "p1", Type: "nova"})
	assert.True(t, errdefs.IsValidation(err))
}

func TestStackDriverLifecycle(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Now())
	backend := NewStackBackend(clock, 10*time.Second)

	prof := &types.Profile{
		ID:   "p1",
		Type: StackTypeName,
		Spec: map[string]interface{}{"template": map[string]interface{}{"resources": 1}},
	}
	driver, err := NewStackConstructor(backend)(prof)
	require.NoError(t, err)

	node := &types.Node{ID: "n1"}
	physicalID, err := driver.Create(node)
	require.NoError(t, err)
	node.PhysicalID = physicalID

	// In progress until the backend latency elapses
	status, err := driver.Check(node)
	require.NoError(t, err)
	assert.Equal(t, "CREATE_IN_PROGRESS", status)

	clock.Advance(11 * time.Second)
	status, err = driver.Check(node)
	require.NoError(t, err)
	assert.Equal(t, "CREATE_COMPLETE", status)

	// Delete drives the same stack through the DELETE verb
	require.NoError(t, driver.Delete(node))
	status, err = driver.Check(node)
	require.NoError(t, err)
	assert.Equal(t, "DELETE_IN_PROGRESS", status)

	clock.Advance(11 * time.Second)
	status, err = driver.Check(node)
	require.NoError(t, err)
	assert.Equal(t, "DELETE_COMPLETE", status)
}

func TestStackBackendFailNext(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Now())
	backend := NewStackBackend(clock, time.Second)

	backend.FailNext()
	id := backend.CreateStack()

	clock.Advance(2 * time.Second)
	status, err := backend.Status(id)
	require.NoError(t, err)
	assert.Equal(t, "CREATE_FAILED", status)

	// The failure flag is one-shot
	id2 := backend.CreateStack()
	clock.Advance(2 * time.Second)
	status, err = backend.Status(id2)
	require.NoError(t, err)
	assert.Equal(t, "CREATE_COMPLETE", status)
}

func TestStackConstructorRequiresTemplate(t *testing.T) {
	backend := NewStackBackend(scheduler.RealClock(), time.Millisecond)
	_, err := NewStackConstructor(backend)(&types.Profile{ID: "p1", Type: StackTypeName})
	assert.True(t, errdefs.IsValidation(err))
}

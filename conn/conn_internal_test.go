package conn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Usub-development/upq/pgerr"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "busy", Busy.String())
	assert.Equal(t, "dirty", Dirty.String())
	assert.Equal(t, "bad", Bad.String())
	assert.Equal(t, "unknown", State(999).String())
}

func TestTryAcquireOnlySucceedsFromIdle(t *testing.T) {
	c := &Conn{}
	c.state.Store(int32(Idle))

	assert.True(t, c.TryAcquire())
	assert.Equal(t, Busy, c.State())
	assert.False(t, c.TryAcquire(), "already busy, a second acquire must fail")
}

func TestReleaseReturnsToIdleOnlyFromBusy(t *testing.T) {
	c := &Conn{}
	c.state.Store(int32(Dirty))
	c.Release()
	assert.Equal(t, Dirty, c.State(), "Release must not clear a Dirty state")

	c.state.Store(int32(Busy))
	c.Release()
	assert.Equal(t, Idle, c.State())
}

func TestMarkDeadForcesBadFromAnyState(t *testing.T) {
	c := &Conn{}
	c.state.Store(int32(InCursor))
	c.MarkDead()
	assert.Equal(t, Bad, c.State())
}

func TestDetectDirtyMarksBadOnTransportFailure(t *testing.T) {
	c := &Conn{}
	c.state.Store(int32(Busy))
	c.detectDirty(false, pgerr.ConnectionClosed)
	assert.Equal(t, Bad, c.State())

	c2 := &Conn{}
	c2.state.Store(int32(Busy))
	c2.detectDirty(false, pgerr.SocketReadFailed)
	assert.Equal(t, Bad, c2.State())
}

func TestDetectDirtyReturnsToIdleOnNonTransportError(t *testing.T) {
	c := &Conn{}
	c.state.Store(int32(Busy))
	c.detectDirty(false, pgerr.ServerError)
	assert.Equal(t, Idle, c.State())
}

func TestDetectDirtyMarksDirtyOnAwaitCanceled(t *testing.T) {
	c := &Conn{}
	c.state.Store(int32(Busy))
	c.detectDirty(false, pgerr.AwaitCanceled)
	assert.Equal(t, Dirty, c.State(), "a cancelled await leaves the socket possibly mid-command, so it must be drained before reuse, never handed back Idle")
}

func TestDrainAsyncSettlesNonIOStatesToIdle(t *testing.T) {
	c := &Conn{}
	c.state.Store(int32(Dirty))
	c.DrainAsync(context.Background())
	assert.Equal(t, Idle, c.State())
}

func TestDrainAsyncLeavesBadAlone(t *testing.T) {
	c := &Conn{}
	c.state.Store(int32(Bad))
	c.DrainAsync(context.Background())
	assert.Equal(t, Bad, c.State())
}

func TestNextCursorNameIsMonotonicallyUnique(t *testing.T) {
	c := &Conn{}
	a := c.nextCursorName()
	b := c.nextCursorName()
	assert.NotEqual(t, a, b)
}

func TestSetPipelineModeToggles(t *testing.T) {
	c := &Conn{}
	assert.False(t, c.pipelineMode())
	c.SetPipelineMode(true)
	assert.True(t, c.pipelineMode())
	c.SetPipelineMode(false)
	assert.False(t, c.pipelineMode())
}

func TestExecSimpleOnBadConnectionReturnsConnectionClosed(t *testing.T) {
	c := &Conn{}
	c.state.Store(int32(Bad))
	res := c.ExecSimple(context.Background(), "SELECT 1")
	assert.False(t, res.Ok)
	assert.Equal(t, pgerr.ConnectionClosed, res.Code)
}

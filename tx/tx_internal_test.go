package tx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Usub-development/upq/pgerr"
)

func TestIsolationSQL(t *testing.T) {
	assert.Equal(t, "READ UNCOMMITTED", ReadUncommitted.sql())
	assert.Equal(t, "READ COMMITTED", ReadCommitted.sql())
	assert.Equal(t, "REPEATABLE READ", RepeatableRead.sql())
	assert.Equal(t, "SERIALIZABLE", Serializable.sql())
	assert.Equal(t, "READ COMMITTED", Isolation(99).sql())
}

func TestFailIfClosedOnInactiveTx(t *testing.T) {
	tx := &Tx{active: false}
	err := tx.failIfClosed()
	require.Error(t, err)
	op, ok := err.(*pgerr.OpError)
	require.True(t, ok)
	assert.Equal(t, pgerr.InvalidFuture, op.Code)
}

func TestFailIfClosedOnActiveTx(t *testing.T) {
	tx := &Tx{active: true}
	assert.NoError(t, tx.failIfClosed())
}

func TestRootCounterFindsTopmostParent(t *testing.T) {
	root := &Tx{}
	mid := &Tx{parent: root}
	leaf := &Tx{parent: mid}

	assert.Same(t, root, leaf.rootCounter())
	assert.Same(t, root, mid.rootCounter())
	assert.Same(t, root, root.rootCounter())
}

func TestCommitSubtxRejectsNonSubtransaction(t *testing.T) {
	tx := &Tx{active: true}
	op := tx.CommitSubtx(nil)
	require.NotNil(t, op)
	assert.Equal(t, pgerr.InvalidFuture, op.Code)
}

func TestRollbackSubtxRejectsNonSubtransaction(t *testing.T) {
	tx := &Tx{active: true}
	op := tx.RollbackSubtx(nil)
	require.NotNil(t, op)
	assert.Equal(t, pgerr.InvalidFuture, op.Code)
}

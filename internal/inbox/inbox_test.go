package inbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInbox_PriorityOrdering(t *testing.T) {
	ib := New()

	require.NoError(t, ib.Enqueue("normal-1", PriorityNormal))
	require.NoError(t, ib.Enqueue("normal-2", PriorityNormal))
	require.NoError(t, ib.Enqueue("urgent-1", PriorityUrgent))

	got, err := ib.TakeNext()
	require.NoError(t, err)
	require.Equal(t, "urgent-1", got, "urgent task queued after normals must be taken first")
}

func TestInbox_TakeNextFailsWhenBusy(t *testing.T) {
	ib := New()
	require.NoError(t, ib.Enqueue("t1", PriorityNormal))
	require.NoError(t, ib.Enqueue("t2", PriorityNormal))

	_, err := ib.TakeNext()
	require.NoError(t, err)

	_, err = ib.TakeNext()
	require.ErrorIs(t, err, ErrBusy)
}

func TestInbox_TakeNextFailsWhenEmpty(t *testing.T) {
	ib := New()

	_, err := ib.TakeNext()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestInbox_CompleteClearsCurrentAndPromotesNext(t *testing.T) {
	ib := New()
	require.NoError(t, ib.Enqueue("t1", PriorityNormal))
	require.NoError(t, ib.Enqueue("t2", PriorityNormal))

	_, err := ib.TakeNext()
	require.NoError(t, err)

	ib.Complete()
	require.Equal(t, "", ib.Current())

	next, err := ib.TakeNext()
	require.NoError(t, err)
	require.Equal(t, "t2", next)

	completed, failed := ib.Counts()
	require.Equal(t, 1, completed)
	require.Equal(t, 0, failed)
}

func TestInbox_FIFOWithinBucket(t *testing.T) {
	ib := New()
	require.NoError(t, ib.Enqueue("a", PriorityNormal))
	require.NoError(t, ib.Enqueue("b", PriorityNormal))
	require.NoError(t, ib.Enqueue("c", PriorityNormal))

	require.Equal(t, []string{"a", "b", "c"}, ib.ListPending())
}

func TestInbox_EnqueueRejectsOverCapacity(t *testing.T) {
	ib := New()
	ib.capacity = 2

	require.NoError(t, ib.Enqueue("a", PriorityNormal))
	require.NoError(t, ib.Enqueue("b", PriorityNormal))
	require.ErrorIs(t, ib.Enqueue("c", PriorityNormal), ErrFull)
}

func TestManager_ForIsStablePerAgent(t *testing.T) {
	m := NewManager()

	ib1 := m.For("agent-1")
	ib2 := m.For("agent-1")
	require.Same(t, ib1, ib2)

	ib3 := m.For("agent-2")
	require.NotSame(t, ib1, ib3)
}

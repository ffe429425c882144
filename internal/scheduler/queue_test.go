package scheduler

import (
	"context"
	"testing"

	"github.com/seventv/deepzoom/internal/testutil"
)

func TestQueue(t *testing.T) {
	q := Queue{}
	testutil.Assert(t, (*Task)(nil), q.Pop(), "empty queue pops nothing")

	a := NewTask(context.Background(), crop("A"))
	b := NewTask(context.Background(), crop("B"))
	c := NewTask(context.Background(), crop("C"))
	q.Push(a)
	q.Push(b)
	q.Push(c)

	testutil.Assert(t, 3, q.Len(), "three queued")
	testutil.Assert(t, true, q.Remove(b.ID), "b is removed")
	testutil.Assert(t, false, q.Remove(b.ID), "b is gone")
	testutil.Assert(t, a, q.Pop(), "oldest first")

	rest := q.Drain()
	testutil.Assert(t, []*Task{c}, rest, "drain returns the rest")
	testutil.Assert(t, 0, q.Len(), "drained")
}

package priority_queue_test

import (
	"testing"

	"github.com/buildbuddy-io/buildprofiler/server/util/priority_queue"
	"github.com/stretchr/testify/assert"
)

func TestPushPop(t *testing.T) {
	q := priority_queue.New[string]()
	q.Push("A", 1)
	q.Push("E", 5)
	q.Push("D", 4)
	q.Push("B", 2)

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "E", v)

	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "D", v)

	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "B", v)

	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "A", v)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestZeroValueOnEmpty(t *testing.T) {
	q := priority_queue.New[int]()
	q.Push(1, 1)

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, v)
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := priority_queue.New[string]()
	q.Push("only", 1)

	v, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, "only", v)
	assert.Equal(t, 1, q.Len())
}

func TestGetAll(t *testing.T) {
	q := priority_queue.New[int]()
	q.Push(1, 1)
	q.Push(2, 2)
	q.Push(3, 3)
	assert.ElementsMatch(t, []int{1, 2, 3}, q.GetAll())
}

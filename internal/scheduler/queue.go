package scheduler

// Queue holds tasks waiting for a worker in submission order. It is not safe
// for concurrent use; the pool guards it with its own mutex.
type Queue struct {
	items []*Task
}

func (q *Queue) Len() int {
	return len(q.items)
}

func (q *Queue) Push(t *Task) {
	q.items = append(q.items, t)
}

// Pop removes the oldest task, or returns nil when the queue is empty.
func (q *Queue) Pop() *Task {
	if len(q.items) == 0 {
		return nil
	}

	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	return t
}

func (q *Queue) Remove(id string) bool {
	for i, t := range q.items {
		if t.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}

	return false
}

// Drain empties the queue and returns what it held, oldest first.
func (q *Queue) Drain() []*Task {
	items := q.items
	q.items = nil

	return items
}

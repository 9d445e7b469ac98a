package engine

// lotQueue is a FIFO of open lots backed by a slice; head advances on pop
// and the backing array is compacted once the dead prefix dominates.
type lotQueue struct {
	lots []Lot
	head int
}

func (q *lotQueue) Len() int {
	return len(q.lots) - q.head
}

func (q *lotQueue) Push(lot Lot) {
	q.lots = append(q.lots, lot)
}

// Front returns the oldest lot, nil when empty.
func (q *lotQueue) Front() *Lot {
	if q.Len() == 0 {
		return nil
	}
	return &q.lots[q.head]
}

func (q *lotQueue) PopFront() {
	if q.Len() == 0 {
		return
	}
	q.lots[q.head] = Lot{}
	q.head++

	// edge case: compact so long runs do not pin consumed lots
	if q.head > 32 && q.head*2 >= len(q.lots) {
		n := copy(q.lots, q.lots[q.head:])
		q.lots = q.lots[:n]
		q.head = 0
	}
}

// Snapshot copies the open lots in queue order.
func (q *lotQueue) Snapshot() []Lot {
	out := make([]Lot, q.Len())
	copy(out, q.lots[q.head:])
	return out
}

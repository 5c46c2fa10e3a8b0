package instruction

import "sync"

// StreamPair double-buffers instructions between producers and the render loop.
// Producers Push onto the producer list; once per frame the render loop calls Swap
// and then Drain, which sees a stable snapshot no producer can touch.
type StreamPair struct {
	producerMu sync.Mutex
	producer   []Instruction

	consumerMu sync.Mutex
	consumer   []Instruction
}

func NewStreamPair() *StreamPair {
	return &StreamPair{}
}

func (s *StreamPair) Push(instr Instruction) {
	if instr == nil {
		return
	}
	s.producerMu.Lock()
	s.producer = append(s.producer, instr)
	s.producerMu.Unlock()
}

// Swap exchanges the producer and consumer lists. Lock order is producer then consumer.
func (s *StreamPair) Swap() {
	s.producerMu.Lock()
	defer s.producerMu.Unlock()
	s.consumerMu.Lock()
	defer s.consumerMu.Unlock()

	s.producer, s.consumer = s.consumer, s.producer
}

// Drain calls fn for every consumer instruction in enqueue order, then clears the list.
// Returns the number of instructions drained.
func (s *StreamPair) Drain(fn func(Instruction)) int {
	s.consumerMu.Lock()
	defer s.consumerMu.Unlock()

	n := len(s.consumer)
	for i, instr := range s.consumer {
		fn(instr)
		s.consumer[i] = nil
	}
	s.consumer = s.consumer[:0]
	return n
}

// Pending returns how many instructions wait for the next Swap.
func (s *StreamPair) Pending() int {
	s.producerMu.Lock()
	defer s.producerMu.Unlock()
	return len(s.producer)
}

package audio

// SampleBuffer is a fixed-capacity ring of amplitude samples. Once full, each
// Push evicts the oldest sample. It is not safe for concurrent use; the
// pipeline controller owns it.
type SampleBuffer struct {
	data  []float64
	start int
	size  int
}

// NewSampleBuffer returns an empty buffer holding at most capacity samples.
func NewSampleBuffer(capacity int) *SampleBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &SampleBuffer{data: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample when the buffer is full.
func (b *SampleBuffer) Push(v float64) {
	if b.size < len(b.data) {
		b.data[(b.start+b.size)%len(b.data)] = v
		b.size++
		return
	}
	b.data[b.start] = v
	b.start = (b.start + 1) % len(b.data)
}

// Len returns the number of samples held.
func (b *SampleBuffer) Len() int { return b.size }

// Cap returns the buffer capacity.
func (b *SampleBuffer) Cap() int { return len(b.data) }

// Samples returns a copy of the held samples, oldest first.
func (b *SampleBuffer) Samples() []float64 {
	out := make([]float64, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.start+i)%len(b.data)]
	}
	return out
}

// Reset empties the buffer without reallocating.
func (b *SampleBuffer) Reset() {
	b.start = 0
	b.size = 0
}

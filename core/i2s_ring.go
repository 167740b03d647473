package core

import "sync"

// I2SRing is the frame queue between the command handlers and the
// peripheral. It holds DMABufCount buffers of DMABufLen frames and follows
// the DMA descriptor semantics of the configuration: on underrun it either
// sends silence (TxDescAutoClear) or replays the last buffer.
//
// One producer and one consumer may use the ring concurrently.
type I2SRing struct {
	mu        sync.Mutex
	buf       []uint32
	read      int
	count     int
	autoClear bool

	// last holds the most recent DMABufLen frames that were drained
	last       []uint32
	lastPos    int
	lastFilled int

	starved   bool // no audio since the last underrun or reset
	underruns uint32
}

// NewI2SRing allocates a ring sized from the configuration.
func NewI2SRing(cfg I2SConfig) *I2SRing {
	bufLen := int(cfg.DMABufLen)
	return &I2SRing{
		buf:       make([]uint32, int(cfg.DMABufCount)*bufLen),
		last:      make([]uint32, bufLen),
		autoClear: cfg.TxDescAutoClear,
		starved:   true,
	}
}

// Capacity returns the total number of frames the ring can hold.
func (r *I2SRing) Capacity() int {
	return len(r.buf)
}

// Queued returns the number of frames waiting to be played.
func (r *I2SRing) Queued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Free returns the number of frames that can still be written.
func (r *I2SRing) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.count
}

// Underruns returns how many times playback ran dry. A stretch of
// consecutive starved drains counts once.
func (r *I2SRing) Underruns() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.underruns
}

// Write appends frames and returns how many fit.
func (r *I2SRing) Write(frames []uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.buf) - r.count
	if n > len(frames) {
		n = len(frames)
	}
	if n == 0 {
		return 0
	}
	write := (r.read + r.count) % len(r.buf)
	for i := 0; i < n; i++ {
		r.buf[write] = frames[i]
		write++
		if write == len(r.buf) {
			write = 0
		}
	}
	r.count += n
	return n
}

// Drain fills dst completely. Queued frames come first; if they run out the
// rest of dst is silence or a replay of the last buffer, and underrun is true.
// n is the number of queued frames that were consumed.
func (r *I2SRing) Drain(dst []uint32) (n int, underrun bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n = r.count
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		f := r.buf[r.read]
		dst[i] = f
		r.read++
		if r.read == len(r.buf) {
			r.read = 0
		}
		r.remember(f)
	}
	r.count -= n
	if n > 0 {
		r.starved = false
	}

	if n == len(dst) {
		return n, false
	}

	if !r.starved {
		r.underruns++
		r.starved = true
	}
	rest := dst[n:]
	if r.autoClear || r.lastFilled < len(r.last) {
		for i := range rest {
			rest[i] = 0
		}
		return n, true
	}
	pos := r.lastPos
	for i := range rest {
		rest[i] = r.last[pos]
		pos++
		if pos == len(r.last) {
			pos = 0
		}
	}
	return n, true
}

// Take moves up to len(dst) queued frames into dst without padding.
func (r *I2SRing) Take(dst []uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		f := r.buf[r.read]
		dst[i] = f
		r.read++
		if r.read == len(r.buf) {
			r.read = 0
		}
		r.remember(f)
	}
	r.count -= n
	if n > 0 {
		r.starved = false
	}
	return n
}

// Zero drops all queued frames and forgets the replay buffer.
func (r *I2SRing) Zero() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read = 0
	r.count = 0
	r.lastPos = 0
	r.lastFilled = 0
	r.starved = true
	for i := range r.last {
		r.last[i] = 0
	}
}

// remember records a drained frame in the replay buffer.
// Must be called with lock held
func (r *I2SRing) remember(f uint32) {
	if len(r.last) == 0 {
		return
	}
	r.last[r.lastPos] = f
	r.lastPos++
	if r.lastPos == len(r.last) {
		r.lastPos = 0
	}
	if r.lastFilled < len(r.last) {
		r.lastFilled++
	}
}

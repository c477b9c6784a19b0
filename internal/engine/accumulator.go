package engine

import (
	"time"

	"github.com/canline/slcan/internal/canframe"
	"github.com/canline/slcan/internal/fifo"
	"github.com/canline/slcan/internal/respbuf"
)

// accumulatorCap is the fixed byte-accumulator capacity from the reference
// implementation (128 bytes); bytes that would overflow it are silently
// dropped, the next CR still resets the accumulator.
const accumulatorCap = 128

const (
	cr  = 0x0D
	bel = 0x07
)

// accumulator implements the per-byte reception state machine described in
// §4.5: it classifies each completed line as a CAN-frame indication, a
// transmit confirmation, or a command response/NACK, and routes it to the
// queue or the response buffer without ever blocking.
type accumulator struct {
	buf   []byte
	queue *fifo.Queue
	resp  *respbuf.Buffer
	now   func() canframe.Timestamp
}

func newAccumulator(q *fifo.Queue, r *respbuf.Buffer, now func() canframe.Timestamp) *accumulator {
	return &accumulator{buf: make([]byte, 0, accumulatorCap), queue: q, resp: r, now: now}
}

// Feed processes a block of freshly-read bytes. It must not block: the
// queue enqueue and response buffer put are both non-blocking operations.
func (a *accumulator) Feed(p []byte) {
	for _, b := range p {
		switch b {
		case cr:
			a.completeLine()
			a.buf = a.buf[:0]
		case bel:
			// NACK for a previously sent command; deliver whatever is
			// accumulated (possibly nothing but the BEL itself) then reset.
			line := append(append([]byte(nil), a.buf...), bel)
			a.resp.Put(line)
			a.buf = a.buf[:0]
		default:
			if len(a.buf) < accumulatorCap {
				a.buf = append(a.buf, b)
			}
			// else: silently drop; the next CR still resets the accumulator.
		}
	}
}

func (a *accumulator) completeLine() {
	line := a.buf
	if len(line) == 0 {
		// bare CR, e.g. a Lawicel positive ACK: deliver as a one-byte response.
		a.resp.Put([]byte{cr})
		return
	}
	switch line[0] {
	case 't', 'T', 'r', 'R':
		if len(line) > 2 {
			fr, err := DecodeFrame(line)
			if err != nil {
				// parse errors on incoming frames are silently discarded.
				return
			}
			fr.Stamp = a.now()
			a.queue.Enqueue(fr)
			return
		}
		// single-letter confirmation of a prior transmit (e.g. "z", "Z").
		a.resp.Put(append(append([]byte(nil), line...), cr))
	default:
		// response to a previously sent command.
		a.resp.Put(append(append([]byte(nil), line...), cr))
	}
}

func nowMonotonic() canframe.Timestamp {
	n := time.Now()
	return canframe.Timestamp{Sec: int64(n.Unix()), Nsec: uint32(n.Nanosecond())}
}

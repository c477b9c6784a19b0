package engine

import (
	"testing"
	"time"

	"github.com/canline/slcan/internal/canframe"
	"github.com/canline/slcan/internal/fifo"
	"github.com/canline/slcan/internal/respbuf"
)

func newTestAccumulator() (*accumulator, *fifo.Queue, *respbuf.Buffer) {
	q := fifo.New(16)
	r := respbuf.New()
	now := func() canframe.Timestamp { return canframe.Timestamp{Sec: 1} }
	return newAccumulator(q, r, now), q, r
}

func TestAccumulatorQueuesCANFrame(t *testing.T) {
	a, q, _ := newTestAccumulator()
	a.Feed([]byte("t1232AABB"))
	a.Feed([]byte{cr})
	fr, ok := q.Dequeue(fifo.NoWait)
	if !ok {
		t.Fatal("expected a queued frame")
	}
	if fr.ID != 0x123 || fr.DLC != 2 || fr.Data[0] != 0xAA || fr.Data[1] != 0xBB {
		t.Fatalf("unexpected decoded frame: %+v", fr)
	}
	if fr.Stamp.Sec != 1 {
		t.Fatalf("expected stamp to be set from now(), got %+v", fr.Stamp)
	}
}

func TestAccumulatorDiscardsMalformedFrameLine(t *testing.T) {
	a, q, r := newTestAccumulator()
	a.Feed([]byte("tZZZ1"))
	a.Feed([]byte{cr})
	if _, ok := q.Dequeue(fifo.NoWait); ok {
		t.Fatal("expected malformed frame line to be discarded, not queued")
	}
	if _, ok := r.Get(1, 10*time.Millisecond); ok {
		t.Fatal("expected malformed frame line not delivered to response buffer either")
	}
}

func TestAccumulatorSingleLetterConfirmation(t *testing.T) {
	a, q, r := newTestAccumulator()
	a.Feed([]byte("z"))
	a.Feed([]byte{cr})
	if _, ok := q.Dequeue(fifo.NoWait); ok {
		t.Fatal("single-letter confirmation must not be queued as a frame")
	}
	out, ok := r.Get(2, 10*time.Millisecond)
	if !ok || string(out) != "z\r" {
		t.Fatalf("expected confirmation \"z\\r\" in response buffer, got %q ok=%v", out, ok)
	}
}

func TestAccumulatorBareCRIsPositiveAck(t *testing.T) {
	a, _, r := newTestAccumulator()
	a.Feed([]byte{cr})
	out, ok := r.Get(1, 10*time.Millisecond)
	if !ok || len(out) != 1 || out[0] != cr {
		t.Fatalf("expected a bare CR ack, got %q ok=%v", out, ok)
	}
}

func TestAccumulatorGenericCommandResponse(t *testing.T) {
	a, _, r := newTestAccumulator()
	a.Feed([]byte("V1013"))
	a.Feed([]byte{cr})
	out, ok := r.Get(6, 10*time.Millisecond)
	if !ok || string(out) != "V1013\r" {
		t.Fatalf("expected command response \"V1013\\r\", got %q ok=%v", out, ok)
	}
}

func TestAccumulatorBELDeliversNACK(t *testing.T) {
	a, _, r := newTestAccumulator()
	a.Feed([]byte{bel})
	out, ok := r.Get(1, 10*time.Millisecond)
	if !ok || len(out) != 1 || out[0] != bel {
		t.Fatalf("expected bare BEL NACK, got %q ok=%v", out, ok)
	}
}

func TestAccumulatorBELAfterPartialLine(t *testing.T) {
	a, _, r := newTestAccumulator()
	a.Feed([]byte("S"))
	a.Feed([]byte{bel})
	out, ok := r.Get(2, 10*time.Millisecond)
	if !ok || string(out) != "S\a" {
		t.Fatalf("expected accumulated bytes plus BEL, got %q ok=%v", out, ok)
	}
}

func TestAccumulatorOverflowSilentlyDropped(t *testing.T) {
	a, _, r := newTestAccumulator()
	huge := make([]byte, accumulatorCap+50)
	for i := range huge {
		huge[i] = 'A'
	}
	huge[0] = 'V' // keep it off the t/T/r/R frame-letter path
	a.Feed(huge)
	a.Feed([]byte{cr})
	out, ok := r.Get(accumulatorCap+1, 10*time.Millisecond)
	if !ok {
		t.Fatal("expected a response despite overflow")
	}
	if len(out) != accumulatorCap+1 {
		t.Fatalf("expected accumulator to cap at %d bytes (+CR), got %d", accumulatorCap, len(out)-1)
	}
}

func TestAccumulatorResetsAfterCR(t *testing.T) {
	a, _, r := newTestAccumulator()
	a.Feed([]byte("V1013"))
	a.Feed([]byte{cr})
	r.Get(6, 10*time.Millisecond)
	a.Feed([]byte("N1234"))
	a.Feed([]byte{cr})
	out, ok := r.Get(6, 10*time.Millisecond)
	if !ok || string(out) != "N1234\r" {
		t.Fatalf("expected fresh response after reset, got %q ok=%v", out, ok)
	}
}

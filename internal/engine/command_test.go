package engine

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/canline/slcan/internal/canframe"
	"github.com/canline/slcan/internal/fifo"
	"github.com/canline/slcan/internal/respbuf"
	"github.com/canline/slcan/internal/serialport"
)

// fakeTransport is a minimal in-memory stand-in for the adapter's TTY: writes
// are recorded for inspection, and reply() feeds bytes back through the
// reader loop as if the adapter had sent them.
type fakeTransport struct {
	mu      sync.Mutex
	written [][]byte
	toRead  chan []byte
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{toRead: make(chan []byte, 32)}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.written = append(f.written, append([]byte(nil), p...))
	f.mu.Unlock()
	return len(p), nil
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	b, ok := <-f.toRead
	if !ok {
		return 0, io.EOF
	}
	return copy(p, b), nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		close(f.toRead)
		f.closed = true
	}
	return nil
}

func (f *fakeTransport) reply(b []byte) { f.toRead <- b }

func (f *fakeTransport) lastWritten() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		return nil
	}
	return f.written[len(f.written)-1]
}

func newTestEngine(baud int) (*Engine, *fakeTransport) {
	e := &Engine{queue: fifo.New(16), resp: respbuf.New(), baud: baud}
	e.acc = newAccumulator(e.queue, e.resp, nowMonotonic)
	ft := newFakeTransport()
	e.port = serialport.NewConnected(ft, e.onByte)
	return e, ft
}

func TestDoCommandLawicelSuccess(t *testing.T) {
	e, ft := newTestEngine(115200)
	go func() {
		time.Sleep(5 * time.Millisecond)
		ft.reply([]byte{cr})
	}()
	if err := e.SetBitrateIndex('4'); err != nil {
		t.Fatalf("SetBitrateIndex: %v", err)
	}
	if string(ft.lastWritten()) != "S4\r" {
		t.Fatalf("unexpected wire bytes: %q", ft.lastWritten())
	}
}

func TestDoCommandLawicelNACK(t *testing.T) {
	e, ft := newTestEngine(115200)
	go func() {
		time.Sleep(5 * time.Millisecond)
		ft.reply([]byte{bel})
	}()
	err := e.SetBitrateIndex('4')
	if !errors.Is(err, canframe.ErrBadMessage) {
		t.Fatalf("expected ErrBadMessage on NACK, got %v", err)
	}
}

func TestDoCommandLawicelTimeout(t *testing.T) {
	e, _ := newTestEngine(115200)
	_, err := e.doCommand([]byte{'S', '4'}, 20*time.Millisecond, 1, cr, false)
	if !errors.Is(err, canframe.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestDoCommandCANableSetFamilyNeverWaits(t *testing.T) {
	e, _ := newTestEngine(115200)
	e.SetAckMode(AckCANable)
	start := time.Now()
	if err := e.SetBitrateIndex('4'); err != nil {
		t.Fatalf("expected no error in CANable mode for set-family command: %v", err)
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Fatal("CANable set-family command should not block waiting for a response")
	}
}

func TestDoCommandCANableResponseRequiredRejectsByDefault(t *testing.T) {
	e, _ := newTestEngine(115200)
	e.SetAckMode(AckCANable)
	_, err := e.Version()
	if !errors.Is(err, canframe.ErrBadMessage) {
		t.Fatalf("expected ErrBadMessage for response-required command in plain CANable mode, got %v", err)
	}
}

func TestDoCommandCANableCompatStubSynthesizesResponse(t *testing.T) {
	e, _ := newTestEngine(115200)
	e.SetAckMode(AckCANable)
	e.SetCompatStub(true)
	hw, fw, err := e.Version()
	if err != nil {
		t.Fatalf("Version with compat stub: %v", err)
	}
	if hw != 0 || fw != 0 {
		t.Fatalf("expected zeroed stub version, got hw=%d fw=%d", hw, fw)
	}
}

func TestWriteFrameLawicelConfirmation(t *testing.T) {
	e, ft := newTestEngine(115200)
	go func() {
		time.Sleep(5 * time.Millisecond)
		ft.reply([]byte("z\r"))
	}()
	fr := canframe.Frame{ID: 0x123, DLC: 2, Data: [8]byte{0xAA, 0xBB}}
	if err := e.WriteFrame(fr); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if string(ft.lastWritten()) != "t1232AABB\r" {
		t.Fatalf("unexpected wire bytes: %q", ft.lastWritten())
	}
}

func TestWriteFrameLawicelExtendedConfirmationLetter(t *testing.T) {
	e, ft := newTestEngine(115200)
	go func() {
		time.Sleep(5 * time.Millisecond)
		ft.reply([]byte("Z\r"))
	}()
	fr := canframe.Frame{ID: 0x1ABCDE, Extended: true, DLC: 0}
	if err := e.WriteFrame(fr); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
}

func TestWriteFrameLawicelWrongConfirmationLetter(t *testing.T) {
	e, ft := newTestEngine(115200)
	go func() {
		time.Sleep(5 * time.Millisecond)
		ft.reply([]byte("Z\r"))
	}()
	fr := canframe.Frame{ID: 0x123, DLC: 0} // standard frame expects 'z', not 'Z'
	if err := e.WriteFrame(fr); !errors.Is(err, canframe.ErrBadMessage) {
		t.Fatalf("expected ErrBadMessage for mismatched confirmation letter, got %v", err)
	}
}

func TestWriteFrameCANableSleepsDrainDelayAndReturns(t *testing.T) {
	e, _ := newTestEngine(1_000_000)
	e.SetAckMode(AckCANable)
	fr := canframe.Frame{ID: 0x123, DLC: 0}
	if err := e.WriteFrame(fr); err != nil {
		t.Fatalf("WriteFrame in CANable mode: %v", err)
	}
}

func TestTransmitDrainDelay(t *testing.T) {
	d := transmitDrainDelay(10, 1_000_000)
	want := 100 * time.Microsecond
	if d != want {
		t.Fatalf("transmitDrainDelay(10, 1e6) = %v, want %v", d, want)
	}
	if got := transmitDrainDelay(10, 0); got != 0 {
		t.Fatalf("expected zero delay for non-positive baud, got %v", got)
	}
}

func TestStatusAndSerialNumberParsing(t *testing.T) {
	e, ft := newTestEngine(115200)
	go func() {
		time.Sleep(5 * time.Millisecond)
		ft.reply([]byte("F1A\r"))
	}()
	st, err := e.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st != 0x1A {
		t.Fatalf("expected status 0x1A, got %#x", st)
	}

	e2, ft2 := newTestEngine(115200)
	go func() {
		time.Sleep(5 * time.Millisecond)
		ft2.reply([]byte("N1234\r"))
	}()
	sn, err := e2.SerialNumber()
	if err != nil {
		t.Fatalf("SerialNumber: %v", err)
	}
	if sn != 0x1234 {
		t.Fatalf("expected serial 0x1234, got %#x", sn)
	}
}

package host

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"minisoc/sim"
)

type pipeTransport struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newPipeTransport() *pipeTransport {
	r, w := io.Pipe()
	return &pipeTransport{r: r, w: w}
}

func (p *pipeTransport) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeTransport) Write(b []byte) (int, error) { return len(b), nil }
func (p *pipeTransport) Close() error                { return p.r.Close() }

type recorder struct {
	mu  sync.Mutex
	got []byte
}

func (r *recorder) Feed(p ...byte) {
	r.mu.Lock()
	r.got = append(r.got, p...)
	r.mu.Unlock()
}

func (r *recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.got)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPumpDeliversAndEscapes(t *testing.T) {
	tp := newPipeTransport()
	rec := &recorder{}
	p := Start(tp, rec, EscapeByte, nil)

	if _, err := tp.w.Write([]byte("ab")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.String() == "ab" })

	select {
	case <-p.Escaped():
		t.Fatal("escaped without the escape byte")
	default:
	}

	if _, err := tp.w.Write([]byte{'c', EscapeByte, 'd', EscapeByte}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-p.Escaped():
	case <-time.After(2 * time.Second):
		t.Fatal("escape not reported")
	}
	waitFor(t, func() bool { return rec.String() == "abcd" })

	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	<-p.Dead()
}

func TestPumpFeedsSimulatedUART(t *testing.T) {
	tp := newPipeTransport()
	u := sim.NewUART(nil)
	p := Start(tp, u, 0, nil)
	defer p.Stop()

	tp.w.Write([]byte{'1', EscapeByte})
	waitFor(t, func() bool { return u.Pending() == 2 })
}

func TestPumpEOF(t *testing.T) {
	tp := newPipeTransport()
	p := Start(tp, &recorder{}, 0, nil)
	tp.w.Close()

	select {
	case <-p.Dead():
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not exit on EOF")
	}
	if err := p.Err(); err != nil {
		t.Fatalf("EOF is not an error: %v", err)
	}
}

type failingTransport struct{ err error }

func (f failingTransport) Read([]byte) (int, error)    { return 0, f.err }
func (f failingTransport) Write(b []byte) (int, error) { return len(b), nil }
func (f failingTransport) Close() error                { return nil }

func TestPumpReadError(t *testing.T) {
	boom := errors.New("line noise")
	p := Start(failingTransport{boom}, &recorder{}, 0, nil)
	<-p.Dead()
	if err := p.Err(); !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if err := p.Stop(); !errors.Is(err, boom) {
		t.Fatalf("stop: got %v", err)
	}
}

func TestSerialOptions(t *testing.T) {
	o := serialOptions("/dev/ttyUSB0", 115200)
	if o.PortName != "/dev/ttyUSB0" || o.BaudRate != 115200 || o.DataBits != 8 || o.StopBits != 1 {
		t.Fatalf("unexpected options %+v", o)
	}
}

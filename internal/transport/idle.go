package transport

import (
	"io"
	"sync"
	"time"
)

// idleReader cancels the request when no bytes arrive for timeout.
// Large files have no overall deadline; a stalled connection does.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer

	mu      sync.Mutex
	expired bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel func()) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.mu.Lock()
		ir.expired = true
		ir.mu.Unlock()
		cancel()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	if err != nil && err != io.EOF && ir.timedOut() {
		return n, errIdleTimeout
	}
	return n, err
}

func (ir *idleReader) timedOut() bool {
	ir.mu.Lock()
	defer ir.mu.Unlock()
	return ir.expired
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}

type idleTimeoutError struct{}

func (idleTimeoutError) Error() string   { return "no data received within read timeout" }
func (idleTimeoutError) Timeout() bool   { return true }
func (idleTimeoutError) Temporary() bool { return true }

var errIdleTimeout error = idleTimeoutError{}

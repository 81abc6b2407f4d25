package host

import (
	"bytes"
	"errors"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/allbin/go-serialport/transport"
)

var errClosed = errors.New("connection closed")

// conn is one open device. mu guards fd against use after close; ops hold
// the read lock, close takes the write lock.
type conn struct {
	id   transport.ConnectionID
	path string

	mu     sync.RWMutex
	fd     int
	closed bool
	info   transport.ConnectionInfo
	gate   chan struct{} // non-nil while paused, closed on resume

	stop chan struct{}
	done chan struct{}
}

func newConn(id transport.ConnectionID, path string, fd int, info transport.ConnectionInfo) *conn {
	return &conn{
		id:   id,
		path: path,
		fd:   fd,
		info: info,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// withFD runs fn with the descriptor while holding the read lock.
func (c *conn) withFD(fn func(fd int) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errClosed
	}
	return fn(c.fd)
}

func (c *conn) snapshot() transport.ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

func (c *conn) setPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.info.Paused = paused
	switch {
	case paused && c.gate == nil:
		c.gate = make(chan struct{})
	case !paused && c.gate != nil:
		close(c.gate)
		c.gate = nil
	}
}

func (c *conn) pauseGate() chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gate
}

func (c *conn) stopping() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// read loops until stop is closed or the device fails. Polling with a
// timeout lets the loop notice stop without a pending read.
func (c *conn) read(bufferSize int, onData func([]byte), onError func(error)) {
	defer close(c.done)

	buf := make([]byte, bufferSize)
	for {
		if c.stopping() {
			return
		}
		if gate := c.pauseGate(); gate != nil {
			select {
			case <-gate:
			case <-c.stop:
				return
			}
			continue
		}

		var n int
		err := c.withFD(func(fd int) error {
			var err error
			n, err = pollRead(fd, buf)
			return err
		})
		switch {
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
			continue
		case err != nil:
			if !c.stopping() {
				onError(err)
			}
			return
		case n > 0:
			onData(bytes.Clone(buf[:n]))
		}
	}
}

// pollRead waits up to pollTimeout for input and reads what is there.
// A readable descriptor that yields no bytes has been hung up.
func pollRead(fd int, buf []byte) (int, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	ready, err := unix.Poll(fds, pollTimeout)
	if err != nil || ready == 0 {
		return 0, err
	}

	revents := fds[0].Revents
	if revents&unix.POLLIN == 0 {
		if revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return 0, errHangup
		}
		return 0, nil
	}

	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errHangup
	}
	return n, nil
}

// close stops the reader, waits for it and releases the descriptor.
func (c *conn) close() error {
	close(c.stop)
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed
	}
	c.closed = true
	if c.gate != nil {
		close(c.gate)
		c.gate = nil
	}
	return unix.Close(c.fd)
}

// Package host implements transport.Transport for Linux serial devices using
// termios and modem-control ioctls.
//
// Every operation runs on its own goroutine and reports through its
// completion func. Each open connection has a reader goroutine that pushes
// incoming bytes to the receive listeners.
package host

import (
	"context"
	"io"
	"sync"

	"github.com/whoisnian/glb/logger"
	"golang.org/x/sys/unix"

	"github.com/allbin/go-serialport/transport"
)

// DefaultBufferSize is the read size used when ConnectOptions.BufferSize is unset.
const DefaultBufferSize = 256

// Transport talks to devices on the local machine.
type Transport struct {
	log    *logger.Logger
	devDir string

	mu     sync.Mutex
	nextID transport.ConnectionID
	conns  map[transport.ConnectionID]*conn

	rx    transport.Listeners[transport.ReceiveInfo]
	rxErr transport.Listeners[transport.ReceiveErrorInfo]
}

var _ transport.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger. Without it the transport logs nothing.
func WithLogger(l *logger.Logger) Option {
	return func(t *Transport) {
		t.log = l
	}
}

// WithDevDir changes the directory scanned when the system enumerator fails.
func WithDevDir(dir string) Option {
	return func(t *Transport) {
		t.devDir = dir
	}
}

// New returns a host transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		devDir: "/dev",
		nextID: 1,
		conns:  make(map[transport.ConnectionID]*conn),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.New(logger.NewNanoHandler(io.Discard, logger.Options{}))
	}
	return t
}

func (t *Transport) lookup(op string, id transport.ConnectionID) (*conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.conns[id]
	if !ok {
		return nil, &transport.PlatformError{Op: op, Err: transport.ErrUnknownConnection}
	}
	return c, nil
}

func (t *Transport) Connect(path string, opts transport.ConnectOptions, done func(transport.ConnectionInfo, error)) {
	go func() {
		info, err := t.connect(path, opts)
		done(info, err)
	}()
}

func (t *Transport) connect(path string, opts transport.ConnectOptions) (transport.ConnectionInfo, error) {
	failed := transport.ConnectionInfo{ConnectionID: transport.NoConnection}
	ctx := context.Background()

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return failed, &transport.PlatformError{Op: "connect", Path: path, Err: err}
	}
	if err := configure(fd, opts); err != nil {
		unix.Close(fd)
		return failed, &transport.PlatformError{Op: "connect", Path: path, Err: err}
	}

	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	info := transport.ConnectionInfo{
		ConnectionID:   id,
		Bitrate:        opts.Bitrate,
		DataBits:       opts.DataBits,
		ParityBit:      opts.ParityBit,
		StopBits:       opts.StopBits,
		CTSFlowControl: opts.CTSFlowControl,
		BufferSize:     bufferSize,
	}
	c := newConn(id, path, fd, info)
	t.conns[id] = c
	t.mu.Unlock()

	go c.read(bufferSize,
		func(data []byte) {
			t.rx.Dispatch(transport.ReceiveInfo{ConnectionID: id, Data: data})
		},
		func(err error) {
			t.log.Warnf(ctx, "connection %d (%s): read failed: %v", id, path, err)
			t.rxErr.Dispatch(transport.ReceiveErrorInfo{ConnectionID: id, Error: readCondition(err)})
		},
	)

	t.log.Debugf(ctx, "connection %d: opened %s at %d", id, path, opts.Bitrate)
	return info, nil
}

func (t *Transport) Disconnect(id transport.ConnectionID, done func(bool, error)) {
	go func() {
		t.mu.Lock()
		c, ok := t.conns[id]
		delete(t.conns, id)
		t.mu.Unlock()

		if !ok {
			done(false, &transport.PlatformError{Op: "disconnect", Err: transport.ErrUnknownConnection})
			return
		}
		if err := c.close(); err != nil {
			done(false, &transport.PlatformError{Op: "disconnect", Path: c.path, Err: err})
			return
		}
		t.log.Debugf(context.Background(), "connection %d: closed %s", id, c.path)
		done(true, nil)
	}()
}

func (t *Transport) Send(id transport.ConnectionID, data []byte, done func(transport.SendInfo, error)) {
	go func() {
		c, err := t.lookup("send", id)
		if err != nil {
			done(transport.SendInfo{Error: transport.SendDisconnected}, err)
			return
		}

		sent := 0
		err = c.withFD(func(fd int) error {
			for sent < len(data) {
				n, err := unix.Write(fd, data[sent:])
				if err != nil {
					if err == unix.EINTR {
						continue
					}
					return err
				}
				sent += n
			}
			return nil
		})
		if err != nil {
			done(transport.SendInfo{BytesSent: sent, Error: sendCondition(err)},
				&transport.PlatformError{Op: "send", Path: c.path, Err: err})
			return
		}
		done(transport.SendInfo{BytesSent: sent}, nil)
	}()
}

func (t *Transport) Flush(id transport.ConnectionID, done func(bool, error)) {
	go func() {
		c, err := t.lookup("flush", id)
		if err != nil {
			done(false, err)
			return
		}
		err = c.withFD(func(fd int) error {
			return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)
		})
		if err != nil {
			done(false, &transport.PlatformError{Op: "flush", Path: c.path, Err: err})
			return
		}
		done(true, nil)
	}()
}

func (t *Transport) SetPaused(id transport.ConnectionID, paused bool, done func(error)) {
	go func() {
		c, err := t.lookup("setPaused", id)
		if err != nil {
			done(err)
			return
		}
		c.setPaused(paused)
		done(nil)
	}()
}

func (t *Transport) Update(id transport.ConnectionID, opts transport.UpdateOptions, done func(bool, error)) {
	go func() {
		c, err := t.lookup("update", id)
		if err != nil {
			done(false, err)
			return
		}
		err = c.withFD(func(fd int) error {
			return updateSpeed(fd, opts.Bitrate)
		})
		if err != nil {
			done(false, &transport.PlatformError{Op: "update", Path: c.path, Err: err})
			return
		}

		c.mu.Lock()
		c.info.Bitrate = opts.Bitrate
		c.mu.Unlock()
		done(true, nil)
	}()
}

func (t *Transport) SetControlSignals(id transport.ConnectionID, signals transport.HostControlSignals, done func(bool, error)) {
	go func() {
		c, err := t.lookup("setControlSignals", id)
		if err != nil {
			done(false, err)
			return
		}
		err = c.withFD(func(fd int) error {
			if signals.DTR != nil {
				if err := setModemLine(fd, unix.TIOCM_DTR, *signals.DTR); err != nil {
					return err
				}
			}
			if signals.RTS != nil {
				if err := setModemLine(fd, unix.TIOCM_RTS, *signals.RTS); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			done(false, &transport.PlatformError{Op: "setControlSignals", Path: c.path, Err: err})
			return
		}
		done(true, nil)
	}()
}

func (t *Transport) GetControlSignals(id transport.ConnectionID, done func(transport.DeviceControlSignals, error)) {
	go func() {
		c, err := t.lookup("getControlSignals", id)
		if err != nil {
			done(transport.DeviceControlSignals{}, err)
			return
		}
		var signals transport.DeviceControlSignals
		err = c.withFD(func(fd int) error {
			var err error
			signals, err = modemStatus(fd)
			return err
		})
		if err != nil {
			done(transport.DeviceControlSignals{}, &transport.PlatformError{Op: "getControlSignals", Path: c.path, Err: err})
			return
		}
		done(signals, nil)
	}()
}

// Connection returns the current settings of an open connection.
func (t *Transport) Connection(id transport.ConnectionID) (transport.ConnectionInfo, bool) {
	c, err := t.lookup("connection", id)
	if err != nil {
		return transport.ConnectionInfo{}, false
	}
	return c.snapshot(), true
}

func (t *Transport) AddReceiveListener(fn func(transport.ReceiveInfo)) transport.ListenerID {
	return t.rx.Add(fn)
}

func (t *Transport) RemoveReceiveListener(id transport.ListenerID) {
	t.rx.Remove(id)
}

func (t *Transport) AddReceiveErrorListener(fn func(transport.ReceiveErrorInfo)) transport.ListenerID {
	return t.rxErr.Add(fn)
}

func (t *Transport) RemoveReceiveErrorListener(id transport.ListenerID) {
	t.rxErr.Remove(id)
}

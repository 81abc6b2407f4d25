// Package loopback is an in-memory transport. Every device behaves like a
// loopback plug with a null-modem signal wiring: bytes sent come back as
// received bytes, RTS is seen as CTS and DTR is seen as DSR and DCD.
//
// Completion funcs and listeners run synchronously on the caller's goroutine.
// The transport records every call and can be told to fail, which makes it
// the test double for sessions as well as the backend of the --loopback CLI flag.
package loopback

import (
	"io/fs"
	"slices"
	"sync"

	"github.com/allbin/go-serialport/transport"
)

// Op names a transport operation, for call records and fault injection.
type Op string

const (
	OpConnect           Op = "connect"
	OpDisconnect        Op = "disconnect"
	OpSend              Op = "send"
	OpFlush             Op = "flush"
	OpSetPaused         Op = "setPaused"
	OpUpdate            Op = "update"
	OpSetControlSignals Op = "setControlSignals"
	OpGetControlSignals Op = "getControlSignals"
	OpGetDevices        Op = "getDevices"
)

// Device is a simulated device.
type Device struct {
	Path        string
	DisplayName string
	VendorID    int
	ProductID   int
}

// DefaultDevice is the device a transport created without WithDevices offers.
var DefaultDevice = Device{Path: "/dev/ttyLOOP0", DisplayName: "Loopback"}

// Call is one recorded operation. Only the fields relevant to Op are set.
type Call struct {
	Op           Op
	ConnectionID transport.ConnectionID
	Path         string
	Connect      transport.ConnectOptions
	Data         []byte
	Paused       bool
	Update       transport.UpdateOptions
	Signals      transport.HostControlSignals
}

type conn struct {
	info    transport.ConnectionInfo
	path    string
	dtr     bool
	rts     bool
	pending [][]byte
}

// Transport implements transport.Transport in memory.
type Transport struct {
	mu       sync.Mutex
	devices  []Device
	echo     bool
	nextID   transport.ConnectionID
	conns    map[transport.ConnectionID]*conn
	failures map[Op]error
	refuse   bool
	calls    []Call

	rx    transport.Listeners[transport.ReceiveInfo]
	rxErr transport.Listeners[transport.ReceiveErrorInfo]
}

var _ transport.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithDevices replaces the simulated device list. Connect then only accepts these paths.
func WithDevices(devices ...Device) Option {
	return func(t *Transport) {
		t.devices = slices.Clone(devices)
	}
}

// WithEcho turns the loopback echo on or off. It is on by default.
func WithEcho(echo bool) Option {
	return func(t *Transport) {
		t.echo = echo
	}
}

// New returns a transport offering DefaultDevice with echo enabled.
func New(opts ...Option) *Transport {
	t := &Transport{
		devices:  []Device{DefaultDevice},
		echo:     true,
		nextID:   1,
		conns:    make(map[transport.ConnectionID]*conn),
		failures: make(map[Op]error),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FailNext makes the next call of op complete with err.
func (t *Transport) FailNext(op Op, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[op] = err
}

// RefuseConnect makes the next Connect answer with the no-connection sentinel
// and no error, the way a host does when the device cannot be opened.
func (t *Transport) RefuseConnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refuse = true
}

// Calls returns a copy of every recorded call, oldest first.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.calls)
}

// CallCount returns how many times op was called.
func (t *Transport) CallCount(op Op) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, c := range t.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// LastConnect returns the options of the most recent Connect.
func (t *Transport) LastConnect() (transport.ConnectOptions, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.calls) - 1; i >= 0; i-- {
		if t.calls[i].Op == OpConnect {
			return t.calls[i].Connect, true
		}
	}
	return transport.ConnectOptions{}, false
}

// Connection returns the current state of an open connection.
func (t *Transport) Connection(id transport.ConnectionID) (transport.ConnectionInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.conns[id]
	if !ok {
		return transport.ConnectionInfo{}, false
	}
	return c.info, true
}

// ListenerCounts reports how many receive and receive-error listeners are registered.
func (t *Transport) ListenerCounts() (receive, receiveError int) {
	return t.rx.Len(), t.rxErr.Len()
}

// Receive injects bytes as if they arrived on connection id. Bytes for a
// paused connection are held until it is resumed.
func (t *Transport) Receive(id transport.ConnectionID, data []byte) {
	t.mu.Lock()
	if c, ok := t.conns[id]; ok && c.info.Paused {
		c.pending = append(c.pending, slices.Clone(data))
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.rx.Dispatch(transport.ReceiveInfo{ConnectionID: id, Data: slices.Clone(data)})
}

// RaiseError injects a receive-error condition for connection id.
func (t *Transport) RaiseError(id transport.ConnectionID, code transport.ReceiveError) {
	t.rxErr.Dispatch(transport.ReceiveErrorInfo{ConnectionID: id, Error: code})
}

// record appends c and returns the injected failure for c.Op, if any.
func (t *Transport) record(c Call) error {
	t.calls = append(t.calls, c)
	err := t.failures[c.Op]
	delete(t.failures, c.Op)
	return err
}

func (t *Transport) known(path string) bool {
	return slices.ContainsFunc(t.devices, func(d Device) bool { return d.Path == path })
}

func unknownConnection(op Op) error {
	return &transport.PlatformError{Op: string(op), Err: transport.ErrUnknownConnection}
}

func (t *Transport) Connect(path string, opts transport.ConnectOptions, done func(transport.ConnectionInfo, error)) {
	t.mu.Lock()
	err := t.record(Call{Op: OpConnect, Path: path, Connect: opts})
	refused := t.refuse
	t.refuse = false

	if err != nil || refused {
		t.mu.Unlock()
		done(transport.ConnectionInfo{ConnectionID: transport.NoConnection}, err)
		return
	}
	if !t.known(path) {
		t.mu.Unlock()
		done(transport.ConnectionInfo{ConnectionID: transport.NoConnection},
			&transport.PlatformError{Op: string(OpConnect), Path: path, Err: fs.ErrNotExist})
		return
	}

	id := t.nextID
	t.nextID++
	info := transport.ConnectionInfo{
		ConnectionID:   id,
		Bitrate:        opts.Bitrate,
		DataBits:       opts.DataBits,
		ParityBit:      opts.ParityBit,
		StopBits:       opts.StopBits,
		CTSFlowControl: opts.CTSFlowControl,
		BufferSize:     opts.BufferSize,
	}
	// Hardware flow control raises RTS on open, as the host transport does.
	t.conns[id] = &conn{info: info, path: path, rts: opts.CTSFlowControl}
	t.mu.Unlock()

	done(info, nil)
}

func (t *Transport) Disconnect(id transport.ConnectionID, done func(bool, error)) {
	t.mu.Lock()
	if err := t.record(Call{Op: OpDisconnect, ConnectionID: id}); err != nil {
		t.mu.Unlock()
		done(false, err)
		return
	}
	if _, ok := t.conns[id]; !ok {
		t.mu.Unlock()
		done(false, unknownConnection(OpDisconnect))
		return
	}
	delete(t.conns, id)
	t.mu.Unlock()

	done(true, nil)
}

func (t *Transport) Send(id transport.ConnectionID, data []byte, done func(transport.SendInfo, error)) {
	t.mu.Lock()
	if err := t.record(Call{Op: OpSend, ConnectionID: id, Data: slices.Clone(data)}); err != nil {
		t.mu.Unlock()
		done(transport.SendInfo{Error: transport.SendSystemError}, err)
		return
	}
	if _, ok := t.conns[id]; !ok {
		t.mu.Unlock()
		done(transport.SendInfo{Error: transport.SendDisconnected}, unknownConnection(OpSend))
		return
	}
	echo := t.echo
	t.mu.Unlock()

	done(transport.SendInfo{BytesSent: len(data)}, nil)
	if echo {
		t.Receive(id, data)
	}
}

func (t *Transport) Flush(id transport.ConnectionID, done func(bool, error)) {
	t.mu.Lock()
	if err := t.record(Call{Op: OpFlush, ConnectionID: id}); err != nil {
		t.mu.Unlock()
		done(false, err)
		return
	}
	c, ok := t.conns[id]
	if !ok {
		t.mu.Unlock()
		done(false, unknownConnection(OpFlush))
		return
	}
	c.pending = nil
	t.mu.Unlock()

	done(true, nil)
}

func (t *Transport) SetPaused(id transport.ConnectionID, paused bool, done func(error)) {
	t.mu.Lock()
	if err := t.record(Call{Op: OpSetPaused, ConnectionID: id, Paused: paused}); err != nil {
		t.mu.Unlock()
		done(err)
		return
	}
	c, ok := t.conns[id]
	if !ok {
		t.mu.Unlock()
		done(unknownConnection(OpSetPaused))
		return
	}
	c.info.Paused = paused
	var pending [][]byte
	if !paused {
		pending, c.pending = c.pending, nil
	}
	t.mu.Unlock()

	done(nil)
	for _, data := range pending {
		t.rx.Dispatch(transport.ReceiveInfo{ConnectionID: id, Data: data})
	}
}

func (t *Transport) Update(id transport.ConnectionID, opts transport.UpdateOptions, done func(bool, error)) {
	t.mu.Lock()
	if err := t.record(Call{Op: OpUpdate, ConnectionID: id, Update: opts}); err != nil {
		t.mu.Unlock()
		done(false, err)
		return
	}
	c, ok := t.conns[id]
	if !ok {
		t.mu.Unlock()
		done(false, unknownConnection(OpUpdate))
		return
	}
	c.info.Bitrate = opts.Bitrate
	t.mu.Unlock()

	done(true, nil)
}

func (t *Transport) SetControlSignals(id transport.ConnectionID, signals transport.HostControlSignals, done func(bool, error)) {
	t.mu.Lock()
	if err := t.record(Call{Op: OpSetControlSignals, ConnectionID: id, Signals: signals}); err != nil {
		t.mu.Unlock()
		done(false, err)
		return
	}
	c, ok := t.conns[id]
	if !ok {
		t.mu.Unlock()
		done(false, unknownConnection(OpSetControlSignals))
		return
	}
	if signals.DTR != nil {
		c.dtr = *signals.DTR
	}
	if signals.RTS != nil {
		c.rts = *signals.RTS
	}
	t.mu.Unlock()

	done(true, nil)
}

func (t *Transport) GetControlSignals(id transport.ConnectionID, done func(transport.DeviceControlSignals, error)) {
	t.mu.Lock()
	if err := t.record(Call{Op: OpGetControlSignals, ConnectionID: id}); err != nil {
		t.mu.Unlock()
		done(transport.DeviceControlSignals{}, err)
		return
	}
	c, ok := t.conns[id]
	if !ok {
		t.mu.Unlock()
		done(transport.DeviceControlSignals{}, unknownConnection(OpGetControlSignals))
		return
	}
	signals := transport.DeviceControlSignals{
		CTS: c.rts,
		DSR: c.dtr,
		DCD: c.dtr,
	}
	t.mu.Unlock()

	done(signals, nil)
}

func (t *Transport) GetDevices(done func([]transport.DeviceDescriptor, error)) {
	t.mu.Lock()
	if err := t.record(Call{Op: OpGetDevices}); err != nil {
		t.mu.Unlock()
		done(nil, err)
		return
	}
	descriptors := make([]transport.DeviceDescriptor, 0, len(t.devices))
	for _, d := range t.devices {
		descriptors = append(descriptors, transport.DeviceDescriptor{
			Path:        d.Path,
			DisplayName: d.DisplayName,
			VendorID:    d.VendorID,
			ProductID:   d.ProductID,
		})
	}
	t.mu.Unlock()

	done(descriptors, nil)
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

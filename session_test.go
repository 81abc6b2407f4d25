package serialport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allbin/go-serialport/transport"
	"github.com/allbin/go-serialport/transport/loopback"
)

// stubTransport is a mock.Mock backed transport. Calls without an expectation panic.
type stubTransport struct {
	mock.Mock
}

func (s *stubTransport) Connect(path string, opts transport.ConnectOptions, done func(transport.ConnectionInfo, error)) {
	s.Called(path, opts, done)
}

func (s *stubTransport) Disconnect(id transport.ConnectionID, done func(bool, error)) {
	s.Called(id, done)
}

func (s *stubTransport) Send(id transport.ConnectionID, data []byte, done func(transport.SendInfo, error)) {
	s.Called(id, data, done)
}

func (s *stubTransport) Flush(id transport.ConnectionID, done func(bool, error)) {
	s.Called(id, done)
}

func (s *stubTransport) SetPaused(id transport.ConnectionID, paused bool, done func(error)) {
	s.Called(id, paused, done)
}

func (s *stubTransport) Update(id transport.ConnectionID, opts transport.UpdateOptions, done func(bool, error)) {
	s.Called(id, opts, done)
}

func (s *stubTransport) SetControlSignals(id transport.ConnectionID, signals transport.HostControlSignals, done func(bool, error)) {
	s.Called(id, signals, done)
}

func (s *stubTransport) GetControlSignals(id transport.ConnectionID, done func(transport.DeviceControlSignals, error)) {
	s.Called(id, done)
}

func (s *stubTransport) GetDevices(done func([]transport.DeviceDescriptor, error)) {
	s.Called(done)
}

func (s *stubTransport) AddReceiveListener(fn func(transport.ReceiveInfo)) transport.ListenerID {
	ret := s.Called(fn)
	return ret.Get(0).(transport.ListenerID)
}

func (s *stubTransport) RemoveReceiveListener(id transport.ListenerID) {
	s.Called(id)
}

func (s *stubTransport) AddReceiveErrorListener(fn func(transport.ReceiveErrorInfo)) transport.ListenerID {
	ret := s.Called(fn)
	return ret.Get(0).(transport.ListenerID)
}

func (s *stubTransport) RemoveReceiveErrorListener(id transport.ListenerID) {
	s.Called(id)
}

// heldTransport is a loopback that queues Connect and Disconnect calls for
// the ops in hold until release runs them.
type heldTransport struct {
	*loopback.Transport

	mu   sync.Mutex
	hold map[loopback.Op]bool
	held map[loopback.Op][]func()
}

func newHeldTransport(ops ...loopback.Op) *heldTransport {
	h := &heldTransport{
		Transport: newLoopback(),
		hold:      map[loopback.Op]bool{},
		held:      map[loopback.Op][]func(){},
	}
	for _, op := range ops {
		h.hold[op] = true
	}
	return h
}

func (h *heldTransport) route(op loopback.Op, call func()) {
	h.mu.Lock()
	if h.hold[op] {
		h.held[op] = append(h.held[op], call)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	call()
}

func (h *heldTransport) Connect(path string, opts transport.ConnectOptions, done func(transport.ConnectionInfo, error)) {
	h.route(loopback.OpConnect, func() { h.Transport.Connect(path, opts, done) })
}

func (h *heldTransport) Disconnect(id transport.ConnectionID, done func(bool, error)) {
	h.route(loopback.OpDisconnect, func() { h.Transport.Disconnect(id, done) })
}

func (h *heldTransport) pending(op loopback.Op) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.held[op])
}

func (h *heldTransport) release(op loopback.Op) {
	h.mu.Lock()
	calls := h.held[op]
	h.held[op] = nil
	h.mu.Unlock()

	for _, call := range calls {
		call()
	}
}

func manualOpen() *bool {
	off := false
	return &off
}

func newLoopback() *loopback.Transport {
	return loopback.New(loopback.WithDevices(loopback.Device{Path: testPath, DisplayName: "Test"}))
}

// newSession returns an unopened session on a loopback transport.
func newSession(t *testing.T, opts Options) (*Session, *loopback.Transport) {
	t.Helper()
	lb := newLoopback()
	opts.Transport = lb
	opts.AutoOpen = manualOpen()

	s, err := New(testPath, opts, nil)
	require.NoError(t, err)
	return s, lb
}

// openSession returns an open session on a loopback transport.
func openSession(t *testing.T, opts Options) (*Session, *loopback.Transport) {
	t.Helper()
	s, lb := newSession(t, opts)
	_, err := s.OpenContext(context.Background())
	require.NoError(t, err)
	require.True(t, s.IsOpen())
	return s, lb
}

// record collects every event of the given kinds in order.
func record(s *Session, kinds ...EventKind) *[]Event {
	var events []Event
	for _, kind := range kinds {
		s.Subscribe(kind, func(ev Event) { events = append(events, ev) })
	}
	return &events
}

func eventKinds(events []Event) []EventKind {
	kinds := make([]EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

var allKinds = []EventKind{EventOpen, EventData, EventClose, EventError, EventDisconnect}

func TestNewInvalidOptionsNeverTouchTransport(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"data bits", Options{DataBits: 6}},
		{"stop bits", Options{StopBits: 3}},
		{"parity", Options{Parity: "weird"}},
		{"flow control", Options{FlowControl: []string{"CARRIER"}}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			stub := &stubTransport{}
			test.opts.Transport = stub

			s, err := New(testPath, test.opts, nil)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrInvalidOption)

			// Give a wrongly started auto-open a chance to show up.
			time.Sleep(10 * time.Millisecond)
			stub.AssertNotCalled(t, "Connect", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestNewWithoutTransport(t *testing.T) {
	_, err := New(testPath, Options{}, nil)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestOpenConnectOptions(t *testing.T) {
	s, lb := newSession(t, Options{DataBits: 7, StopBits: 1, Parity: "none"})

	_, err := s.OpenContext(context.Background())
	require.NoError(t, err)

	opts, ok := lb.LastConnect()
	require.True(t, ok)
	assert.Equal(t, transport.ConnectOptions{
		Bitrate:        9600,
		DataBits:       transport.DataBitsSeven,
		ParityBit:      transport.ParityNo,
		StopBits:       transport.StopBitsOne,
		CTSFlowControl: false,
		BufferSize:     256,
	}, opts)

	calls := lb.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, testPath, calls[0].Path)
}

func TestAutoOpen(t *testing.T) {
	lb := newLoopback()
	opened := make(chan transport.ConnectionInfo, 1)

	s, err := New(testPath, Options{Transport: lb}, func(info transport.ConnectionInfo, err error) {
		assert.NoError(t, err)
		opened <- info
	})
	require.NoError(t, err)

	select {
	case info := <-opened:
		assert.Equal(t, info.ConnectionID, s.ConnectionID())
		assert.True(t, s.IsOpen())
	case <-time.After(time.Second):
		t.Fatal("auto-open did not complete")
	}
}

func TestOpenRefused(t *testing.T) {
	s, lb := newSession(t, Options{})
	lb.RefuseConnect()

	_, err := s.OpenContext(context.Background())
	assert.ErrorIs(t, err, ErrCouldNotOpen)
	assert.EqualError(t, err, "could not open port")
	assert.False(t, s.IsOpen())
	assert.Equal(t, transport.NoConnection, s.ConnectionID())

	receive, receiveErr := lb.ListenerCounts()
	assert.Zero(t, receive)
	assert.Zero(t, receiveErr)
}

func TestOpenRefusedEmitsError(t *testing.T) {
	s, lb := newSession(t, Options{})
	events := record(s, allKinds...)
	lb.RefuseConnect()

	s.Open(nil)

	require.Len(t, *events, 1)
	assert.Equal(t, EventError, (*events)[0].Kind)
	assert.ErrorIs(t, (*events)[0].Err, ErrCouldNotOpen)
}

func TestOpenPlatformErrorForwarded(t *testing.T) {
	stub := &stubTransport{}
	platformErr := &transport.PlatformError{Op: "connect", Path: testPath, Err: errors.New("permission denied")}
	stub.On("Connect", testPath, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		done := args.Get(2).(func(transport.ConnectionInfo, error))
		done(transport.ConnectionInfo{ConnectionID: transport.NoConnection}, platformErr)
	}).Once()

	s, err := New(testPath, Options{Transport: stub, AutoOpen: manualOpen()}, nil)
	require.NoError(t, err)

	_, err = s.OpenContext(context.Background())
	assert.Same(t, platformErr, err)
	assert.False(t, s.IsOpen())
	stub.AssertExpectations(t)
	stub.AssertNotCalled(t, "AddReceiveListener", mock.Anything)
}

func TestOpenEmitsEvent(t *testing.T) {
	s, _ := newSession(t, Options{})
	events := record(s, EventOpen)

	s.Open(nil)

	require.Len(t, *events, 1)
	assert.Equal(t, s.ConnectionID(), (*events)[0].Info.ConnectionID)
}

func TestOpenTwice(t *testing.T) {
	s, lb := openSession(t, Options{})

	_, err := s.OpenContext(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyOpen)
	assert.Equal(t, 1, lb.CallCount(loopback.OpConnect))
	assert.True(t, s.IsOpen())
}

func TestWriteEchoesAsData(t *testing.T) {
	s, _ := openSession(t, Options{})
	events := record(s, EventData)

	info, err := s.WriteContext(context.Background(), []byte{0x00, 0xff, 0x41})
	require.NoError(t, err)
	assert.Equal(t, 3, info.BytesSent)

	require.Len(t, *events, 1)
	assert.Equal(t, []byte{0x00, 0xff, 0x41}, (*events)[0].Data)
}

func TestDataCallbackReplacesEvent(t *testing.T) {
	var got [][]byte
	s, lb := openSession(t, Options{DataCallback: func(b []byte) { got = append(got, b) }})
	events := record(s, EventData)

	lb.Receive(s.ConnectionID(), []byte("hello"))

	assert.Equal(t, [][]byte{[]byte("hello")}, got)
	assert.Empty(t, *events)
}

func TestStaleReceiveDropped(t *testing.T) {
	s, lb := openSession(t, Options{})
	events := record(s, EventData)

	lb.Receive(s.ConnectionID()+1, []byte("stale"))
	assert.Empty(t, *events)

	lb.Receive(s.ConnectionID(), []byte("fresh"))
	require.Len(t, *events, 1)
	assert.Equal(t, []byte("fresh"), (*events)[0].Data)
}

func TestWriteStringEncodings(t *testing.T) {
	s, lb := openSession(t, Options{})

	s.WriteString("héllo", "utf8", func(info transport.SendInfo, err error) {
		require.NoError(t, err)
		assert.Equal(t, 6, info.BytesSent)
	})
	// Unsupported encodings only warn.
	s.WriteString("abc", "latin1", func(info transport.SendInfo, err error) {
		require.NoError(t, err)
		assert.Equal(t, 3, info.BytesSent)
	})

	calls := lb.Calls()
	var sent [][]byte
	for _, c := range calls {
		if c.Op == loopback.OpSend {
			sent = append(sent, c.Data)
		}
	}
	assert.Equal(t, [][]byte{[]byte("héllo"), []byte("abc")}, sent)
}

func TestWriteErrorForwarded(t *testing.T) {
	s, lb := openSession(t, Options{})
	boom := errors.New("write failed")
	lb.FailNext(loopback.OpSend, boom)

	info, err := s.WriteContext(context.Background(), []byte("x"))
	assert.Same(t, boom, err)
	assert.Equal(t, transport.SendSystemError, info.Error)
}

func TestDeviceLostClosesSession(t *testing.T) {
	s, lb := openSession(t, Options{})
	events := record(s, allKinds...)
	id := s.ConnectionID()

	lb.RaiseError(id, transport.ReceiveDeviceLost)

	assert.Equal(t, []EventKind{EventDisconnect, EventClose}, eventKinds(*events))
	assert.ErrorIs(t, (*events)[0].Err, ErrDisconnected)
	var dErr *DisconnectError
	require.ErrorAs(t, (*events)[0].Err, &dErr)
	assert.Equal(t, "device_lost", dErr.Condition)

	assert.False(t, s.IsOpen())
	assert.Equal(t, transport.NoConnection, s.ConnectionID())
	assert.Equal(t, 1, lb.CallCount(loopback.OpDisconnect))

	receive, receiveErr := lb.ListenerCounts()
	assert.Zero(t, receive)
	assert.Zero(t, receiveErr)
}

func TestDisconnectCallbackReplacesEvent(t *testing.T) {
	var got []error
	s, lb := openSession(t, Options{DisconnectCallback: func(err error) { got = append(got, err) }})
	events := record(s, EventDisconnect, EventClose)

	lb.RaiseError(s.ConnectionID(), transport.ReceiveDisconnected)

	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0], ErrDisconnected)
	assert.Equal(t, []EventKind{EventClose}, eventKinds(*events))
	assert.False(t, s.IsOpen())
}

func TestNonFatalReceiveErrorsIgnored(t *testing.T) {
	s, lb := openSession(t, Options{})
	events := record(s, allKinds...)

	for _, code := range []transport.ReceiveError{
		transport.ReceiveTimeout,
		transport.ReceiveBreak,
		transport.ReceiveFrameError,
		transport.ReceiveOverrun,
		transport.ReceiveBufferOverflow,
		transport.ReceiveParityError,
		transport.ReceiveError("something_new"),
	} {
		lb.RaiseError(s.ConnectionID(), code)
	}

	assert.Empty(t, *events)
	assert.True(t, s.IsOpen())
	assert.Zero(t, lb.CallCount(loopback.OpDisconnect))
}

func TestReceiveErrorForOtherConnectionIgnored(t *testing.T) {
	s, lb := openSession(t, Options{})
	events := record(s, allKinds...)

	lb.RaiseError(s.ConnectionID()+1, transport.ReceiveDeviceLost)

	assert.Empty(t, *events)
	assert.True(t, s.IsOpen())
}

func TestCloseTeardown(t *testing.T) {
	s, lb := openSession(t, Options{})
	id := s.ConnectionID()

	var order []string
	s.Subscribe(EventClose, func(Event) { order = append(order, "close event") })
	s.Subscribe(EventData, func(Event) { order = append(order, "data event") })

	s.Close(func(ok bool, err error) {
		require.NoError(t, err)
		assert.True(t, ok)
		assert.False(t, s.IsOpen())
		order = append(order, "done")
	})

	assert.Equal(t, []string{"close event", "done"}, order)
	assert.Equal(t, transport.NoConnection, s.ConnectionID())

	receive, receiveErr := lb.ListenerCounts()
	assert.Zero(t, receive)
	assert.Zero(t, receiveErr)

	// Nothing reaches the old subscribers any more.
	lb.Receive(id, []byte("late"))
	lb.RaiseError(id, transport.ReceiveDeviceLost)
	assert.Equal(t, []string{"close event", "done"}, order)
}

func TestCloseTwice(t *testing.T) {
	s, lb := openSession(t, Options{})
	_, err := s.CloseContext(context.Background())
	require.NoError(t, err)

	events := record(s, allKinds...)
	ok, err := s.CloseContext(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.Empty(t, *events)
	assert.Equal(t, 1, lb.CallCount(loopback.OpDisconnect))
}

func TestCloseWhileDeviceLostCloseInFlight(t *testing.T) {
	ctx := context.Background()
	held := newHeldTransport(loopback.OpDisconnect)
	s, err := New(testPath, Options{Transport: held, AutoOpen: manualOpen()}, nil)
	require.NoError(t, err)
	_, err = s.OpenContext(ctx)
	require.NoError(t, err)
	first := s.ConnectionID()
	events := record(s, allKinds...)

	held.RaiseError(first, transport.ReceiveDeviceLost)
	require.Equal(t, 1, held.pending(loopback.OpDisconnect))
	assert.Equal(t, []EventKind{EventDisconnect}, eventKinds(*events))

	var closeErr error
	s.Close(func(_ bool, err error) { closeErr = err })
	assert.ErrorIs(t, closeErr, ErrNotOpen)
	assert.Equal(t, 1, held.pending(loopback.OpDisconnect))

	_, err = s.WriteContext(ctx, []byte("x"))
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = s.OpenContext(ctx)
	assert.ErrorIs(t, err, ErrAlreadyOpen)

	// Further conditions on the closing connection are dropped.
	held.RaiseError(first, transport.ReceiveSystemError)
	assert.Equal(t, 1, held.pending(loopback.OpDisconnect))
	assert.Equal(t, []EventKind{EventDisconnect}, eventKinds(*events))

	held.release(loopback.OpDisconnect)
	assert.Equal(t, []EventKind{EventDisconnect, EventClose}, eventKinds(*events))
	assert.False(t, s.IsOpen())
	assert.Equal(t, transport.NoConnection, s.ConnectionID())
	assert.Equal(t, 1, held.CallCount(loopback.OpDisconnect))

	receive, receiveErr := held.ListenerCounts()
	assert.Zero(t, receive)
	assert.Zero(t, receiveErr)

	info, err := s.OpenContext(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, info.ConnectionID)
	assert.True(t, s.IsOpen())
}

func TestStaleDisconnectKeepsNewConnection(t *testing.T) {
	ctx := context.Background()
	s, lb := openSession(t, Options{})
	first := s.ConnectionID()
	_, err := s.CloseContext(ctx)
	require.NoError(t, err)
	_, err = s.OpenContext(ctx)
	require.NoError(t, err)
	second := s.ConnectionID()

	var results []bool
	s.onDisconnect(first, true, nil, func(ok bool, err error) {
		assert.NoError(t, err)
		results = append(results, ok)
	})

	assert.Equal(t, []bool{true}, results)
	assert.True(t, s.IsOpen())
	assert.Equal(t, second, s.ConnectionID())

	receive, receiveErr := lb.ListenerCounts()
	assert.Equal(t, 1, receive)
	assert.Equal(t, 1, receiveErr)

	events := record(s, EventData)
	lb.Receive(second, []byte("still here"))
	require.Len(t, *events, 1)
	assert.Equal(t, "still here", string((*events)[0].Data))
}

func TestCloseErrorWithoutCompletion(t *testing.T) {
	s, lb := openSession(t, Options{})
	events := record(s, allKinds...)
	boom := errors.New("disconnect failed")
	lb.FailNext(loopback.OpDisconnect, boom)

	s.Close(nil)

	assert.Equal(t, []EventKind{EventError, EventClose}, eventKinds(*events))
	assert.Same(t, boom, (*events)[0].Err)
	assert.False(t, s.IsOpen())
}

func TestReopenAfterClose(t *testing.T) {
	s, _ := openSession(t, Options{})
	first := s.ConnectionID()
	_, err := s.CloseContext(context.Background())
	require.NoError(t, err)

	info, err := s.OpenContext(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, info.ConnectionID)
	assert.True(t, s.IsOpen())
}

func TestOperationsRequireOpen(t *testing.T) {
	s, lb := newSession(t, Options{})

	s.Write([]byte("x"), func(_ transport.SendInfo, err error) {
		assert.ErrorIs(t, err, ErrNotOpen, "write")
	})
	s.WriteString("x", "", func(_ transport.SendInfo, err error) {
		assert.ErrorIs(t, err, ErrNotOpen, "write string")
	})
	s.Flush(func(_ bool, err error) {
		assert.ErrorIs(t, err, ErrNotOpen, "flush")
	})
	s.Drain(func(err error) {
		assert.ErrorIs(t, err, ErrNotOpen, "drain")
	})
	s.Pause(func(err error) {
		assert.ErrorIs(t, err, ErrNotOpen, "pause")
	})
	s.Resume(func(err error) {
		assert.ErrorIs(t, err, ErrNotOpen, "resume")
	})
	s.Update(Options{BaudRate: 115200}, func(_ bool, err error) {
		assert.ErrorIs(t, err, ErrNotOpen, "update")
	})
	s.Close(func(_ bool, err error) {
		assert.ErrorIs(t, err, ErrNotOpen, "close")
	})

	assert.Empty(t, lb.Calls())
	assert.False(t, s.IsOpen())
}

func TestNotOpenWithoutCompletionEmitsError(t *testing.T) {
	s, _ := newSession(t, Options{})
	events := record(s, EventError)

	s.Write([]byte("x"), nil)
	s.Flush(nil)
	s.Pause(nil)

	require.Len(t, *events, 3)
	for _, ev := range *events {
		assert.ErrorIs(t, ev.Err, ErrNotOpen)
	}
}

func TestFlushAndDrain(t *testing.T) {
	s, lb := openSession(t, Options{})

	ok, err := s.FlushContext(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, lb.CallCount(loopback.OpFlush))

	drained := false
	s.Drain(func(err error) {
		assert.NoError(t, err)
		drained = true
	})
	assert.True(t, drained)
}

func TestPauseResume(t *testing.T) {
	s, lb := openSession(t, Options{})
	events := record(s, EventData)

	s.Pause(func(err error) { require.NoError(t, err) })
	lb.Receive(s.ConnectionID(), []byte("held"))
	assert.Empty(t, *events)

	s.Resume(func(err error) { require.NoError(t, err) })
	require.Len(t, *events, 1)

	var paused []bool
	for _, c := range lb.Calls() {
		if c.Op == loopback.OpSetPaused {
			paused = append(paused, c.Paused)
		}
	}
	assert.Equal(t, []bool{true, false}, paused)
}

func TestUpdateForwardsBaudOnly(t *testing.T) {
	s, lb := openSession(t, Options{})

	ok, err := s.UpdateContext(context.Background(), Options{BaudRate: 115200, DataBits: 7, Parity: "odd"})
	require.NoError(t, err)
	assert.True(t, ok)

	info, _ := lb.Connection(s.ConnectionID())
	assert.Equal(t, 115200, info.Bitrate)
	assert.Equal(t, transport.DataBitsEight, info.DataBits)
	assert.Equal(t, 115200, s.Config().BaudRate)
	assert.Equal(t, transport.DataBitsEight, s.Config().DataBits)

	_, err = s.UpdateContext(context.Background(), Options{LegacyBaudRate: 38400})
	require.NoError(t, err)
	assert.Equal(t, 38400, s.Config().BaudRate)
}

func TestUpdateWithoutBaud(t *testing.T) {
	s, lb := openSession(t, Options{})

	_, err := s.UpdateContext(context.Background(), Options{DataBits: 7})
	var optErr *OptionError
	require.ErrorAs(t, err, &optErr)
	assert.Equal(t, "baudRate", optErr.Field)
	assert.Zero(t, lb.CallCount(loopback.OpUpdate))
}

func TestSetGetSignals(t *testing.T) {
	s, _ := openSession(t, Options{})

	ok, err := s.SetContext(context.Background(), transport.HostControlSignals{
		DTR: transport.Bool(true),
		RTS: transport.Bool(true),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	signals, err := s.GetContext(context.Background())
	require.NoError(t, err)
	assert.True(t, signals.CTS)
	assert.True(t, signals.DSR)
	assert.True(t, signals.DCD)
	assert.False(t, signals.RI)
}

func TestSetGetPassThroughWhenClosed(t *testing.T) {
	s, lb := newSession(t, Options{})

	_, err := s.SetContext(context.Background(), transport.HostControlSignals{DTR: transport.Bool(true)})
	assert.ErrorIs(t, err, transport.ErrUnknownConnection)
	assert.NotErrorIs(t, err, ErrNotOpen)

	_, err = s.GetContext(context.Background())
	assert.ErrorIs(t, err, transport.ErrUnknownConnection)

	calls := lb.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, transport.NoConnection, calls[0].ConnectionID)
	assert.Equal(t, transport.NoConnection, calls[1].ConnectionID)
}

func TestContextCancelAbandonsWait(t *testing.T) {
	stub := &stubTransport{}
	// Connect never completes.
	stub.On("Connect", testPath, mock.Anything, mock.Anything).Return()

	s, err := New(testPath, Options{Transport: stub, AutoOpen: manualOpen()}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.OpenContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.IsOpen())
}

func TestOpenContextClosesLateConnection(t *testing.T) {
	held := newHeldTransport(loopback.OpConnect)
	s, err := New(testPath, Options{Transport: held, AutoOpen: manualOpen()}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.OpenContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, held.pending(loopback.OpConnect))

	held.release(loopback.OpConnect)

	assert.Eventually(t, func() bool {
		receive, receiveErr := held.ListenerCounts()
		return held.CallCount(loopback.OpDisconnect) == 1 && receive == 0 && receiveErr == 0
	}, time.Second, 5*time.Millisecond)
	assert.False(t, s.IsOpen())
	assert.Equal(t, transport.NoConnection, s.ConnectionID())
}

func TestOpenContextFailureAfterCancelLeavesNothing(t *testing.T) {
	held := newHeldTransport(loopback.OpConnect)
	held.RefuseConnect()
	s, err := New(testPath, Options{Transport: held, AutoOpen: manualOpen()}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.OpenContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	held.release(loopback.OpConnect)

	assert.Never(t, func() bool {
		return held.CallCount(loopback.OpDisconnect) > 0
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.False(t, s.IsOpen())
}

func TestSubscriberCount(t *testing.T) {
	s, _ := newSession(t, Options{})
	assert.Zero(t, s.SubscriberCount(EventData))

	a := s.Subscribe(EventData, func(Event) {})
	s.Subscribe(EventData, func(Event) {})
	s.Subscribe(EventClose, func(Event) {})
	assert.Equal(t, 2, s.SubscriberCount(EventData))
	assert.Equal(t, 1, s.SubscriberCount(EventClose))

	s.Unsubscribe(a)
	assert.Equal(t, 1, s.SubscriberCount(EventData))
	s.RemoveAllSubscribers()
	assert.Zero(t, s.SubscriberCount(EventData))
}

func TestIgnoredFlowControlStillOpens(t *testing.T) {
	s, lb := openSession(t, Options{FlowControl: []string{"XON", "XOFF"}})

	opts, _ := lb.LastConnect()
	assert.False(t, opts.CTSFlowControl)
	assert.True(t, s.IsOpen())
}

func TestSessionAccessors(t *testing.T) {
	s, _ := newSession(t, Options{BaudRate: 57600})

	assert.Equal(t, testPath, s.Path())
	assert.NotEqual(t, s.ID().String(), "")
	assert.Equal(t, 57600, s.Config().BaudRate)
	assert.False(t, s.Config().AutoOpen)
	assert.Equal(t, transport.NoConnection, s.ConnectionID())
}

func TestUnsubscribe(t *testing.T) {
	s, lb := openSession(t, Options{})
	calls := 0
	id := s.Subscribe(EventData, func(Event) { calls++ })

	lb.Receive(s.ConnectionID(), []byte("a"))
	s.Unsubscribe(id)
	lb.Receive(s.ConnectionID(), []byte("b"))

	assert.Equal(t, 1, calls)
}

package serialport

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/whoisnian/glb/logger"

	"github.com/allbin/go-serialport/transport"
)

// Session owns one logical connection to a serial device through a Transport.
//
// Every asynchronous operation takes an optional completion func. When it is
// nil, failures are emitted as EventError and successes emit the operation's
// named event where one exists (EventOpen, EventClose).
//
// Overlapping Open calls on one Session are a usage error and not guarded.
// Only one Close runs per connection; while it is in flight the session
// reports not open to writers and to further Close calls.
type Session struct {
	id     uuid.UUID
	path   string
	t      transport.Transport
	log    *logger.Logger
	events emitter

	mu        sync.Mutex
	cfg       Config
	handle    transport.ConnectionID
	open      bool
	closing   bool
	listening bool
	rxID      transport.ListenerID
	rxErrID   transport.ListenerID
}

// New validates opts for path and returns a session in the unopened state.
// Invalid options fail here, before the transport is touched. When auto-open
// is on (the default) Open(done) is started on a new goroutine; to observe
// EventOpen instead of passing done, disable auto-open and call Open after
// subscribing.
func New(path string, opts Options, done func(transport.ConnectionInfo, error)) (*Session, error) {
	cfg, ignored, err := normalize(path, opts)
	if err != nil {
		return nil, err
	}
	if opts.Transport == nil {
		return nil, ErrTransportUnavailable
	}

	s := &Session{
		id:     uuid.New(),
		path:   path,
		t:      opts.Transport,
		log:    opts.Logger,
		cfg:    cfg,
		handle: transport.NoConnection,
	}
	if s.log == nil {
		s.log = discardLogger()
	}

	ctx := context.Background()
	for _, flag := range ignored {
		s.log.Warnf(ctx, "session %s: flow control %s is accepted but not implemented, ignoring", s.id, flag)
	}

	if cfg.AutoOpen {
		go s.Open(done)
	}
	return s, nil
}

// ID returns the session's unique id, used for log correlation.
func (s *Session) ID() uuid.UUID { return s.id }

// Path returns the device path the session was created for.
func (s *Session) Path() string { return s.path }

// IsOpen reports whether the session holds a live connection.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// ConnectionID returns the current transport handle, or transport.NoConnection.
func (s *Session) ConnectionID() transport.ConnectionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Config returns a copy of the normalized configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Subscribe registers fn for events of kind.
func (s *Session) Subscribe(kind EventKind, fn func(Event)) SubscriptionID {
	return s.events.subscribe(kind, fn)
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (s *Session) Unsubscribe(id SubscriptionID) {
	s.events.unsubscribe(id)
}

// SubscriberCount returns how many subscribers are registered for kind.
func (s *Session) SubscriberCount(kind EventKind) int {
	return s.events.count(kind)
}

// RemoveAllSubscribers drops every subscriber of every kind.
func (s *Session) RemoveAllSubscribers() {
	s.events.removeAll()
}

// Open connects to the device. It fails with ErrAlreadyOpen if the session
// already holds a handle, and with ErrCouldNotOpen if the transport answers
// with the no-connection sentinel.
func (s *Session) Open(done func(transport.ConnectionInfo, error)) {
	s.mu.Lock()
	if s.handle.Valid() {
		s.mu.Unlock()
		complete(s, done, transport.ConnectionInfo{}, ErrAlreadyOpen)
		return
	}
	opts := s.cfg.ConnectOptions()
	s.mu.Unlock()

	s.log.Debugf(context.Background(), "session %s: connecting %s %+v", s.id, s.path, opts)
	s.t.Connect(s.path, opts, func(info transport.ConnectionInfo, err error) {
		s.onConnect(info, err, done)
	})
}

func (s *Session) onConnect(info transport.ConnectionInfo, err error, done func(transport.ConnectionInfo, error)) {
	if err != nil {
		complete(s, done, info, err)
		return
	}
	if !info.ConnectionID.Valid() {
		complete(s, done, info, ErrCouldNotOpen)
		return
	}

	s.mu.Lock()
	s.handle = info.ConnectionID
	s.open = true
	s.mu.Unlock()

	rx := s.t.AddReceiveListener(s.onReceive)
	rxErr := s.t.AddReceiveErrorListener(s.onReceiveError)

	s.mu.Lock()
	s.rxID, s.rxErrID, s.listening = rx, rxErr, true
	s.mu.Unlock()

	s.log.Debugf(context.Background(), "session %s: opened %s as connection %d", s.id, s.path, info.ConnectionID)
	if done != nil {
		done(info, nil)
		return
	}
	s.events.emit(Event{Kind: EventOpen, Info: info})
}

// liveHandle returns the handle if it is valid and not being closed. An
// invalid handle forces the open flag false so the two never disagree.
func (s *Session) liveHandle() (transport.ConnectionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveHandleLocked()
}

func (s *Session) liveHandleLocked() (transport.ConnectionID, bool) {
	if !s.handle.Valid() {
		s.open = false
		return transport.NoConnection, false
	}
	if s.closing {
		return transport.NoConnection, false
	}
	return s.handle, true
}

// beginClose claims the live handle for a single Disconnect.
func (s *Session) beginClose() (transport.ConnectionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.liveHandleLocked()
	if ok {
		s.closing = true
	}
	return id, ok
}

// Write sends data on the open connection. The transport's result is
// forwarded unchanged.
func (s *Session) Write(data []byte, done func(transport.SendInfo, error)) {
	id, ok := s.liveHandle()
	if !ok {
		complete(s, done, transport.SendInfo{}, ErrNotOpen)
		return
	}
	s.t.Send(id, ToTransportBuffer(data), func(info transport.SendInfo, err error) {
		complete(s, done, info, err)
	})
}

// WriteString sends str as UTF-8. Any other encoding name is logged and
// otherwise ignored; an empty encoding means UTF-8.
func (s *Session) WriteString(str, encoding string, done func(transport.SendInfo, error)) {
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8":
	default:
		s.log.Warnf(context.Background(), "session %s: encoding %q not supported, writing UTF-8", s.id, encoding)
	}
	s.Write(StringToBuffer(str), done)
}

func (s *Session) onReceive(info transport.ReceiveInfo) {
	s.mu.Lock()
	handle := s.handle
	onData := s.cfg.DataCallback
	s.mu.Unlock()

	if !handle.Valid() || info.ConnectionID != handle {
		return
	}

	data := FromTransportBuffer(info.Data)
	if onData != nil {
		onData(data)
		return
	}
	s.events.emit(Event{Kind: EventData, Data: data})
}

func (s *Session) onReceiveError(info transport.ReceiveErrorInfo) {
	s.mu.Lock()
	handle := s.handle
	closing := s.closing
	onDisconnect := s.cfg.DisconnectCallback
	s.mu.Unlock()

	if !handle.Valid() || info.ConnectionID != handle || closing {
		return
	}

	switch info.Error {
	case transport.ReceiveDisconnected, transport.ReceiveDeviceLost, transport.ReceiveSystemError:
	default:
		s.log.Debugf(context.Background(), "session %s: ignoring receive condition %s", s.id, info.Error)
		return
	}

	s.log.Warnf(context.Background(), "session %s: %s on %s", s.id, info.Error, s.path)
	err := &DisconnectError{Condition: string(info.Error)}
	if onDisconnect != nil {
		onDisconnect(err)
	} else {
		s.events.emit(Event{Kind: EventDisconnect, Err: err})
	}

	// A Close already in flight finishes the job.
	if id, ok := s.beginClose(); ok {
		s.disconnect(id, nil)
	}
}

// Close disconnects. On completion the handle is reset, EventClose is
// emitted, every subscriber and transport listener is removed and finally
// done runs. Nothing from this session fires after that. A Close issued
// while another one is in flight fails with ErrNotOpen.
func (s *Session) Close(done func(bool, error)) {
	id, ok := s.beginClose()
	if !ok {
		complete(s, done, false, ErrNotOpen)
		return
	}
	s.disconnect(id, done)
}

func (s *Session) disconnect(id transport.ConnectionID, done func(bool, error)) {
	s.log.Debugf(context.Background(), "session %s: closing connection %d", s.id, id)
	s.t.Disconnect(id, func(result bool, err error) {
		s.onDisconnect(id, result, err, done)
	})
}

func (s *Session) onDisconnect(id transport.ConnectionID, result bool, err error, done func(bool, error)) {
	s.mu.Lock()
	if s.handle != id {
		// The session has moved on to another connection.
		s.mu.Unlock()
		s.log.Debugf(context.Background(), "session %s: stale close of connection %d", s.id, id)
		if done != nil {
			done(result, err)
		}
		return
	}
	s.handle = transport.NoConnection
	s.open = false
	s.closing = false
	rx, rxErr, listening := s.rxID, s.rxErrID, s.listening
	s.rxID, s.rxErrID, s.listening = 0, 0, false
	s.mu.Unlock()

	if err != nil && done == nil {
		s.events.emit(Event{Kind: EventError, Err: err})
	}
	s.events.emit(Event{Kind: EventClose})
	s.events.removeAll()

	if listening {
		s.t.RemoveReceiveListener(rx)
		s.t.RemoveReceiveErrorListener(rxErr)
	}

	s.log.Debugf(context.Background(), "session %s: closed %s", s.id, s.path)
	if done != nil {
		done(result, err)
	}
}

// Flush discards data queued in the transport for this connection.
func (s *Session) Flush(done func(bool, error)) {
	id, ok := s.liveHandle()
	if !ok {
		complete(s, done, false, ErrNotOpen)
		return
	}
	s.t.Flush(id, func(result bool, err error) {
		complete(s, done, result, err)
	})
}

// Drain succeeds immediately on an open session. The transport has no drain
// primitive; Drain exists for parity with buffered writers.
func (s *Session) Drain(done func(error)) {
	if _, ok := s.liveHandle(); !ok {
		completeErr(s, done, ErrNotOpen)
		return
	}
	completeErr(s, done, nil)
}

// Pause stops receive notifications for this connection.
func (s *Session) Pause(done func(error)) {
	s.setPaused(true, done)
}

// Resume restarts receive notifications after Pause.
func (s *Session) Resume(done func(error)) {
	s.setPaused(false, done)
}

func (s *Session) setPaused(paused bool, done func(error)) {
	id, ok := s.liveHandle()
	if !ok {
		completeErr(s, done, ErrNotOpen)
		return
	}
	s.t.SetPaused(id, paused, func(err error) {
		completeErr(s, done, err)
	})
}

// Update changes the baud rate of the live connection. Only the baud rate
// (BaudRate, else LegacyBaudRate) is forwarded; the transport cannot change
// other settings on an open connection, so they are ignored.
func (s *Session) Update(opts Options, done func(bool, error)) {
	id, ok := s.liveHandle()
	if !ok {
		complete(s, done, false, ErrNotOpen)
		return
	}
	rate := firstNonZero(opts.BaudRate, opts.LegacyBaudRate)
	if rate <= 0 {
		complete(s, done, false, invalidOption("baudRate", rate))
		return
	}

	s.t.Update(id, transport.UpdateOptions{Bitrate: rate}, func(result bool, err error) {
		if err == nil && result {
			s.mu.Lock()
			s.cfg.BaudRate = rate
			s.mu.Unlock()
		}
		complete(s, done, result, err)
	})
}

// Set drives the host control lines. It is passed straight to the transport
// with the current handle; the transport rejects an invalid one.
func (s *Session) Set(signals transport.HostControlSignals, done func(bool, error)) {
	s.t.SetControlSignals(s.ConnectionID(), signals, func(result bool, err error) {
		complete(s, done, result, err)
	})
}

// Get reads the device control lines, passed straight to the transport.
func (s *Session) Get(done func(transport.DeviceControlSignals, error)) {
	s.t.GetControlSignals(s.ConnectionID(), func(signals transport.DeviceControlSignals, err error) {
		complete(s, done, signals, err)
	})
}

// complete delivers an operation result to done, or emits err as EventError
// when no completion was supplied.
func complete[T any](s *Session, done func(T, error), value T, err error) {
	if done != nil {
		done(value, err)
		return
	}
	if err != nil {
		s.events.emit(Event{Kind: EventError, Err: err})
	}
}

func completeErr(s *Session, done func(error), err error) {
	if done != nil {
		done(err)
		return
	}
	if err != nil {
		s.events.emit(Event{Kind: EventError, Err: err})
	}
}

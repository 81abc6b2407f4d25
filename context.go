package serialport

import (
	"context"

	"github.com/allbin/go-serialport/transport"
)

// The *Context variants block until the operation completes or ctx ends.
// Ending ctx abandons the wait only; an operation already handed to the
// transport still runs to completion.

// OpenContext closes a connection that completes after ctx has ended, so an
// abandoned open never leaves the device held.
func (s *Session) OpenContext(ctx context.Context) (transport.ConnectionInfo, error) {
	f := newFuture[transport.ConnectionInfo]()
	s.Open(f.resolve)
	info, err := f.Await(ctx)
	if err != nil && ctx.Err() != nil {
		go func() {
			<-f.Done()
			if f.err == nil {
				s.log.Debugf(context.Background(), "session %s: open outlived its context, closing", s.id)
				s.Close(func(bool, error) {})
			}
		}()
	}
	return info, err
}

func (s *Session) WriteContext(ctx context.Context, data []byte) (transport.SendInfo, error) {
	f := newFuture[transport.SendInfo]()
	s.Write(data, f.resolve)
	return f.Await(ctx)
}

func (s *Session) CloseContext(ctx context.Context) (bool, error) {
	f := newFuture[bool]()
	s.Close(f.resolve)
	return f.Await(ctx)
}

func (s *Session) FlushContext(ctx context.Context) (bool, error) {
	f := newFuture[bool]()
	s.Flush(f.resolve)
	return f.Await(ctx)
}

func (s *Session) UpdateContext(ctx context.Context, opts Options) (bool, error) {
	f := newFuture[bool]()
	s.Update(opts, f.resolve)
	return f.Await(ctx)
}

func (s *Session) SetContext(ctx context.Context, signals transport.HostControlSignals) (bool, error) {
	f := newFuture[bool]()
	s.Set(signals, f.resolve)
	return f.Await(ctx)
}

func (s *Session) GetContext(ctx context.Context) (transport.DeviceControlSignals, error) {
	f := newFuture[transport.DeviceControlSignals]()
	s.Get(f.resolve)
	return f.Await(ctx)
}

// ListContext is the blocking form of List.
func ListContext(ctx context.Context, t transport.Transport) ([]DeviceInfo, error) {
	return List(t, nil).Await(ctx)
}

// Package serialport provides a client-side session layer for serial devices
// on top of an asynchronous, callback-driven transport.
//
// The transport (see package transport) is connection-id based and reports
// everything through completion funcs and listeners. A Session wraps one
// connection: it validates options before the transport is touched, tracks
// the connection handle, turns incoming bytes into data events and tears
// everything down on close.
//
// # Basic Usage
//
//	t := host.New()
//	s, err := serialport.New("/dev/ttyUSB0", serialport.Options{
//	    BaudRate:  115200,
//	    Transport: t,
//	}, func(info transport.ConnectionInfo, err error) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	})
//
// Options left at their zero value take the defaults (9600 8N1, 256 byte
// buffer, no flow control, auto-open). Older lowercase option names such as
// "baudrate" and "databits" are accepted through the Legacy* fields.
//
// # Callbacks and Events
//
// Every asynchronous operation takes an optional completion func. If it is
// nil the outcome is delivered as an event instead:
//
//	s.Subscribe(serialport.EventData, func(ev serialport.Event) {
//	    fmt.Printf("% x\n", ev.Data)
//	})
//	s.Subscribe(serialport.EventError, func(ev serialport.Event) {
//	    log.Println(ev.Err)
//	})
//	s.Write([]byte("AT\r"), nil)
//
// Closing removes every subscriber. No event fires after the close
// completion has run.
//
// # Blocking Helpers
//
// OpenContext, WriteContext, CloseContext and friends wait for the
// completion and honor context cancellation:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
//	defer cancel()
//	sent, err := s.WriteContext(ctx, []byte("ping"))
//
// # Flow Control
//
// Only RTSCTS (or RTSCTS: true) enables hardware flow control. XON, XOFF,
// XANY and DTRDSR are accepted and logged but have no effect. Anything
// else is rejected with an *OptionError.
//
// # Error Handling
//
//	if errors.Is(err, serialport.ErrNotOpen) {
//	    // open first
//	}
//	var optErr *serialport.OptionError
//	if errors.As(err, &optErr) {
//	    fmt.Println("bad option:", optErr.Field)
//	}
//
// Errors produced by the transport are passed through untouched.
package serialport

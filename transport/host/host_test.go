package host

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/go-serialport/transport"
)

const waitTimeout = 2 * time.Second

var rawOptions = transport.ConnectOptions{
	Bitrate:   115200,
	DataBits:  transport.DataBitsEight,
	ParityBit: transport.ParityNo,
	StopBits:  transport.StopBitsOne,
}

// openPTY returns the controlling side of a pseudo-terminal and the path of its device side.
func openPTY(t *testing.T) (*os.File, string) {
	t.Helper()
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pseudo-terminals not available: %v", err)
	}
	t.Cleanup(func() {
		ptmx.Close()
		tty.Close()
	})
	return ptmx, tty.Name()
}

func connect(t *testing.T, tr *Transport, path string) transport.ConnectionInfo {
	t.Helper()
	result := make(chan transport.ConnectionInfo, 1)
	tr.Connect(path, rawOptions, func(info transport.ConnectionInfo, err error) {
		require.NoError(t, err)
		result <- info
	})
	select {
	case info := <-result:
		return info
	case <-time.After(waitTimeout):
		t.Fatal("connect did not complete")
		return transport.ConnectionInfo{}
	}
}

func disconnect(t *testing.T, tr *Transport, id transport.ConnectionID) {
	t.Helper()
	result := make(chan error, 1)
	tr.Disconnect(id, func(_ bool, err error) { result <- err })
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("disconnect did not complete")
	}
}

func TestConnectNonExistentDevice(t *testing.T) {
	tr := New()
	result := make(chan error, 1)
	tr.Connect("/dev/nonexistent", rawOptions, func(info transport.ConnectionInfo, err error) {
		assert.Equal(t, transport.NoConnection, info.ConnectionID)
		result <- err
	})

	err := <-result
	var platformErr *transport.PlatformError
	require.ErrorAs(t, err, &platformErr)
	assert.Equal(t, "connect", platformErr.Op)
	assert.Equal(t, "/dev/nonexistent", platformErr.Path)
}

func TestConnectUnsupportedBitrate(t *testing.T) {
	_, path := openPTY(t)
	tr := New()

	opts := rawOptions
	opts.Bitrate = 12345
	result := make(chan error, 1)
	tr.Connect(path, opts, func(_ transport.ConnectionInfo, err error) { result <- err })

	assert.ErrorIs(t, <-result, transport.ErrUnsupportedBitrate)
}

func TestReceiveFromPTY(t *testing.T) {
	ptmx, path := openPTY(t)
	tr := New()

	received := make(chan transport.ReceiveInfo, 8)
	tr.AddReceiveListener(func(info transport.ReceiveInfo) { received <- info })

	info := connect(t, tr, path)
	assert.Equal(t, transport.ConnectionID(1), info.ConnectionID)
	assert.Equal(t, DefaultBufferSize, info.BufferSize)
	defer disconnect(t, tr, info.ConnectionID)

	_, err := ptmx.Write([]byte("hello"))
	require.NoError(t, err)

	var got []byte
	deadline := time.After(waitTimeout)
	for len(got) < 5 {
		select {
		case ri := <-received:
			assert.Equal(t, info.ConnectionID, ri.ConnectionID)
			got = append(got, ri.Data...)
		case <-deadline:
			t.Fatalf("Expected 5 bytes, got %q", got)
		}
	}
	assert.Equal(t, "hello", string(got))
}

func TestSendToPTY(t *testing.T) {
	ptmx, path := openPTY(t)
	tr := New()
	info := connect(t, tr, path)
	defer disconnect(t, tr, info.ConnectionID)

	result := make(chan transport.SendInfo, 1)
	tr.Send(info.ConnectionID, []byte{0x01, 0x02, 0xff}, func(si transport.SendInfo, err error) {
		assert.NoError(t, err)
		result <- si
	})
	assert.Equal(t, 3, (<-result).BytesSent)

	read := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 3)
		if _, err := io.ReadFull(ptmx, buf); err == nil {
			read <- buf
		}
	}()

	select {
	case buf := <-read:
		assert.Equal(t, []byte{0x01, 0x02, 0xff}, buf)
	case <-time.After(waitTimeout):
		t.Fatal("Expected the sent bytes on the other side")
	}
}

func TestPausedConnectionHoldsData(t *testing.T) {
	ptmx, path := openPTY(t)
	tr := New()

	received := make(chan []byte, 8)
	tr.AddReceiveListener(func(info transport.ReceiveInfo) { received <- info.Data })
	info := connect(t, tr, path)
	defer disconnect(t, tr, info.ConnectionID)

	paused := make(chan error, 1)
	tr.SetPaused(info.ConnectionID, true, func(err error) { paused <- err })
	require.NoError(t, <-paused)

	_, err := ptmx.Write([]byte("x"))
	require.NoError(t, err)

	select {
	case data := <-received:
		t.Fatalf("Expected nothing while paused, got %q", data)
	case <-time.After(300 * time.Millisecond):
	}

	tr.SetPaused(info.ConnectionID, false, func(err error) { paused <- err })
	require.NoError(t, <-paused)

	select {
	case data := <-received:
		assert.Equal(t, []byte("x"), data)
	case <-time.After(waitTimeout):
		t.Fatal("Expected data after resume")
	}
}

func TestUpdateBitrate(t *testing.T) {
	_, path := openPTY(t)
	tr := New()
	info := connect(t, tr, path)
	defer disconnect(t, tr, info.ConnectionID)

	result := make(chan error, 1)
	tr.Update(info.ConnectionID, transport.UpdateOptions{Bitrate: 9600}, func(_ bool, err error) { result <- err })
	require.NoError(t, <-result)

	current, ok := tr.Connection(info.ConnectionID)
	require.True(t, ok)
	assert.Equal(t, 9600, current.Bitrate)

	tr.Update(info.ConnectionID, transport.UpdateOptions{Bitrate: 1}, func(_ bool, err error) { result <- err })
	assert.ErrorIs(t, <-result, transport.ErrUnsupportedBitrate)
}

func TestDisconnectStopsDelivery(t *testing.T) {
	ptmx, path := openPTY(t)
	tr := New()

	received := make(chan []byte, 8)
	tr.AddReceiveListener(func(info transport.ReceiveInfo) { received <- info.Data })
	info := connect(t, tr, path)
	disconnect(t, tr, info.ConnectionID)

	_, _ = ptmx.Write([]byte("late"))
	select {
	case data := <-received:
		t.Fatalf("Expected nothing after disconnect, got %q", data)
	case <-time.After(300 * time.Millisecond):
	}

	_, ok := tr.Connection(info.ConnectionID)
	assert.False(t, ok)

	result := make(chan error, 1)
	tr.Disconnect(info.ConnectionID, func(_ bool, err error) { result <- err })
	assert.ErrorIs(t, <-result, transport.ErrUnknownConnection)
}

func TestHangupReportsDeviceLost(t *testing.T) {
	ptmx, path := openPTY(t)
	tr := New()

	conditions := make(chan transport.ReceiveErrorInfo, 1)
	tr.AddReceiveErrorListener(func(info transport.ReceiveErrorInfo) { conditions <- info })
	info := connect(t, tr, path)
	defer disconnect(t, tr, info.ConnectionID)

	require.NoError(t, ptmx.Close())

	select {
	case got := <-conditions:
		assert.Equal(t, info.ConnectionID, got.ConnectionID)
		assert.Equal(t, transport.ReceiveDeviceLost, got.Error)
	case <-time.After(waitTimeout):
		t.Fatal("Expected a receive error after hangup")
	}
}

func TestUnknownConnectionOps(t *testing.T) {
	tr := New()
	errs := make(chan error, 4)

	tr.Flush(99, func(_ bool, err error) { errs <- err })
	tr.SetPaused(99, true, func(err error) { errs <- err })
	tr.GetControlSignals(99, func(_ transport.DeviceControlSignals, err error) { errs <- err })
	tr.SetControlSignals(transport.NoConnection, transport.HostControlSignals{}, func(_ bool, err error) { errs <- err })

	for range 4 {
		assert.ErrorIs(t, <-errs, transport.ErrUnknownConnection)
	}
}

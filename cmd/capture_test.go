package cmd

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/go-serialport/internal/capture"
	"github.com/allbin/go-serialport/internal/tui/components"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestRawSink(t *testing.T) {
	var buf bytes.Buffer
	out, err := newSink(formatRaw, "/dev/ttyUSB0", nopWriteCloser{&buf})
	require.NoError(t, err)

	require.NoError(t, out.data([]byte("abc")))
	require.NoError(t, out.condition("device_lost"))
	require.NoError(t, out.Close())
	assert.Equal(t, "abc", buf.String())
}

func TestCBORSink(t *testing.T) {
	var buf bytes.Buffer
	out, err := newSink(formatCBOR, "/dev/ttyUSB0", nopWriteCloser{&buf})
	require.NoError(t, err)

	require.NoError(t, out.data([]byte{0x01, 0x02}))
	require.NoError(t, out.condition("device_lost"))
	require.NoError(t, out.Close())

	records, err := capture.ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "/dev/ttyUSB0", records[0].Port)
	assert.Equal(t, []byte{0x01, 0x02}, records[0].Data)
	assert.Equal(t, "device_lost", records[1].Condition)
	assert.Empty(t, records[1].Data)
}

func TestNewSinkRejectsUnknownFormat(t *testing.T) {
	_, err := newSink("pcap", "/dev/ttyUSB0", nopWriteCloser{io.Discard})
	assert.Error(t, err)
}

func TestDumpRecords(t *testing.T) {
	var buf bytes.Buffer
	w := capture.NewWriter(&buf)
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, w.Write(capture.Record{Time: at, Port: "/dev/ttyS0", Direction: capture.DirectionRX, Data: []byte("OK")}))
	require.NoError(t, w.Write(capture.Record{Time: at, Port: "/dev/ttyS0", Direction: capture.DirectionTX, Data: []byte("AT")}))
	require.NoError(t, w.Write(capture.Record{Time: at, Port: "/dev/ttyS0", Condition: "device_lost"}))

	df := components.NewDataFormatter(false, true)
	df.SetFormatOptions(true, true)

	var out bytes.Buffer
	require.NoError(t, dumpRecords(&out, &buf, df))
	assert.Equal(t, []string{"ASCII: OK", "ASCII: AT", "condition: device_lost"},
		strings.Split(strings.TrimSpace(out.String()), "\n"))
}

func TestDumpRecordsStopsAtGarbage(t *testing.T) {
	df := components.NewDataFormatter(false, true)
	err := dumpRecords(io.Discard, bytes.NewReader([]byte{0xff, 0x00, 0x13}), df)
	assert.Error(t, err)
}

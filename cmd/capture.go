/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	serialport "github.com/allbin/go-serialport"
	"github.com/allbin/go-serialport/internal/capture"
)

const (
	formatRaw  = "raw"
	formatCBOR = "cbor"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <port> <output-file>",
	Short: "Capture serial data to a file",
	Long: `Capture incoming serial data to a file for later parsing.

With --format raw (the default) received bytes are written to the file
unchanged. With --format cbor every chunk is stored as a timestamped
record, and a lost device is recorded too; read such files back with
"serialport dump".

The output file is opened in append mode, allowing you to resume captures
without overwriting existing data.

Example usage:
  serialport capture /dev/ttyUSB0 data.log
  serialport capture /dev/ttyUSB0 output.txt --baud 9600
  serialport capture /dev/ttyUSB0 session.cbor --format cbor
  serialport capture /dev/ttyUSB0 capture.log --console`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		showConsole, _ := cmd.Flags().GetBool("console")

		if err := runCapture(args[0], args[1], format, showConsole); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().String("format", formatRaw, "Output format: raw or cbor")
	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
}

// sink stores received chunks in one of the capture formats.
type sink interface {
	data(b []byte) error
	condition(c string) error
	io.Closer
}

type rawSink struct{ w io.WriteCloser }

func (r rawSink) data(b []byte) error {
	_, err := r.w.Write(b)
	return err
}

func (r rawSink) condition(string) error { return nil }
func (r rawSink) Close() error          { return r.w.Close() }

type cborSink struct {
	port string
	f    io.Closer
	w    *capture.Writer
}

func (c cborSink) data(b []byte) error {
	return c.w.Write(capture.Record{Time: time.Now(), Port: c.port, Direction: capture.DirectionRX, Data: b})
}

func (c cborSink) condition(cond string) error {
	return c.w.Write(capture.Record{Time: time.Now(), Port: c.port, Direction: capture.DirectionRX, Condition: cond})
}

func (c cborSink) Close() error {
	c.w.Close()
	return c.f.Close()
}

func newSink(format, portPath string, f io.WriteCloser) (sink, error) {
	switch format {
	case formatRaw:
		return rawSink{w: f}, nil
	case formatCBOR:
		return cborSink{port: portPath, f: f, w: capture.NewWriter(f)}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (valid: %s, %s)", format, formatRaw, formatCBOR)
	}
}

func runCapture(portPath, outputPath, format string, showConsole bool) error {
	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	out, err := newSink(format, portPath, file)
	if err != nil {
		file.Close()
		return err
	}
	defer out.Close()

	var (
		mu           sync.Mutex
		bytesWritten int64
		writeErr     error
	)
	onData := func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		if writeErr != nil {
			return
		}
		if writeErr = out.data(data); writeErr != nil {
			LOG.Errorf(context.Background(), "write to %s failed: %v", outputPath, writeErr)
			return
		}
		bytesWritten += int64(len(data))
		if showConsole {
			os.Stdout.Write(data)
		}
	}

	ctx, stop := interruptContext()
	defer stop()

	fmt.Fprintf(os.Stderr, "Capturing data from %s to %s (%s)\n", portPath, outputPath, format)
	if showConsole {
		fmt.Fprintf(os.Stderr, "Console display enabled\n")
	}

	startTime := time.Now()
	err = runStream(ctx, portPath, onData)

	var lost *serialport.DisconnectError
	if errors.As(err, &lost) {
		if cerr := out.condition(lost.Condition); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes written in %v\n", bytesWritten, time.Since(startTime).Round(time.Millisecond))
	return errors.Join(err, writeErr)
}

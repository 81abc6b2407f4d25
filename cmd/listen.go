/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	serialport "github.com/allbin/go-serialport"
	"github.com/allbin/go-serialport/internal/tui/components"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen <port>",
	Short: "Stream incoming data from a serial port",
	Long: `Open a serial port and print incoming data as it arrives.

Each chunk is printed on its own line with a timestamp and its hex and
ASCII renderings. The command runs until Ctrl+C or until the device goes
away.

Example usage:
  serialport listen /dev/ttyUSB0
  serialport listen /dev/ttyUSB0 --baud 115200 --rtscts
  serialport listen /dev/ttyUSB0 --raw > dump.bin`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		noTimestamps, _ := cmd.Flags().GetBool("no-timestamps")
		showIndicators, _ := cmd.Flags().GetBool("show-indicators")
		rawMode, _ := cmd.Flags().GetBool("raw")
		hexMode, _ := cmd.Flags().GetBool("hex")

		var out func([]byte)
		if rawMode {
			out = func(data []byte) { os.Stdout.Write(data) }
		} else {
			df := components.NewDataFormatter(hexMode, true)
			df.SetFormatOptions(noTimestamps, !showIndicators)
			out = lineWriter(os.Stdout, df)
		}

		ctx, stop := interruptContext()
		defer stop()
		if err := runStream(ctx, args[0], out); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().Bool("no-timestamps", false, "Hide timestamps from output")
	listenCmd.Flags().Bool("show-indicators", false, "Show RX indicators (off by default)")
	listenCmd.Flags().Bool("hex", false, "Show hex next to ASCII")
	listenCmd.Flags().Bool("raw", false, "Write received bytes to stdout unchanged")
}

// lineWriter formats every received chunk as one line on w.
func lineWriter(w io.Writer, df *components.DataFormatter) func([]byte) {
	var mu sync.Mutex
	return func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, df.FormatMessage(components.DataReceivedMsg{Timestamp: time.Now(), Data: data}))
	}
}

// runStream opens portPath, hands every received chunk to onData and
// returns once ctx is done or the device disconnects.
func runStream(ctx context.Context, portPath string, onData func([]byte)) error {
	lost := make(chan error, 1)
	s, err := openSession(ctx, portPath, func(opts *serialport.Options) {
		opts.DataCallback = onData
		opts.DisconnectCallback = func(err error) {
			select {
			case lost <- err:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer closeSession(s)

	fmt.Fprintf(os.Stderr, "Connected to %s, press Ctrl+C to stop\n", portPath)
	select {
	case <-ctx.Done():
		return nil
	case err := <-lost:
		return fmt.Errorf("%s: %w", portPath, err)
	}
}

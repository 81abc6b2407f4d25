/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/allbin/go-serialport/transport"
)

// rtsCmd represents the rts command
var rtsCmd = &cobra.Command{
	Use:   "rts <port> <state>",
	Short: "Control RTS (Request To Send) signal",
	Long: `Manually set the RTS (Request To Send) signal state.

The RTS signal can be used for software flow control or custom signaling.
With RTS/CTS flow control enabled the driver may override it.

Examples:
  serialport rts /dev/ttyUSB0 high
  serialport rts /dev/ttyUSB0 low
  serialport rts /dev/ttyUSB0 on
  serialport rts /dev/ttyUSB0 off

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runSetSignal(args[0], args[1], "RTS", func(state bool) transport.HostControlSignals {
			return transport.HostControlSignals{RTS: transport.Bool(state)}
		})
	},
}

func parseSignalState(state string) (bool, error) {
	switch strings.ToLower(state) {
	case "high", "on", "true", "1":
		return true, nil
	case "low", "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state: %s (valid: high, low, on, off, true, false, 1, 0)", state)
	}
}

// runSetSignal opens portPath, drives one output line and reports the
// input lines afterwards.
func runSetSignal(portPath, stateArg, name string, signals func(bool) transport.HostControlSignals) {
	state, err := parseSignalState(stateArg)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := interruptContext()
	defer cancel()

	s, err := openSession(ctx, portPath, nil)
	if err != nil {
		fail("%v", err)
	}
	defer closeSession(s)

	if _, err := s.SetContext(ctx, signals(state)); err != nil {
		fail("setting %s: %v", name, err)
	}
	fmt.Printf("%s set to %s on %s\n", name, formatSignalState(state), portPath)

	// The peer side of a null-modem cable sees the change on its inputs.
	if inputs, err := s.GetContext(ctx); err != nil {
		LOG.Warnf(ctx, "could not read modem signals: %v", err)
	} else {
		fmt.Printf("  CTS: %s  DSR: %s  DCD: %s  RI: %s\n",
			formatSignalState(inputs.CTS), formatSignalState(inputs.DSR),
			formatSignalState(inputs.DCD), formatSignalState(inputs.RI))
	}
}

func init() {
	rootCmd.AddCommand(rtsCmd)
}

/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals <port>",
	Short: "Display current modem signal states",
	Long: `Display the current state of the modem status lines the device drives.

Examples:
  serialport signals /dev/ttyUSB0
  serialport signals /dev/ttyACM0

Signal meanings:
  CTS - Clear To Send (input)
  DSR - Data Set Ready (input)
  RI  - Ring Indicator (input)
  DCD - Data Carrier Detect (input)

RTS and DTR are outputs; set them with the rts and dtr commands.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]

		ctx, cancel := interruptContext()
		defer cancel()

		s, err := openSession(ctx, portPath, nil)
		if err != nil {
			fail("%v", err)
		}
		defer closeSession(s)

		signals, err := s.GetContext(ctx)
		if err != nil {
			fail("reading modem signals: %v", err)
		}

		fmt.Printf("Modem Signals for %s:\n\n", portPath)
		fmt.Printf("  CTS (Clear To Send):       %s\n", formatSignalState(signals.CTS))
		fmt.Printf("  DSR (Data Set Ready):      %s\n", formatSignalState(signals.DSR))
		fmt.Printf("  RI  (Ring Indicator):      %s\n", formatSignalState(signals.RI))
		fmt.Printf("  DCD (Data Carrier Detect): %s\n", formatSignalState(signals.DCD))
	},
}

func formatSignalState(state bool) string {
	if state {
		return "HIGH"
	}
	return "LOW"
}

func init() {
	rootCmd.AddCommand(signalsCmd)
}

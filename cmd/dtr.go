/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/allbin/go-serialport/transport"
)

// dtrCmd represents the dtr command
var dtrCmd = &cobra.Command{
	Use:   "dtr <port> <state>",
	Short: "Control DTR (Data Terminal Ready) signal",
	Long: `Manually set the DTR (Data Terminal Ready) signal state.

The DTR signal indicates that the terminal is ready for communication.

Examples:
  serialport dtr /dev/ttyUSB0 high
  serialport dtr /dev/ttyUSB0 low
  serialport dtr /dev/ttyUSB0 on
  serialport dtr /dev/ttyUSB0 off

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runSetSignal(args[0], args[1], "DTR", func(state bool) transport.HostControlSignals {
			return transport.HostControlSignals{DTR: transport.Bool(state)}
		})
	},
}

func init() {
	rootCmd.AddCommand(dtrCmd)
}

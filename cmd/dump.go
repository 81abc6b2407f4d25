/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/allbin/go-serialport/internal/capture"
	"github.com/allbin/go-serialport/internal/tui/components"
)

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <capture-file>",
	Short: "Print a CBOR capture file",
	Long: `Print the records of a capture written with "capture --format cbor".

Example usage:
  serialport dump session.cbor
  serialport dump session.cbor --hex --no-timestamps`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hexMode, _ := cmd.Flags().GetBool("hex")
		noTimestamps, _ := cmd.Flags().GetBool("no-timestamps")

		f, err := os.Open(args[0])
		if err != nil {
			fail("%v", err)
		}
		defer f.Close()

		df := components.NewDataFormatter(hexMode, true)
		df.SetFormatOptions(noTimestamps, false)
		if err := dumpRecords(os.Stdout, f, df); err != nil {
			fail("%s: %v", args[0], err)
		}
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().Bool("hex", false, "Show hex next to ASCII")
	dumpCmd.Flags().Bool("no-timestamps", false, "Hide timestamps from output")
}

// dumpRecords prints every record in r, stopping at the first bad one.
func dumpRecords(w io.Writer, r io.Reader, df *components.DataFormatter) error {
	dec := capture.NewReader(r)
	for {
		rec, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(w, df.FormatMessage(components.MessageFromRecord(rec)))
	}
}

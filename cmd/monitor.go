/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/allbin/go-serialport/transport"
)

var (
	monitorSignals  []string
	monitorTimeout  time.Duration
	monitorInterval time.Duration
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <port>",
	Short: "Monitor modem signal changes",
	Long: `Monitor modem control signal changes.

Polls the device's status lines and reports when the watched ones change
state. Press Ctrl+C to stop.

Examples:
  serialport monitor /dev/ttyUSB0
  serialport monitor /dev/ttyUSB0 --signals cts,dsr
  serialport monitor /dev/ttyUSB0 --signals dcd --timeout 30s

Available signals: cts, dsr, ri, dcd`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]

		mask, err := parseSignalMask(monitorSignals)
		if err != nil {
			fail("parsing signals: %v", err)
		}

		ctx, cancel := interruptContext()
		defer cancel()

		s, err := openSession(ctx, portPath, nil)
		if err != nil {
			fail("%v", err)
		}
		defer closeSession(s)

		fmt.Printf("Monitoring signals on %s (signals: %s)\n", portPath, strings.Join(monitorSignals, ", "))
		fmt.Println("Press Ctrl+C to stop")

		last, err := s.GetContext(ctx)
		if err != nil {
			fail("reading initial signals: %v", err)
		}
		printSignalState("Initial", last, mask)

		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		lastChange := time.Now()

		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nStopping monitor...")
				return
			case <-ticker.C:
			}

			current, err := s.GetContext(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				fail("reading signals: %v", err)
			}

			if changed := diffSignals(last, current) & mask; changed != 0 {
				printSignalChange(current, changed)
				last = current
				lastChange = time.Now()
			} else if monitorTimeout > 0 && time.Since(lastChange) >= monitorTimeout {
				fmt.Printf("[%s] Timeout - no signal changes\n", time.Now().Format("15:04:05"))
				lastChange = time.Now()
			}
		}
	},
}

// signalMask selects modem status lines.
type signalMask uint8

const (
	signalCTS signalMask = 1 << iota
	signalDSR
	signalRI
	signalDCD

	signalAll = signalCTS | signalDSR | signalRI | signalDCD
)

func parseSignalMask(signalNames []string) (signalMask, error) {
	if len(signalNames) == 0 {
		return signalAll, nil
	}

	var mask signalMask
	for _, name := range signalNames {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cts":
			mask |= signalCTS
		case "dsr":
			mask |= signalDSR
		case "ri":
			mask |= signalRI
		case "dcd":
			mask |= signalDCD
		default:
			return 0, fmt.Errorf("unknown signal: %s (valid: cts, dsr, ri, dcd)", name)
		}
	}
	return mask, nil
}

// diffSignals returns the lines whose state differs between a and b.
func diffSignals(a, b transport.DeviceControlSignals) signalMask {
	var changed signalMask
	if a.CTS != b.CTS {
		changed |= signalCTS
	}
	if a.DSR != b.DSR {
		changed |= signalDSR
	}
	if a.RI != b.RI {
		changed |= signalRI
	}
	if a.DCD != b.DCD {
		changed |= signalDCD
	}
	return changed
}

func printSignals(signals transport.DeviceControlSignals, mask signalMask) {
	if mask&signalCTS != 0 {
		fmt.Printf("  CTS: %s\n", formatSignalState(signals.CTS))
	}
	if mask&signalDSR != 0 {
		fmt.Printf("  DSR: %s\n", formatSignalState(signals.DSR))
	}
	if mask&signalRI != 0 {
		fmt.Printf("  RI:  %s\n", formatSignalState(signals.RI))
	}
	if mask&signalDCD != 0 {
		fmt.Printf("  DCD: %s\n", formatSignalState(signals.DCD))
	}
	fmt.Println()
}

func printSignalState(prefix string, signals transport.DeviceControlSignals, mask signalMask) {
	fmt.Printf("[%s] %s state:\n", time.Now().Format("15:04:05"), prefix)
	printSignals(signals, mask)
}

func printSignalChange(signals transport.DeviceControlSignals, changed signalMask) {
	fmt.Printf("[%s] Signal change detected:\n", time.Now().Format("15:04:05"))
	printSignals(signals, changed)
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringSliceVarP(&monitorSignals, "signals", "s", []string{"cts", "dsr", "ri", "dcd"},
		"Signals to monitor (comma-separated: cts,dsr,ri,dcd)")
	monitorCmd.Flags().DurationVarP(&monitorTimeout, "timeout", "t", 0,
		"Report when no change was seen for this long (0 = never)")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 50*time.Millisecond,
		"How often to poll the signal lines")
}

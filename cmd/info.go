/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	serialport "github.com/allbin/go-serialport"
	"github.com/allbin/go-serialport/internal/tui/components"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display what the transport reports about a serial port, followed by
the normalized line settings a session would use for it.

Examples:
  serialport info /dev/ttyUSB0
  serialport info /dev/ttyACM0 --baud 115200 --parity even

For USB devices this includes the vendor and product IDs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
		defer cancel()

		devices, err := serialport.ListContext(ctx, tr)
		if err != nil {
			fail("listing ports: %v", err)
		}
		device, ok := findDevice(devices, portPath)
		if !ok {
			fail("port %s not found", portPath)
		}

		opts, err := loadOptions()
		if err != nil {
			fail("%v", err)
		}
		cfg, err := serialport.Normalize(portPath, opts)
		if err != nil {
			fail("%v", err)
		}

		fmt.Printf("Port Information: %s\n\n", device.Path)
		fmt.Printf("  Type:         %s\n", portType(device.Path))
		if device.Manufacturer != "" {
			fmt.Printf("  Description:  %s\n", device.Manufacturer)
		}

		if device.VendorID != "0x0" || device.ProductID != "0x0" {
			fmt.Println("\nUSB Device Information:")
			fmt.Printf("  Vendor ID:    %s\n", device.VendorID)
			fmt.Printf("  Product ID:   %s\n", device.ProductID)
			if device.SerialNumber != "" {
				fmt.Printf("  Serial:       %s\n", device.SerialNumber)
			}
		}

		fmt.Println("\nLine Settings:")
		fmt.Printf("  Baud rate:    %d\n", cfg.BaudRate)
		fmt.Printf("  Framing:      %s\n", components.Framing(cfg))
		fmt.Printf("  Flow control: %s\n", components.FlowControl(cfg))
		fmt.Printf("  Buffer size:  %d\n", cfg.BufferSize)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func findDevice(devices []serialport.DeviceInfo, path string) (serialport.DeviceInfo, bool) {
	for _, d := range devices {
		if d.Path == path || d.ComName == path {
			return d, true
		}
	}
	return serialport.DeviceInfo{}, false
}

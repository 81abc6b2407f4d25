/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	serialport "github.com/allbin/go-serialport"
	"github.com/allbin/go-serialport/internal/tui/styles"
)

// listTimeout bounds the device enumeration.
const listTimeout = 5 * time.Second

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List the serial devices the transport can see.

With the host transport this asks the system enumerator for USB metadata
and falls back to scanning /dev for communication-capable devices:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- Standard serial ports (ttyS*)
- ARM/Raspberry Pi ports (ttyAMA*)
- And other platform-specific serial devices

Example usage:
  serialport list
  serialport list --table
  serialport list --filter usb --output yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")
		output, _ := cmd.Flags().GetString("output")

		ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
		defer cancel()

		devices, err := serialport.ListContext(ctx, tr)
		if err != nil {
			fail("listing ports: %v", err)
		}

		filtered, err := filterDevices(devices, filterType)
		if err != nil {
			fail("%v", err)
		}
		if len(filtered) == 0 && output == "" {
			if filterType != "" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return
		}

		switch {
		case output != "":
			err = renderStructured(os.Stdout, filtered, output)
		case tableFormat:
			renderTable(filtered)
		default:
			renderSimple(filtered)
		}
		if err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("filter", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
	listCmd.Flags().StringP("output", "o", "", "Machine-readable output: yaml or json")
}

// filterDevices keeps the devices of the requested family.
func filterDevices(devices []serialport.DeviceInfo, filterType string) ([]serialport.DeviceInfo, error) {
	filterType = strings.ToLower(filterType)
	switch filterType {
	case "", "all":
		return devices, nil
	case "usb", "standard", "arm":
	default:
		return nil, fmt.Errorf("invalid filter: %s (valid: usb, standard, arm, all)", filterType)
	}

	var filtered []serialport.DeviceInfo
	for _, d := range devices {
		name := strings.ToLower(filepath.Base(d.Path))
		var match bool
		switch filterType {
		case "usb":
			match = strings.HasPrefix(name, "ttyusb") || strings.HasPrefix(name, "ttyacm")
		case "standard":
			match = strings.HasPrefix(name, "ttys") && !strings.HasPrefix(name, "ttysac")
		case "arm":
			match = strings.HasPrefix(name, "ttyama")
		}
		if match {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

func renderStructured(w io.Writer, devices []serialport.DeviceInfo, format string) error {
	if devices == nil {
		devices = []serialport.DeviceInfo{}
	}
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(devices); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	default:
		return fmt.Errorf("invalid output format: %s (valid: yaml, json)", format)
	}
}

const (
	columnPath    = "path"
	columnType    = "type"
	columnDesc    = "description"
	columnVendor  = "vendor"
	columnProduct = "product"
)

// renderTable renders the port list with bubble-table in static mode.
func renderTable(devices []serialport.DeviceInfo) {
	fmt.Printf("Found %d serial port(s):\n\n", len(devices))
	fmt.Println(deviceTable(devices).View())
}

func deviceTable(devices []serialport.DeviceInfo) table.Model {
	columns := []table.Column{
		table.NewColumn(columnPath, "Port", 16),
		table.NewColumn(columnType, "Type", 16),
		table.NewColumn(columnDesc, "Description", 28),
		table.NewColumn(columnVendor, "VID", 8),
		table.NewColumn(columnProduct, "PID", 8),
	}

	rows := make([]table.Row, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, table.NewRow(table.RowData{
			columnPath:    d.Path,
			columnType:    portType(d.Path),
			columnDesc:    d.Manufacturer,
			columnVendor:  d.VendorID,
			columnProduct: d.ProductID,
		}))
	}

	return table.New(columns).
		WithRows(rows).
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(styles.Mauve)).
		WithBaseStyle(lipgloss.NewStyle().BorderForeground(styles.Surface2).Align(lipgloss.Left)).
		BorderRounded()
}

// renderSimple renders the port list in simple text format
func renderSimple(devices []serialport.DeviceInfo) {
	for _, d := range devices {
		fmt.Println(d.Path)
	}
}

// portType returns a more specific type classification for the port
func portType(path string) string {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasPrefix(name, "ttyusb"):
		return "USB Serial"
	case strings.HasPrefix(name, "ttyacm"):
		return "USB CDC/ACM"
	case strings.HasPrefix(name, "ttyama"):
		return "ARM Serial"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial"
	case strings.HasPrefix(name, "ttysac"):
		return "Samsung Serial"
	case strings.HasPrefix(name, "ttyths"):
		return "Tegra Serial"
	case strings.HasPrefix(name, "ttyo"):
		return "OMAP Serial"
	case strings.HasPrefix(name, "ttys"):
		return "Standard Serial"
	case strings.HasPrefix(name, "ttyloop"):
		return "Loopback"
	default:
		return "Serial Port"
	}
}

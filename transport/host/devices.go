package host

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/allbin/go-serialport/transport"
)

// detailedPortsList is swapped out in tests.
var detailedPortsList = enumerator.GetDetailedPortsList

var (
	// Serial device names worth listing when scanning a dev directory.
	devicePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
		regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
		regexp.MustCompile(`^ttyS\d+$`),   // Standard serial ports
		regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
		regexp.MustCompile(`^ttymxc\d+$`), // i.MX serial ports
		regexp.MustCompile(`^ttyO\d+$`),   // OMAP serial ports
		regexp.MustCompile(`^ttySAC\d+$`), // Samsung serial ports
		regexp.MustCompile(`^ttyTHS\d+$`), // Tegra serial ports
	}
)

func (t *Transport) GetDevices(done func([]transport.DeviceDescriptor, error)) {
	go func() {
		devices, err := t.devices()
		done(devices, err)
	}()
}

func (t *Transport) devices() ([]transport.DeviceDescriptor, error) {
	ports, err := detailedPortsList()
	if err == nil {
		return fromEnumerator(ports), nil
	}
	t.log.Warnf(context.Background(), "system enumerator failed, scanning %s: %v", t.devDir, err)

	paths, scanErr := scanDevDir(t.devDir)
	if scanErr != nil {
		return nil, &transport.PlatformError{Op: "getDevices", Path: t.devDir, Err: scanErr}
	}
	devices := make([]transport.DeviceDescriptor, 0, len(paths))
	for _, path := range paths {
		devices = append(devices, transport.DeviceDescriptor{
			Path:        path,
			DisplayName: describePort(filepath.Base(path)),
		})
	}
	return devices, nil
}

// fromEnumerator converts enumerator results, sorted by path.
func fromEnumerator(ports []*enumerator.PortDetails) []transport.DeviceDescriptor {
	devices := make([]transport.DeviceDescriptor, 0, len(ports))
	for _, p := range ports {
		d := transport.DeviceDescriptor{
			Path:        p.Name,
			DisplayName: describePort(filepath.Base(p.Name)),
		}
		if p.IsUSB {
			d.VendorID = parseHexID(p.VID)
			d.ProductID = parseHexID(p.PID)
			if p.Product != "" {
				d.DisplayName = p.Product
			}
		}
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices
}

// parseHexID parses a USB id such as "10c4" or "0x10C4". Unparsable ids are 0.
func parseHexID(s string) int {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0
	}
	return int(id)
}

// scanDevDir returns the serial character devices in dir, sorted.
func scanDevDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, entry := range entries {
		name := entry.Name()
		if !isSerialName(name) {
			continue
		}
		path := filepath.Join(dir, name)
		if isCharacterDevice(path) {
			ports = append(ports, path)
		}
	}
	sort.Strings(ports)
	return ports, nil
}

func isSerialName(name string) bool {
	for _, pattern := range devicePatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// describePort names a device by its driver family.
func describePort(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	default:
		return "Serial Port"
	}
}

package serialport

import (
	"fmt"

	"github.com/allbin/go-serialport/transport"
)

// DeviceInfo describes one serial device visible to the transport.
// SerialNumber, PnPID and LocationID are always empty; the transport does not supply them.
type DeviceInfo struct {
	Path         string `json:"path" yaml:"path"`
	ComName      string `json:"comName" yaml:"comName"` // legacy alias of Path
	Manufacturer string `json:"manufacturer" yaml:"manufacturer"`
	SerialNumber string `json:"serialNumber" yaml:"serialNumber"`
	PnPID        string `json:"pnpId" yaml:"pnpId"`
	LocationID   string `json:"locationId" yaml:"locationId"`
	VendorID     string `json:"vendorId" yaml:"vendorId"`
	ProductID    string `json:"productId" yaml:"productId"`
}

// List asks t for its devices. The result goes to done, if set, and to the
// returned future; both see the same value. A nil transport fails with
// ErrTransportUnavailable.
func List(t transport.Transport, done func([]DeviceInfo, error)) *Future[[]DeviceInfo] {
	f := newFuture[[]DeviceInfo]()
	finish := func(devices []DeviceInfo, err error) {
		f.resolve(devices, err)
		if done != nil {
			done(devices, err)
		}
	}

	if t == nil {
		finish(nil, ErrTransportUnavailable)
		return f
	}

	t.GetDevices(func(descriptors []transport.DeviceDescriptor, err error) {
		if err != nil {
			finish(nil, err)
			return
		}
		devices := make([]DeviceInfo, 0, len(descriptors))
		for _, d := range descriptors {
			devices = append(devices, deviceInfo(d))
		}
		finish(devices, nil)
	})
	return f
}

func deviceInfo(d transport.DeviceDescriptor) DeviceInfo {
	return DeviceInfo{
		Path:         d.Path,
		ComName:      d.Path,
		Manufacturer: d.DisplayName,
		VendorID:     fmt.Sprintf("0x%x", d.VendorID),
		ProductID:    fmt.Sprintf("0x%x", d.ProductID),
	}
}

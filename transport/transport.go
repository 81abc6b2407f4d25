// Package transport defines the contract between a serial session and the
// host capability that actually talks to devices.
//
// A Transport is connection-id based and fully asynchronous: every operation
// reports its outcome through a completion func, and incoming bytes and link
// conditions are pushed to registered listeners. Implementations decide which
// goroutine runs the callbacks.
package transport

// ConnectionID identifies one open connection inside a transport.
type ConnectionID int

// NoConnection is the sentinel id meaning "not connected".
const NoConnection ConnectionID = -1

// Valid reports whether id refers to a live connection.
func (id ConnectionID) Valid() bool {
	return id >= 0
}

// ListenerID identifies a registered listener so it can be removed again.
type ListenerID uint64

// DataBits is the transport's symbolic data-bit vocabulary.
type DataBits string

const (
	DataBitsSeven DataBits = "seven"
	DataBitsEight DataBits = "eight"
)

// StopBits is the transport's symbolic stop-bit vocabulary.
type StopBits string

const (
	StopBitsOne StopBits = "one"
	StopBitsTwo StopBits = "two"
)

// ParityBit is the transport's parity vocabulary. Note "no" rather than "none".
type ParityBit string

const (
	ParityNo    ParityBit = "no"
	ParityEven  ParityBit = "even"
	ParityOdd   ParityBit = "odd"
	ParityMark  ParityBit = "mark"
	ParitySpace ParityBit = "space"
)

// ReceiveError is the condition code delivered to receive-error listeners.
type ReceiveError string

const (
	ReceiveDisconnected   ReceiveError = "disconnected"
	ReceiveTimeout        ReceiveError = "timeout"
	ReceiveDeviceLost     ReceiveError = "device_lost"
	ReceiveBreak          ReceiveError = "break"
	ReceiveFrameError     ReceiveError = "frame_error"
	ReceiveOverrun        ReceiveError = "overrun"
	ReceiveBufferOverflow ReceiveError = "buffer_overflow"
	ReceiveParityError    ReceiveError = "parity_error"
	ReceiveSystemError    ReceiveError = "system_error"
)

// SendError is the per-send condition reported inside SendInfo.
type SendError string

const (
	SendDisconnected SendError = "disconnected"
	SendPending      SendError = "pending"
	SendTimeout      SendError = "timeout"
	SendSystemError  SendError = "system_error"
)

// ConnectOptions is the record handed to Connect.
type ConnectOptions struct {
	Bitrate        int       `json:"bitrate"`
	DataBits       DataBits  `json:"dataBits"`
	ParityBit      ParityBit `json:"parityBit"`
	StopBits       StopBits  `json:"stopBits"`
	CTSFlowControl bool      `json:"ctsFlowControl"`
	BufferSize     int       `json:"bufferSize,omitempty"`
}

// ConnectionInfo describes an open connection.
type ConnectionInfo struct {
	ConnectionID   ConnectionID `json:"connectionId"`
	Paused         bool         `json:"paused"`
	Bitrate        int          `json:"bitrate"`
	DataBits       DataBits     `json:"dataBits"`
	ParityBit      ParityBit    `json:"parityBit"`
	StopBits       StopBits     `json:"stopBits"`
	CTSFlowControl bool         `json:"ctsFlowControl"`
	BufferSize     int          `json:"bufferSize"`
}

// SendInfo is the outcome of one Send.
type SendInfo struct {
	BytesSent int       `json:"bytesSent"`
	Error     SendError `json:"error,omitempty"`
}

// UpdateOptions carries the settings a live connection can change.
type UpdateOptions struct {
	Bitrate int `json:"bitrate"`
}

// HostControlSignals are the output lines the host drives. Nil leaves a line unchanged.
type HostControlSignals struct {
	DTR *bool `json:"dtr,omitempty"`
	RTS *bool `json:"rts,omitempty"`
}

// DeviceControlSignals are the input lines reported by the device.
type DeviceControlSignals struct {
	DCD bool `json:"dcd"`
	CTS bool `json:"cts"`
	RI  bool `json:"ri"`
	DSR bool `json:"dsr"`
}

// DeviceDescriptor is one device as the transport lists it. Zero ids mean unknown.
type DeviceDescriptor struct {
	Path        string
	DisplayName string
	VendorID    int
	ProductID   int
}

// ReceiveInfo carries bytes that arrived on a connection.
type ReceiveInfo struct {
	ConnectionID ConnectionID
	Data         []byte
}

// ReceiveErrorInfo carries a link-level condition for a connection.
type ReceiveErrorInfo struct {
	ConnectionID ConnectionID
	Error        ReceiveError
}

// Transport is the capability surface a session needs.
type Transport interface {
	Connect(path string, opts ConnectOptions, done func(ConnectionInfo, error))
	Disconnect(id ConnectionID, done func(bool, error))
	Send(id ConnectionID, data []byte, done func(SendInfo, error))
	Flush(id ConnectionID, done func(bool, error))
	SetPaused(id ConnectionID, paused bool, done func(error))
	Update(id ConnectionID, opts UpdateOptions, done func(bool, error))
	SetControlSignals(id ConnectionID, signals HostControlSignals, done func(bool, error))
	GetControlSignals(id ConnectionID, done func(DeviceControlSignals, error))
	GetDevices(done func([]DeviceDescriptor, error))

	AddReceiveListener(fn func(ReceiveInfo)) ListenerID
	RemoveReceiveListener(id ListenerID)
	AddReceiveErrorListener(fn func(ReceiveErrorInfo)) ListenerID
	RemoveReceiveErrorListener(id ListenerID)
}

// Bool returns a pointer to b, for building HostControlSignals.
func Bool(b bool) *bool {
	return &b
}

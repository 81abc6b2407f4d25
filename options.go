package serialport

import (
	"io"
	"slices"
	"strings"

	"github.com/whoisnian/glb/logger"

	"github.com/allbin/go-serialport/transport"
)

// Default option values
const (
	DefaultBaudRate   = 9600
	DefaultDataBits   = 8
	DefaultStopBits   = 1
	DefaultParity     = "none"
	DefaultBufferSize = 256
)

// Recognized flow-control flags. Only FlowRTSCTS changes port behaviour.
const (
	FlowRTSCTS = "RTSCTS"
	FlowXON    = "XON"
	FlowXOFF   = "XOFF"
	FlowXANY   = "XANY"
	FlowDTRDSR = "DTRDSR"
)

var (
	flowControls = []string{FlowRTSCTS, FlowXON, FlowXOFF, FlowXANY, FlowDTRDSR}
	parities     = []string{"none", "even", "mark", "odd", "space"}
)

// Options is the raw, client-facing configuration of a session.
// Zero fields fall back to defaults. The Legacy* fields accept the older
// lowercase option names and apply only when the primary field is unset.
type Options struct {
	BaudRate    int      `mapstructure:"baud_rate" yaml:"baud_rate,omitempty"`
	DataBits    int      `mapstructure:"data_bits" yaml:"data_bits,omitempty"`
	StopBits    int      `mapstructure:"stop_bits" yaml:"stop_bits,omitempty"`
	Parity      string   `mapstructure:"parity" yaml:"parity,omitempty"`
	RTSCTS      bool     `mapstructure:"rtscts" yaml:"rtscts,omitempty"`
	FlowControl []string `mapstructure:"flow_control" yaml:"flow_control,omitempty"`
	BufferSize  int      `mapstructure:"buffer_size" yaml:"buffer_size,omitempty"`
	AutoOpen    *bool    `mapstructure:"auto_open" yaml:"auto_open,omitempty"`

	LegacyBaudRate    int      `mapstructure:"baudrate" yaml:"baudrate,omitempty"`
	LegacyDataBits    int      `mapstructure:"databits" yaml:"databits,omitempty"`
	LegacyStopBits    int      `mapstructure:"stopbits" yaml:"stopbits,omitempty"`
	LegacyFlowControl []string `mapstructure:"flowcontrol" yaml:"flowcontrol,omitempty"`
	LegacyBufferSize  int      `mapstructure:"buffersize" yaml:"buffersize,omitempty"`

	// DataCallback receives incoming bytes instead of the data event.
	DataCallback func([]byte) `mapstructure:"-" yaml:"-"`
	// DisconnectCallback receives disconnect errors instead of the disconnect event.
	DisconnectCallback func(error) `mapstructure:"-" yaml:"-"`

	Transport transport.Transport `mapstructure:"-" yaml:"-"`
	Logger    *logger.Logger      `mapstructure:"-" yaml:"-"`
}

// DefaultOptions returns options with every default spelled out.
func DefaultOptions() Options {
	autoOpen := true
	return Options{
		BaudRate:   DefaultBaudRate,
		DataBits:   DefaultDataBits,
		StopBits:   DefaultStopBits,
		Parity:     DefaultParity,
		BufferSize: DefaultBufferSize,
		AutoOpen:   &autoOpen,
	}
}

// Config is the normalized, validated configuration owned by a session.
type Config struct {
	BaudRate   int
	DataBits   transport.DataBits
	StopBits   transport.StopBits
	Parity     transport.ParityBit
	RTSCTS     bool
	BufferSize int
	AutoOpen   bool

	DataCallback       func([]byte)
	DisconnectCallback func(error)
}

// ConnectOptions builds the record handed to Transport.Connect.
func (c Config) ConnectOptions() transport.ConnectOptions {
	return transport.ConnectOptions{
		Bitrate:        c.BaudRate,
		DataBits:       c.DataBits,
		ParityBit:      c.Parity,
		StopBits:       c.StopBits,
		CTSFlowControl: c.RTSCTS,
		BufferSize:     c.BufferSize,
	}
}

// Normalize validates opts for path and resolves defaults and legacy aliases.
// The first failing rule is reported as an *OptionError.
func Normalize(path string, opts Options) (Config, error) {
	cfg, _, err := normalize(path, opts)
	return cfg, err
}

// normalize also returns the accepted flow-control flags that have no effect.
func normalize(path string, opts Options) (Config, []string, error) {
	cfg := Config{
		BaudRate:           firstNonZero(opts.BaudRate, opts.LegacyBaudRate, DefaultBaudRate),
		BufferSize:         firstNonZero(opts.BufferSize, opts.LegacyBufferSize, DefaultBufferSize),
		AutoOpen:           opts.AutoOpen == nil || *opts.AutoOpen,
		RTSCTS:             opts.RTSCTS,
		DataCallback:       opts.DataCallback,
		DisconnectCallback: opts.DisconnectCallback,
	}
	if cfg.BaudRate <= 0 {
		return Config{}, nil, invalidOption("baudRate", cfg.BaudRate)
	}
	if cfg.BufferSize <= 0 {
		return Config{}, nil, invalidOption("bufferSize", cfg.BufferSize)
	}

	switch bits := firstNonZero(opts.DataBits, opts.LegacyDataBits, DefaultDataBits); bits {
	case 7:
		cfg.DataBits = transport.DataBitsSeven
	case 8:
		cfg.DataBits = transport.DataBitsEight
	default:
		return Config{}, nil, invalidOption("dataBits", bits, "7", "8")
	}

	switch bits := firstNonZero(opts.StopBits, opts.LegacyStopBits, DefaultStopBits); bits {
	case 1:
		cfg.StopBits = transport.StopBitsOne
	case 2:
		cfg.StopBits = transport.StopBitsTwo
	default:
		return Config{}, nil, invalidOption("stopBits", bits, "1", "2")
	}

	parity := opts.Parity
	if parity == "" {
		parity = DefaultParity
	}
	if !slices.Contains(parities, parity) {
		return Config{}, nil, invalidOption("parity", opts.Parity, parities...)
	}
	if parity == "none" {
		cfg.Parity = transport.ParityNo
	} else {
		cfg.Parity = transport.ParityBit(parity)
	}

	if path == "" {
		return Config{}, nil, invalidOption("path", path)
	}

	flags := opts.FlowControl
	if len(flags) == 0 {
		flags = opts.LegacyFlowControl
	}
	var ignored []string
	for _, raw := range flags {
		flag := normalizeFlowFlag(raw)
		if !slices.Contains(flowControls, flag) {
			return Config{}, nil, invalidOption("flowControl", raw, flowControls...)
		}
		if flag == FlowRTSCTS {
			cfg.RTSCTS = true
			continue
		}
		ignored = append(ignored, flag)
	}

	return cfg, ignored, nil
}

// normalizeFlowFlag maps spellings like "rts/cts" or "xon-xoff" onto the flag set.
func normalizeFlowFlag(flag string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '-', '_', ' ':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(flag)))
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func discardLogger() *logger.Logger {
	return logger.New(logger.NewNanoHandler(io.Discard, logger.Options{}))
}

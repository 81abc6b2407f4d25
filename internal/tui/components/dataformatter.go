package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-serialport/internal/capture"
	"github.com/allbin/go-serialport/internal/tui/styles"
)

// TX states shown next to sent data.
const (
	StatusPending = "PENDING"
	StatusWritten = "WRITTEN"
	StatusError   = "ERROR"
)

type DataReceivedMsg struct {
	ID        int // set for TX messages so their status can be updated
	Timestamp time.Time
	Data      []byte
	IsTX      bool
	Status    string // TX only: StatusPending, StatusWritten or StatusError
	Note      bool   // Data is a local annotation, not port traffic
}

// MessageFromRecord converts a capture record for display.
func MessageFromRecord(r capture.Record) DataReceivedMsg {
	if r.Condition != "" {
		return DataReceivedMsg{Timestamp: r.Time, Data: []byte("condition: " + r.Condition), Note: true}
	}
	msg := DataReceivedMsg{Timestamp: r.Time, Data: r.Data, IsTX: r.Direction == capture.DirectionTX}
	if msg.IsTX {
		msg.Status = StatusWritten
	}
	return msg
}

type DisplayMode struct {
	ShowHex        bool
	ShowASCII      bool
	HideTimestamps bool
	HideIndicators bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(showHex, showASCII bool) *DataFormatter {
	return &DataFormatter{
		mode: DisplayMode{
			ShowHex:   showHex,
			ShowASCII: showASCII,
		},
	}
}

func (df *DataFormatter) SetDisplayMode(showHex, showASCII bool) {
	df.mode.ShowHex = showHex
	df.mode.ShowASCII = showASCII
}

// SetFormatOptions hides the timestamp or direction columns.
func (df *DataFormatter) SetFormatOptions(hideTimestamps, hideIndicators bool) {
	df.mode.HideTimestamps = hideTimestamps
	df.mode.HideIndicators = hideIndicators
}

func (df *DataFormatter) GetDisplayMode() DisplayMode {
	return df.mode
}

func indicator(msg DataReceivedMsg) string {
	if msg.Note {
		return lipgloss.NewStyle().Foreground(styles.Overlay1).Render("•")
	}
	if !msg.IsTX {
		return lipgloss.NewStyle().
			Foreground(styles.Sky).
			Bold(true).
			Render("↙ RX")
	}

	var txColor lipgloss.Color
	var statusText string
	switch msg.Status {
	case StatusPending:
		txColor = styles.Yellow
		statusText = "TX ○"
	case StatusWritten:
		txColor = styles.Green
		statusText = "TX ✓"
	case StatusError:
		txColor = styles.Red
		statusText = "TX ✗"
	default:
		txColor = styles.Peach
		statusText = "TX"
	}
	return lipgloss.NewStyle().
		Foreground(txColor).
		Bold(true).
		Render("↗ " + statusText)
}

// HexString renders data as space-separated upper-case hex.
func HexString(data []byte) string {
	return fmt.Sprintf("% X", data)
}

// ASCIIString replaces non-printable bytes with dots.
func ASCIIString(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func (df *DataFormatter) body(msg DataReceivedMsg) string {
	if msg.Note {
		return lipgloss.NewStyle().Foreground(styles.Overlay1).Italic(true).Render(string(msg.Data))
	}

	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, "HEX: "+HexString(msg.Data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+ASCIIString(msg.Data))
	}
	if !df.mode.ShowHex && !df.mode.ShowASCII {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(msg.Data)))
	}
	return strings.Join(parts, "  ")
}

func (df *DataFormatter) FormatMessage(msg DataReceivedMsg) string {
	var prefix []string
	if !df.mode.HideTimestamps {
		prefix = append(prefix, lipgloss.NewStyle().
			Foreground(styles.Subtext0).
			Render("["+msg.Timestamp.Format("15:04:05.000")+"]"))
	}
	if !df.mode.HideIndicators {
		prefix = append(prefix, indicator(msg))
	}

	if len(prefix) == 0 {
		return df.body(msg)
	}
	return strings.Join(prefix, " ") + ": " + df.body(msg)
}

func (df *DataFormatter) FormatMessages(messages []DataReceivedMsg) []string {
	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = df.FormatMessage(msg)
	}
	return formatted
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleASCII() {
	df.mode.ShowASCII = !df.mode.ShowASCII
}

func (df *DataFormatter) ToggleTimestamps() {
	df.mode.HideTimestamps = !df.mode.HideTimestamps
}

func (df *DataFormatter) ToggleIndicators() {
	df.mode.HideIndicators = !df.mode.HideIndicators
}

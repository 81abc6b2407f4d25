package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	serialport "github.com/allbin/go-serialport"
	"github.com/allbin/go-serialport/internal/tui/styles"
	"github.com/allbin/go-serialport/transport"
)

// CTSStatusMsg reports a change of the CTS input line.
type CTSStatusMsg struct {
	Status    bool
	Timestamp time.Time
}

// Framing returns the usual shorthand for the character format, e.g. "8N1".
func Framing(cfg serialport.Config) string {
	dataBits := "8"
	if cfg.DataBits == transport.DataBitsSeven {
		dataBits = "7"
	}
	stopBits := "1"
	if cfg.StopBits == transport.StopBitsTwo {
		stopBits = "2"
	}
	return dataBits + parityLetter(cfg.Parity) + stopBits
}

func parityLetter(p transport.ParityBit) string {
	switch p {
	case transport.ParityEven:
		return "E"
	case transport.ParityOdd:
		return "O"
	case transport.ParityMark:
		return "M"
	case transport.ParitySpace:
		return "S"
	default:
		return "N"
	}
}

// FlowControl describes the effective flow control of cfg.
func FlowControl(cfg serialport.Config) string {
	if cfg.RTSCTS {
		return "RTS/CTS"
	}
	return "None"
}

type StatusBar struct {
	portPath  string
	status    string
	err       error
	width     int
	config    *serialport.Config
	ctsStatus bool
}

func NewStatusBar(portPath string) *StatusBar {
	return &StatusBar{
		portPath: portPath,
		status:   "Initializing...",
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetConfig(cfg serialport.Config) {
	sb.config = &cfg
}

func (sb *StatusBar) UpdateCTSStatus(ctsStatus bool) {
	sb.ctsStatus = ctsStatus
}

func (sb *StatusBar) SetConnecting() {
	sb.status = "Connecting..."
	sb.err = nil
}

func (sb *StatusBar) SetConnected() {
	sb.status = "Connected"
	sb.err = nil
}

func (sb *StatusBar) SetDisconnected(err error) {
	sb.err = err
	if err != nil {
		sb.status = fmt.Sprintf("Connection failed: %v", err)
	} else {
		sb.status = "Disconnected"
	}
}

func (sb *StatusBar) Status() string {
	return sb.status
}

// connectionDetails is the right-hand summary, e.g. "⚡ 9600 baud 8N1 None".
func (sb *StatusBar) connectionDetails() string {
	if sb.config == nil {
		return "⚡ serial"
	}
	details := fmt.Sprintf("⚡ %d baud %s %s", sb.config.BaudRate, Framing(*sb.config), FlowControl(*sb.config))
	if sb.config.RTSCTS {
		if sb.ctsStatus {
			details += " CTS:✓"
		} else {
			details += " CTS:✗"
		}
	}
	return details
}

func (sb *StatusBar) indicator(connected bool) string {
	switch {
	case sb.err != nil:
		return lipgloss.NewStyle().Foreground(styles.Red).Render("✗")
	case connected:
		return lipgloss.NewStyle().Foreground(styles.Green).Render("●")
	case strings.HasPrefix(sb.status, "Connecting"):
		return lipgloss.NewStyle().Foreground(styles.Yellow).Render("○")
	default:
		return lipgloss.NewStyle().Foreground(styles.Red).Render("○")
	}
}

// ComprehensiveStatusBar renders the bottom bar: mode, port, connection
// state, send mode hint on the left; line settings, view mode, clock on the right.
func (sb *StatusBar) ComprehensiveStatusBar(inputMode, sendingMode, viewMode string, connected bool, timestamp string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	modeStyle := lipgloss.NewStyle().
		Foreground(styles.Base).
		Background(styles.Blue).
		Bold(true).
		Padding(0, 1)
	if inputMode == "INSERT" {
		modeStyle = modeStyle.Background(styles.Green)
	}
	mode := modeStyle.Render(inputMode)

	port := lipgloss.NewStyle().
		Foreground(styles.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.portPath)

	divider := lipgloss.NewStyle().
		Foreground(styles.Surface2).
		Padding(0, 1).
		Render("│")

	left := []string{mode, port, sb.indicator(connected)}
	if inputMode == "INSERT" {
		left = append(left, lipgloss.NewStyle().
			Foreground(styles.Peach).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode)))
	}
	left = append(left, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, left...)

	details := lipgloss.NewStyle().
		Foreground(styles.Subtext0).
		Padding(0, 1).
		Render(sb.connectionDetails())
	view := lipgloss.NewStyle().
		Foreground(styles.Lavender).
		Padding(0, 1).
		Render(viewMode)
	clock := lipgloss.NewStyle().
		Foreground(styles.Subtext1).
		Padding(0, 1).
		Render(timestamp)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, details, divider, view, divider, clock)

	spacerWidth := max(width-lipgloss.Width(leftSide)-lipgloss.Width(rightSide), 1)
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(styles.Text).
		Background(styles.Surface0).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}

package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-serialport/internal/tui/styles"
)

type SendingMode int

const (
	SendingModeASCII SendingMode = iota
	SendingModeHex
)

func (s SendingMode) String() string {
	switch s {
	case SendingModeASCII:
		return "ASCII"
	case SendingModeHex:
		return "HEX"
	default:
		return "ASCII"
	}
}

// historyLimit caps the number of remembered inputs.
const historyLimit = 100

const (
	asciiPlaceholder = "Type message and press Enter to send..."
	hexPlaceholder   = "Enter hex (e.g. 48656C6C6F or 48 65 6C 6C 6F)..."
)

type Input struct {
	textInput     textinput.Model
	sendingMode   SendingMode
	history       []string
	historyIndex  int
	currentInput  string // saved while browsing history
	terminalWidth int
}

func NewInput(mode SendingMode) *Input {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Prompt = ""

	i := &Input{
		textInput:    ti,
		sendingMode:  mode,
		history:      make([]string, 0),
		historyIndex: -1,
	}
	i.setPlaceholder()
	return i
}

func (i *Input) setPlaceholder() {
	if i.sendingMode == SendingModeHex {
		i.textInput.Placeholder = hexPlaceholder
	} else {
		i.textInput.Placeholder = asciiPlaceholder
	}
}

func (i *Input) SetWidth(width int) {
	i.terminalWidth = width
	// border(2) + padding(2) + prompt(1) + space(1)
	i.textInput.Width = max(width-6, 20)
}

func (i *Input) Focus() {
	i.textInput.Focus()
}

func (i *Input) Blur() {
	i.textInput.Blur()
}

func (i *Input) Value() string {
	return i.textInput.Value()
}

func (i *Input) SetValue(value string) {
	i.textInput.SetValue(value)
}

func (i *Input) ToggleSendingMode() {
	if i.sendingMode == SendingModeASCII {
		i.sendingMode = SendingModeHex
	} else {
		i.sendingMode = SendingModeASCII
	}
	i.setPlaceholder()
}

func (i *Input) GetSendingMode() SendingMode {
	return i.sendingMode
}

func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return i, cmd
}

// ViewWithMode renders the input box; outside insert mode it shows a hint instead.
func (i *Input) ViewWithMode(isInsertMode bool) string {
	promptSymbol := ">"
	promptStyle := lipgloss.NewStyle().Foreground(styles.Green).Bold(true)
	if i.sendingMode == SendingModeHex {
		promptSymbol = "#"
		promptStyle = lipgloss.NewStyle().Foreground(styles.Yellow).Bold(true)
	}
	styledPrompt := promptStyle.Render(promptSymbol)

	var inputContent string
	if isInsertMode {
		inputContent = lipgloss.JoinHorizontal(lipgloss.Left, styledPrompt, " ", i.textInput.View())
	} else {
		instruction := lipgloss.NewStyle().
			Foreground(styles.Overlay0).
			Render("Press 'i' to enter insert mode")
		inputContent = lipgloss.JoinHorizontal(lipgloss.Left, styledPrompt, " ", instruction)
	}

	// RoundedBorder and Padding(0, 1) take four columns.
	inputStyle := styles.InputStyle.
		Width(max(i.terminalWidth-4, 10)).
		AlignHorizontal(lipgloss.Left)
	if isInsertMode {
		inputStyle = inputStyle.BorderForeground(styles.Green)
	}
	return inputStyle.Render(inputContent)
}

// AddToHistory remembers command unless it is blank or repeats the last entry.
func (i *Input) AddToHistory(command string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return
	}

	if len(i.history) > 0 && i.history[len(i.history)-1] == command {
		return
	}

	i.history = append(i.history, command)

	if len(i.history) > historyLimit {
		i.history = i.history[1:]
	}

	i.historyIndex = -1
	i.currentInput = ""
}

// NavigateHistoryUp moves up in command history
func (i *Input) NavigateHistoryUp() {
	if len(i.history) == 0 {
		return
	}

	if i.historyIndex == -1 {
		i.currentInput = i.textInput.Value()
		i.historyIndex = len(i.history) - 1
	} else if i.historyIndex > 0 {
		i.historyIndex--
	}

	i.textInput.SetValue(i.history[i.historyIndex])
}

// NavigateHistoryDown moves down in command history
func (i *Input) NavigateHistoryDown() {
	if len(i.history) == 0 || i.historyIndex == -1 {
		return
	}

	if i.historyIndex < len(i.history)-1 {
		i.historyIndex++
		i.textInput.SetValue(i.history[i.historyIndex])
	} else {
		i.historyIndex = -1
		i.textInput.SetValue(i.currentInput)
		i.currentInput = ""
	}
}

package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Terminal is the follow-mode log view: a viewport pinned to the newest line.
type Terminal struct {
	viewport  viewport.Model
	formatter *DataFormatter
	data      []string
}

func NewTerminal(width, height int) *Terminal {
	return &Terminal{
		viewport:  viewport.New(width, height),
		formatter: NewDataFormatter(true, true),
		data:      make([]string, 0),
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.viewport.Width = width
	t.viewport.Height = height
}

func (t *Terminal) GetViewport() viewport.Model {
	return t.viewport
}

func (t *Terminal) Formatter() *DataFormatter {
	return t.formatter
}

func (t *Terminal) AddMessage(msg DataReceivedMsg) {
	t.data = append(t.data, t.formatter.FormatMessage(msg))
	t.viewport.SetContent(strings.Join(t.data, "\n"))
	t.viewport.GotoBottom()
}

// RefreshDisplayWithRawData re-renders every message, e.g. after a display
// toggle or a TX status change.
func (t *Terminal) RefreshDisplayWithRawData(rawData []DataReceivedMsg) {
	t.data = t.formatter.FormatMessages(rawData)
	t.viewport.SetContent(strings.Join(t.data, "\n"))
	t.viewport.GotoBottom()
}

func (t *Terminal) Clear() {
	t.data = make([]string, 0)
	t.viewport.SetContent("")
}

func (t *Terminal) SetFormatOptions(hideTimestamps, hideIndicators bool) {
	t.formatter.SetFormatOptions(hideTimestamps, hideIndicators)
}

func (t *Terminal) ToggleHex()        { t.formatter.ToggleHex() }
func (t *Terminal) ToggleASCII()      { t.formatter.ToggleASCII() }
func (t *Terminal) ToggleTimestamps() { t.formatter.ToggleTimestamps() }
func (t *Terminal) ToggleIndicators() { t.formatter.ToggleIndicators() }

func (t *Terminal) Lines() int {
	return len(t.data)
}

func (t *Terminal) Update(msg tea.Msg) (viewport.Model, tea.Cmd) {
	// Key messages stay with the model so the viewport can't swallow bindings.
	if _, ok := msg.(tea.WindowSizeMsg); ok {
		var cmd tea.Cmd
		t.viewport, cmd = t.viewport.Update(msg)
		return t.viewport, cmd
	}
	return t.viewport, nil
}

func (t *Terminal) View() string {
	return t.viewport.View()
}

/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	serialport "github.com/allbin/go-serialport"
	"github.com/allbin/go-serialport/internal/tui/components"
	"github.com/allbin/go-serialport/internal/tui/keys"
	"github.com/allbin/go-serialport/internal/tui/models"
	"github.com/allbin/go-serialport/internal/tui/styles"
)

const (
	writeTimeout = 5 * time.Second
	ctsInterval  = 100 * time.Millisecond
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <port>",
	Short: "Connect to a serial port with bidirectional communication",
	Long: `Connect to a serial port with an interactive terminal interface.

The screen shows received and sent data with timestamps, an input line
for sending text or hex bytes, and a status bar with the line settings.
With RTS/CTS flow control enabled the CTS line is shown as well.

Keys follow vim conventions: i enters insert mode, esc leaves it, v
switches the log to a navigable table, q quits.

Example usage:
  serialport connect /dev/ttyUSB0
  serialport connect /dev/ttyUSB0 --baud 115200 --rtscts
  serialport connect /dev/ttyLOOP0 --loopback`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runConnectTUI(args[0]); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

// txStatusMsg reports the outcome of a write started from the input line.
type txStatusMsg struct {
	id     int
	status string
}

// connectModel represents the Bubble Tea model for the connect command
type connectModel struct {
	*models.SerialModel
	terminal  *components.Terminal
	table     *components.TerminalTable
	statusBar *components.StatusBar
	input     *components.Input
	help      help.Model
	keys      keys.ConnectKeys
	viewMode  components.ViewMode
}

func runConnectTUI(portPath string) error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}
	cfg, err := serialport.Normalize(portPath, opts)
	if err != nil {
		return err
	}

	terminal := components.NewTerminal(0, 0)
	m := &connectModel{
		SerialModel: models.NewSerialModel(portPath),
		terminal:    terminal,
		table:       components.NewTerminalTable(terminal.Formatter(), 0, 0),
		statusBar:   components.NewStatusBar(portPath),
		input:       components.NewInput(components.SendingModeASCII),
		help:        help.New(),
		keys:        keys.NewConnectKeys(),
	}
	m.statusBar.SetConnecting()
	m.statusBar.SetConfig(cfg)

	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		s, err := openSession(m.GetContext(), portPath, func(opts *serialport.Options) {
			opts.DataCallback = func(data []byte) {
				p.Send(components.DataReceivedMsg{Timestamp: time.Now(), Data: data})
			}
			opts.DisconnectCallback = func(err error) {
				p.Send(models.ConnectionStatusMsg{Connected: false, Error: err})
			}
		})
		if err != nil {
			p.Send(models.ConnectionStatusMsg{Connected: false, Error: err})
			return
		}
		m.SetSession(s)
		p.Send(models.ConnectionStatusMsg{Connected: true})

		if cfg.RTSCTS {
			go watchCTS(m.GetContext(), s, p)
		}
	}()

	_, err = p.Run()
	m.Cleanup()
	return err
}

// watchCTS polls the CTS line and reports changes until ctx is done or
// the session stops answering.
func watchCTS(ctx context.Context, s *serialport.Session, p *tea.Program) {
	ticker := time.NewTicker(ctsInterval)
	defer ticker.Stop()

	last, first := false, true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, time.Second)
			signals, err := s.GetContext(pollCtx)
			cancel()
			if err != nil {
				LOG.Debugf(ctx, "cts polling stopped: %v", err)
				return
			}
			if first || signals.CTS != last {
				p.Send(components.CTSStatusMsg{Status: signals.CTS, Timestamp: time.Now()})
				last, first = signals.CTS, false
			}
		}
	}
}

// writeCmd sends data and reports the outcome for the TX entry id.
func writeCmd(ctx context.Context, s *serialport.Session, id int, data []byte) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()

		info, err := s.WriteContext(ctx, data)
		if err != nil || info.Error != "" {
			LOG.Debugf(ctx, "write of %d bytes failed: %v %s", len(data), err, info.Error)
			return txStatusMsg{id: id, status: components.StatusError}
		}
		return txStatusMsg{id: id, status: components.StatusWritten}
	}
}

func (m *connectModel) Init() tea.Cmd {
	return nil
}

func (m *connectModel) note(format string, args ...any) {
	msg := m.AddRawData(components.DataReceivedMsg{
		Timestamp: time.Now(),
		Data:      []byte(fmt.Sprintf(format, args...)),
		Note:      true,
	})
	m.terminal.AddMessage(msg)
	m.refreshTable()
}

func (m *connectModel) refresh() {
	m.terminal.RefreshDisplayWithRawData(m.GetRawData())
	m.refreshTable()
}

func (m *connectModel) refreshTable() {
	if m.viewMode == components.ViewModeVisual {
		m.table.SetMessages(m.GetRawData())
	}
}

// send queues the input line for writing and returns the command that performs it.
func (m *connectModel) send() tea.Cmd {
	s := m.GetSession()
	inputStr := m.input.Value()
	if inputStr == "" || s == nil || !m.IsConnected() {
		return nil
	}

	var data []byte
	switch m.input.GetSendingMode() {
	case components.SendingModeHex:
		parsed, err := parseHexString(inputStr)
		if err != nil {
			m.note("invalid hex input: %v", err)
			return nil
		}
		data = parsed
	default:
		data = []byte(inputStr + "\n")
	}

	tx := m.AddRawData(components.DataReceivedMsg{
		Timestamp: time.Now(),
		Data:      data,
		IsTX:      true,
		Status:    components.StatusPending,
	})
	m.terminal.AddMessage(tx)
	m.refreshTable()

	m.input.AddToHistory(inputStr)
	m.input.SetValue("")
	return writeCmd(m.GetContext(), s, tx.ID, data)
}

func (m *connectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// input box (with border) plus the status bar
		verticalMarginHeight := 3 + 1
		m.terminal.SetSize(msg.Width, msg.Height-verticalMarginHeight)
		m.table.SetSize(msg.Width, msg.Height-verticalMarginHeight-2)
		m.input.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.SetReady(true)

	case models.ConnectionStatusMsg:
		m.SetConnected(msg.Connected)
		if msg.Error != nil {
			m.SetError(msg.Error)
			m.statusBar.SetDisconnected(msg.Error)
			m.note("%v", msg.Error)
		} else {
			m.statusBar.SetConnected()
		}

	case components.CTSStatusMsg:
		m.statusBar.UpdateCTSStatus(msg.Status)
		if msg.Status {
			m.note("CTS: ON")
		} else {
			m.note("CTS: OFF")
		}

	case components.DataReceivedMsg:
		msg = m.AddRawData(msg)
		m.terminal.AddMessage(msg)
		m.refreshTable()

	case txStatusMsg:
		if m.SetTXStatus(msg.id, msg.status) {
			m.refresh()
		}

	case tea.KeyMsg:
		if m.IsInInsertMode() {
			switch {
			case key.Matches(msg, m.keys.Escape):
				m.SetInputMode(models.InputModeNormal)
				m.input.Blur()
				return m, nil
			case key.Matches(msg, m.keys.Enter):
				return m, m.send()
			case msg.Type == tea.KeyUp:
				m.input.NavigateHistoryUp()
				return m, nil
			case msg.Type == tea.KeyDown:
				m.input.NavigateHistoryDown()
				return m, nil
			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleSendingMode()
				return m, nil
			}
		} else {
			switch {
			case key.Matches(msg, m.keys.Quit):
				m.Cleanup()
				return m, tea.Quit

			case key.Matches(msg, m.keys.InsertMode):
				m.SetInputMode(models.InputModeInsert)
				m.input.Focus()
				return m, nil

			case key.Matches(msg, m.keys.VisualMode):
				m.toggleVisual()

			case m.viewMode == components.ViewModeVisual && key.Matches(msg, m.keys.Up):
				m.table.MoveUp()
			case m.viewMode == components.ViewModeVisual && key.Matches(msg, m.keys.Down):
				m.table.MoveDown()
			case m.viewMode == components.ViewModeVisual && key.Matches(msg, m.keys.GotoTop):
				m.table.GotoTop()
			case m.viewMode == components.ViewModeVisual && key.Matches(msg, m.keys.GotoBottom):
				m.table.GotoBottom()

			case key.Matches(msg, m.keys.Clear):
				m.ClearData()
				m.terminal.Clear()
				m.refreshTable()

			case key.Matches(msg, m.keys.Help):
				m.help.ShowAll = !m.help.ShowAll

			case key.Matches(msg, m.keys.ToggleHex):
				m.terminal.ToggleHex()
				m.refresh()

			case key.Matches(msg, m.keys.ToggleASCII):
				m.terminal.ToggleASCII()
				m.refresh()

			case key.Matches(msg, m.keys.ToggleTimestamps):
				m.terminal.ToggleTimestamps()
				m.refresh()

			case key.Matches(msg, m.keys.ToggleIndicators):
				m.terminal.ToggleIndicators()
				m.refresh()

			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleSendingMode()
			}
		}
	}

	var cmd tea.Cmd
	if m.IsInInsertMode() {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.viewMode == components.ViewModeFollow {
		_, cmd = m.terminal.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *connectModel) toggleVisual() {
	if m.viewMode == components.ViewModeVisual {
		m.viewMode = components.ViewModeFollow
		m.table.Blur()
		return
	}
	m.viewMode = components.ViewModeVisual
	m.table.SetMessages(m.GetRawData())
	m.table.Focus()
	m.table.GotoBottom()
}

func (m *connectModel) View() string {
	var content string
	switch {
	case !m.IsReady():
		content = "Initializing..."
	case m.viewMode == components.ViewModeVisual:
		content = m.table.View()
	default:
		content = m.terminal.View()
	}

	inputMode := m.GetInputMode().String()
	input := m.input.ViewWithMode(m.IsInInsertMode())
	statusBar := m.statusBar.ComprehensiveStatusBar(
		inputMode,
		m.input.GetSendingMode().String(),
		m.viewMode.String(),
		m.IsConnected(),
		time.Now().Format("15:04:05"),
	)

	parts := []string{styles.ContentBorderStyle.Render(content), input, statusBar}
	if m.help.ShowAll {
		parts = append(parts, styles.HelpStyle.Render(m.help.View(m.keys)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

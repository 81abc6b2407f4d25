package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-serialport/internal/tui/styles"
)

type ViewMode int

const (
	ViewModeFollow ViewMode = iota
	ViewModeVisual
)

func (v ViewMode) String() string {
	if v == ViewModeVisual {
		return "VISUAL"
	}
	return "FOLLOW"
}

const (
	timeWidth  = 14
	dirWidth   = 4
	bytesWidth = 6
	minWidth   = 80
	minHeight  = 5
)

// TerminalTable shows the message log as a navigable table for visual mode.
type TerminalTable struct {
	table     table.Model
	formatter *DataFormatter
	width     int
}

func NewTerminalTable(formatter *DataFormatter, width, height int) *TerminalTable {
	width = max(width, minWidth)
	height = max(height, minHeight)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Subtext0).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Text)
	s.Selected = s.Selected.
		Foreground(styles.Text).
		Background(styles.Surface1).
		Bold(false)

	tt := &TerminalTable{
		table: table.New(
			table.WithFocused(false),
			table.WithHeight(height),
			table.WithWidth(width),
			table.WithStyles(s),
		),
		formatter: formatter,
		width:     width,
	}
	tt.table.SetColumns(tt.columns())
	return tt
}

func (tt *TerminalTable) SetSize(width, height int) {
	tt.width = max(width, minWidth)
	tt.table.SetColumns(tt.columns())
	tt.table.SetHeight(max(height, minHeight))
	tt.table.SetWidth(tt.width)
}

// columns sizes the data columns to what the formatter currently shows.
func (tt *TerminalTable) columns() []table.Column {
	mode := tt.formatter.GetDisplayMode()
	remaining := max(tt.width-timeWidth-dirWidth-bytesWidth-10, 20)

	columns := []table.Column{
		{Title: "Time", Width: timeWidth},
		{Title: "↕", Width: dirWidth},
	}
	switch {
	case mode.ShowHex && mode.ShowASCII:
		columns = append(columns,
			table.Column{Title: "Hex", Width: max(remaining*7/10, 20)},
			table.Column{Title: "ASCII", Width: max(remaining*3/10, 10)})
	case mode.ShowHex:
		columns = append(columns, table.Column{Title: "Hex", Width: max(remaining, 30)})
	case mode.ShowASCII:
		columns = append(columns, table.Column{Title: "ASCII", Width: remaining})
	default:
		columns = append(columns, table.Column{Title: "Data", Width: max(remaining, 25)})
	}
	return append(columns, table.Column{Title: "Bytes", Width: bytesWidth})
}

func (tt *TerminalTable) row(msg DataReceivedMsg) table.Row {
	dir := "RX"
	switch {
	case msg.Note:
		dir = "--"
	case msg.IsTX:
		dir = "TX"
	}

	row := table.Row{msg.Timestamp.Format("15:04:05.000"), dir}
	mode := tt.formatter.GetDisplayMode()
	switch {
	case msg.Note:
		row = append(row, string(msg.Data))
		if mode.ShowHex && mode.ShowASCII {
			row = append(row, "")
		}
	case mode.ShowHex && mode.ShowASCII:
		row = append(row, HexString(msg.Data), ASCIIString(msg.Data))
	case mode.ShowHex:
		row = append(row, HexString(msg.Data))
	case mode.ShowASCII:
		row = append(row, ASCIIString(msg.Data))
	default:
		row = append(row, fmt.Sprintf("%d bytes", len(msg.Data)))
	}
	return append(row, fmt.Sprintf("%d", len(msg.Data)))
}

// SetMessages replaces the table rows, keeping the cursor where it was.
func (tt *TerminalTable) SetMessages(messages []DataReceivedMsg) {
	tt.table.SetColumns(tt.columns())
	rows := make([]table.Row, len(messages))
	for i, msg := range messages {
		rows[i] = tt.row(msg)
	}
	tt.table.SetRows(rows)
}

func (tt *TerminalTable) Focus()      { tt.table.Focus() }
func (tt *TerminalTable) Blur()       { tt.table.Blur() }
func (tt *TerminalTable) MoveUp()     { tt.table.MoveUp(1) }
func (tt *TerminalTable) MoveDown()   { tt.table.MoveDown(1) }
func (tt *TerminalTable) GotoTop()    { tt.table.GotoTop() }
func (tt *TerminalTable) GotoBottom() { tt.table.GotoBottom() }
func (tt *TerminalTable) Cursor() int { return tt.table.Cursor() }

func (tt *TerminalTable) View() string {
	return tt.table.View()
}

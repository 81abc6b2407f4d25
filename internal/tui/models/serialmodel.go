package models

import (
	"context"
	"sync"

	serialport "github.com/allbin/go-serialport"
	"github.com/allbin/go-serialport/internal/tui/components"
)

// InputMode is the vim-like editing mode of the connect screen.
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	if m == InputModeInsert {
		return "INSERT"
	}
	return "NORMAL"
}

type ConnectionStatusMsg struct {
	Connected bool
	Error     error
}

// SerialModel is the state shared by the TUI screens: the session, the
// message log and the UI mode. The session is set from the goroutine that
// opens it, so it is guarded by mu.
type SerialModel struct {
	portPath string

	mu        sync.RWMutex
	session   *serialport.Session
	inputMode InputMode

	connected bool
	rawData   []components.DataReceivedMsg
	nextID    int
	err       error
	ready     bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSerialModel(portPath string) *SerialModel {
	ctx, cancel := context.WithCancel(context.Background())
	return &SerialModel{
		portPath:  portPath,
		rawData:   make([]components.DataReceivedMsg, 0),
		inputMode: InputModeNormal,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *SerialModel) GetSession() *serialport.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *SerialModel) SetSession(s *serialport.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

func (m *SerialModel) GetPortPath() string {
	return m.portPath
}

func (m *SerialModel) IsConnected() bool {
	return m.connected
}

func (m *SerialModel) SetConnected(connected bool) {
	m.connected = connected
}

func (m *SerialModel) GetError() error {
	return m.err
}

func (m *SerialModel) SetError(err error) {
	m.err = err
}

func (m *SerialModel) IsReady() bool {
	return m.ready
}

func (m *SerialModel) SetReady(ready bool) {
	m.ready = ready
}

func (m *SerialModel) GetRawData() []components.DataReceivedMsg {
	return m.rawData
}

// AddRawData appends msg to the log. TX messages get an ID for SetTXStatus.
func (m *SerialModel) AddRawData(msg components.DataReceivedMsg) components.DataReceivedMsg {
	if msg.IsTX && msg.ID == 0 {
		m.nextID++
		msg.ID = m.nextID
	}
	m.rawData = append(m.rawData, msg)
	return msg
}

// SetTXStatus updates the status of the TX message with id and reports
// whether it was found.
func (m *SerialModel) SetTXStatus(id int, status string) bool {
	for i := len(m.rawData) - 1; i >= 0; i-- {
		if m.rawData[i].IsTX && m.rawData[i].ID == id {
			m.rawData[i].Status = status
			return true
		}
	}
	return false
}

func (m *SerialModel) ClearData() {
	m.rawData = make([]components.DataReceivedMsg, 0)
}

func (m *SerialModel) GetInputMode() InputMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode
}

func (m *SerialModel) SetInputMode(mode InputMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputMode = mode
}

func (m *SerialModel) IsInInsertMode() bool {
	return m.GetInputMode() == InputModeInsert
}

func (m *SerialModel) GetContext() context.Context {
	return m.ctx
}

func (m *SerialModel) Cancel() {
	m.cancel()
}

// Cleanup stops background work and closes the session without waiting.
func (m *SerialModel) Cleanup() {
	m.cancel()

	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s != nil {
		s.Close(func(bool, error) {})
	}
}

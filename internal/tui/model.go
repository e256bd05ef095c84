package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"compliance-dashboard/internal/auth"
	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/session"
	"compliance-dashboard/internal/view"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

const requestTimeout = 15 * time.Second

// screen 当前界面
type screen int

const (
	screenLogin screen = iota
	screenPatient
	screenDoctor
)

// 登录表单焦点
const (
	fieldRole = iota
	fieldID
	fieldName
	fieldCount
)

// Deps 终端仪表盘依赖
type Deps struct {
	Commands   session.Commands
	NewPatient func(*domain.Session) (*view.PatientView, error)
	NewDoctor  func(*domain.Session) (*view.DoctorView, error)
	ExportDir  string
	Logger     *zap.Logger
}

// Model Bubble Tea 根模型
type Model struct {
	deps Deps

	screen screen
	role   domain.Role
	focus  int
	id     textinput.Model
	name   textinput.Model

	sess    *domain.Session
	patient *view.PatientView
	doctor  *view.DoctorView

	busy    string
	alert   string
	notice  string
	pairing bool

	programSend func(tea.Msg)
	unsubscribe func()

	width int
}

func NewModel(deps Deps) *Model {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.ExportDir == "" {
		deps.ExportDir = "."
	}

	id := textinput.New()
	id.Placeholder = "Patient ID"
	id.CharLimit = 64
	id.Width = 30

	name := textinput.New()
	name.Placeholder = "Full name"
	name.CharLimit = 128
	name.Width = 30

	return &Model{
		deps: deps,
		role: domain.RolePatient,
		id:   id,
		name: name,
	}
}

// SetProgramSender 视图事件通过它注入程序；必须在 Run 之前调用
func (m *Model) SetProgramSender(send func(tea.Msg)) {
	m.programSend = send
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.teardown()
			return m, tea.Quit
		}
		// 告警未确认前不响应其他按键
		if m.alert != "" {
			if msg.Type == tea.KeyEnter || msg.Type == tea.KeyEsc {
				m.alert = ""
			}
			return m, nil
		}
		if m.screen == screenLogin {
			return m.updateLogin(msg)
		}
		return m.updateDashboard(msg)

	case loginDoneMsg:
		return m.handleLogin(msg)

	case mountedMsg:
		m.busy = ""
		if msg.err != nil {
			m.alert = msg.err.Error()
		}
		return m, nil

	case refreshDoneMsg:
		m.busy = ""
		if msg.err != nil {
			m.notice = "Some data could not be loaded"
		} else {
			m.notice = ""
		}
		return m, nil

	case pairDoneMsg:
		m.pairing = false
		m.busy = ""
		if msg.err != nil {
			m.alert = pairingAlert(m.patient, msg.err)
			return m, nil
		}
		m.notice = fmt.Sprintf("Connected to %s", msg.dev.Name)
		return m, nil

	case viewEventMsg:
		// 快照在 View 中按需读取，这里只触发重绘
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.alert = "Export failed: " + msg.err.Error()
		} else {
			m.notice = "Exported to " + msg.path
		}
		return m, nil

	case loggedOutMsg:
		m.busy = ""
		m.reset()
		if msg.err != nil {
			m.deps.Logger.Warn("logout failed", zap.Error(msg.err))
		}
		return m, nil
	}

	if m.screen == screenLogin {
		return m.updateInputs(msg)
	}
	return m, nil
}

func (m *Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyTab, tea.KeyDown:
		m.setFocus((m.focus + 1) % fieldCount)
		return m, nil
	case tea.KeyShiftTab, tea.KeyUp:
		m.setFocus((m.focus + fieldCount - 1) % fieldCount)
		return m, nil
	case tea.KeyEnter:
		return m.submitLogin()
	}

	if m.focus == fieldRole {
		if msg.Type == tea.KeyLeft || msg.Type == tea.KeyRight || msg.Type == tea.KeySpace {
			m.toggleRole()
		}
		return m, nil
	}
	return m.updateInputs(msg)
}

func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case fieldID:
		m.id, cmd = m.id.Update(msg)
	case fieldName:
		m.name, cmd = m.name.Update(msg)
	}
	return m, cmd
}

func (m *Model) setFocus(f int) {
	m.focus = f
	m.id.Blur()
	m.name.Blur()
	switch f {
	case fieldID:
		m.id.Focus()
	case fieldName:
		m.name.Focus()
	}
}

func (m *Model) toggleRole() {
	if m.role == domain.RolePatient {
		m.role = domain.RoleDoctor
		m.id.Placeholder = "Doctor ID"
	} else {
		m.role = domain.RolePatient
		m.id.Placeholder = "Patient ID"
	}
}

func (m *Model) submitLogin() (tea.Model, tea.Cmd) {
	if m.busy != "" {
		return m, nil
	}
	req, err := auth.BuildLoginRequest(m.role, m.id.Value(), m.name.Value())
	if err != nil {
		m.alert = err.Error()
		return m, nil
	}
	m.busy = "Logging in..."
	commands := m.deps.Commands
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		sess, err := commands.Login(ctx, req)
		return loginDoneMsg{sess: sess, err: err}
	}
}

func (m *Model) handleLogin(msg loginDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = ""
	if msg.err != nil {
		m.alert = loginAlert(msg.err)
		return m, nil
	}
	m.sess = msg.sess
	m.id.Reset()
	m.name.Reset()

	switch msg.sess.Role {
	case domain.RolePatient:
		pv, err := m.deps.NewPatient(msg.sess)
		if err != nil {
			m.alert = err.Error()
			return m, nil
		}
		m.patient = pv
		m.screen = screenPatient
		if m.programSend != nil {
			send := m.programSend
			m.unsubscribe = pv.Subscribe(func(ev view.Event) { send(viewEventMsg{ev: ev}) })
		}
		m.busy = "Loading..."
		return m, func() tea.Msg {
			// 挂载后的生成器、提醒随视图存活，不设超时
			return mountedMsg{patient: pv, err: pv.Mount(context.Background())}
		}
	case domain.RoleDoctor:
		dv, err := m.deps.NewDoctor(msg.sess)
		if err != nil {
			m.alert = err.Error()
			return m, nil
		}
		m.doctor = dv
		m.screen = screenDoctor
		m.busy = "Loading..."
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			return mountedMsg{doctor: dv, err: dv.Mount(ctx)}
		}
	}
	return m, nil
}

func (m *Model) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.teardown()
		return m, tea.Quit
	case "r":
		return m, m.refreshCmd()
	case "l":
		return m, m.logoutCmd()
	case "p":
		return m, m.pairCmd()
	case "c":
		if m.patient != nil && m.pairing {
			m.patient.CancelPairing()
		}
		return m, nil
	case "e":
		return m, m.exportCmd()
	}
	return m, nil
}

func (m *Model) refreshCmd() tea.Cmd {
	if m.busy != "" {
		return nil
	}
	var refresh func(context.Context) error
	switch {
	case m.patient != nil:
		refresh = m.patient.Refresh
	case m.doctor != nil:
		refresh = m.doctor.Refresh
	default:
		return nil
	}
	m.busy = "Refreshing..."
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return refreshDoneMsg{err: refresh(ctx)}
	}
}

func (m *Model) pairCmd() tea.Cmd {
	if m.patient == nil || m.pairing {
		return nil
	}
	m.pairing = true
	m.busy = "Searching for device... (c to cancel)"
	pv := m.patient
	return func() tea.Msg {
		// 设备选择可能一直等待，只能通过 c 取消
		dev, err := pv.Pair(context.Background())
		return pairDoneMsg{dev: dev, err: err}
	}
}

func (m *Model) exportCmd() tea.Cmd {
	if m.doctor == nil {
		return nil
	}
	rows := m.doctor.Roster()
	path := filepath.Join(m.deps.ExportDir, fmt.Sprintf("patients_%s.xlsx", time.Now().Format("20060102_150405")))
	return func() tea.Msg {
		data, err := view.ExportRoster(rows)
		if err == nil {
			err = os.WriteFile(path, data, 0o644)
		}
		return exportDoneMsg{path: path, err: err}
	}
}

func (m *Model) logoutCmd() tea.Cmd {
	if m.sess == nil {
		return nil
	}
	token := m.sess.Token
	m.teardown()
	m.busy = "Logging out..."
	commands := m.deps.Commands
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return loggedOutMsg{err: commands.Logout(ctx, token)}
	}
}

// teardown 停止视图的后台任务（生成器、提醒、实时订阅）
func (m *Model) teardown() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	if m.patient != nil {
		m.patient.Unmount()
	}
}

func (m *Model) reset() {
	m.screen = screenLogin
	m.sess = nil
	m.patient = nil
	m.doctor = nil
	m.pairing = false
	m.notice = ""
	m.setFocus(fieldRole)
}

func loginAlert(err error) string {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, domain.ErrLoginRejected):
		return "Login failed. Please check your credentials."
	default:
		return "Login failed: " + err.Error()
	}
}

func pairingAlert(pv *view.PatientView, err error) string {
	if errors.Is(err, domain.ErrAlreadyPairing) {
		return "A device is already paired or pairing is in progress"
	}
	if pv != nil {
		if msg := pv.Snapshot().Pairing.Message; msg != "" {
			return msg
		}
	}
	return "Pairing failed: " + err.Error()
}

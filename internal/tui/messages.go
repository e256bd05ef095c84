package tui

import (
	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/view"
)

// loginDoneMsg 登录结果
type loginDoneMsg struct {
	sess *domain.Session
	err  error
}

// mountedMsg 视图挂载完成
type mountedMsg struct {
	patient *view.PatientView
	doctor  *view.DoctorView
	err     error
}

type refreshDoneMsg struct{ err error }

type pairDoneMsg struct {
	dev domain.Device
	err error
}

// viewEventMsg 患者视图推送的变化
type viewEventMsg struct{ ev view.Event }

type loggedOutMsg struct{ err error }

type exportDoneMsg struct {
	path string
	err  error
}

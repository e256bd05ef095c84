package domain

import "errors"

var (
	// ErrCapabilityUnavailable 宿主平台不提供设备发现/通知能力
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	// ErrPairingCancelled 用户取消配对或没有匹配设备
	ErrPairingCancelled = errors.New("pairing cancelled or no matching device")
	// ErrAlreadyPairing 只有 Idle 状态可以发起配对
	ErrAlreadyPairing = errors.New("pairing already in progress or device paired")
	// ErrLoginRejected 后端拒绝登录
	ErrLoginRejected = errors.New("login rejected")
	// ErrNotAuthenticated 当前没有会话
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrWrongRole 会话角色与视图不匹配
	ErrWrongRole = errors.New("session role does not match view")
)

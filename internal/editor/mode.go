package editor

import "sync"

// Mode is the observable state of a ModeController.
type Mode struct {
	Administrator bool `json:"is_admin"`
	EditRequested bool `json:"edit_requested"`
	CanEdit       bool `json:"can_edit"`
}

// ModeController gates editing on two flags: administrator privilege and
// an explicit edit toggle. Only both together allow edits.
type ModeController struct {
	mu            sync.Mutex
	administrator bool
	editRequested bool

	// onRevoke runs when administrator status is lost.
	onRevoke func()
}

func NewModeController(onRevoke func()) *ModeController {
	return &ModeController{onRevoke: onRevoke}
}

func (m *ModeController) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Mode{
		Administrator: m.administrator,
		EditRequested: m.editRequested,
		CanEdit:       m.administrator && m.editRequested,
	}
}

func (m *ModeController) CanEdit() bool {
	return m.Mode().CanEdit
}

// SetAdministrator updates the privilege flag. Losing it clears the edit
// request and runs the revoke hook, which discards unsaved editing state.
func (m *ModeController) SetAdministrator(admin bool) {
	m.mu.Lock()
	wasAdmin := m.administrator
	m.administrator = admin
	if !admin {
		m.editRequested = false
	}
	hook := m.onRevoke
	m.mu.Unlock()

	if wasAdmin && !admin && hook != nil {
		hook()
	}
}

// RequestEdit toggles edit mode. It is ignored unless the caller is an
// administrator, and reports the resulting CanEdit.
func (m *ModeController) RequestEdit(enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.administrator {
		m.editRequested = enabled
	}
	return m.administrator && m.editRequested
}

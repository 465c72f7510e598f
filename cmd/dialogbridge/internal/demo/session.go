package demo

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/dialogbridge/pkg/dialog"
)

// Host is the part of the bridge the simulated session drives.
type Host interface {
	Update(s *dialog.Snapshot)
	Response(text string)
	ToolCall(text string)
	OnPrompt(fn func(text string))
}

var demoModels = []string{"pro", "flash", "flash-lite"}

// Session is a scripted stand-in for an interactive session. Slash prompts
// open dialogs; anything else asks to run a shell command.
type Session struct {
	mu      sync.Mutex
	host    Host
	out     io.Writer
	flags   dialog.Snapshot
	history []dialog.HistoryItem
	pending []dialog.HistoryItem
	model   string
	nextID  int
	now     func() time.Time
}

func NewSession(out io.Writer) *Session {
	return &Session{out: out, model: demoModels[0], now: time.Now}
}

// Attach starts reacting to prompts from host.
func (s *Session) Attach(h Host) {
	s.mu.Lock()
	s.host = h
	s.mu.Unlock()
	h.OnPrompt(s.Prompt)
	s.publish()
}

func (s *Session) History() []dialog.HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Session) Prompt(text string) {
	fmt.Fprintf(s.out, "> %s\n", text)

	s.mu.Lock()
	s.history = append(s.history, dialog.HistoryItem{Type: dialog.ItemUser, Text: text, Timestamp: s.now()})
	reply, toolCmd := s.handleLocked(strings.TrimSpace(text))
	if reply != "" {
		s.history = append(s.history, dialog.HistoryItem{Type: dialog.ItemModel, Text: reply, Timestamp: s.now()})
	}
	h := s.host
	s.mu.Unlock()

	if reply != "" {
		s.respond(reply)
	}
	if toolCmd != "" && h != nil {
		h.ToolCall(toolCmd)
	}
	s.publish()
}

func (s *Session) handleLocked(text string) (reply, toolCmd string) {
	switch text {
	case "/model":
		s.flags.ModelDialog = &dialog.ModelDialog{View: dialog.ModelViewMain, Available: slices.Clone(demoModels)}
		return "", ""
	case "/trust":
		s.flags.FolderTrustOpen = true
		return "", ""
	case "/theme":
		s.flags.ThemeDialogOpen = true
		return "", ""
	case "/settings":
		s.flags.SettingsDialogOpen = true
		return "", ""
	}

	s.nextID++
	id := fmt.Sprintf("demo-%d", s.nextID)
	cmd := "echo " + text
	s.pending = append(s.pending, dialog.HistoryItem{
		Type:      dialog.ItemToolGroup,
		Timestamp: s.now(),
		Tools: []dialog.ToolCall{{
			CallID: id,
			Name:   "run_shell_command",
			Args:   fmt.Sprintf("{\"command\":%q}", cmd),
			Status: dialog.ToolConfirming,
			Confirmation: &dialog.ConfirmationDetails{
				Type:      dialog.ConfirmExec,
				Command:   cmd,
				OnConfirm: func(o dialog.ToolOutcome) { s.finishTool(id, text, o) },
			},
		}},
	})
	return "I will run a command for that.", cmd
}

func (s *Session) finishTool(id, text string, outcome dialog.ToolOutcome) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.pending, func(it dialog.HistoryItem) bool {
		return len(it.Tools) > 0 && it.Tools[0].CallID == id
	})
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	item := s.pending[idx]
	s.pending = slices.Delete(s.pending, idx, idx+1)

	var reply string
	tool := &item.Tools[0]
	tool.Confirmation = nil
	if outcome == dialog.OutcomeProceedOnce {
		tool.Status = dialog.ToolSuccess
		tool.Result = text
		reply = "Command output: " + text
	} else {
		tool.Status = dialog.ToolCanceled
		reply = "Command cancelled."
	}
	s.history = append(s.history, item,
		dialog.HistoryItem{Type: dialog.ItemModel, Text: reply, Timestamp: s.now()})
	s.mu.Unlock()

	fmt.Fprintf(s.out, "tool %s: %s\n", id, outcome)
	s.respond(reply)
	s.publish()
}

func (s *Session) respond(text string) {
	s.mu.Lock()
	h := s.host
	s.mu.Unlock()
	if h != nil {
		h.Response(text)
	}
}

func (s *Session) publish() {
	s.mu.Lock()
	h := s.host
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if h != nil {
		h.Update(snap)
	}
}

func (s *Session) snapshotLocked() *dialog.Snapshot {
	snap := s.flags
	if md := s.flags.ModelDialog; md != nil {
		cp := *md
		snap.ModelDialog = &cp
	}
	snap.History = slices.Clone(s.history)
	snap.Pending = slices.Clone(s.pending)
	return &snap
}

// mutate applies fn to the dialog flags and publishes the result.
func (s *Session) mutate(fn func(*dialog.Snapshot)) {
	s.mu.Lock()
	fn(&s.flags)
	s.mu.Unlock()
	s.publish()
}

func (s *Session) HandleQuotaChoice(string) {
	s.mutate(func(f *dialog.Snapshot) { f.QuotaRequest = nil })
}

func (s *Session) HandleIntegrationPrompt(string) {
	s.mutate(func(f *dialog.Snapshot) { f.ShowIntegrationPrompt = false })
}

func (s *Session) HandleFolderTrust(choice dialog.FolderTrustChoice) {
	fmt.Fprintf(s.out, "folder trust: %s\n", choice)
	s.mutate(func(f *dialog.Snapshot) { f.FolderTrustOpen = false })
}

func (s *Session) CloseModelDialog() {
	s.mutate(func(f *dialog.Snapshot) { f.ModelDialog = nil })
}

func (s *Session) SetModelDialogView(view dialog.ModelDialogView) {
	s.mutate(func(f *dialog.Snapshot) {
		if f.ModelDialog != nil {
			f.ModelDialog.View = view
		}
	})
}

func (s *Session) SelectModel(name string) {
	s.mu.Lock()
	s.model = name
	s.flags.ModelDialog = nil
	s.mu.Unlock()
	fmt.Fprintf(s.out, "model: %s\n", name)
	s.respond("Model set to " + name + ".")
	s.publish()
}

func (s *Session) CancelAuth(reason string) {
	s.mutate(func(f *dialog.Snapshot) {
		f.Authenticating = false
		f.AwaitingAPIKey = false
	})
	s.respond(reason)
}

func (s *Session) DismissDialog(kind dialog.Kind) {
	s.mutate(func(f *dialog.Snapshot) {
		switch kind {
		case dialog.KindThemePicker:
			f.ThemeDialogOpen = false
		case dialog.KindSettingsPanel:
			f.SettingsDialogOpen = false
		case dialog.KindRestartNotice:
			f.RestartPrompt = nil
		case dialog.KindAPIKeyPrompt:
			f.AwaitingAPIKey = false
		case dialog.KindAuthMethodPicker:
			f.AuthDialogOpen = false
		case dialog.KindEditorPicker:
			f.EditorDialogOpen = false
		case dialog.KindPrivacyNotice:
			f.PrivacyNoticeOpen = false
		case dialog.KindSessionPicker:
			f.SessionBrowserOpen = false
		case dialog.KindPermissionsPanel:
			f.PermissionsDialogOpen = false
		case dialog.KindCustom:
			f.Custom = nil
		}
	})
}

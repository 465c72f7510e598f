package dialog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sipeed/dialogbridge/pkg/logger"
)

// Rule describes one kind of global dialog. Rules are evaluated in order and
// the first one whose When matches owns the global slot for that snapshot,
// even when Build suppresses it.
type Rule struct {
	Kind Kind
	When func(s *Snapshot) bool
	// Build derives the prompt and options. ok=false suppresses the dialog.
	Build func(s *Snapshot) (prompt string, options []string, ok bool)
	// Resolve applies token to the UI. It reports false for tokens the
	// dialog does not accept.
	Resolve func(s *Snapshot, a Actions, options []string, token string) bool
	// WireType overrides the dialogType; defaults to the kind.
	WireType func(s *Snapshot) string
	// Request returns the host object behind the dialog. Two snapshots with
	// different objects carry different requests even when the prompts match.
	Request func(s *Snapshot) any
}

const (
	loopDetectionPrompt = "A potential loop was detected. Keep loop detection enabled for this session?"
	authCancelled       = "Authentication cancelled."
	apiKeyCancelled     = "API key entry cancelled."
)

var globalRules = []Rule{
	{
		Kind: KindRestartNotice,
		When: func(s *Snapshot) bool { return s.RestartPrompt != nil },
		Build: func(s *Snapshot) (string, []string, bool) {
			return "IDE integration needs a restart: " + s.RestartPrompt.Reason, []string{"ok"}, true
		},
		Resolve: dismissOn(KindRestartNotice),
		Request: func(s *Snapshot) any { return s.RestartPrompt },
	},
	{
		Kind: KindQuotaChoice,
		When: func(s *Snapshot) bool { return s.QuotaRequest != nil },
		Build: func(s *Snapshot) (string, []string, bool) {
			return s.QuotaRequest.Message, []string{"retry_later", "retry_once", "retry_always", "upgrade"}, true
		},
		Resolve: func(_ *Snapshot, a Actions, options []string, token string) bool {
			if !slices.Contains(options, token) {
				return false
			}
			a.HandleQuotaChoice(token)
			return true
		},
		Request: func(s *Snapshot) any { return s.QuotaRequest },
	},
	{
		Kind: KindIntegrationPrompt,
		When: func(s *Snapshot) bool { return s.ShowIntegrationPrompt },
		Build: fixed("An IDE was detected. Would you like to install the integration?", "yes", "no", "dismiss"),
		Resolve: func(_ *Snapshot, a Actions, options []string, token string) bool {
			if !slices.Contains(options, token) {
				return false
			}
			a.HandleIntegrationPrompt(token)
			return true
		},
	},
	{
		Kind:  KindFolderTrust,
		When:  func(s *Snapshot) bool { return s.FolderTrustOpen },
		Build: fixed("Do you trust the files in this folder?", "trust", "no_trust"),
		Resolve: func(_ *Snapshot, a Actions, _ []string, token string) bool {
			if token == "trust" {
				a.HandleFolderTrust(TrustFolder)
			} else {
				a.HandleFolderTrust(DoNotTrust)
			}
			return true
		},
	},
	{
		Kind: KindShellConfirmation,
		When: func(s *Snapshot) bool { return s.ShellConfirmation != nil },
		Build: func(s *Snapshot) (string, []string, bool) {
			if anyDestructive(s.ShellConfirmation.Commands) {
				return "", nil, false
			}
			return strings.Join(s.ShellConfirmation.Commands, "\n"), []string{"yes", "no"}, true
		},
		Resolve: func(s *Snapshot, _ Actions, _ []string, token string) bool {
			if cb := s.ShellConfirmation.OnConfirm; cb != nil {
				cb(toolOutcome(token))
			} else {
				missingCallback(KindShellConfirmation)
			}
			return true
		},
		Request: func(s *Snapshot) any { return s.ShellConfirmation },
	},
	{
		Kind:  KindLoopDetection,
		When:  func(s *Snapshot) bool { return s.LoopDetection != nil },
		Build: fixed(loopDetectionPrompt, "keep", "disable"),
		Resolve: func(s *Snapshot, _ Actions, _ []string, token string) bool {
			var choice LoopDetectionChoice
			switch token {
			case "keep":
				choice = LoopDetectionKeep
			case "disable":
				choice = LoopDetectionDisable
			default:
				return false
			}
			if cb := s.LoopDetection.OnComplete; cb != nil {
				cb(choice)
			} else {
				missingCallback(KindLoopDetection)
			}
			return true
		},
		Request: func(s *Snapshot) any { return s.LoopDetection },
	},
	{
		Kind: KindGenericConfirmation,
		When: func(s *Snapshot) bool { return s.Confirmation != nil },
		Build: func(s *Snapshot) (string, []string, bool) {
			return s.Confirmation.Prompt, []string{"yes", "no"}, true
		},
		Resolve: func(s *Snapshot, _ Actions, _ []string, token string) bool {
			if cb := s.Confirmation.OnConfirm; cb != nil {
				cb(token == "yes")
			} else {
				missingCallback(KindGenericConfirmation)
			}
			return true
		},
		Request: func(s *Snapshot) any { return s.Confirmation },
	},
	{
		Kind: KindExtensionUpdate,
		When: func(s *Snapshot) bool { return len(s.ExtensionUpdates) > 0 },
		Build: func(s *Snapshot) (string, []string, bool) {
			return s.ExtensionUpdates[0].Prompt, []string{"yes", "no"}, true
		},
		Resolve: func(s *Snapshot, _ Actions, _ []string, token string) bool {
			if cb := s.ExtensionUpdates[0].OnConfirm; cb != nil {
				cb(token == "yes")
			} else {
				missingCallback(KindExtensionUpdate)
			}
			return true
		},
		Request: func(s *Snapshot) any { return &s.ExtensionUpdates[0] },
	},
	{
		Kind:    KindThemePicker,
		When:    func(s *Snapshot) bool { return s.ThemeDialogOpen },
		Build:   fixed("Select a theme", "cancel"),
		Resolve: dismissOn(KindThemePicker),
	},
	{
		Kind:    KindSettingsPanel,
		When:    func(s *Snapshot) bool { return s.SettingsDialogOpen },
		Build:   fixed("Settings", "close"),
		Resolve: dismissOn(KindSettingsPanel),
	},
	{
		Kind: KindModelPicker,
		When: func(s *Snapshot) bool { return s.ModelDialog != nil },
		Build: func(s *Snapshot) (string, []string, bool) {
			md := s.ModelDialog
			opts := slices.Clone(md.Available)
			prompt := "Select Model"
			if md.View == ModelViewManual {
				prompt = "Select Model (Manual)"
			} else {
				opts = append(opts, "Manual")
			}
			return prompt, append(opts, "close"), true
		},
		Resolve: func(_ *Snapshot, a Actions, _ []string, token string) bool {
			switch token {
			case "":
				return false
			case "close":
				a.CloseModelDialog()
			case "Manual":
				a.SetModelDialogView(ModelViewManual)
			default:
				a.SelectModel(token)
			}
			return true
		},
	},
	{
		Kind:  KindAuthInProgress,
		When:  func(s *Snapshot) bool { return s.Authenticating },
		Build: fixed("Authentication in progress..."),
		Resolve: func(_ *Snapshot, a Actions, _ []string, token string) bool {
			if token != "cancel" {
				return false
			}
			a.CancelAuth(authCancelled)
			return true
		},
	},
	{
		Kind:  KindAPIKeyPrompt,
		When:  func(s *Snapshot) bool { return s.AwaitingAPIKey },
		Build: fixed("Please enter your API key", "submit", "cancel"),
		Resolve: func(_ *Snapshot, a Actions, _ []string, token string) bool {
			switch token {
			case "cancel":
				a.CancelAuth(apiKeyCancelled)
			case "submit":
				a.DismissDialog(KindAPIKeyPrompt)
			default:
				return false
			}
			return true
		},
	},
	{
		Kind:    KindAuthMethodPicker,
		When:    func(s *Snapshot) bool { return s.AuthDialogOpen },
		Build:   fixed("Select authentication method", "cancel"),
		Resolve: dismissOn(KindAuthMethodPicker),
	},
	{
		Kind:    KindEditorPicker,
		When:    func(s *Snapshot) bool { return s.EditorDialogOpen },
		Build:   fixed("Select your preferred editor", "exit"),
		Resolve: dismissOn(KindEditorPicker),
	},
	{
		Kind:    KindPrivacyNotice,
		When:    func(s *Snapshot) bool { return s.PrivacyNoticeOpen },
		Build:   fixed("Privacy Notice", "exit"),
		Resolve: dismissOn(KindPrivacyNotice),
	},
	{
		Kind:    KindSessionPicker,
		When:    func(s *Snapshot) bool { return s.SessionBrowserOpen },
		Build:   fixed("Select a session to resume", "exit"),
		Resolve: dismissOn(KindSessionPicker),
	},
	{
		Kind:    KindPermissionsPanel,
		When:    func(s *Snapshot) bool { return s.PermissionsDialogOpen },
		Build:   fixed("Modify folder trust permissions", "exit"),
		Resolve: dismissOn(KindPermissionsPanel),
	},
	{
		Kind: KindCustom,
		When: func(s *Snapshot) bool { return s.Custom != nil },
		Build: func(s *Snapshot) (string, []string, bool) {
			name := s.Custom.Name
			if strings.TrimSpace(name) == "" {
				name = defaultCustom
			}
			return fmt.Sprintf("A custom dialog (%s) is open.", name), []string{"ok"}, true
		},
		Resolve:  dismissOn(KindCustom),
		WireType: func(s *Snapshot) string { return customWireType(s.Custom.Name) },
		Request:  func(s *Snapshot) any { return s.Custom },
	},
}

// Rules returns the global dialog rules in priority order.
func Rules() []Rule {
	return slices.Clone(globalRules)
}

// PriorityOrder lists the global kinds from highest to lowest priority.
func PriorityOrder() []Kind {
	kinds := make([]Kind, len(globalRules))
	for i, r := range globalRules {
		kinds[i] = r.Kind
	}
	return kinds
}

func fixed(prompt string, options ...string) func(*Snapshot) (string, []string, bool) {
	return func(*Snapshot) (string, []string, bool) {
		return prompt, slices.Clone(options), true
	}
}

func dismissOn(kind Kind) func(*Snapshot, Actions, []string, string) bool {
	return func(_ *Snapshot, a Actions, options []string, token string) bool {
		if !slices.Contains(options, token) {
			return false
		}
		a.DismissDialog(kind)
		return true
	}
}

func missingCallback(kind Kind) {
	logger.WarnCF("dialog", "Dialog request has no callback; answer dropped", map[string]any{
		"kind": string(kind),
	})
}

func toolOutcome(token string) ToolOutcome {
	if token == "yes" {
		return OutcomeProceedOnce
	}
	return OutcomeCancel
}

package dialog

import "strings"

// Kind tags the type of a pending interaction.
type Kind string

const (
	KindRestartNotice       Kind = "restart_notice"
	KindQuotaChoice         Kind = "quota_choice"
	KindIntegrationPrompt   Kind = "integration_prompt"
	KindFolderTrust         Kind = "folder_trust"
	KindShellConfirmation   Kind = "shell_confirmation"
	KindLoopDetection       Kind = "loop_detection"
	KindGenericConfirmation Kind = "generic_confirmation"
	KindExtensionUpdate     Kind = "extension_update"
	KindThemePicker         Kind = "theme_picker"
	KindSettingsPanel       Kind = "settings_panel"
	KindModelPicker         Kind = "model_picker"
	KindAuthInProgress      Kind = "auth_in_progress"
	KindAPIKeyPrompt        Kind = "api_key_prompt"
	KindAuthMethodPicker    Kind = "auth_method_picker"
	KindEditorPicker        Kind = "editor_picker"
	KindPrivacyNotice       Kind = "privacy_notice"
	KindSessionPicker       Kind = "session_picker"
	KindPermissionsPanel    Kind = "permissions_panel"
	KindCustom              Kind = "custom"

	// KindToolConfirmation marks per-call interactions found in the turn
	// history. It never takes part in the global priority order.
	KindToolConfirmation Kind = "tool_confirmation"
)

const (
	toolTypePrefix   = "tool:"
	customTypePrefix = "custom:"
	defaultCustom    = "CustomDialog"
)

// ToolWireType is the dialogType sent for a tool confirmation.
func ToolWireType(callID string) string {
	return toolTypePrefix + callID
}

// CallIDFromWireType extracts the call id from a tool dialogType.
func CallIDFromWireType(dialogType string) (string, bool) {
	if !strings.HasPrefix(dialogType, toolTypePrefix) {
		return "", false
	}
	return dialogType[len(toolTypePrefix):], true
}

func customWireType(name string) string {
	if strings.TrimSpace(name) == "" {
		name = defaultCustom
	}
	return customTypePrefix + name
}

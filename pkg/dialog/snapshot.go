package dialog

import "time"

// ToolOutcome is the answer delivered to a tool or shell confirmation.
type ToolOutcome string

const (
	OutcomeProceedOnce ToolOutcome = "proceed_once"
	OutcomeCancel      ToolOutcome = "cancel"
)

// FolderTrustChoice is the answer to the folder trust dialog.
type FolderTrustChoice string

const (
	TrustFolder FolderTrustChoice = "trust_folder"
	DoNotTrust  FolderTrustChoice = "do_not_trust"
)

// ModelDialogView is the page currently shown by the model picker.
type ModelDialogView string

const (
	ModelViewMain   ModelDialogView = "main"
	ModelViewManual ModelDialogView = "manual"
)

// LoopDetectionChoice is the answer to the loop detection prompt.
type LoopDetectionChoice string

const (
	LoopDetectionKeep    LoopDetectionChoice = "keep"
	LoopDetectionDisable LoopDetectionChoice = "disable"
)

type RestartPrompt struct {
	Reason string
}

type QuotaRequest struct {
	Message string
}

type ShellConfirmationRequest struct {
	Commands  []string
	OnConfirm func(ToolOutcome)
}

type LoopDetectionRequest struct {
	OnComplete func(LoopDetectionChoice)
}

type ConfirmationRequest struct {
	Prompt    string
	OnConfirm func(confirmed bool)
}

type ExtensionUpdateRequest struct {
	Prompt    string
	OnConfirm func(confirmed bool)
}

type ModelDialog struct {
	View      ModelDialogView
	Available []string
}

type CustomDialog struct {
	// Name is the dialog's type name as reported by the UI layer.
	Name string
}

// Snapshot is the read model of the session UI the detector scans. The host
// builds a fresh value on every state change; the bridge never mutates it.
type Snapshot struct {
	RestartPrompt         *RestartPrompt
	QuotaRequest          *QuotaRequest
	ShowIntegrationPrompt bool
	FolderTrustOpen       bool
	ShellConfirmation     *ShellConfirmationRequest
	LoopDetection         *LoopDetectionRequest
	Confirmation          *ConfirmationRequest
	ExtensionUpdates      []ExtensionUpdateRequest
	ThemeDialogOpen       bool
	SettingsDialogOpen    bool
	ModelDialog           *ModelDialog
	Authenticating        bool
	AwaitingAPIKey        bool
	AuthDialogOpen        bool
	EditorDialogOpen      bool
	PrivacyNoticeOpen     bool
	SessionBrowserOpen    bool
	PermissionsDialogOpen bool
	Custom                *CustomDialog

	// History holds committed turn items, Pending the in-flight ones.
	History []HistoryItem
	Pending []HistoryItem
}

type ItemType string

const (
	ItemUser      ItemType = "user"
	ItemModel     ItemType = "model"
	ItemToolGroup ItemType = "tool_group"
	ItemInfo      ItemType = "info"
	ItemError     ItemType = "error"
)

type ToolStatus string

const (
	ToolPending    ToolStatus = "pending"
	ToolConfirming ToolStatus = "confirming"
	ToolExecuting  ToolStatus = "executing"
	ToolSuccess    ToolStatus = "success"
	ToolError      ToolStatus = "error"
	ToolCanceled   ToolStatus = "canceled"
)

type ConfirmationType string

const (
	ConfirmExec ConfirmationType = "exec"
	ConfirmEdit ConfirmationType = "edit"
	ConfirmMCP  ConfirmationType = "mcp"
	ConfirmInfo ConfirmationType = "info"
)

// ConfirmationDetails describes what a confirming tool call is asking for.
type ConfirmationDetails struct {
	Type       ConfirmationType
	Command    string // exec
	FileName   string // edit
	ToolName   string // mcp
	ServerName string // mcp
	OnConfirm  func(ToolOutcome)
}

type ToolCall struct {
	CallID       string
	Name         string
	Args         string
	Status       ToolStatus
	Result       string
	Confirmation *ConfirmationDetails
}

type Thought struct {
	Subject     string
	Description string
}

type HistoryItem struct {
	Type      ItemType
	Text      string
	Timestamp time.Time
	Thoughts  []Thought
	Tools     []ToolCall
}

// Actions are the UI operations used to answer dialogs that are plain UI
// flags rather than requests carrying their own callback.
type Actions interface {
	HandleQuotaChoice(choice string)
	HandleIntegrationPrompt(selection string)
	HandleFolderTrust(choice FolderTrustChoice)
	CloseModelDialog()
	SetModelDialogView(view ModelDialogView)
	SelectModel(name string)
	CancelAuth(reason string)
	DismissDialog(kind Kind)
}

// NopActions implements Actions by doing nothing. Embed it to implement a
// subset.
type NopActions struct{}

func (NopActions) HandleQuotaChoice(string)            {}
func (NopActions) HandleIntegrationPrompt(string)      {}
func (NopActions) HandleFolderTrust(FolderTrustChoice) {}
func (NopActions) CloseModelDialog()                   {}
func (NopActions) SetModelDialogView(ModelDialogView)  {}
func (NopActions) SelectModel(string)                  {}
func (NopActions) CancelAuth(string)                   {}
func (NopActions) DismissDialog(Kind)                  {}

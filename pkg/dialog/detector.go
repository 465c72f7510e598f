package dialog

import (
	"fmt"

	"github.com/sipeed/dialogbridge/pkg/logger"
)

// Detector turns a Snapshot into candidate interactions. It holds no state
// between scans.
type Detector struct {
	rules   []Rule
	actions Actions
}

func NewDetector(actions Actions) *Detector {
	if actions == nil {
		actions = NopActions{}
	}
	return &Detector{rules: globalRules, actions: actions}
}

// DetectGlobal returns the highest-priority pending global dialog, or nil.
func (d *Detector) DetectGlobal(s *Snapshot) *Interaction {
	if s == nil {
		return nil
	}
	for i := range d.rules {
		rule := &d.rules[i]
		if !rule.When(s) {
			continue
		}
		prompt, options, ok := rule.Build(s)
		if !ok {
			logger.DebugCF("dialog", "Suppressed dialog", map[string]any{
				"kind": string(rule.Kind),
			})
			return nil
		}
		wire := string(rule.Kind)
		if rule.WireType != nil {
			wire = rule.WireType(s)
		}
		actions := d.actions
		resolve := rule.Resolve
		ia := &Interaction{
			Kind:     rule.Kind,
			Type:     wire,
			Identity: wire + ":" + prompt,
			Prompt:   prompt,
			Options:  options,
			Handle: NewHandle(func(token string) (bool, error) {
				return resolve(s, actions, options, token), nil
			}),
		}
		if rule.Request != nil {
			ia.request = rule.Request(s)
		}
		return ia
	}
	return nil
}

// ScanToolConfirmations returns one interaction per tool call awaiting
// confirmation, committed history first. A call id seen twice keeps its first
// occurrence.
func (d *Detector) ScanToolConfirmations(s *Snapshot) []*Interaction {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []*Interaction
	for _, items := range [][]HistoryItem{s.History, s.Pending} {
		for i := range items {
			if items[i].Type != ItemToolGroup {
				continue
			}
			for j := range items[i].Tools {
				tool := &items[i].Tools[j]
				if tool.Status != ToolConfirming || tool.Confirmation == nil || tool.Confirmation.OnConfirm == nil {
					continue
				}
				if tool.CallID == "" {
					logger.WarnCF("dialog", "Confirming tool call without id", map[string]any{"tool": tool.Name})
					continue
				}
				if _, dup := seen[tool.CallID]; dup {
					continue
				}
				seen[tool.CallID] = struct{}{}

				prompt, ok := toolPrompt(tool)
				if !ok {
					logger.DebugCF("dialog", "Suppressed destructive tool confirmation", map[string]any{
						"call_id": tool.CallID,
						"command": logger.Truncate(tool.Confirmation.Command, 50),
					})
					continue
				}
				out = append(out, newToolInteraction(tool.CallID, prompt, tool.Confirmation.OnConfirm))
			}
		}
	}
	return out
}

// Detect runs both scans.
func (d *Detector) Detect(s *Snapshot) (*Interaction, []*Interaction) {
	return d.DetectGlobal(s), d.ScanToolConfirmations(s)
}

func toolPrompt(tool *ToolCall) (string, bool) {
	c := tool.Confirmation
	switch c.Type {
	case ConfirmExec:
		if IsDestructiveGitCommand(c.Command) {
			return "", false
		}
		return fmt.Sprintf("Allow execution of: '%s'?", c.Command), true
	case ConfirmEdit:
		return fmt.Sprintf("Apply changes to %s?", c.FileName), true
	case ConfirmMCP:
		return fmt.Sprintf("Allow execution of MCP tool \"%s\" from server \"%s\"?", c.ToolName, c.ServerName), true
	default:
		return fmt.Sprintf("Allow execution of: '%s'?", tool.Name), true
	}
}

func newToolInteraction(callID, prompt string, onConfirm func(ToolOutcome)) *Interaction {
	return &Interaction{
		Kind:     KindToolConfirmation,
		Type:     ToolWireType(callID),
		Identity: callID,
		Prompt:   prompt,
		Options:  []string{"yes", "no"},
		CallID:   callID,
		Handle: NewHandle(func(token string) (bool, error) {
			onConfirm(toolOutcome(token))
			return true, nil
		}),
	}
}

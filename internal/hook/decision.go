package hook

import (
	"encoding/json"
	"io"
)

// EventName is the interception point this gate answers for.
const EventName = "PreToolUse"

// DecisionType is the permission outcome reported to the host.
type DecisionType string

const (
	DecisionAllow DecisionType = "allow"
	DecisionDeny  DecisionType = "deny"
	DecisionAsk   DecisionType = "ask"
)

// Decision is the single output of a gate run.
type Decision struct {
	Type   DecisionType
	Reason string
}

// Allow returns an allow decision with an optional reason.
func Allow(reason string) Decision {
	return Decision{Type: DecisionAllow, Reason: reason}
}

// Deny returns a deny decision.
func Deny(reason string) Decision {
	return Decision{Type: DecisionDeny, Reason: reason}
}

// Ask returns a decision that defers to the user.
func Ask(reason string) Decision {
	return Decision{Type: DecisionAsk, Reason: reason}
}

// Response is the top-level JSON document written to stdout.
type Response struct {
	HookSpecificOutput HookSpecificOutput `json:"hookSpecificOutput"`
}

// HookSpecificOutput carries the permission decision for the host.
type HookSpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

// NewResponse wraps a decision in the host's response envelope.
func NewResponse(d Decision) Response {
	t := d.Type
	if t == "" {
		t = DecisionAllow
	}
	return Response{
		HookSpecificOutput: HookSpecificOutput{
			HookEventName:            EventName,
			PermissionDecision:       string(t),
			PermissionDecisionReason: d.Reason,
		},
	}
}

// Emit writes exactly one decision document to w.
func Emit(w io.Writer, d Decision) error {
	data, err := json.Marshal(NewResponse(d))
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

package inspectcore

import "encoding/json"

// ActionKind distinguishes a hard block from a monitor-only action that is
// logged but does not actually deny the request.
type ActionKind int

const (
	// ActionBlock denies the request.
	ActionBlock ActionKind = iota
	// ActionMonitor logs the match but still lets the request through.
	ActionMonitor
)

// ReasonDocument is the structured, machine-readable reason attached to a
// blocking Action (spec.md §6 "Reason document"). Field names are a stable
// wire contract for downstream operator tooling.
type ReasonDocument struct {
	Initiator string `json:"initiator"`
	Code      *int   `json:"action,omitempty"`
	Reason    any    `json:"reason,omitempty"`
	Rule      string `json:"rule,omitempty"`
	Sig       string `json:"sig,omitempty"`
	Section   string `json:"section,omitempty"`
}

// Action is the non-Pass branch of a Decision (spec.md §3).
type Action struct {
	Kind      ActionKind
	Status    int
	Headers   map[string]string
	Reason    ReasonDocument
	Content   string
	ExtraTags []string
}

// Decision is the terminal verdict returned by the pipeline for a single
// request (spec.md §3): either Pass, or an Action describing a block,
// monitor, or challenge response.
type Decision struct {
	Pass   bool
	Action *Action
}

// PassDecision is the singular "let the request through" verdict.
func PassDecision() Decision {
	return Decision{Pass: true}
}

// decisionWireForm mirrors the JSON shape documented in spec.md §6.
type decisionWireForm struct {
	Action   string              `json:"action"`
	Response *customResponseForm `json:"response,omitempty"`
}

type customResponseForm struct {
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers,omitempty"`
	Reason    ReasonDocument    `json:"reason"`
	Content   string            `json:"content"`
	BlockMode bool              `json:"block_mode"`
	ExtraTags []string          `json:"extra_tags,omitempty"`
}

// MarshalJSON renders the Decision as the wire shape documented in spec.md
// §6: {"action":"pass"} or {"action":"custom_response","response":{...}}.
func (d Decision) MarshalJSON() ([]byte, error) {
	if d.Pass || d.Action == nil {
		return json.Marshal(decisionWireForm{Action: "pass"})
	}
	return json.Marshal(decisionWireForm{
		Action: "custom_response",
		Response: &customResponseForm{
			Status:    d.Action.Status,
			Headers:   d.Action.Headers,
			Reason:    d.Action.Reason,
			Content:   d.Action.Content,
			BlockMode: d.Action.Kind == ActionBlock,
			ExtraTags: d.Action.ExtraTags,
		},
	})
}

// blockOrMonitor builds a block/monitor Decision, used by the rate-limit
// and ACL stages where the same reason shape decides between a hard deny
// and a logged-only match (spec.md §4.E-§4.F).
func blockOrMonitor(blocking bool, reason ReasonDocument) Decision {
	kind := ActionMonitor
	if blocking {
		kind = ActionBlock
	}
	return Decision{
		Action: &Action{
			Kind:    kind,
			Status:  403,
			Reason:  reason,
			Content: "access denied",
		},
	}
}

// aclDecision builds the block/monitor Decision shape for an ACL match,
// preserving the fixed reason codes on the wire (spec.md §4.F, curiefense's
// acl_block: 0 bypass-deny, 3 bot-deny/challenge, 5 human-deny from either
// force_deny or deny).
func aclDecision(blocking bool, code int, tags []string) Decision {
	return blockOrMonitor(blocking, ReasonDocument{
		Initiator: "acl",
		Code:      &code,
		Reason:    tags,
	})
}

// wafDecision builds the block Decision for a WAF signature or restriction
// match (spec.md §4.H).
func wafDecision(sig, section string, reason any) Decision {
	return Decision{
		Action: &Action{
			Kind:    ActionBlock,
			Status:  403,
			Content: "access denied",
			Reason: ReasonDocument{
				Initiator: "waf",
				Sig:       sig,
				Section:   section,
				Reason:    reason,
			},
		},
	}
}

// genericBlockDecision builds a fail-closed block carrying no signature
// detail, used when the signature database itself is unavailable (spec.md
// §7: signature-DB unavailability fails closed).
func genericBlockDecision(reasonText string) Decision {
	return Decision{
		Action: &Action{
			Kind:    ActionBlock,
			Status:  403,
			Content: "access denied",
			Reason: ReasonDocument{
				Initiator: "waf",
				Reason:    reasonText,
			},
		},
	}
}

package core

import "github.com/opus-domini/sentinel/internal/core/ids"

// DecisionSource names where a Decision originated, per spec.md §3 and
// §4.7.3.
type DecisionSource string

const (
	DecisionSourceQuestion DecisionSource = "question"
	DecisionSourceApproval DecisionSource = "approval"
	DecisionSourceGate     DecisionSource = "gate"
	DecisionSourceError    DecisionSource = "error"
	DecisionSourceIdle     DecisionSource = "idle"
)

// DecisionOption is one labeled choice offered to the human resolving a
// Decision.
type DecisionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Recommended bool   `json:"recommended,omitempty"`
}

// Decision is an awaiting-or-resolved human choice, per spec.md §3.
type Decision struct {
	ID      ids.DecisionID `json:"id"`
	Source  DecisionSource `json:"source"`
	Context string         `json:"context"`
	Options []DecisionOption `json:"options"`

	// Chosen is 1-indexed per spec.md §3; nil while unresolved.
	Chosen  *int   `json:"chosen,omitempty"`
	Message string `json:"message,omitempty"`

	Owner OwnerID `json:"owner"`

	// Trigger/Category/ChainPos record the action-chain position that
	// escalated into this decision, so a "Retry" resolution can
	// re-dispatch the exact same chain slot (spec.md §4.7.3). ChainPos
	// is -1 for Question/Idle decisions, which have no chain position.
	Trigger  Trigger       `json:"trigger,omitempty"`
	Category ErrorCategory `json:"category,omitempty"`
	ChainPos int           `json:"chainPos"`

	CreatedAtMS  int64  `json:"createdAtMs"`
	ResolvedAtMS *int64 `json:"resolvedAtMs,omitempty"`
}

// IsResolved reports whether the decision carries a chosen option.
func (d Decision) IsResolved() bool { return d.Chosen != nil }

// IsLastOption reports whether idx (1-indexed) is the last option,
// which by convention is "Cancel" for Question-source decisions
// (spec.md §4.7.3).
func (d Decision) IsLastOption(idx int) bool {
	return idx == len(d.Options)
}

// Option returns the 1-indexed option, or the zero value and false if
// idx is out of range.
func (d Decision) Option(idx int) (DecisionOption, bool) {
	if idx < 1 || idx > len(d.Options) {
		return DecisionOption{}, false
	}
	return d.Options[idx-1], true
}

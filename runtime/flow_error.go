package runtime

import "fmt"

// FlowErrorType classifies why an execution aborted.
type FlowErrorType string

const (
	// ErrorTypeGraph covers structural problems: dangling targets, empty
	// pages, anything load-time validation missed.
	ErrorTypeGraph FlowErrorType = "graph"
	// ErrorTypeExpression covers malformed variable arithmetic and bad
	// variable references in flow actions.
	ErrorTypeExpression FlowErrorType = "expression"
	// ErrorTypeDevice covers gateway actuation failures.
	ErrorTypeDevice FlowErrorType = "device"
	// ErrorTypeCancelled is not an error condition: it records an external
	// cancellation as a first-class terminal status.
	ErrorTypeCancelled FlowErrorType = "cancelled"
)

// FlowError is the canonical error propagated out of a flow execution. It
// aborts only the affected execution, never the engine process, and its
// message is what the observability feed shows as the abort reason.
type FlowError struct {
	Type    FlowErrorType `json:"type"`
	FlowID  string        `json:"flowId"`
	PageID  string        `json:"pageId"`
	Node    string        `json:"node"`
	Message string        `json:"message"`
	Cause   error         `json:"-"`
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("[%s] %s (flow: %s, page: %s, node: %s)", e.Type, e.Message, e.FlowID, e.PageID, e.Node)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewFlowError builds an error attributed to the execution's current node.
func NewFlowError(t FlowErrorType, flowID, pageID, node, message string, cause error) *FlowError {
	return &FlowError{
		Type:    t,
		FlowID:  flowID,
		PageID:  pageID,
		Node:    node,
		Message: message,
		Cause:   cause,
	}
}

package domain

import (
	"fmt"
	"strings"
)

// ConfigurationError reports an invalid or incomplete descriptor. It is
// raised before any extraction work begins.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ExtractionError reports a failed region selection or an unreadable
// dataset. It carries the work-unit coordinates of the failure.
type ExtractionError struct {
	Variable string
	Period   string
	Label    string
	Event    *Event
	Reason   string
	Err      error
}

func (e *ExtractionError) Error() string {
	var parts []string
	if e.Variable != "" {
		parts = append(parts, "variable="+e.Variable)
	}
	if e.Period != "" {
		parts = append(parts, "period="+e.Period)
	}
	if e.Label != "" {
		parts = append(parts, "label="+e.Label)
	}
	if e.Event != nil {
		parts = append(parts, "event="+e.Event.String())
	}
	msg := "extraction error"
	if len(parts) > 0 {
		msg += " [" + strings.Join(parts, " ") + "]"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ExpressionError reports a malformed RPN expression or an operand that
// cannot be resolved.
type ExpressionError struct {
	Expression string
	Token      string
	Reason     string
}

func (e *ExpressionError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("expression error in %q at token %q: %s", e.Expression, e.Token, e.Reason)
	}
	return fmt.Sprintf("expression error in %q: %s", e.Expression, e.Reason)
}

// AssemblyError reports a failure while building channels or stacking them
// into a tensor.
type AssemblyError struct {
	Subject string
	Split   string
	Reason  string
	Err     error
}

func (e *AssemblyError) Error() string {
	msg := "assembly error"
	if e.Subject != "" {
		msg += " [" + e.Subject
		if e.Split != "" {
			msg += "/" + e.Split
		}
		msg += "]"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AssemblyError) Unwrap() error { return e.Err }

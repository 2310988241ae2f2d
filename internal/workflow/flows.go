package workflow

import (
	"fmt"
	"strings"
)

// Flow names one external workflow.
type Flow string

const (
	FlowWelcoming  Flow = "welcoming"
	FlowReadyCheck Flow = "ready_check"
	FlowTopicInit  Flow = "topic_init"
	FlowSeparation Flow = "separation"
	FlowQuestion   Flow = "question"
	FlowAnswer     Flow = "answer"
	FlowReLesson   Flow = "re-lesson"
)

// AllFlows lists every flow in the order the learning dialogue uses them.
func AllFlows() []Flow {
	return []Flow{
		FlowWelcoming,
		FlowReadyCheck,
		FlowTopicInit,
		FlowSeparation,
		FlowQuestion,
		FlowAnswer,
		FlowReLesson,
	}
}

// Valid reports whether f is a known flow.
func (f Flow) Valid() bool {
	for _, known := range AllFlows() {
		if f == known {
			return true
		}
	}
	return false
}

// Keys maps each flow to its workflow API key. A flow with no key is served
// by its offline substitute.
type Keys map[Flow]string

// Missing returns the flows that have no key configured, in AllFlows order.
func (k Keys) Missing() []Flow {
	var missing []Flow
	for _, f := range AllFlows() {
		if strings.TrimSpace(k[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Validate fails when required is set and any flow lacks a key.
func (k Keys) Validate(required bool) error {
	if !required {
		return nil
	}
	missing := k.Missing()
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = string(f)
	}
	return fmt.Errorf("missing workflow keys for flows: %s", strings.Join(names, ", "))
}

package llmrouter

import (
	"github.com/invopop/jsonschema"

	"github.com/agentmesh/coordinator/provider"
)

// Range is an inclusive optional bound; a nil bound is unconstrained.
type Range struct {
	Min *int `yaml:"min,omitempty" json:"min,omitempty"`
	Max *int `yaml:"max,omitempty" json:"max,omitempty"`
}

func (r Range) matches(v int) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// Condition is the conjunctive match predicate for a Rule. Every set
// field must match; unset fields are unconstrained.
type Condition struct {
	TaskTypes    []provider.TaskType   `yaml:"taskTypes,omitempty" json:"taskTypes,omitempty"`
	Complexities []provider.Complexity `yaml:"complexities,omitempty" json:"complexities,omitempty"`
	ContextSize  *Range                `yaml:"contextSize,omitempty" json:"contextSize,omitempty"`
	Iteration    *Range                `yaml:"iteration,omitempty" json:"iteration,omitempty"`
	AgentRoles   []string              `yaml:"agentRoles,omitempty" json:"agentRoles,omitempty"`
}

func (c Condition) matches(tc provider.TaskCharacteristics) bool {
	if len(c.TaskTypes) > 0 && !containsTaskType(c.TaskTypes, tc.TaskType) {
		return false
	}
	if len(c.Complexities) > 0 && !containsComplexity(c.Complexities, tc.Complexity) {
		return false
	}
	if c.ContextSize != nil && !c.ContextSize.matches(tc.ContextSize) {
		return false
	}
	if c.Iteration != nil && !c.Iteration.matches(tc.Iteration) {
		return false
	}
	if len(c.AgentRoles) > 0 && !containsString(c.AgentRoles, tc.AgentRole) {
		return false
	}
	return true
}

func containsTaskType(s []provider.TaskType, v provider.TaskType) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsComplexity(s []provider.Complexity, v provider.Complexity) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Rule is one routing decision: if Condition matches and TargetProvider
// is healthy, it is selected; rules are evaluated in descending Priority
// order.
type Rule struct {
	Name           string    `yaml:"name" json:"name"`
	Condition      Condition `yaml:"condition" json:"condition"`
	TargetProvider string    `yaml:"targetProvider" json:"targetProvider"`
	Priority       int       `yaml:"priority" json:"priority"`
	Reason         string    `yaml:"reason" json:"reason"`
}

// RuleSetSchema returns the JSON Schema for a YAML-configured rule list,
// used to validate operator-authored routing configs before load.
func RuleSetSchema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{}
	return reflector.Reflect(&[]Rule{})
}

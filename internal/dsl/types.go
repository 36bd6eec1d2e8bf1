// Package dsl models the NoETL playbook document (DSL v2): parsing,
// struct-tag validation, and semantic (step-graph) validation.
package dsl

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// APIVersion is the only accepted apiVersion value.
const APIVersion = "noetl.io/v2"

// KindPlaybook is the only accepted top-level kind.
const KindPlaybook = "Playbook"

// ToolKind enumerates the closed set of tool invocation kinds.
type ToolKind string

const (
	ToolHTTP              ToolKind = "http"
	ToolPostgres          ToolKind = "postgres"
	ToolDuckDB            ToolKind = "duckdb"
	ToolDucklake          ToolKind = "ducklake"
	ToolPython            ToolKind = "python"
	ToolWorkbook          ToolKind = "workbook"
	ToolPlaybook          ToolKind = "playbook"
	ToolPlaybooks         ToolKind = "playbooks"
	ToolSecrets           ToolKind = "secrets"
	ToolIterator          ToolKind = "iterator"
	ToolContainer         ToolKind = "container"
	ToolScript            ToolKind = "script"
	ToolSnowflake         ToolKind = "snowflake"
	ToolTransfer          ToolKind = "transfer"
	ToolSnowflakeTransfer ToolKind = "snowflake_transfer"
	ToolGCS               ToolKind = "gcs"
	ToolGateway           ToolKind = "gateway"
	ToolNATS              ToolKind = "nats"
	ToolShell             ToolKind = "shell"
	ToolArtifact          ToolKind = "artifact"
	ToolNoop              ToolKind = "noop"
	ToolTaskSequence      ToolKind = "task_sequence"
	ToolRhai              ToolKind = "rhai"
)

// ValidToolKinds lists every accepted kind, used by the validator's
// oneof tag and by error messages.
var ValidToolKinds = []ToolKind{
	ToolHTTP, ToolPostgres, ToolDuckDB, ToolDucklake, ToolPython, ToolWorkbook,
	ToolPlaybook, ToolPlaybooks, ToolSecrets, ToolIterator, ToolContainer,
	ToolScript, ToolSnowflake, ToolTransfer, ToolSnowflakeTransfer, ToolGCS,
	ToolGateway, ToolNATS, ToolShell, ToolArtifact, ToolNoop, ToolTaskSequence,
	ToolRhai,
}

// IsValidToolKind reports whether k is one of the closed set above.
func IsValidToolKind(k ToolKind) bool {
	for _, v := range ValidToolKinds {
		if v == k {
			return true
		}
	}
	return false
}

// RetrySpec controls the exponential backoff the worker applies around
// a tool task's execute call (§4.3). Zero values are replaced with the
// documented defaults by Normalize.
type RetrySpec struct {
	MaxRetries        int     `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	InitialDelayMs    int     `yaml:"initial_delay_ms" json:"initial_delay_ms" validate:"gte=0"`
	MaxDelayMs        int     `yaml:"max_delay_ms" json:"max_delay_ms" validate:"gte=0"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" validate:"gte=0"`
}

// Normalize fills zero fields with the spec's documented defaults
// (3 / 500ms / 10000ms / 2.0).
func (r *RetrySpec) Normalize() {
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.InitialDelayMs == 0 {
		r.InitialDelayMs = 500
	}
	if r.MaxDelayMs == 0 {
		r.MaxDelayMs = 10000
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// AuthSpec carries tool-level auth configuration; its body is
// tool-specific and left as a raw map, rendered by the template engine
// at dispatch time.
type AuthSpec struct {
	CredentialName string         `yaml:"credential,omitempty" json:"credential,omitempty"`
	Extra          map[string]any `yaml:",inline" json:"extra,omitempty"`
}

// ToolInvocation is a single tool call: a kind plus its kind-specific
// body, optional timeout/retry/auth.
type ToolInvocation struct {
	Kind    ToolKind       `yaml:"kind" json:"kind" validate:"required"`
	Timeout int            `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retry   *RetrySpec      `yaml:"retry,omitempty" json:"retry,omitempty"`
	Auth    *AuthSpec       `yaml:"auth,omitempty" json:"auth,omitempty"`
	Body    map[string]any `yaml:",inline" json:"body,omitempty"`
}

// TaskSpec is one labeled task inside a pipeline tool. Eval holds an
// optional per-task flow-control expression (continue/break/return/fail).
type TaskSpec struct {
	Label          string `yaml:"label" json:"label" validate:"required"`
	ToolInvocation `yaml:",inline"`
	Eval           string `yaml:"eval,omitempty" json:"eval,omitempty"`
}

// ToolSpec is the step's polymorphic tool field: either a single
// invocation or an ordered pipeline of labeled tasks. Modeled as a
// tagged sum at parse time (§9 Dynamic payloads), not a free-form map.
type ToolSpec struct {
	Single   *ToolInvocation
	Pipeline []TaskSpec
}

// IsPipeline reports whether this ToolSpec holds an ordered task list.
func (t ToolSpec) IsPipeline() bool { return t.Pipeline != nil }

// UnmarshalYAML decides between a single tool mapping and a pipeline
// sequence based on the node kind.
func (t *ToolSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var tasks []TaskSpec
		if err := value.Decode(&tasks); err != nil {
			return err
		}
		t.Pipeline = tasks
		t.Single = nil
		return nil
	default:
		var single ToolInvocation
		if err := value.Decode(&single); err != nil {
			return err
		}
		t.Single = &single
		t.Pipeline = nil
		return nil
	}
}

// MarshalYAML renders the held variant.
func (t ToolSpec) MarshalYAML() (any, error) {
	if t.IsPipeline() {
		return t.Pipeline, nil
	}
	return t.Single, nil
}

// UnmarshalJSON mirrors UnmarshalYAML: an array decodes as a pipeline,
// anything else as a single invocation. Needed so a ToolSpec can round
// trip through the command-fetch endpoint's JSON wire format.
func (t *ToolSpec) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var tasks []TaskSpec
		if err := json.Unmarshal(data, &tasks); err != nil {
			return err
		}
		t.Pipeline = tasks
		t.Single = nil
		return nil
	}
	var single ToolInvocation
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	t.Single = &single
	t.Pipeline = nil
	return nil
}

// MarshalJSON renders the held variant.
func (t ToolSpec) MarshalJSON() ([]byte, error) {
	if t.IsPipeline() {
		return json.Marshal(t.Pipeline)
	}
	return json.Marshal(t.Single)
}

// Target is one entry of a NextSpec.Targets list: a successor step
// name with an optional conditional guard.
type Target struct {
	Step string `yaml:"step" json:"step" validate:"required"`
	When string `yaml:"when,omitempty" json:"when,omitempty"`
}

// NextSpec is the step's polymorphic next field: a single name, a
// list of names (fan-out), or a list of typed, conditionally-guarded
// targets.
type NextSpec struct {
	SingleName string
	Names      []string
	Targets    []Target
}

// Kind reports which variant is populated.
func (n NextSpec) Kind() string {
	switch {
	case len(n.Targets) > 0:
		return "targets"
	case len(n.Names) > 0:
		return "list"
	case n.SingleName != "":
		return "single"
	default:
		return "empty"
	}
}

// UnmarshalYAML decides between a bare scalar, a list of names, and a
// list of {step, when} mappings.
func (n *NextSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		n.SingleName = s
		return nil
	case yaml.SequenceNode:
		if len(value.Content) == 0 {
			return nil
		}
		if value.Content[0].Kind == yaml.ScalarNode {
			var names []string
			if err := value.Decode(&names); err != nil {
				return err
			}
			n.Names = names
			return nil
		}
		var targets []Target
		if err := value.Decode(&targets); err != nil {
			return err
		}
		n.Targets = targets
		return nil
	}
	return nil
}

// MarshalYAML renders the held variant.
func (n NextSpec) MarshalYAML() (any, error) {
	switch n.Kind() {
	case "targets":
		return n.Targets, nil
	case "list":
		return n.Names, nil
	case "single":
		return n.SingleName, nil
	default:
		return nil, nil
	}
}

// ActionSpec is one entry in a case's then list. Exactly one of the
// fields below is populated, matching the action name present in the
// source document (set_var/exit/goto/retry/fail/continue).
type ActionSpec struct {
	SetVar   *SetVarAction `yaml:"set_var,omitempty" json:"set_var,omitempty"`
	Exit     *ExitAction   `yaml:"exit,omitempty" json:"exit,omitempty"`
	Goto     *GotoAction   `yaml:"goto,omitempty" json:"goto,omitempty"`
	Next     *NextAction   `yaml:"next,omitempty" json:"next,omitempty"`
	Retry    *RetryAction  `yaml:"retry,omitempty" json:"retry,omitempty"`
	Fail     *FailAction   `yaml:"fail,omitempty" json:"fail,omitempty"`
	Continue bool          `yaml:"continue,omitempty" json:"continue,omitempty"`
}

// SetVarAction appends var.set(name, rendered value).
type SetVarAction struct {
	Name  string `yaml:"name" json:"name" validate:"required"`
	Value string `yaml:"value" json:"value"`
}

// ExitAction appends step.exit(step, status, rendered data) and stops
// case evaluation.
type ExitAction struct {
	Status string `yaml:"status" json:"status" validate:"required"`
	Data   string `yaml:"data,omitempty" json:"data,omitempty"`
}

// GotoAction emits step.exit(SUCCEEDED) naming the target step,
// bypassing the next list.
type GotoAction struct {
	Step string `yaml:"step" json:"step" validate:"required"`
}

// NextAction is the original_source-compatible alternate spelling for
// goto (`{next: {step: name}}`), retained for document compatibility.
type NextAction struct {
	Step string `yaml:"step" json:"step" validate:"required"`
}

// RetryAction re-issues the same command; the orchestrator enforces
// MaxAttempts.
type RetryAction struct {
	MaxAttempts int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
}

// FailAction appends call.error(message) and command.failed.
type FailAction struct {
	Message string `yaml:"message" json:"message" validate:"required"`
}

// CaseEntry is one `case` block: a when guard plus the actions to
// take on its first match.
type CaseEntry struct {
	When string       `yaml:"when" json:"when" validate:"required"`
	Then []ActionSpec `yaml:"then" json:"then" validate:"required,min=1"`
}

// LoopMode is the declared iteration mode of a LoopSpec.
type LoopMode string

const (
	LoopSequential LoopMode = "sequential"
	LoopParallel   LoopMode = "parallel"
	LoopReduce     LoopMode = "reduce"
)

// LoopSpec is parsed and validated as part of a step. Nothing outside
// this package reads it: the orchestrator dispatches a step with a loop
// as one command, Over is not evaluated, and no mode (reduce included)
// combines iteration results.
type LoopSpec struct {
	Mode LoopMode `yaml:"mode" json:"mode" validate:"required,oneof=sequential parallel reduce"`
	Over string   `yaml:"over" json:"over" validate:"required"`
	As   string   `yaml:"as,omitempty" json:"as,omitempty"`
}

// Step is a named node in the workflow graph.
type Step struct {
	Step string     `yaml:"step" json:"step" validate:"required"`
	Tool ToolSpec   `yaml:"tool" json:"tool"`
	When string     `yaml:"when,omitempty" json:"when,omitempty"`
	Next *NextSpec  `yaml:"next,omitempty" json:"next,omitempty"`
	Loop *LoopSpec  `yaml:"loop,omitempty" json:"loop,omitempty"`
	Case []CaseEntry `yaml:"case,omitempty" json:"case,omitempty"`
}

// Metadata carries the document's descriptive fields.
type Metadata struct {
	Name        string            `yaml:"name" json:"name" validate:"required"`
	Path        string            `yaml:"path,omitempty" json:"path,omitempty"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Playbook is the top-level DSL v2 document.
type Playbook struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion" validate:"required"`
	Kind       string   `yaml:"kind" json:"kind" validate:"required"`
	Metadata   Metadata `yaml:"metadata" json:"metadata" validate:"required"`
	Workflow   []Step   `yaml:"workflow" json:"workflow" validate:"required,min=1,dive"`
}

// HasStartStep reports whether the workflow contains a step literally
// named "start".
func (p *Playbook) HasStartStep() bool {
	for _, s := range p.Workflow {
		if s.Step == "start" {
			return true
		}
	}
	return false
}

// StepNames returns the set of step names declared in the workflow.
func (p *Playbook) StepNames() map[string]struct{} {
	out := make(map[string]struct{}, len(p.Workflow))
	for _, s := range p.Workflow {
		out[s.Step] = struct{}{}
	}
	return out
}

// StepByName looks up a step by name.
func (p *Playbook) StepByName(name string) (Step, bool) {
	for _, s := range p.Workflow {
		if s.Step == name {
			return s, true
		}
	}
	return Step{}, false
}

// Package guard keeps ranking and recommendation semantics out of map data
// and out of UI copy.
//
// Both lists live in the embedded policy.yaml and are versioned with the
// binary; they are not part of the runtime configuration.
package guard

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

var defaultPolicy = mustLoad(policyYAML)

// Term is one forbidden UI word or phrase tagged with its language.
type Term struct {
	Term string `yaml:"term" json:"term"`
	Lang string `yaml:"lang" json:"lang"`
}

// Policy holds the forbidden node fields and UI terms.
type Policy struct {
	Version    int      `yaml:"version" json:"version"`
	NodeFields []string `yaml:"node_fields" json:"node_fields"`
	UITerms    []Term   `yaml:"ui_terms" json:"ui_terms"`

	folded []string
}

// Record is a node-like record that can report its own key set.
type Record interface {
	Keys() []string
}

type identified interface {
	RecordID() string
}

// Fields is a raw record, typically a decoded JSON object.
type Fields map[string]any

// Keys returns the record keys.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	return keys
}

// RecordID returns the "id" value when it is a string.
func (f Fields) RecordID() string {
	id, _ := f["id"].(string)
	return id
}

// Step is one onboarding step; T is the text shown to the user.
type Step struct {
	ID string `json:"id"`
	T  string `json:"t"`
}

// Load parses a policy table.
func Load(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("guard: parse policy: %w", err)
	}
	if p.Version <= 0 {
		return nil, fmt.Errorf("guard: policy version must be positive")
	}
	if len(p.NodeFields) == 0 || len(p.UITerms) == 0 {
		return nil, fmt.Errorf("guard: policy lists must not be empty")
	}
	p.folded = make([]string, len(p.UITerms))
	for i, t := range p.UITerms {
		f := fold(t.Term)
		if strings.TrimSpace(f) == "" {
			return nil, fmt.Errorf("guard: empty term at position %d", i)
		}
		p.folded[i] = f
	}
	return &p, nil
}

func mustLoad(data []byte) *Policy {
	p, err := Load(data)
	if err != nil {
		panic(err)
	}
	return p
}

// Default returns the built-in policy.
func Default() *Policy {
	return defaultPolicy
}

// CheckNode fails when the record has any forbidden key, whatever its value.
func (p *Policy) CheckNode(n Record) error {
	return p.checkNode(n, -1)
}

// CheckNodes checks every record and stops at the first violation.
// A nil or empty slice passes.
func (p *Policy) CheckNodes(nodes []Record) error {
	for i, n := range nodes {
		if err := p.checkNode(n, i); err != nil {
			return err
		}
	}
	return nil
}

func (p *Policy) checkNode(n Record, index int) error {
	if n == nil {
		return nil
	}
	keys := n.Keys()
	present := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		present[k] = struct{}{}
	}
	for _, f := range p.NodeFields {
		if _, ok := present[f]; ok {
			e := &ForbiddenFieldError{Field: f, Index: index}
			if id, ok := n.(identified); ok {
				e.NodeID = id.RecordID()
			}
			return e
		}
	}
	return nil
}

// CheckUIText fails when the case-folded text contains any forbidden term.
func (p *Policy) CheckUIText(text string) error {
	return p.checkText(text, -1)
}

// CheckValue is CheckUIText for untyped input; anything that is not a
// string is treated as empty text.
func (p *Policy) CheckValue(v any) error {
	s, _ := v.(string)
	return p.checkText(s, -1)
}

// CheckOnboarding checks the text of every step. A nil or empty slice passes.
func (p *Policy) CheckOnboarding(steps []Step) error {
	for i, s := range steps {
		if err := p.checkText(s.T, i); err != nil {
			return err
		}
	}
	return nil
}

func (p *Policy) checkText(text string, step int) error {
	if text == "" {
		return nil
	}
	low := fold(text)
	for i, term := range p.folded {
		if strings.Contains(low, term) {
			return &SystemVoiceError{Term: p.UITerms[i].Term, Lang: p.UITerms[i].Lang, Step: step}
		}
	}
	return nil
}

// fold lower-cases s after NFC normalisation so that composed and decomposed
// Cyrillic spell the same.
func fold(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}

// CheckNode checks a record against the default policy.
func CheckNode(n Record) error {
	return defaultPolicy.CheckNode(n)
}

// CheckNodes checks a slice of records against the default policy.
func CheckNodes[R Record](nodes []R) error {
	for i, n := range nodes {
		if err := defaultPolicy.checkNode(n, i); err != nil {
			return err
		}
	}
	return nil
}

// CheckUIText checks text against the default policy.
func CheckUIText(text string) error {
	return defaultPolicy.CheckUIText(text)
}

// CheckValue checks untyped input against the default policy.
func CheckValue(v any) error {
	return defaultPolicy.CheckValue(v)
}

// CheckOnboarding checks onboarding steps against the default policy.
func CheckOnboarding(steps []Step) error {
	return defaultPolicy.CheckOnboarding(steps)
}

// Package rules loads the classification rule set and case workflow from YAML.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/pqrs-service/internal/classifier"
	"github.com/spec-kit/pqrs-service/internal/domain"
)

//go:embed default_rules.yaml
var defaultRules []byte

// File mirrors the YAML document.
type File struct {
	Classification ClassificationSection `yaml:"classification"`
	Workflow       WorkflowSection       `yaml:"workflow"`
}

// ClassificationSection lists categories in evaluation order.
type ClassificationSection struct {
	Default    string            `yaml:"default"`
	Categories []CategorySection `yaml:"categories"`
}

// CategorySection is one category and its keywords.
type CategorySection struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// WorkflowSection declares states and allowed transitions.
type WorkflowSection struct {
	Initial     string              `yaml:"initial"`
	Resolved    string              `yaml:"resolved"`
	States      []string            `yaml:"states"`
	Transitions map[string][]string `yaml:"transitions"`
}

// Load reads path, or the embedded defaults when path is empty.
func Load(path string) (*File, error) {
	data := defaultRules
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules file: %w", err)
		}
		data = raw
	}
	return Parse(data)
}

// Parse decodes and validates a rules document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	seen := make(map[string]struct{}, len(f.Classification.Categories))
	for i, cat := range f.Classification.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return fmt.Errorf("classification category %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("classification category %q declared twice", name)
		}
		seen[name] = struct{}{}
	}

	wf := f.Workflow
	if len(wf.States) == 0 {
		if len(wf.Transitions) > 0 {
			return errors.New("workflow transitions require a states list")
		}
		return nil
	}
	known := make(map[string]struct{}, len(wf.States))
	for _, s := range wf.States {
		known[s] = struct{}{}
	}
	for _, s := range []string{wf.Initial, wf.Resolved} {
		if s == "" {
			continue
		}
		if _, ok := known[s]; !ok {
			return fmt.Errorf("workflow state %q is not listed in states", s)
		}
	}
	for from, targets := range wf.Transitions {
		if _, ok := known[from]; !ok {
			return fmt.Errorf("workflow transition from unknown state %q", from)
		}
		for _, to := range targets {
			if _, ok := known[to]; !ok {
				return fmt.Errorf("workflow transition %q -> unknown state %q", from, to)
			}
		}
	}
	return nil
}

// RuleSet converts the classification section for the classifier.
func (f *File) RuleSet() classifier.RuleSet {
	rs := classifier.RuleSet{Default: f.Classification.Default}
	for _, cat := range f.Classification.Categories {
		rs.Categories = append(rs.Categories, classifier.Category{
			Name:     strings.TrimSpace(cat.Name),
			Keywords: append([]string(nil), cat.Keywords...),
		})
	}
	return rs
}

// CaseWorkflow converts the workflow section, falling back to the default workflow values.
func (f *File) CaseWorkflow() domain.Workflow {
	wf := domain.DefaultWorkflow()
	if f.Workflow.Initial != "" {
		wf.Initial = domain.CaseState(f.Workflow.Initial)
	}
	if f.Workflow.Resolved != "" {
		wf.Resolved = domain.CaseState(f.Workflow.Resolved)
	}
	if len(f.Workflow.States) > 0 {
		wf.States = make([]domain.CaseState, 0, len(f.Workflow.States))
		for _, s := range f.Workflow.States {
			wf.States = append(wf.States, domain.CaseState(s))
		}
	}
	if len(f.Workflow.Transitions) > 0 {
		wf.Transitions = make(map[domain.CaseState][]domain.CaseState, len(f.Workflow.Transitions))
		for from, targets := range f.Workflow.Transitions {
			next := make([]domain.CaseState, 0, len(targets))
			for _, to := range targets {
				next = append(next, domain.CaseState(to))
			}
			wf.Transitions[domain.CaseState(from)] = next
		}
	}
	return wf
}

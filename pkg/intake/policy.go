package intake

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// AdmissionPolicy evaluates CEL rules against a submission before any
// content is accepted. All rules must evaluate to true; evaluation is
// fail-closed.
type AdmissionPolicy struct {
	env   *cel.Env
	rules []string

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewAdmissionPolicy compiles the rule set. Each rule sees a `submission`
// map with case_id, submitter_id, evidence_type, tier and filename fields.
func NewAdmissionPolicy(rules []string) (*AdmissionPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("submission", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create policy environment: %w", err)
	}
	p := &AdmissionPolicy{
		env:      env,
		rules:    rules,
		programs: make(map[string]cel.Program),
	}
	// Compile eagerly so bad rules fail at startup, not at intake time.
	for _, rule := range rules {
		if _, err := p.program(rule); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *AdmissionPolicy) program(rule string) (cel.Program, error) {
	p.mu.RLock()
	prg, ok := p.programs[rule]
	p.mu.RUnlock()
	if ok {
		return prg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prg, ok := p.programs[rule]; ok {
		return prg, nil
	}
	ast, issues := p.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile admission rule %q: %w", rule, issues.Err())
	}
	prg, err := p.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build admission rule %q: %w", rule, err)
	}
	p.programs[rule] = prg
	return prg, nil
}

// Evaluate checks every rule against the submission. The first rule that
// does not hold produces a *PolicyDeniedError.
func (p *AdmissionPolicy) Evaluate(submission map[string]interface{}) error {
	input := map[string]interface{}{"submission": submission}
	for _, rule := range p.rules {
		prg, err := p.program(rule)
		if err != nil {
			return err
		}
		out, _, err := prg.Eval(input)
		if err != nil {
			return fmt.Errorf("evaluate admission rule %q: %w", rule, err)
		}
		allowed, ok := out.Value().(bool)
		if !ok {
			return fmt.Errorf("admission rule %q is not boolean", rule)
		}
		if !allowed {
			return &PolicyDeniedError{Rule: rule}
		}
	}
	return nil
}

// Package validation checks a site topology end to end:
//   - planning: reference, grant and behaviour rules (internal/plan)
//   - synthesis: the CloudFormation template renders (internal/template)
//   - cfn-lint-go: the rendered template passes CloudFormation linting
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lex00/cfn-lint-go/pkg/lint"

	wetwire "github.com/lex00/wetwire-site-go"
	"github.com/lex00/wetwire-site-go/internal/plan"
	"github.com/lex00/wetwire-site-go/internal/template"
	"github.com/lex00/wetwire-site-go/resource"
)

// CfnLintResult contains the result of running cfn-lint.
type CfnLintResult struct {
	Passed        bool     `json:"passed"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Informational []string `json:"informational"`
}

// TotalIssues returns the total number of issues found.
func (r CfnLintResult) TotalIssues() int {
	return len(r.Errors) + len(r.Warnings) + len(r.Informational)
}

// Result contains all validation results for a topology.
type Result struct {
	Resources     int            `json:"resources"`
	PlanErrors    []string       `json:"plan_errors,omitempty"`
	CfnLintResult *CfnLintResult `json:"cfn_lint_result,omitempty"`
}

// Passed reports whether planning succeeded and cfn-lint found no errors.
func (r *Result) Passed() bool {
	return len(r.PlanErrors) == 0 && r.CfnLintResult != nil && r.CfnLintResult.Passed
}

// Contract converts the result to the CLI JSON contract.
func (r *Result) Contract() wetwire.ValidateResult {
	out := wetwire.ValidateResult{
		Success:   r.Passed(),
		Resources: r.Resources,
		Errors:    append([]string(nil), r.PlanErrors...),
	}
	if r.CfnLintResult != nil {
		out.Errors = append(out.Errors, r.CfnLintResult.Errors...)
		out.Warnings = append(out.Warnings, r.CfnLintResult.Warnings...)
	}
	return out
}

// Validate plans descs, synthesises the template into workDir and lints it.
// A planning failure is reported in the result, not as an error; errors are
// reserved for I/O problems.
func Validate(descs []resource.Descriptor, workDir string) (*Result, error) {
	result := &Result{Resources: len(descs)}

	p, err := plan.Build(descs)
	if err != nil {
		result.PlanErrors = []string{err.Error()}
		return result, nil
	}

	tmpl, err := template.NewBuilder(p).Build()
	if err != nil {
		result.PlanErrors = []string{err.Error()}
		return result, nil
	}
	result.Resources = len(tmpl.Resources)

	path, err := WriteTemplate(tmpl, workDir)
	if err != nil {
		return nil, err
	}
	cfn, err := RunCfnLint(path)
	if err != nil {
		return nil, fmt.Errorf("running cfn-lint: %w", err)
	}
	result.CfnLintResult = cfn
	return result, nil
}

// WriteTemplate renders tmpl as YAML into dir and returns the file path.
func WriteTemplate(tmpl *wetwire.Template, dir string) (string, error) {
	data, err := template.ToYAML(tmpl)
	if err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	path := filepath.Join(dir, "template.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing template: %w", err)
	}
	return path, nil
}

// RunCfnLint runs cfn-lint-go on the given template file.
func RunCfnLint(templatePath string) (*CfnLintResult, error) {
	if _, err := os.Stat(templatePath); err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Template file not found: %s", templatePath)},
		}, nil
	}

	linter := lint.New(lint.Options{})
	matches, err := linter.LintFile(templatePath)
	if err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Linter error: %v", err)},
		}, nil
	}

	result := &CfnLintResult{
		Errors:        []string{},
		Warnings:      []string{},
		Informational: []string{},
	}

	for _, match := range matches {
		formatted := formatMatch(match)

		switch match.Level {
		case "Error":
			result.Errors = append(result.Errors, formatted)
		case "Warning":
			result.Warnings = append(result.Warnings, formatted)
		default:
			result.Informational = append(result.Informational, formatted)
		}
	}

	// Warnings are acceptable.
	result.Passed = len(result.Errors) == 0

	return result, nil
}

// formatMatch formats a cfn-lint-go match for display.
func formatMatch(match lint.Match) string {
	pathStr := ""
	if len(match.Location.Path) > 0 {
		parts := make([]string, len(match.Location.Path))
		for i, p := range match.Location.Path {
			parts[i] = fmt.Sprintf("%v", p)
		}
		pathStr = strings.Join(parts, "/")
	}

	if pathStr != "" {
		return fmt.Sprintf("%s: %s (at %s)", match.Rule.ID, match.Message, pathStr)
	}
	return fmt.Sprintf("%s: %s", match.Rule.ID, match.Message)
}

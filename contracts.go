// Package wetwire_site provides the JSON contracts of the wetwire-site CLI.
//
// A site stack is a private bucket served through a CDN distribution whose
// origin access identity is the only principal allowed to read it:
//
//	SiteBucket ──▶ SiteBucketPolicy ◀── SiteIdentity
//	     │                │                  │
//	     └────────▶ SiteDistribution ◀───────┘
//
// The CLI plans the stack, synthesises it as a CloudFormation template and
// can run it end to end against an in-process platform. Its --format json
// output uses the types below.
package wetwire_site

// Template represents a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string                 `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string                 `json:"Description,omitempty" yaml:"Description,omitempty"`
	Resources                map[string]ResourceDef `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output      `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// ResourceDef is a single resource in the CloudFormation template.
type ResourceDef struct {
	Type                string         `json:"Type" yaml:"Type"`
	Properties          map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn           []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	DeletionPolicy      string         `json:"DeletionPolicy,omitempty" yaml:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy string         `json:"UpdateReplacePolicy,omitempty" yaml:"UpdateReplacePolicy,omitempty"`
}

// Output is a CloudFormation template output.
type Output struct {
	Description string  `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any     `json:"Value" yaml:"Value"`
	Export      *Export `json:"Export,omitempty" yaml:"Export,omitempty"`
}

// Export names an output for cross-stack imports.
type Export struct {
	Name any `json:"Name" yaml:"Name"`
}

// PlanResult is the JSON output from `wetwire-site plan`.
type PlanResult struct {
	Success bool       `json:"success"`
	Stack   string     `json:"stack"`
	Order   []string   `json:"order,omitempty"`
	Edges   []PlanEdge `json:"edges,omitempty"`
	Errors  []string   `json:"errors,omitempty"`
}

// PlanEdge is a dependency: From must exist before To.
type PlanEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ApplyResult is the JSON output of the apply phase of `wetwire-site serve`.
type ApplyResult struct {
	Success     bool         `json:"success"`
	State       string       `json:"state"`
	LastApplied string       `json:"lastApplied,omitempty"`
	Created     []string     `json:"created,omitempty"`
	Outputs     *SiteOutputs `json:"outputs,omitempty"`
	Failure     *Failure     `json:"failure,omitempty"`
}

// DestroyResult is the JSON output of the teardown phase of `wetwire-site serve`.
type DestroyResult struct {
	Success  bool      `json:"success"`
	State    string    `json:"state"`
	Deleted  []string  `json:"deleted,omitempty"`
	Retained []string  `json:"retained,omitempty"`
	Failures []Failure `json:"failures,omitempty"`
}

// Failure names the resource an operation stopped at.
type Failure struct {
	Resource string `json:"resource,omitempty"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// ValidateResult is the JSON output from `wetwire-site validate`.
type ValidateResult struct {
	Success   bool     `json:"success"`
	Resources int      `json:"resources"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// SiteOutputs are the identifiers an applied stack exposes.
type SiteOutputs struct {
	BucketID             string `json:"bucketId"`
	DistributionID       string `json:"distributionId"`
	DistributionEndpoint string `json:"distributionEndpoint"`
	PrincipalRef         string `json:"principalRef"`
}

// DiffResult is the JSON output from `wetwire-site diff`.
type DiffResult struct {
	Added    []DiffEntry `json:"added,omitempty"`
	Removed  []DiffEntry `json:"removed,omitempty"`
	Modified []DiffEntry `json:"modified,omitempty"`
	Summary  DiffSummary `json:"summary"`
}

// DiffEntry is a resource present in only one template, or changed between them.
type DiffEntry struct {
	Resource    string   `json:"resource"`
	Type        string   `json:"type"`
	Changes     []string `json:"changes,omitempty"`
	Replacement bool     `json:"replacement,omitempty"`
}

// DiffSummary counts the entries of a DiffResult.
type DiffSummary struct {
	Added        int `json:"added"`
	Removed      int `json:"removed"`
	Modified     int `json:"modified"`
	Replacements int `json:"replacements"`
	Total        int `json:"total"`
}

// OptimizeResult is the JSON output from `wetwire-site optimize`.
type OptimizeResult struct {
	Suggestions []OptimizeSuggestion `json:"suggestions"`
	Summary     OptimizeSummary      `json:"summary"`
}

// OptimizeSuggestion is one improvement for a planned resource.
type OptimizeSuggestion struct {
	Rule        string `json:"rule"`
	Resource    string `json:"resource"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// OptimizeSummary counts suggestions by category.
type OptimizeSummary struct {
	Security    int `json:"security"`
	Performance int `json:"performance"`
	Reliability int `json:"reliability"`
	Total       int `json:"total"`
}

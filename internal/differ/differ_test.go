package differ

import (
	"os"
	"path/filepath"
	"testing"

	wetwire "github.com/lex00/wetwire-site-go"
	"github.com/lex00/wetwire-site-go/internal/config"
	"github.com/lex00/wetwire-site-go/internal/plan"
	"github.com/lex00/wetwire-site-go/internal/template"
	"github.com/lex00/wetwire-site-go/internal/topology"
)

func synth(t *testing.T, mutate func(*config.Config)) *wetwire.Template {
	t.Helper()
	c := &config.Config{
		Stack: "site",
		S3: config.S3{
			BucketName:    "site-assets",
			IndexDocument: "index.html",
			ErrorDocument: "index.html",
			RemovalPolicy: "destroy",
		},
		Distribution: config.Distribution{
			PriceClass:           "PriceClass_100",
			ViewerProtocolPolicy: "redirect-to-https",
			AllowedMethods:       []string{"GET", "HEAD"},
			ErrorResponses: []config.ErrorResponse{
				{Code: 403, Status: 200, Path: "/index.html"},
				{Code: 404, Status: 200, Path: "/index.html"},
			},
		},
	}
	if mutate != nil {
		mutate(c)
	}
	descs, err := topology.Build(c)
	if err != nil {
		t.Fatalf("topology.Build() error = %v", err)
	}
	p, err := plan.Build(descs)
	if err != nil {
		t.Fatalf("plan.Build() error = %v", err)
	}
	tmpl, err := template.NewBuilder(p).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return tmpl
}

func TestCompare(t *testing.T) {
	t1 := &wetwire.Template{
		Resources: map[string]wetwire.ResourceDef{
			"Bucket1": {Type: "AWS::S3::Bucket", Properties: map[string]any{"BucketName": "bucket1"}},
			"Bucket2": {Type: "AWS::S3::Bucket", Properties: map[string]any{"BucketName": "bucket2"}},
		},
	}

	t2 := &wetwire.Template{
		Resources: map[string]wetwire.ResourceDef{
			"Bucket1": {Type: "AWS::S3::Bucket", Properties: map[string]any{"BucketName": "bucket1-modified"}},
			"Bucket3": {Type: "AWS::S3::Bucket", Properties: map[string]any{"BucketName": "bucket3"}},
		},
	}

	result, err := Compare(t1, t2)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if len(result.Removed) != 1 {
		t.Errorf("Removed = %d, want 1", len(result.Removed))
	} else if result.Removed[0].Resource != "Bucket2" {
		t.Errorf("Removed[0].Resource = %s, want Bucket2", result.Removed[0].Resource)
	}

	if len(result.Added) != 1 {
		t.Errorf("Added = %d, want 1", len(result.Added))
	} else if result.Added[0].Resource != "Bucket3" {
		t.Errorf("Added[0].Resource = %s, want Bucket3", result.Added[0].Resource)
	}

	if len(result.Modified) != 1 {
		t.Errorf("Modified = %d, want 1", len(result.Modified))
	} else if !result.Modified[0].Replacement {
		t.Error("renaming a bucket should require replacement")
	}

	if result.Summary.Total != 3 {
		t.Errorf("Summary.Total = %d, want 3", result.Summary.Total)
	}
	if result.Summary.Replacements != 1 {
		t.Errorf("Summary.Replacements = %d, want 1", result.Summary.Replacements)
	}
}

func TestCompareIdentical(t *testing.T) {
	tmpl := synth(t, nil)

	result, err := Compare(tmpl, tmpl)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if result.Summary.Total != 0 {
		t.Errorf("Summary.Total = %d, want 0 for identical templates", result.Summary.Total)
	}
}

func TestCompareTypeChange(t *testing.T) {
	t1 := &wetwire.Template{Resources: map[string]wetwire.ResourceDef{"Resource1": {Type: "AWS::S3::Bucket"}}}
	t2 := &wetwire.Template{Resources: map[string]wetwire.ResourceDef{"Resource1": {Type: "AWS::S3::AccessPoint"}}}

	result, err := Compare(t1, t2)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(result.Modified) != 1 {
		t.Fatalf("Modified = %d, want 1", len(result.Modified))
	}
	if got := result.Modified[0].Changes[0]; got != "Type changed: AWS::S3::Bucket -> AWS::S3::AccessPoint" {
		t.Errorf("Changes[0] = %q", got)
	}
	if !result.Modified[0].Replacement {
		t.Error("type change should require replacement")
	}
}

func TestCompareSiteChanges(t *testing.T) {
	tests := []struct {
		name            string
		mutate          func(*config.Config)
		wantModified    []string
		wantAdded       []string
		wantReplacement bool
	}{
		{
			name:            "bucket rename",
			mutate:          func(c *config.Config) { c.S3.BucketName = "site-assets-v2" },
			wantModified:    []string{"SiteBucket", "SiteIdentity"},
			wantReplacement: true,
		},
		{
			name:         "price class",
			mutate:       func(c *config.Config) { c.Distribution.PriceClass = "PriceClass_All" },
			wantModified: []string{"SiteDistribution"},
		},
		{
			name:         "retain bucket",
			mutate:       func(c *config.Config) { c.S3.RemovalPolicy = "retain" },
			wantModified: []string{"SiteBucket"},
		},
		{
			name:         "upload trigger",
			mutate:       func(c *config.Config) { c.Trigger.Handler = "thumbnailer" },
			wantModified: []string{"SiteBucket"},
			wantAdded:    []string{"SiteUploadTrigger", "SiteUploadTriggerPermission"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Compare(synth(t, nil), synth(t, tt.mutate))
			if err != nil {
				t.Fatalf("Compare() error = %v", err)
			}
			if got := names(result.Modified); !equal(got, tt.wantModified) {
				t.Errorf("Modified = %v, want %v", got, tt.wantModified)
			}
			if got := names(result.Added); !equal(got, tt.wantAdded) {
				t.Errorf("Added = %v, want %v", got, tt.wantAdded)
			}
			if got := result.Summary.Replacements > 0; got != tt.wantReplacement {
				t.Errorf("Replacements = %d, want replacement %v", result.Summary.Replacements, tt.wantReplacement)
			}
		})
	}
}

func TestLoadTemplate_YAML(t *testing.T) {
	tmpl := synth(t, nil)
	data, err := template.ToYAML(tmpl)
	if err != nil {
		t.Fatalf("ToYAML() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "deployed.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate() error = %v", err)
	}
	result, err := Compare(loaded, tmpl)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if result.Summary.Total != 0 {
		t.Errorf("Summary.Total = %d, want 0: %+v", result.Summary.Total, result.Modified)
	}
}

func TestLoadTemplate_Errors(t *testing.T) {
	dir := t.TempDir()
	noResources := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(noResources, []byte(`{"AWSTemplateFormatVersion": "2010-09-09"}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadTemplate(filepath.Join(dir, "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadTemplate(noResources); err == nil {
		t.Error("expected error for template without resources")
	}
}

func names(entries []wetwire.DiffEntry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Resource)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

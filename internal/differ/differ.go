// Package differ compares a deployed site template with a freshly
// synthesised one.
package differ

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	wetwire "github.com/lex00/wetwire-site-go"
)

// replacementProperties lists, per resource type, the properties whose
// change makes CloudFormation replace the resource instead of updating it.
var replacementProperties = map[string]map[string]bool{
	"AWS::S3::Bucket":       {"BucketName": true},
	"AWS::S3::BucketPolicy": {"Bucket": true},
	"AWS::Events::Rule":     {"Name": true},
	"AWS::Lambda::Permission": {
		"Action":       true,
		"FunctionName": true,
		"Principal":    true,
		"SourceArn":    true,
	},
}

// Compare reports the resources that would be added, removed or modified if
// deployed were updated to desired.
func Compare(deployed, desired *wetwire.Template) (wetwire.DiffResult, error) {
	var result wetwire.DiffResult

	from, err := normalize(deployed)
	if err != nil {
		return result, fmt.Errorf("deployed template: %w", err)
	}
	to, err := normalize(desired)
	if err != nil {
		return result, fmt.Errorf("desired template: %w", err)
	}

	for name, def := range to.Resources {
		if _, exists := from.Resources[name]; !exists {
			result.Added = append(result.Added, wetwire.DiffEntry{Resource: name, Type: def.Type})
		}
	}
	for name, def := range from.Resources {
		if _, exists := to.Resources[name]; !exists {
			result.Removed = append(result.Removed, wetwire.DiffEntry{Resource: name, Type: def.Type})
		}
	}
	for name, before := range from.Resources {
		after, exists := to.Resources[name]
		if !exists {
			continue
		}
		if entry, changed := compareResource(name, before, after); changed {
			result.Modified = append(result.Modified, entry)
		}
	}

	sortEntries(result.Added)
	sortEntries(result.Removed)
	sortEntries(result.Modified)

	result.Summary = wetwire.DiffSummary{
		Added:    len(result.Added),
		Removed:  len(result.Removed),
		Modified: len(result.Modified),
	}
	for _, e := range result.Modified {
		if e.Replacement {
			result.Summary.Replacements++
		}
	}
	result.Summary.Total = result.Summary.Added + result.Summary.Removed + result.Summary.Modified
	return result, nil
}

// LoadTemplate reads a JSON or YAML CloudFormation template.
func LoadTemplate(path string) (*wetwire.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tmpl wetwire.Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return nil, fmt.Errorf("failed to parse %s as JSON or YAML: %w", path, err)
		}
	}
	if tmpl.Resources == nil {
		return nil, fmt.Errorf("%s has no Resources section", path)
	}
	return &tmpl, nil
}

func compareResource(name string, before, after wetwire.ResourceDef) (wetwire.DiffEntry, bool) {
	entry := wetwire.DiffEntry{Resource: name, Type: after.Type}

	if before.Type != after.Type {
		entry.Changes = append(entry.Changes, fmt.Sprintf("Type changed: %s -> %s", before.Type, after.Type))
		entry.Replacement = true
	}

	replaces := replacementProperties[after.Type]
	for _, key := range unionKeys(before.Properties, after.Properties) {
		v1, in1 := before.Properties[key]
		v2, in2 := after.Properties[key]
		switch {
		case !in1:
			entry.Changes = append(entry.Changes, key+" added")
		case !in2:
			entry.Changes = append(entry.Changes, key+" removed")
		case !cmp.Equal(v1, v2):
			entry.Changes = append(entry.Changes, key+" modified")
		default:
			continue
		}
		if replaces[key] {
			entry.Replacement = true
		}
	}

	if !cmp.Equal(before.DependsOn, after.DependsOn) {
		entry.Changes = append(entry.Changes, "DependsOn changed")
	}
	if before.DeletionPolicy != after.DeletionPolicy {
		entry.Changes = append(entry.Changes, fmt.Sprintf("DeletionPolicy changed: %s -> %s", orNone(before.DeletionPolicy), orNone(after.DeletionPolicy)))
	}
	return entry, len(entry.Changes) > 0
}

// normalize round-trips t through JSON so synthesised intrinsics and parsed
// documents compare as the same generic values.
func normalize(t *wetwire.Template) (*wetwire.Template, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var out wetwire.Template
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func unionKeys(a, b map[string]any) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func sortEntries(entries []wetwire.DiffEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Resource < entries[j].Resource
	})
}

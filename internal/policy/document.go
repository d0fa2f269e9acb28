// Package policy computes and attaches the least-privilege bucket policy that
// lets a distribution's origin access identity read objects, and evaluates
// requests against bucket policies.
package policy

import (
	"encoding/json"
	"sort"
	"strings"
)

// Version is the IAM policy language version.
const Version = "2012-10-17"

// Effect determines whether a statement allows or denies access.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// StringOrSlice handles policy fields that may be a string or a list.
type StringOrSlice []string

func (s *StringOrSlice) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = []string{str}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	*s = arr
	return nil
}

func (s StringOrSlice) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

// Principal lists the AWS principals a statement applies to, in order.
type Principal struct {
	AWS StringOrSlice `json:"AWS"`
}

// Statement is a single grant in a bucket policy.
type Statement struct {
	Sid       string        `json:"Sid,omitempty"`
	Effect    Effect        `json:"Effect"`
	Principal Principal     `json:"Principal"`
	Actions   StringOrSlice `json:"Action"`
	Resources StringOrSlice `json:"Resource"`
}

// Equivalent reports whether s and o grant the same thing, ignoring Sid and
// ordering within each set.
func (s Statement) Equivalent(o Statement) bool {
	return s.Effect == o.Effect &&
		sameSet(s.Principal.AWS, o.Principal.AWS) &&
		sameSet(s.Actions, o.Actions) &&
		sameSet(s.Resources, o.Resources)
}

// covers reports whether s and o target the same principals and resources,
// whatever their actions.
func (s Statement) covers(o Statement) bool {
	return s.Effect == o.Effect &&
		sameSet(s.Principal.AWS, o.Principal.AWS) &&
		sameSet(s.Resources, o.Resources)
}

func (s Statement) clone() Statement {
	s.Principal.AWS = append(StringOrSlice(nil), s.Principal.AWS...)
	s.Actions = append(StringOrSlice(nil), s.Actions...)
	s.Resources = append(StringOrSlice(nil), s.Resources...)
	return s
}

// Document is a bucket's resource policy.
type Document struct {
	Version    string      `json:"Version"`
	Statements []Statement `json:"Statement"`
}

// NewDocument returns an empty policy document.
func NewDocument() Document {
	return Document{Version: Version}
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := Document{Version: d.Version}
	if out.Version == "" {
		out.Version = Version
	}
	for _, s := range d.Statements {
		out.Statements = append(out.Statements, s.clone())
	}
	return out
}

// Contains reports whether an equivalent statement is present.
func (d Document) Contains(stmt Statement) bool {
	for _, s := range d.Statements {
		if s.Equivalent(stmt) {
			return true
		}
	}
	return false
}

// With returns a copy of d in which stmt replaces any statement for the same
// principals and resources.
func (d Document) With(stmt Statement) Document {
	out := Document{Version: Version}
	for _, s := range d.Statements {
		if s.covers(stmt) {
			continue
		}
		out.Statements = append(out.Statements, s.clone())
	}
	out.Statements = append(out.Statements, stmt.clone())
	return out
}

// Without returns a copy of d with every statement naming principal removed.
func (d Document) Without(principal string) Document {
	out := Document{Version: Version}
	for _, s := range d.Statements {
		if containsString(s.Principal.AWS, principal) {
			continue
		}
		out.Statements = append(out.Statements, s.clone())
	}
	return out
}

// Empty reports whether d has no statements.
func (d Document) Empty() bool { return len(d.Statements) == 0 }

// ToJSON serializes the document.
func (d Document) ToJSON() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FromJSON parses a policy document.
func FromJSON(doc string) (Document, error) {
	var d Document
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return Document{}, err
	}
	return d, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func normalizeSet(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

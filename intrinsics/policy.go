package intrinsics

import (
	"encoding/json"
)

// PolicyDocument represents an IAM policy document.
//
//	doc := NewPolicyDocument()
//	doc.Statement = Any(PolicyStatement{
//	    Effect:    "Allow",
//	    Principal: CanonicalUserPrincipal{GetAtt{"SiteIdentity", "S3CanonicalUserId"}},
//	    Action:    "s3:GetObject",
//	    Resource:  Join{"", Any("arn:aws:s3:::", Ref{"SiteBucket"}, "/*")},
//	})
type PolicyDocument struct {
	Version   string `json:"Version,omitempty" yaml:"Version,omitempty"`
	Statement []any  `json:"Statement" yaml:"Statement"`
}

// NewPolicyDocument creates a PolicyDocument with the default version.
func NewPolicyDocument() PolicyDocument {
	return PolicyDocument{Version: "2012-10-17"}
}

// PolicyStatement represents an IAM policy statement.
type PolicyStatement struct {
	Sid       string         `json:"Sid,omitempty" yaml:"Sid,omitempty"`
	Effect    string         `json:"Effect" yaml:"Effect"`
	Principal any            `json:"Principal,omitempty" yaml:"Principal,omitempty"`
	Action    any            `json:"Action,omitempty" yaml:"Action,omitempty"`
	Resource  any            `json:"Resource,omitempty" yaml:"Resource,omitempty"`
	Condition map[string]any `json:"Condition,omitempty" yaml:"Condition,omitempty"`
}

// ServicePrincipal represents a service principal (e.g., events.amazonaws.com).
// Serializes to {"Service": ...} format.
type ServicePrincipal []any

// MarshalJSON serializes to {"Service": ...} format.
func (p ServicePrincipal) MarshalJSON() ([]byte, error) {
	return marshalPrincipal("Service", p)
}

// AWSPrincipal represents an AWS account/role/user principal.
// Serializes to {"AWS": ...} format.
type AWSPrincipal []any

// MarshalJSON serializes to {"AWS": ...} format.
func (p AWSPrincipal) MarshalJSON() ([]byte, error) {
	return marshalPrincipal("AWS", p)
}

// CanonicalUserPrincipal represents an S3 canonical user, the form an origin
// access identity takes in a bucket policy.
// Serializes to {"CanonicalUser": ...} format.
type CanonicalUserPrincipal []any

// MarshalJSON serializes to {"CanonicalUser": ...} format.
func (p CanonicalUserPrincipal) MarshalJSON() ([]byte, error) {
	return marshalPrincipal("CanonicalUser", p)
}

func marshalPrincipal(key string, values []any) ([]byte, error) {
	if len(values) == 1 {
		return json.Marshal(map[string]any{key: values[0]})
	}
	return json.Marshal(map[string]any{key: values})
}

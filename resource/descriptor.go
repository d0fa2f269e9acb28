// Package resource provides the typed, immutable descriptions of every
// resource in a static-site topology.
//
// A topology is a slice of Descriptors. Each constructor derives the
// dependency edges implied by its references, so callers only name things:
//
//	bucket := resource.NewBucket("SiteBucket", resource.Bucket{Name: "site-assets"})
//	oai := resource.NewIdentity("SiteIdentity", resource.Identity{Comment: "site"})
//	grant := resource.NewBucketPolicy("SitePolicy", resource.Grant{
//	    Bucket:   "SiteBucket",
//	    Identity: "SiteIdentity",
//	    Actions:  []string{"s3:GetObject"},
//	})
package resource

import (
	"sort"
)

// Kind identifies the type of a provisionable resource.
type Kind string

const (
	KindBucket               Kind = "Bucket"
	KindOriginAccessIdentity Kind = "OriginAccessIdentity"
	KindBucketPolicy         Kind = "BucketPolicy"
	KindDistribution         Kind = "Distribution"
	KindUploadTrigger        Kind = "UploadTrigger"
)

// CFType returns the CloudFormation resource type the kind synthesises to.
func (k Kind) CFType() string {
	switch k {
	case KindBucket:
		return "AWS::S3::Bucket"
	case KindOriginAccessIdentity:
		return "AWS::CloudFront::CloudFrontOriginAccessIdentity"
	case KindBucketPolicy:
		return "AWS::S3::BucketPolicy"
	case KindDistribution:
		return "AWS::CloudFront::Distribution"
	case KindUploadTrigger:
		return "AWS::Events::Rule"
	default:
		return ""
	}
}

// Descriptor is an immutable description of a single resource.
// The zero value is not valid; use one of the New* constructors.
type Descriptor struct {
	name      string
	kind      Kind
	dependsOn []string
	spec      any
}

// Option customises a Descriptor at construction time.
type Option func(*Descriptor)

// WithDependsOn adds explicit dependencies on top of the ones derived from
// references.
func WithDependsOn(names ...string) Option {
	return func(d *Descriptor) {
		d.dependsOn = append(d.dependsOn, names...)
	}
}

func newDescriptor(name string, kind Kind, spec any, refs []string, opts []Option) Descriptor {
	d := Descriptor{name: name, kind: kind, spec: spec}
	for _, ref := range refs {
		if ref != "" {
			d.dependsOn = append(d.dependsOn, ref)
		}
	}
	for _, opt := range opts {
		opt(&d)
	}
	d.dependsOn = dedupe(d.dependsOn)
	return d
}

// Name returns the logical name of the resource.
func (d Descriptor) Name() string { return d.name }

// Kind returns the resource kind.
func (d Descriptor) Kind() Kind { return d.kind }

// DependsOn returns the logical names this resource depends on, sorted.
func (d Descriptor) DependsOn() []string {
	out := make([]string, len(d.dependsOn))
	copy(out, d.dependsOn)
	return out
}

// Spec returns the kind-specific configuration value.
func (d Descriptor) Spec() any { return d.spec }

// BucketSpec returns the bucket configuration if d is a bucket.
func (d Descriptor) BucketSpec() (Bucket, bool) {
	b, ok := d.spec.(Bucket)
	return b, ok
}

// IdentitySpec returns the identity configuration if d is an identity.
func (d Descriptor) IdentitySpec() (Identity, bool) {
	i, ok := d.spec.(Identity)
	return i, ok
}

// GrantSpec returns the policy grant if d is a bucket policy.
func (d Descriptor) GrantSpec() (Grant, bool) {
	g, ok := d.spec.(Grant)
	if !ok {
		return Grant{}, false
	}
	g.Actions = append([]string(nil), g.Actions...)
	return g, true
}

// DistributionSpec returns the distribution configuration if d is a distribution.
func (d Descriptor) DistributionSpec() (Distribution, bool) {
	dist, ok := d.spec.(Distribution)
	if !ok {
		return Distribution{}, false
	}
	dist.AllowedMethods = append([]string(nil), dist.AllowedMethods...)
	return dist, true
}

// TriggerSpec returns the upload trigger configuration if d is a trigger.
func (d Descriptor) TriggerSpec() (UploadTrigger, bool) {
	t, ok := d.spec.(UploadTrigger)
	return t, ok
}

// Attribute names produced by resource creation.
const (
	AttrID           = "Id"
	AttrArn          = "Arn"
	AttrDomainName   = "DomainName"
	AttrPrincipalRef = "PrincipalRef"
	AttrCanonicalID  = "S3CanonicalUserId"
	AttrEndpoint     = "Endpoint"
	AttrBucket       = "Bucket"
	AttrHandlerRef   = "HandlerRef"

	AttrIndexDocument = "IndexDocument"
)

// Attributes are the identifiers a created resource exposes to its dependents.
type Attributes map[string]string

// Get returns the attribute value or "" when absent.
func (a Attributes) Get(name string) string {
	if a == nil {
		return ""
	}
	return a[name]
}

// Clone returns a copy of a.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

package resource

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lex00/wetwire-site-go/internal/stackerr"
)

// AccessMode is the public reachability of a bucket. Only Private exists:
// content is exposed exclusively through a distribution's identity.
type AccessMode string

const AccessPrivate AccessMode = "Private"

// RemovalPolicy controls what teardown does with a bucket.
type RemovalPolicy string

const (
	// RemovalDestroy deletes the bucket and every object in it.
	RemovalDestroy RemovalPolicy = "Destroy"
	// RemovalRetain leaves the bucket and its contents in place.
	RemovalRetain RemovalPolicy = "Retain"
)

// ParseRemovalPolicy accepts "destroy" or "retain" in any case.
func ParseRemovalPolicy(s string) (RemovalPolicy, error) {
	switch strings.ToLower(s) {
	case "", "destroy":
		return RemovalDestroy, nil
	case "retain":
		return RemovalRetain, nil
	default:
		return "", fmt.Errorf("unknown removal policy %q (use destroy or retain)", s)
	}
}

const DefaultIndexDocument = "index.html"

// Bucket is the configuration of a private object-storage bucket.
type Bucket struct {
	// Name is the globally unique bucket identifier.
	Name          string
	AccessMode    AccessMode
	IndexDocument string
	ErrorDocument string
	RemovalPolicy RemovalPolicy
}

// NewBucket describes a private bucket. AccessMode is always forced to
// AccessPrivate; empty documents default to index.html and the removal policy
// defaults to RemovalDestroy.
func NewBucket(name string, b Bucket, opts ...Option) Descriptor {
	b.AccessMode = AccessPrivate
	if b.IndexDocument == "" {
		b.IndexDocument = DefaultIndexDocument
	}
	if b.ErrorDocument == "" {
		b.ErrorDocument = b.IndexDocument
	}
	if b.RemovalPolicy == "" {
		b.RemovalPolicy = RemovalDestroy
	}
	return newDescriptor(name, KindBucket, b, nil, opts)
}

// ARN returns the bucket ARN.
func (b Bucket) ARN() string {
	return "arn:aws:s3:::" + b.Name
}

// ObjectsARN returns the ARN pattern covering every object in the bucket.
func (b Bucket) ObjectsARN() string {
	return b.ARN() + "/*"
}

var (
	bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)
	ipAddressRegex  = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
)

// ValidateBucketName checks name against the S3 bucket naming rules.
func ValidateBucketName(name string) error {
	switch {
	case len(name) < 3 || len(name) > 63:
		return fmt.Errorf("%w: bucket name %q must be between 3 and 63 characters long", stackerr.ErrInvalidBucket, name)
	case !bucketNameRegex.MatchString(name):
		return fmt.Errorf("%w: bucket name %q can only contain lowercase letters, numbers, hyphens, and periods", stackerr.ErrInvalidBucket, name)
	case strings.Contains(name, ".."):
		return fmt.Errorf("%w: bucket name %q must not contain consecutive periods", stackerr.ErrInvalidBucket, name)
	case strings.Contains(name, ".-") || strings.Contains(name, "-."):
		return fmt.Errorf("%w: bucket name %q must not contain a period adjacent to a hyphen", stackerr.ErrInvalidBucket, name)
	case ipAddressRegex.MatchString(name):
		return fmt.Errorf("%w: bucket name %q must not be formatted as an IP address", stackerr.ErrInvalidBucket, name)
	case strings.HasPrefix(name, "xn--"):
		return fmt.Errorf("%w: bucket name %q must not start with xn--", stackerr.ErrInvalidBucket, name)
	}
	return nil
}

// Identity is an origin access identity: the principal that stands for
// "requests coming from the distribution". It holds no capabilities until a
// Grant names it.
type Identity struct {
	Comment string
}

// NewIdentity describes an origin access identity.
func NewIdentity(name string, id Identity, opts ...Option) Descriptor {
	return newDescriptor(name, KindOriginAccessIdentity, id, nil, opts)
}

// Grant binds an identity to read-only object access on a bucket.
// Bucket and Identity are logical names of other descriptors.
type Grant struct {
	Bucket   string
	Identity string
	Actions  []string
}

// NewBucketPolicy describes the bucket policy statement granting g.
func NewBucketPolicy(name string, g Grant, opts ...Option) Descriptor {
	g.Actions = append([]string(nil), g.Actions...)
	return newDescriptor(name, KindBucketPolicy, g, []string{g.Bucket, g.Identity}, opts)
}

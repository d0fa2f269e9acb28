package resource

import (
	"fmt"
	"strings"
)

// ViewerProtocolPolicy controls how viewers may reach the distribution.
// Values match the CloudFormation spelling.
type ViewerProtocolPolicy string

const (
	RedirectToHTTPS ViewerProtocolPolicy = "redirect-to-https"
	HTTPSOnly       ViewerProtocolPolicy = "https-only"
	AllowAll        ViewerProtocolPolicy = "allow-all"
)

// EnforcesHTTPS reports whether plain HTTP viewers are redirected or refused.
func (p ViewerProtocolPolicy) EnforcesHTTPS() bool {
	return p == RedirectToHTTPS || p == HTTPSOnly
}

// ParseViewerProtocolPolicy accepts the CloudFormation spelling or the
// upper-case enum spelling (REDIRECT_TO_HTTPS).
func ParseViewerProtocolPolicy(s string) (ViewerProtocolPolicy, error) {
	norm := strings.ReplaceAll(strings.ToLower(s), "_", "-")
	switch ViewerProtocolPolicy(norm) {
	case "":
		return RedirectToHTTPS, nil
	case RedirectToHTTPS, HTTPSOnly, AllowAll:
		return ViewerProtocolPolicy(norm), nil
	default:
		return "", fmt.Errorf("unknown viewer protocol policy %q", s)
	}
}

// PriceClass selects the edge locations serving the distribution.
type PriceClass string

const (
	PriceClass100 PriceClass = "PriceClass_100"
	PriceClass200 PriceClass = "PriceClass_200"
	PriceClassAll PriceClass = "PriceClass_All"
)

// ParsePriceClass accepts PriceClass_100, PriceClass_200 or PriceClass_All.
func ParsePriceClass(s string) (PriceClass, error) {
	switch PriceClass(s) {
	case "":
		return PriceClass100, nil
	case PriceClass100, PriceClass200, PriceClassAll:
		return PriceClass(s), nil
	default:
		return "", fmt.Errorf("unknown price class %q", s)
	}
}

// ReadMethods is the only method set a static-site origin accepts.
var ReadMethods = []string{"GET", "HEAD"}

// Distribution is the configuration of a CDN distribution in front of a
// private bucket. Origin and Identity are logical names of other descriptors.
type Distribution struct {
	Origin               string
	Identity             string
	ViewerProtocolPolicy ViewerProtocolPolicy
	AllowedMethods       []string
	ErrorMap             ErrorFallbackMap
	PriceClass           PriceClass
	Comment              string
}

// NewDistribution describes a distribution. Empty fields take the static-site
// defaults: redirect-to-https, GET/HEAD and PriceClass_100.
func NewDistribution(name string, d Distribution, opts ...Option) Descriptor {
	if d.ViewerProtocolPolicy == "" {
		d.ViewerProtocolPolicy = RedirectToHTTPS
	}
	if len(d.AllowedMethods) == 0 {
		d.AllowedMethods = append([]string(nil), ReadMethods...)
	} else {
		methods := make([]string, len(d.AllowedMethods))
		for i, m := range d.AllowedMethods {
			methods[i] = strings.ToUpper(m)
		}
		d.AllowedMethods = methods
	}
	if d.PriceClass == "" {
		d.PriceClass = PriceClass100
	}
	return newDescriptor(name, KindDistribution, d, []string{d.Origin, d.Identity}, opts)
}

// EventKind is the bucket event an upload trigger listens for.
type EventKind string

const ObjectCreated EventKind = "s3:ObjectCreated:*"

// UploadTrigger binds object-created events on a bucket to an externally
// defined handler. HandlerRef is opaque to the stack.
type UploadTrigger struct {
	Source     string
	EventKind  EventKind
	HandlerRef string
}

// NewUploadTrigger describes an upload trigger on the Source bucket.
func NewUploadTrigger(name string, t UploadTrigger, opts ...Option) Descriptor {
	if t.EventKind == "" {
		t.EventKind = ObjectCreated
	}
	return newDescriptor(name, KindUploadTrigger, t, []string{t.Source}, opts)
}

package plan

import (
	"github.com/lex00/wetwire-site-go/internal/policy"
	"github.com/lex00/wetwire-site-go/internal/stackerr"
	"github.com/lex00/wetwire-site-go/resource"
)

// validate checks every descriptor and the cross-resource bindings. It runs
// before edges are built so reference errors are reported by name rather
// than as missing graph nodes.
func (p *Plan) validate() error {
	bucketNames := make(map[string]string)
	identityOwner := make(map[string]string)

	for _, d := range p.descriptors {
		var err error
		switch d.Kind() {
		case resource.KindBucket:
			err = p.validateBucket(d, bucketNames)
		case resource.KindOriginAccessIdentity:
			// identities carry no configuration to check
		case resource.KindBucketPolicy:
			err = p.validateGrant(d)
		case resource.KindDistribution:
			err = p.validateDistribution(d, identityOwner)
		case resource.KindUploadTrigger:
			err = p.validateTrigger(d)
		}
		if err != nil {
			return err
		}
	}

	// A grant naming an identity that belongs to a distribution must target
	// that distribution's origin.
	for _, d := range p.descriptors {
		g, ok := d.GrantSpec()
		if !ok {
			continue
		}
		owner, used := identityOwner[g.Identity]
		if !used {
			continue
		}
		od, _ := p.Lookup(owner)
		dist, _ := od.DistributionSpec()
		if dist.Origin != g.Bucket {
			return stackerr.Configuration(d.Name(), stackerr.ErrIdentityMismatch,
				"grants %q on %q but distribution %q reads from %q", g.Identity, g.Bucket, owner, dist.Origin)
		}
	}
	return nil
}

func (p *Plan) validateBucket(d resource.Descriptor, seen map[string]string) error {
	b, ok := d.BucketSpec()
	if !ok {
		return stackerr.Configuration(d.Name(), stackerr.ErrInvalidReference, "bucket descriptor has no bucket configuration")
	}
	if err := resource.ValidateBucketName(b.Name); err != nil {
		return stackerr.Configuration(d.Name(), err, "")
	}
	if other, dup := seen[b.Name]; dup {
		return stackerr.Configuration(d.Name(), stackerr.ErrDuplicateResource, "bucket name %q already used by %q", b.Name, other)
	}
	seen[b.Name] = d.Name()
	if b.AccessMode != resource.AccessPrivate {
		return stackerr.Configuration(d.Name(), stackerr.ErrInvalidBucket, "access mode %q is not private", b.AccessMode)
	}
	switch b.RemovalPolicy {
	case resource.RemovalDestroy, resource.RemovalRetain:
	default:
		return stackerr.Configuration(d.Name(), stackerr.ErrInvalidBucket, "unknown removal policy %q", b.RemovalPolicy)
	}
	return nil
}

func (p *Plan) validateGrant(d resource.Descriptor) error {
	g, ok := d.GrantSpec()
	if !ok {
		return stackerr.Configuration(d.Name(), stackerr.ErrInvalidReference, "policy descriptor has no grant")
	}
	if err := p.requireKind(d.Name(), "bucket", g.Bucket, resource.KindBucket); err != nil {
		return err
	}
	if err := p.requireKind(d.Name(), "identity", g.Identity, resource.KindOriginAccessIdentity); err != nil {
		return err
	}
	if _, err := policy.ValidateActions(g.Actions); err != nil {
		return stackerr.Configuration(d.Name(), err, "")
	}
	return nil
}

func (p *Plan) validateDistribution(d resource.Descriptor, identityOwner map[string]string) error {
	dist, ok := d.DistributionSpec()
	if !ok {
		return stackerr.Configuration(d.Name(), stackerr.ErrInvalidReference, "distribution descriptor has no configuration")
	}
	if err := p.requireKind(d.Name(), "origin", dist.Origin, resource.KindBucket); err != nil {
		return err
	}
	if err := p.requireKind(d.Name(), "identity", dist.Identity, resource.KindOriginAccessIdentity); err != nil {
		return err
	}
	if owner, taken := identityOwner[dist.Identity]; taken {
		return stackerr.Configuration(d.Name(), stackerr.ErrIdentityMismatch,
			"identity %q is already owned by distribution %q", dist.Identity, owner)
	}
	identityOwner[dist.Identity] = d.Name()

	if !dist.ViewerProtocolPolicy.EnforcesHTTPS() {
		return stackerr.Configuration(d.Name(), stackerr.ErrInvalidBehavior,
			"viewer protocol policy %q does not enforce HTTPS", dist.ViewerProtocolPolicy)
	}
	if len(dist.AllowedMethods) == 0 {
		return stackerr.Configuration(d.Name(), stackerr.ErrInvalidBehavior, "no allowed methods")
	}
	for _, m := range dist.AllowedMethods {
		if m != "GET" && m != "HEAD" {
			return stackerr.Configuration(d.Name(), stackerr.ErrInvalidBehavior, "method %s is not allowed on a read-only origin", m)
		}
	}
	if _, err := resource.ParsePriceClass(string(dist.PriceClass)); err != nil {
		return stackerr.Configuration(d.Name(), stackerr.ErrInvalidBehavior, "%v", err)
	}
	if _, err := resource.NewErrorFallbackMap(dist.ErrorMap.Rules()...); err != nil {
		return stackerr.Configuration(d.Name(), err, "")
	}

	if len(p.grantsFor(dist.Origin, dist.Identity)) == 0 {
		return stackerr.Configuration(d.Name(), stackerr.ErrIdentityMismatch,
			"no bucket policy grants identity %q read access to %q", dist.Identity, dist.Origin)
	}
	return nil
}

func (p *Plan) validateTrigger(d resource.Descriptor) error {
	t, ok := d.TriggerSpec()
	if !ok {
		return stackerr.Configuration(d.Name(), stackerr.ErrInvalidReference, "trigger descriptor has no configuration")
	}
	if err := p.requireKind(d.Name(), "source", t.Source, resource.KindBucket); err != nil {
		return err
	}
	if t.EventKind != resource.ObjectCreated {
		return stackerr.Configuration(d.Name(), stackerr.ErrInvalidReference, "unsupported event kind %q", t.EventKind)
	}
	if t.HandlerRef == "" {
		return stackerr.Configuration(d.Name(), stackerr.ErrUnknownHandler, "no handler reference")
	}
	return nil
}

// Package provision creates and deletes single resources against a platform.
//
// Each step consumes the attributes of the resources it depends on (bucket
// name, identity principal) and returns its own. Steps are blocking and never
// retried here: platform failures become ProvisioningErrors and violated
// dependencies become PreconditionErrors.
package provision

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lex00/wetwire-site-go/internal/metrics"
	"github.com/lex00/wetwire-site-go/internal/platform"
	"github.com/lex00/wetwire-site-go/internal/policy"
	"github.com/lex00/wetwire-site-go/internal/stackerr"
	"github.com/lex00/wetwire-site-go/internal/trigger"
	"github.com/lex00/wetwire-site-go/resource"
)

const (
	OpCreate = "create"
	OpDelete = "delete"
)

// State holds the attributes of created resources by logical name.
type State map[string]resource.Attributes

// Deletion describes what a delete did.
type Deletion struct {
	Retained       bool
	ObjectsRemoved int
}

// Option configures a Provisioner.
type Option func(*Provisioner)

func WithLogger(log *zap.Logger) Option {
	return func(p *Provisioner) { p.log = log }
}

func WithObserver(o *metrics.Observer) Option {
	return func(p *Provisioner) { p.observer = o }
}

// Provisioner runs create and delete steps for every resource kind.
type Provisioner struct {
	client   platform.Client
	binder   *policy.Binder
	handlers *trigger.Registry
	log      *zap.Logger
	observer *metrics.Observer
}

// New returns a Provisioner. handlers resolves upload trigger references;
// nil means no handler is known.
func New(client platform.Client, handlers *trigger.Registry, opts ...Option) *Provisioner {
	p := &Provisioner{
		client:   client,
		handlers: handlers,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.handlers == nil {
		p.handlers = trigger.NewRegistry()
	}
	p.binder = policy.NewBinder(client, p.log)
	return p
}

// Binder returns the policy binder the provisioner uses.
func (p *Provisioner) Binder() *policy.Binder { return p.binder }

// Create creates d. state must already hold the attributes of every
// resource d depends on.
func (p *Provisioner) Create(ctx context.Context, d resource.Descriptor, state State) (resource.Attributes, error) {
	start := time.Now()
	var (
		attrs resource.Attributes
		err   error
	)
	switch d.Kind() {
	case resource.KindBucket:
		attrs, err = p.createBucket(ctx, d)
	case resource.KindOriginAccessIdentity:
		attrs, err = p.createIdentity(ctx, d)
	case resource.KindBucketPolicy:
		attrs, err = p.createPolicy(ctx, d, state)
	case resource.KindDistribution:
		attrs, err = p.createDistribution(ctx, d, state)
	case resource.KindUploadTrigger:
		attrs, err = p.createTrigger(ctx, d, state)
	default:
		err = stackerr.Configuration(d.Name(), stackerr.ErrInvalidReference, "unknown kind %q", d.Kind())
	}
	p.observer.ObserveOperation(string(d.Kind()), OpCreate, err, time.Since(start))

	log := p.log.With(zap.String("resource", d.Name()), zap.String("kind", string(d.Kind())))
	if err != nil {
		log.Error("create failed", zap.Error(err))
		return nil, err
	}
	log.Info("created", zap.String("id", attrs.Get(resource.AttrID)))
	return attrs, nil
}

// Delete deletes d using the attributes recorded when it was created.
func (p *Provisioner) Delete(ctx context.Context, d resource.Descriptor, attrs resource.Attributes) (Deletion, error) {
	start := time.Now()
	var (
		del Deletion
		err error
	)
	switch d.Kind() {
	case resource.KindBucket:
		del, err = p.deleteBucket(ctx, d, attrs)
	case resource.KindOriginAccessIdentity:
		err = p.wrap(d, OpDelete, p.client.DeleteOriginAccessIdentity(ctx, attrs.Get(resource.AttrID)))
	case resource.KindBucketPolicy:
		err = p.deletePolicy(ctx, d, attrs)
	case resource.KindDistribution:
		err = p.wrap(d, OpDelete, p.client.DeleteDistribution(ctx, attrs.Get(resource.AttrID)))
	case resource.KindUploadTrigger:
		err = p.wrap(d, OpDelete, trigger.Deregister(ctx, p.client, trigger.Handle{
			ID:     attrs.Get(resource.AttrID),
			Bucket: attrs.Get(resource.AttrBucket),
		}))
	default:
		err = stackerr.Configuration(d.Name(), stackerr.ErrInvalidReference, "unknown kind %q", d.Kind())
	}
	p.observer.ObserveOperation(string(d.Kind()), OpDelete, err, time.Since(start))

	log := p.log.With(zap.String("resource", d.Name()), zap.String("kind", string(d.Kind())))
	switch {
	case err != nil:
		log.Error("delete failed", zap.Error(err))
	case del.Retained:
		log.Info("retained")
	default:
		log.Info("deleted", zap.Int("objectsRemoved", del.ObjectsRemoved))
	}
	return del, err
}

func (p *Provisioner) createBucket(ctx context.Context, d resource.Descriptor) (resource.Attributes, error) {
	b, _ := d.BucketSpec()
	info, err := p.client.CreateBucket(ctx, platform.BucketInput{
		Name:          b.Name,
		IndexDocument: b.IndexDocument,
		ErrorDocument: b.ErrorDocument,
	})
	if err != nil {
		return nil, p.wrap(d, OpCreate, err)
	}
	return resource.Attributes{
		resource.AttrID:            info.Name,
		resource.AttrArn:           info.ARN,
		resource.AttrDomainName:    info.RegionalDomainName,
		resource.AttrIndexDocument: b.IndexDocument,
	}, nil
}

func (p *Provisioner) deleteBucket(ctx context.Context, d resource.Descriptor, attrs resource.Attributes) (Deletion, error) {
	b, _ := d.BucketSpec()
	if b.RemovalPolicy == resource.RemovalRetain {
		return Deletion{Retained: true}, nil
	}
	n, err := p.client.DeleteBucket(ctx, attrs.Get(resource.AttrID), true)
	if err != nil {
		return Deletion{ObjectsRemoved: n}, p.wrap(d, OpDelete, err)
	}
	return Deletion{ObjectsRemoved: n}, nil
}

func (p *Provisioner) createIdentity(ctx context.Context, d resource.Descriptor) (resource.Attributes, error) {
	id, _ := d.IdentitySpec()
	comment := id.Comment
	if comment == "" {
		comment = "identity for " + d.Name()
	}
	info, err := p.client.CreateOriginAccessIdentity(ctx, comment)
	if err != nil {
		return nil, p.wrap(d, OpCreate, err)
	}
	return resource.Attributes{
		resource.AttrID:           info.ID,
		resource.AttrPrincipalRef: info.PrincipalRef,
		resource.AttrCanonicalID:  info.CanonicalUserID,
	}, nil
}

func (p *Provisioner) createPolicy(ctx context.Context, d resource.Descriptor, state State) (resource.Attributes, error) {
	g, _ := d.GrantSpec()
	bucket := state[g.Bucket].Get(resource.AttrID)
	principal := state[g.Identity].Get(resource.AttrPrincipalRef)

	stmt, err := p.binder.Bind(ctx, bucket, principal, g.Actions)
	if err != nil {
		if isGrantDefect(err) {
			return nil, stackerr.Precondition(d.Name(), err, "")
		}
		return nil, p.wrap(d, OpCreate, err)
	}
	return resource.Attributes{
		resource.AttrID:           stmt.Sid,
		resource.AttrBucket:       bucket,
		resource.AttrPrincipalRef: principal,
	}, nil
}

func (p *Provisioner) deletePolicy(ctx context.Context, d resource.Descriptor, attrs resource.Attributes) error {
	err := p.binder.Unbind(ctx, attrs.Get(resource.AttrBucket), attrs.Get(resource.AttrPrincipalRef))
	if errors.Is(err, platform.ErrNoSuchBucket) {
		return nil
	}
	return p.wrap(d, OpDelete, err)
}

func (p *Provisioner) createDistribution(ctx context.Context, d resource.Descriptor, state State) (resource.Attributes, error) {
	dist, _ := d.DistributionSpec()
	origin, okOrigin := state[dist.Origin]
	identity, okIdentity := state[dist.Identity]
	if !okOrigin || !okIdentity {
		return nil, stackerr.Precondition(d.Name(), stackerr.ErrDependencyNotReady, "origin or identity has not been created")
	}
	bucket := origin.Get(resource.AttrID)
	principal := identity.Get(resource.AttrPrincipalRef)

	authorized, err := p.binder.Authorized(ctx, bucket, principal)
	if err != nil {
		return nil, p.wrap(d, OpCreate, err)
	}
	if !authorized {
		return nil, stackerr.Precondition(d.Name(), stackerr.ErrOriginNotAuthorized,
			"bucket %s does not grant %s read access", bucket, principal)
	}

	rootObject := origin.Get(resource.AttrIndexDocument)
	if rootObject == "" {
		rootObject = resource.DefaultIndexDocument
	}

	cfg := platform.DistributionConfig{
		Comment:              dist.Comment,
		OriginBucket:         bucket,
		OriginDomainName:     origin.Get(resource.AttrDomainName),
		IdentityID:           identity.Get(resource.AttrID),
		PrincipalRef:         principal,
		ViewerProtocolPolicy: string(dist.ViewerProtocolPolicy),
		AllowedMethods:       dist.AllowedMethods,
		DefaultRootObject:    rootObject,
		PriceClass:           string(dist.PriceClass),
	}
	for _, r := range dist.ErrorMap.Rules() {
		cfg.ErrorResponses = append(cfg.ErrorResponses, platform.ErrorResponse{
			ErrorCode:        r.MatchCode,
			ResponseCode:     r.SubstituteStatus,
			ResponsePagePath: r.ResponsePath,
			MinTTL:           r.CacheTTLSeconds,
		})
	}

	info, err := p.client.CreateDistribution(ctx, cfg)
	if err != nil {
		return nil, p.wrap(d, OpCreate, err)
	}
	return resource.Attributes{
		resource.AttrID:         info.ID,
		resource.AttrArn:        info.ARN,
		resource.AttrDomainName: info.DomainName,
		resource.AttrEndpoint:   "https://" + info.DomainName,
	}, nil
}

func (p *Provisioner) createTrigger(ctx context.Context, d resource.Descriptor, state State) (resource.Attributes, error) {
	t, _ := d.TriggerSpec()
	bucket := state[t.Source].Get(resource.AttrID)
	h, err := trigger.Register(ctx, p.client, p.handlers, d.Name(), bucket, t.HandlerRef, []string{string(t.EventKind)})
	if err != nil {
		if stackerr.IsPrecondition(err) {
			return nil, err
		}
		return nil, p.wrap(d, OpCreate, err)
	}
	return resource.Attributes{
		resource.AttrID:         h.ID,
		resource.AttrBucket:     h.Bucket,
		resource.AttrHandlerRef: h.HandlerRef,
	}, nil
}

func (p *Provisioner) wrap(d resource.Descriptor, op string, err error) error {
	if err == nil {
		return nil
	}
	return stackerr.Provisioning(d.Name(), op, err)
}

func isGrantDefect(err error) bool {
	for _, target := range []error{
		stackerr.ErrInvalidPrincipal,
		stackerr.ErrOverbroadGrant,
		stackerr.ErrEmptyGrant,
		stackerr.ErrDependencyNotReady,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

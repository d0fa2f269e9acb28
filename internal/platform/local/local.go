// Package local is an in-process hosting platform.
//
// Objects live in a gofakes3 in-memory S3 endpoint reached through the AWS
// SDK. Bucket policies, origin access identities, distributions and bucket
// notifications are held in memory by the Platform itself.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"go.uber.org/zap"

	"github.com/lex00/wetwire-site-go/internal/platform"
	"github.com/lex00/wetwire-site-go/internal/policy"
)

const (
	defaultRegion = "eu-west-1"
	accountID     = "000000000000"

	eventObjectCreatedPut = "ObjectCreated:Put"
)

// Option configures a Platform.
type Option func(*Platform)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Platform) { p.log = log }
}

// WithRegion sets the region reported in bucket domain names.
func WithRegion(region string) Option {
	return func(p *Platform) { p.region = region }
}

// WithEventSink sets where object-created events are published.
func WithEventSink(sink platform.EventSink) Option {
	return func(p *Platform) { p.sink = sink }
}

// Platform implements platform.Client and platform.Origin in process.
type Platform struct {
	server *httptest.Server
	s3     s3iface.S3API
	region string
	log    *zap.Logger

	mu            sync.RWMutex
	sink          platform.EventSink
	policies      map[string]policy.Document
	identities    map[string]platform.IdentityInfo
	distributions map[string]platform.DistributionInfo
	notifications map[string][]platform.NotificationInfo
}

var (
	_ platform.Client = (*Platform)(nil)
	_ platform.Origin = (*Platform)(nil)
)

// New starts the in-memory S3 endpoint and returns a Platform using it.
// Close must be called to stop the endpoint.
func New(opts ...Option) (*Platform, error) {
	p := &Platform{
		region:        defaultRegion,
		log:           zap.NewNop(),
		policies:      make(map[string]policy.Document),
		identities:    make(map[string]platform.IdentityInfo),
		distributions: make(map[string]platform.DistributionInfo),
		notifications: make(map[string][]platform.NotificationInfo),
	}
	for _, opt := range opts {
		opt(p)
	}

	faker := gofakes3.New(s3mem.New())
	p.server = httptest.NewServer(faker.Server())

	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials("LOCAL-ACCESS-KEY", "LOCAL-SECRET-KEY", ""),
		Endpoint:         aws.String(p.server.URL),
		Region:           aws.String(p.region),
		DisableSSL:       aws.Bool(true),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		p.server.Close()
		return nil, fmt.Errorf("creating s3 session: %w", err)
	}
	p.s3 = s3.New(sess)
	return p, nil
}

// Close stops the in-memory S3 endpoint.
func (p *Platform) Close() {
	p.server.Close()
}

// S3 returns the SDK client bound to the in-memory endpoint.
func (p *Platform) S3() s3iface.S3API { return p.s3 }

// SetEventSink replaces the event sink.
func (p *Platform) SetEventSink(sink platform.EventSink) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

func (p *Platform) CreateBucket(ctx context.Context, in platform.BucketInput) (platform.BucketInfo, error) {
	_, err := p.s3.CreateBucketWithContext(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(in.Name),
		ACL:    aws.String(s3.BucketCannedACLPrivate),
	})
	if err != nil {
		return platform.BucketInfo{}, translate(err, in.Name, "")
	}
	p.log.Info("bucket created",
		zap.String("bucket", in.Name),
		zap.String("acl", s3.BucketCannedACLPrivate),
		zap.Bool("blockPublicAccess", true))
	return platform.BucketInfo{
		Name:               in.Name,
		ARN:                "arn:aws:s3:::" + in.Name,
		RegionalDomainName: fmt.Sprintf("%s.s3.%s.amazonaws.com", in.Name, p.region),
	}, nil
}

func (p *Platform) HeadBucket(ctx context.Context, name string) error {
	_, err := p.s3.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err != nil {
		return translate(err, name, "")
	}
	return nil
}

func (p *Platform) DeleteBucket(ctx context.Context, name string, purge bool) (int, error) {
	removed := 0
	if purge {
		keys, err := p.ListObjects(ctx, name)
		if err != nil {
			return 0, err
		}
		for _, key := range keys {
			_, err := p.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(name),
				Key:    aws.String(key),
			})
			if err != nil {
				return removed, translate(err, name, key)
			}
			removed++
		}
	}

	if _, err := p.s3.DeleteBucketWithContext(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)}); err != nil {
		return removed, translate(err, name, "")
	}

	p.mu.Lock()
	delete(p.policies, name)
	delete(p.notifications, name)
	p.mu.Unlock()

	p.log.Info("bucket deleted", zap.String("bucket", name), zap.Int("objectsRemoved", removed))
	return removed, nil
}

// ListObjects returns every key in bucket.
func (p *Platform) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	var keys []string
	err := p.s3.ListObjectsPagesWithContext(ctx, &s3.ListObjectsInput{Bucket: aws.String(bucket)},
		func(page *s3.ListObjectsOutput, _ bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, aws.StringValue(obj.Key))
			}
			return true
		})
	if err != nil {
		return nil, translate(err, bucket, "")
	}
	return keys, nil
}

// PutObject uploads content with operator credentials and publishes an
// object-created event to every matching notification of the bucket.
func (p *Platform) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := p.s3.PutObjectWithContext(ctx, in); err != nil {
		return translate(err, bucket, key)
	}

	p.mu.RLock()
	sink := p.sink
	targets := make([]platform.NotificationInfo, 0, len(p.notifications[bucket]))
	for _, n := range p.notifications[bucket] {
		if matchesEvent(n.Events, "s3:"+eventObjectCreatedPut) {
			targets = append(targets, n)
		}
	}
	p.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}
	if sink == nil {
		p.log.Warn("object created but no event sink configured", zap.String("bucket", bucket), zap.String("key", key))
		return nil
	}
	now := time.Now().UTC()
	for _, n := range targets {
		ev := platform.Event{
			ID:        uuid.NewString(),
			Bucket:    bucket,
			Key:       key,
			EventName: eventObjectCreatedPut,
			Size:      int64(len(body)),
			Time:      now,
			Target:    n.Target,
		}
		// The object is stored regardless of delivery; failures belong to the sink.
		if err := sink.Publish(ctx, ev); err != nil {
			p.log.Warn("publishing object event failed",
				zap.String("bucket", bucket),
				zap.String("key", key),
				zap.String("target", n.Target),
				zap.Error(err))
		}
	}
	return nil
}

func matchesEvent(patterns []string, event string) bool {
	for _, pat := range patterns {
		if pat == event || (strings.HasSuffix(pat, "*") && strings.HasPrefix(event, strings.TrimSuffix(pat, "*"))) {
			return true
		}
	}
	return false
}

// ReadObject reads key as principal. The bucket policy must allow
// s3:GetObject on the object; a missing key is reported as ErrAccessDenied
// unless the principal may also list the bucket.
func (p *Platform) ReadObject(ctx context.Context, principal, bucket, key string) (*platform.Object, error) {
	p.mu.RLock()
	doc := p.policies[bucket]
	p.mu.RUnlock()

	objectARN := "arn:aws:s3:::" + bucket + "/" + key
	if policy.Evaluate(doc, policy.Request{Principal: principal, Action: policy.ActionGetObject, Resource: objectARN}) != policy.DecisionAllow {
		return nil, fmt.Errorf("%w: %s may not read %s", platform.ErrAccessDenied, principal, objectARN)
	}

	out, err := p.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = translate(err, bucket, key)
		if errors.Is(err, platform.ErrNoSuchKey) {
			canList := policy.Evaluate(doc, policy.Request{
				Principal: principal,
				Action:    "s3:ListBucket",
				Resource:  "arn:aws:s3:::" + bucket,
			}) == policy.DecisionAllow
			if !canList {
				return nil, fmt.Errorf("%w: %s may not list %s", platform.ErrAccessDenied, principal, bucket)
			}
		}
		return nil, err
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", bucket, key, err)
	}
	return &platform.Object{
		Key:          key,
		ContentType:  aws.StringValue(out.ContentType),
		ETag:         aws.StringValue(out.ETag),
		LastModified: aws.TimeValue(out.LastModified),
		Body:         body,
	}, nil
}

func (p *Platform) GetBucketPolicy(ctx context.Context, bucket string) (policy.Document, error) {
	if err := p.HeadBucket(ctx, bucket); err != nil {
		return policy.Document{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	doc, ok := p.policies[bucket]
	if !ok {
		return policy.NewDocument(), nil
	}
	return doc.Clone(), nil
}

func (p *Platform) PutBucketPolicy(ctx context.Context, bucket string, doc policy.Document) error {
	if err := p.HeadBucket(ctx, bucket); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if doc.Empty() {
		delete(p.policies, bucket)
		return nil
	}
	p.policies[bucket] = doc.Clone()
	return nil
}

func (p *Platform) CreateOriginAccessIdentity(_ context.Context, comment string) (platform.IdentityInfo, error) {
	id := "E" + strings.ToUpper(compactID()[:13])
	info := platform.IdentityInfo{
		ID:              id,
		Comment:         comment,
		PrincipalRef:    "arn:aws:iam::cloudfront:user/CloudFront Origin Access Identity " + id,
		CanonicalUserID: compactID() + compactID(),
	}
	p.mu.Lock()
	p.identities[id] = info
	p.mu.Unlock()
	p.log.Info("origin access identity created", zap.String("id", id))
	return info, nil
}

func (p *Platform) DeleteOriginAccessIdentity(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.identities[id]; !ok {
		return fmt.Errorf("%w: %s", platform.ErrNoSuchIdentity, id)
	}
	for _, d := range p.distributions {
		if d.Config.IdentityID == id {
			return fmt.Errorf("%w: %s is used by distribution %s", platform.ErrIdentityInUse, id, d.ID)
		}
	}
	delete(p.identities, id)
	return nil
}

func (p *Platform) CreateDistribution(ctx context.Context, cfg platform.DistributionConfig) (platform.DistributionInfo, error) {
	if err := p.HeadBucket(ctx, cfg.OriginBucket); err != nil {
		return platform.DistributionInfo{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.identities[cfg.IdentityID]; !ok {
		return platform.DistributionInfo{}, fmt.Errorf("%w: %s", platform.ErrNoSuchIdentity, cfg.IdentityID)
	}

	suffix := compactID()[:13]
	id := "E" + strings.ToUpper(suffix)
	cfg.AllowedMethods = append([]string(nil), cfg.AllowedMethods...)
	cfg.ErrorResponses = append([]platform.ErrorResponse(nil), cfg.ErrorResponses...)
	info := platform.DistributionInfo{
		ID:         id,
		ARN:        fmt.Sprintf("arn:aws:cloudfront::%s:distribution/%s", accountID, id),
		DomainName: "d" + suffix + ".cloudfront.net",
		Config:     cfg,
	}
	p.distributions[id] = info
	p.log.Info("distribution created",
		zap.String("id", id),
		zap.String("domainName", info.DomainName),
		zap.String("origin", cfg.OriginBucket))
	return info, nil
}

func (p *Platform) GetDistribution(_ context.Context, id string) (platform.DistributionInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.distributions[id]
	if !ok {
		return platform.DistributionInfo{}, fmt.Errorf("%w: %s", platform.ErrNoSuchDistribution, id)
	}
	return info, nil
}

func (p *Platform) DeleteDistribution(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.distributions[id]; !ok {
		return fmt.Errorf("%w: %s", platform.ErrNoSuchDistribution, id)
	}
	delete(p.distributions, id)
	return nil
}

func (p *Platform) PutBucketNotification(ctx context.Context, in platform.NotificationInput) (platform.NotificationInfo, error) {
	if err := p.HeadBucket(ctx, in.Bucket); err != nil {
		return platform.NotificationInfo{}, err
	}
	info := platform.NotificationInfo{
		ID:     uuid.NewString(),
		Bucket: in.Bucket,
		Events: append([]string(nil), in.Events...),
		Target: in.Target,
	}
	p.mu.Lock()
	p.notifications[in.Bucket] = append(p.notifications[in.Bucket], info)
	p.mu.Unlock()
	p.log.Info("bucket notification registered",
		zap.String("bucket", in.Bucket),
		zap.String("target", in.Target),
		zap.Strings("events", in.Events))
	return info, nil
}

func (p *Platform) DeleteBucketNotification(_ context.Context, bucket, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.notifications[bucket]
	for i, n := range list {
		if n.ID == id {
			p.notifications[bucket] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s on %s", platform.ErrNoSuchNotification, id, bucket)
}

// Distributions returns every live distribution.
func (p *Platform) Distributions() []platform.DistributionInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]platform.DistributionInfo, 0, len(p.distributions))
	for _, d := range p.distributions {
		out = append(out, d)
	}
	return out
}

func compactID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// translate maps SDK errors onto the platform sentinels.
func translate(err error, bucket, key string) error {
	where := bucket
	if key != "" {
		where = bucket + "/" + key
	}
	aerr, ok := err.(awserr.Error)
	if !ok {
		return fmt.Errorf("%s: %w", where, err)
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchBucket:
		return fmt.Errorf("%w: %s", platform.ErrNoSuchBucket, where)
	case s3.ErrCodeNoSuchKey:
		return fmt.Errorf("%w: %s", platform.ErrNoSuchKey, where)
	case s3.ErrCodeBucketAlreadyExists, s3.ErrCodeBucketAlreadyOwnedByYou:
		return fmt.Errorf("%w: %s", platform.ErrBucketExists, where)
	case "BucketNotEmpty":
		return fmt.Errorf("%w: %s", platform.ErrBucketNotEmpty, where)
	}
	if rf, ok := err.(awserr.RequestFailure); ok && rf.StatusCode() == 404 {
		if key == "" {
			return fmt.Errorf("%w: %s", platform.ErrNoSuchBucket, where)
		}
		return fmt.Errorf("%w: %s", platform.ErrNoSuchKey, where)
	}
	return fmt.Errorf("%s: %w", where, err)
}

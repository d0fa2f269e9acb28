// Package platform defines the blocking client the provisioner drives.
//
// Every call either succeeds or fails after completion; there is no
// cancellation mid-operation and timeouts belong to the implementation.
// internal/platform/local provides an in-process implementation.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/lex00/wetwire-site-go/internal/policy"
)

// Errors returned by implementations.
var (
	ErrNoSuchBucket       = errors.New("NoSuchBucket")
	ErrBucketExists       = errors.New("BucketAlreadyExists")
	ErrBucketNotEmpty     = errors.New("BucketNotEmpty")
	ErrNoSuchKey          = errors.New("NoSuchKey")
	ErrAccessDenied       = errors.New("AccessDenied")
	ErrNoSuchIdentity     = errors.New("NoSuchOriginAccessIdentity")
	ErrIdentityInUse      = errors.New("OriginAccessIdentityInUse")
	ErrNoSuchDistribution = errors.New("NoSuchDistribution")
	ErrNoSuchNotification = errors.New("NoSuchNotification")
)

// Client is the provisioning surface of the hosting platform.
type Client interface {
	policy.Store

	CreateBucket(ctx context.Context, in BucketInput) (BucketInfo, error)
	// DeleteBucket removes the bucket. With purge set every object is
	// deleted first; otherwise a non-empty bucket fails with ErrBucketNotEmpty.
	// It returns the number of objects removed.
	DeleteBucket(ctx context.Context, name string, purge bool) (int, error)
	HeadBucket(ctx context.Context, name string) error

	CreateOriginAccessIdentity(ctx context.Context, comment string) (IdentityInfo, error)
	DeleteOriginAccessIdentity(ctx context.Context, id string) error

	CreateDistribution(ctx context.Context, cfg DistributionConfig) (DistributionInfo, error)
	GetDistribution(ctx context.Context, id string) (DistributionInfo, error)
	DeleteDistribution(ctx context.Context, id string) error

	PutBucketNotification(ctx context.Context, in NotificationInput) (NotificationInfo, error)
	DeleteBucketNotification(ctx context.Context, bucket, id string) error
}

// Origin serves object reads made on behalf of a principal. Access is
// decided by the bucket policy alone.
type Origin interface {
	ReadObject(ctx context.Context, principal, bucket, key string) (*Object, error)
}

// BucketInput configures a new private bucket.
type BucketInput struct {
	Name          string
	IndexDocument string
	ErrorDocument string
}

// BucketInfo describes a created bucket.
type BucketInfo struct {
	Name               string
	ARN                string
	RegionalDomainName string
}

// IdentityInfo describes an origin access identity.
type IdentityInfo struct {
	ID              string
	Comment         string
	PrincipalRef    string
	CanonicalUserID string
}

// ErrorResponse is a distribution's custom error response.
type ErrorResponse struct {
	ErrorCode        int
	ResponseCode     int
	ResponsePagePath string
	MinTTL           int
}

// DistributionConfig is the full configuration of a distribution with a
// single default behaviour.
type DistributionConfig struct {
	Comment              string
	OriginBucket         string
	OriginDomainName     string
	IdentityID           string
	PrincipalRef         string
	ViewerProtocolPolicy string
	AllowedMethods       []string
	ForwardQueryString   bool
	DefaultRootObject    string
	ErrorResponses       []ErrorResponse
	PriceClass           string
}

// DistributionInfo describes a created distribution.
type DistributionInfo struct {
	ID         string
	ARN        string
	DomainName string
	Config     DistributionConfig
}

// NotificationInput routes bucket events to a target.
type NotificationInput struct {
	Bucket string
	Events []string
	Target string
}

// NotificationInfo describes a registered notification.
type NotificationInfo struct {
	ID     string
	Bucket string
	Events []string
	Target string
}

// Object is the result of an origin read.
type Object struct {
	Key          string
	ContentType  string
	ETag         string
	LastModified time.Time
	Body         []byte
}

// Event is an object-created notification.
type Event struct {
	ID        string    `json:"id"`
	Bucket    string    `json:"bucketId"`
	Key       string    `json:"objectKey"`
	EventName string    `json:"eventName"`
	Size      int64     `json:"size"`
	Time      time.Time `json:"eventTime"`
	Target    string    `json:"-"`
}

// EventSink receives object-created events for registered notifications.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

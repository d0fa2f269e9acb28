package policy

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/lex00/wetwire-site-go/internal/stackerr"
)

// Read-only object actions an origin identity may be granted.
const (
	ActionGetObject        = "s3:GetObject"
	ActionGetObjectVersion = "s3:GetObjectVersion"
)

var readOnlyActions = map[string]bool{
	ActionGetObject:        true,
	ActionGetObjectVersion: true,
}

// ReadOnlyActions returns the actions a grant may contain.
func ReadOnlyActions() []string {
	return []string{ActionGetObject, ActionGetObjectVersion}
}

// ValidateActions rejects empty action sets and anything outside the
// read-only set, wildcards included.
func ValidateActions(actions []string) ([]string, error) {
	set := normalizeSet(actions)
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no actions granted", stackerr.ErrEmptyGrant)
	}
	for _, a := range set {
		if readOnlyActions[a] {
			continue
		}
		if strings.Contains(a, "*") {
			return nil, fmt.Errorf("%w: wildcard action %q", stackerr.ErrOverbroadGrant, a)
		}
		return nil, fmt.Errorf("%w: action %q is not read-only object access", stackerr.ErrOverbroadGrant, a)
	}
	return set, nil
}

// ObjectsARN is the only resource pattern a grant may target.
func ObjectsARN(bucket string) string {
	return "arn:aws:s3:::" + bucket + "/*"
}

// NewGrant builds the statement allowing principal to perform actions on the
// objects of bucket. It fails with ErrInvalidPrincipal for an empty principal,
// ErrOverbroadGrant for mutating or wildcard actions and ErrDependencyNotReady
// for an empty bucket name.
func NewGrant(bucket, principal string, actions []string) (Statement, error) {
	if strings.TrimSpace(principal) == "" || principal == "*" {
		return Statement{}, fmt.Errorf("%w: identity has no usable principal reference", stackerr.ErrInvalidPrincipal)
	}
	if strings.TrimSpace(bucket) == "" || strings.ContainsAny(bucket, "*/") {
		return Statement{}, fmt.Errorf("%w: bucket identifier %q is not usable", stackerr.ErrDependencyNotReady, bucket)
	}
	set, err := ValidateActions(actions)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		Sid:       sid(principal),
		Effect:    EffectAllow,
		Principal: Principal{AWS: StringOrSlice{principal}},
		Actions:   StringOrSlice(set),
		Resources: StringOrSlice{ObjectsARN(bucket)},
	}, nil
}

// sid derives a stable statement id from the principal's last path segment.
func sid(principal string) string {
	last := principal
	if i := strings.LastIndexAny(principal, "/ "); i >= 0 {
		last = principal[i+1:]
	}
	var b strings.Builder
	b.WriteString("OriginRead")
	for _, r := range last {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Store reads and writes bucket policies. Writes must be visible to the next
// read once PutBucketPolicy returns.
type Store interface {
	GetBucketPolicy(ctx context.Context, bucket string) (Document, error)
	PutBucketPolicy(ctx context.Context, bucket string, doc Document) error
}

// Binder attaches grants to bucket policies.
type Binder struct {
	store Store
	log   *zap.Logger
}

// NewBinder creates a Binder over store.
func NewBinder(store Store, log *zap.Logger) *Binder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Binder{store: store, log: log}
}

// Bind attaches the grant for (bucket, principal, actions) to the bucket
// policy. Binding identical inputs twice leaves the policy unchanged. The
// policy is read back after writing so callers may rely on it immediately.
func (b *Binder) Bind(ctx context.Context, bucket, principal string, actions []string) (Statement, error) {
	stmt, err := NewGrant(bucket, principal, actions)
	if err != nil {
		return Statement{}, err
	}

	doc, err := b.store.GetBucketPolicy(ctx, bucket)
	if err != nil {
		return Statement{}, fmt.Errorf("reading policy of %s: %w", bucket, err)
	}
	if doc.Contains(stmt) {
		b.log.Debug("grant already bound", zap.String("bucket", bucket), zap.String("principal", principal))
		return stmt, nil
	}

	if err := b.store.PutBucketPolicy(ctx, bucket, doc.With(stmt)); err != nil {
		return Statement{}, fmt.Errorf("writing policy of %s: %w", bucket, err)
	}

	confirmed, err := b.store.GetBucketPolicy(ctx, bucket)
	if err != nil {
		return Statement{}, fmt.Errorf("confirming policy of %s: %w", bucket, err)
	}
	if !confirmed.Contains(stmt) {
		return Statement{}, fmt.Errorf("policy of %s does not reflect the new grant after write", bucket)
	}

	b.log.Info("grant bound",
		zap.String("bucket", bucket),
		zap.String("principal", principal),
		zap.Strings("actions", stmt.Actions))
	return stmt, nil
}

// Unbind removes every statement naming principal from the bucket policy.
func (b *Binder) Unbind(ctx context.Context, bucket, principal string) error {
	doc, err := b.store.GetBucketPolicy(ctx, bucket)
	if err != nil {
		return fmt.Errorf("reading policy of %s: %w", bucket, err)
	}
	next := doc.Without(principal)
	if len(next.Statements) == len(doc.Statements) {
		return nil
	}
	if err := b.store.PutBucketPolicy(ctx, bucket, next); err != nil {
		return fmt.Errorf("writing policy of %s: %w", bucket, err)
	}
	return nil
}

// Authorized reports whether the live policy of bucket lets principal read
// its objects.
func (b *Binder) Authorized(ctx context.Context, bucket, principal string) (bool, error) {
	doc, err := b.store.GetBucketPolicy(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("reading policy of %s: %w", bucket, err)
	}
	decision := Evaluate(doc, Request{
		Principal: principal,
		Action:    ActionGetObject,
		Resource:  ObjectsARN(bucket),
	})
	return decision == DecisionAllow, nil
}

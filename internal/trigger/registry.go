// Package trigger registers upload triggers and delivers object-created
// events to their handlers.
//
// Handlers are external collaborators resolved by reference. Delivery is
// at-least-once: a failing handler is retried up to MaxAttempts times and may
// therefore observe the same event more than once. Events from concurrent
// uploads are delivered in no particular order.
package trigger

import (
	"context"
	"sort"
	"sync"

	"github.com/lex00/wetwire-site-go/internal/platform"
	"github.com/lex00/wetwire-site-go/internal/stackerr"
)

// Handler processes one object-created event. The return value only
// signals whether delivery should be retried.
type Handler interface {
	Handle(ctx context.Context, ev platform.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev platform.Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev platform.Event) error { return f(ctx, ev) }

// Registry maps handler references to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for ref.
func (r *Registry) Register(ref string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[ref] = h
}

func (r *Registry) Lookup(ref string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[ref]
	return h, ok
}

// Refs returns the registered references, sorted.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.handlers))
	for ref := range r.handlers {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// NotificationClient is the part of the platform a trigger registration uses.
type NotificationClient interface {
	PutBucketNotification(ctx context.Context, in platform.NotificationInput) (platform.NotificationInfo, error)
	DeleteBucketNotification(ctx context.Context, bucket, id string) error
}

// Handle identifies a registered trigger.
type Handle struct {
	ID         string
	Bucket     string
	HandlerRef string
	Events     []string
}

// Register binds object-created events on bucket to handlerRef. The
// reference must resolve in reg; an unknown reference is a
// PreconditionError and nothing is registered.
func Register(ctx context.Context, client NotificationClient, reg *Registry, name, bucket, handlerRef string, events []string) (Handle, error) {
	if bucket == "" {
		return Handle{}, stackerr.Precondition(name, stackerr.ErrDependencyNotReady, "source bucket has no identifier")
	}
	if _, ok := reg.Lookup(handlerRef); !ok {
		return Handle{}, stackerr.Precondition(name, stackerr.ErrUnknownHandler, "handler %q is not registered", handlerRef)
	}
	info, err := client.PutBucketNotification(ctx, platform.NotificationInput{
		Bucket: bucket,
		Events: events,
		Target: handlerRef,
	})
	if err != nil {
		return Handle{}, err
	}
	return Handle{ID: info.ID, Bucket: info.Bucket, HandlerRef: info.Target, Events: info.Events}, nil
}

// Deregister removes a registration made by Register.
func Deregister(ctx context.Context, client NotificationClient, h Handle) error {
	return client.DeleteBucketNotification(ctx, h.Bucket, h.ID)
}

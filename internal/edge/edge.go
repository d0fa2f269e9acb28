// Package edge serves a distribution's single default behaviour over HTTP.
//
// Requests are answered from the origin bucket through the distribution's
// origin access identity, so the bucket policy decides what is readable.
// Origin errors matched by the error fallback map are rewritten to the
// substitute status and body, and cached for the rule's TTL.
package edge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lex00/wetwire-site-go/internal/metrics"
	"github.com/lex00/wetwire-site-go/internal/platform"
	"github.com/lex00/wetwire-site-go/resource"
)

// Config is the behaviour of one distribution.
type Config struct {
	DistributionID       string
	OriginBucket         string
	PrincipalRef         string
	ViewerProtocolPolicy resource.ViewerProtocolPolicy
	AllowedMethods       []string
	DefaultRootObject    string
	ErrorMap             resource.ErrorFallbackMap
}

// ConfigFromDistribution builds a Config from a created distribution.
func ConfigFromDistribution(info platform.DistributionInfo) (Config, error) {
	vpp, err := resource.ParseViewerProtocolPolicy(info.Config.ViewerProtocolPolicy)
	if err != nil {
		return Config{}, err
	}
	rules := make([]resource.ErrorFallbackRule, 0, len(info.Config.ErrorResponses))
	for _, r := range info.Config.ErrorResponses {
		rules = append(rules, resource.ErrorFallbackRule{
			MatchCode:        r.ErrorCode,
			SubstituteStatus: r.ResponseCode,
			CacheTTLSeconds:  r.MinTTL,
			ResponsePath:     r.ResponsePagePath,
		})
	}
	errorMap, err := resource.NewErrorFallbackMap(rules...)
	if err != nil {
		return Config{}, err
	}
	return Config{
		DistributionID:       info.ID,
		OriginBucket:         info.Config.OriginBucket,
		PrincipalRef:         info.Config.PrincipalRef,
		ViewerProtocolPolicy: vpp,
		AllowedMethods:       info.Config.AllowedMethods,
		DefaultRootObject:    info.Config.DefaultRootObject,
		ErrorMap:             errorMap,
	}, nil
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) { h.log = log }
}

func WithObserver(o *metrics.Observer) Option {
	return func(h *Handler) { h.observer = o }
}

// WithClock overrides the clock used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// Handler is an http.Handler for one distribution.
type Handler struct {
	origin   platform.Origin
	cfg      Config
	methods  map[string]bool
	log      *zap.Logger
	observer *metrics.Observer
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	object  *platform.Object
	expires time.Time
}

// New returns a Handler serving cfg from origin.
func New(origin platform.Origin, cfg Config, opts ...Option) *Handler {
	h := &Handler{
		origin:  origin,
		cfg:     cfg,
		methods: make(map[string]bool),
		log:     zap.NewNop(),
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
	for _, m := range cfg.AllowedMethods {
		h.methods[strings.ToUpper(m)] = true
	}
	if len(h.methods) == 0 {
		for _, m := range resource.ReadMethods {
			h.methods[m] = true
		}
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isHTTPS(r) {
		switch h.cfg.ViewerProtocolPolicy {
		case resource.HTTPSOnly:
			h.writeError(w, r, http.StatusForbidden)
			return
		case resource.AllowAll:
		default:
			target := "https://" + r.Host + r.URL.EscapedPath()
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			h.observer.ObserveEdgeResponse(http.StatusMovedPermanently, false)
			http.Redirect(w, r, target, http.StatusMovedPermanently)
			return
		}
	}

	if !h.methods[r.Method] {
		w.Header().Set("Allow", h.allowHeader())
		h.writeError(w, r, http.StatusMethodNotAllowed)
		return
	}

	// Query strings are not forwarded to the origin.
	key := strings.TrimPrefix(r.URL.Path, "/")
	if key == "" {
		key = h.cfg.DefaultRootObject
	}

	obj, err := h.origin.ReadObject(r.Context(), h.cfg.PrincipalRef, h.cfg.OriginBucket, key)
	if err == nil {
		h.observer.ObserveEdgeResponse(http.StatusOK, false)
		writeObject(w, r, http.StatusOK, obj, "")
		return
	}

	status := originStatus(err)
	rule, ok := h.cfg.ErrorMap.Resolve(status)
	if !ok {
		h.log.Debug("origin error", zap.String("key", key), zap.Int("status", status), zap.Error(err))
		h.writeError(w, r, status)
		return
	}

	body, err := h.fallbackObject(r.Context(), rule)
	if err != nil {
		h.log.Warn("error fallback unavailable",
			zap.String("key", key),
			zap.Int("status", status),
			zap.String("responsePath", rule.ResponsePath),
			zap.Error(err))
		h.writeError(w, r, status)
		return
	}

	h.log.Debug("error fallback applied",
		zap.String("key", key),
		zap.Int("status", status),
		zap.Int("substitute", rule.SubstituteStatus),
		zap.String("responsePath", rule.ResponsePath))
	h.observer.ObserveEdgeResponse(rule.SubstituteStatus, true)
	writeObject(w, r, rule.SubstituteStatus, body, "max-age="+strconv.Itoa(rule.CacheTTLSeconds))
}

// fallbackObject returns the rule's response body, from cache while the
// rule's TTL has not elapsed.
func (h *Handler) fallbackObject(ctx context.Context, rule resource.ErrorFallbackRule) (*platform.Object, error) {
	cacheKey := fmt.Sprintf("%d:%s", rule.MatchCode, rule.ResponsePath)
	if rule.CacheTTLSeconds > 0 {
		h.mu.Lock()
		entry, ok := h.cache[cacheKey]
		h.mu.Unlock()
		if ok && h.now().Before(entry.expires) {
			return entry.object, nil
		}
	}

	obj, err := h.origin.ReadObject(ctx, h.cfg.PrincipalRef, h.cfg.OriginBucket, strings.TrimPrefix(rule.ResponsePath, "/"))
	if err != nil {
		return nil, err
	}

	if rule.CacheTTLSeconds > 0 {
		h.mu.Lock()
		h.cache[cacheKey] = cacheEntry{
			object:  obj,
			expires: h.now().Add(time.Duration(rule.CacheTTLSeconds) * time.Second),
		}
		h.mu.Unlock()
	}
	return obj, nil
}

func (h *Handler) allowHeader() string {
	var out []string
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		if h.methods[m] {
			out = append(out, m)
		}
	}
	return strings.Join(out, ", ")
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int) {
	h.observer.ObserveEdgeResponse(status, false)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		fmt.Fprintln(w, http.StatusText(status))
	}
}

func writeObject(w http.ResponseWriter, r *http.Request, status int, obj *platform.Object, cacheControl string) {
	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.ETag != "" {
		w.Header().Set("ETag", obj.ETag)
	}
	if !obj.LastModified.IsZero() {
		w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Body)))
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(obj.Body)
	}
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func originStatus(err error) int {
	switch {
	case errors.Is(err, platform.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, platform.ErrNoSuchKey), errors.Is(err, platform.ErrNoSuchBucket):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

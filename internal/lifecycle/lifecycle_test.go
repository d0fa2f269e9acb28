package lifecycle

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-site-go/internal/edge"
	"github.com/lex00/wetwire-site-go/internal/metrics"
	"github.com/lex00/wetwire-site-go/internal/platform"
	"github.com/lex00/wetwire-site-go/internal/platform/local"
	"github.com/lex00/wetwire-site-go/internal/provision"
	"github.com/lex00/wetwire-site-go/internal/stackerr"
	"github.com/lex00/wetwire-site-go/internal/trigger"
	"github.com/lex00/wetwire-site-go/resource"
)

func spa(bucketName string, removal resource.RemovalPolicy) []resource.Descriptor {
	return []resource.Descriptor{
		resource.NewBucket("SiteBucket", resource.Bucket{Name: bucketName, RemovalPolicy: removal}),
		resource.NewIdentity("SiteIdentity", resource.Identity{Comment: "site"}),
		resource.NewBucketPolicy("SiteBucketPolicy", resource.Grant{
			Bucket: "SiteBucket", Identity: "SiteIdentity", Actions: []string{"s3:GetObject"},
		}),
		resource.NewDistribution("SiteDistribution", resource.Distribution{
			Origin: "SiteBucket", Identity: "SiteIdentity", ErrorMap: resource.DefaultSPA("index.html"),
		}),
		resource.NewUploadTrigger("SiteUploadTrigger", resource.UploadTrigger{
			Source: "SiteBucket", HandlerRef: "recorder",
		}),
	}
}

// faultyClient fails selected platform calls.
type faultyClient struct {
	platform.Client
	mu                 sync.Mutex
	failDistribution   bool
	failIdentityDelete bool
}

func (f *faultyClient) CreateDistribution(ctx context.Context, cfg platform.DistributionConfig) (platform.DistributionInfo, error) {
	f.mu.Lock()
	fail := f.failDistribution
	f.mu.Unlock()
	if fail {
		return platform.DistributionInfo{}, errors.New("distribution quota exceeded")
	}
	return f.Client.CreateDistribution(ctx, cfg)
}

func (f *faultyClient) DeleteOriginAccessIdentity(ctx context.Context, id string) error {
	f.mu.Lock()
	fail := f.failIdentityDelete
	f.mu.Unlock()
	if fail {
		return errors.New("identity service unavailable")
	}
	return f.Client.DeleteOriginAccessIdentity(ctx, id)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []platform.Event
}

func (r *eventRecorder) Handle(_ context.Context, ev platform.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type fixture struct {
	plat     *local.Platform
	client   *faultyClient
	handlers *trigger.Registry
	recorder *eventRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	plat, err := local.New()
	require.NoError(t, err)
	t.Cleanup(plat.Close)

	rec := &eventRecorder{}
	handlers := trigger.NewRegistry()
	handlers.Register("recorder", rec)
	return &fixture{plat: plat, client: &faultyClient{Client: plat}, handlers: handlers, recorder: rec}
}

func (f *fixture) stack(descs []resource.Descriptor, opts ...Option) *Stack {
	return New("site", descs, provision.New(f.client, f.handlers), opts...)
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func TestStack_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dispatcher := trigger.NewDispatcher(f.handlers)
	f.plat.SetEventSink(dispatcher)

	s := f.stack(spa("site-assets", resource.RemovalDestroy))
	assert.Equal(t, Uninitialized, s.State())

	_, err := s.Plan()
	require.NoError(t, err)
	assert.Equal(t, Planned, s.State())

	report, err := s.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, Applied, report.State)
	assert.Equal(t, "SiteUploadTrigger", report.LastApplied)

	out, err := s.Outputs()
	require.NoError(t, err)
	assert.Equal(t, "site-assets", out.BucketID)
	assert.NotEmpty(t, out.DistributionEndpoint)
	assert.NotEmpty(t, out.PrincipalRef)

	const index = "<!doctype html><div id=root></div>"
	require.NoError(t, f.plat.PutObject(ctx, "site-assets", "index.html", []byte(index), "text/html"))
	require.NoError(t, f.plat.PutObject(ctx, "site-assets", "static/app.js", []byte("render()"), "application/javascript"))

	info, err := f.plat.GetDistribution(ctx, out.DistributionID)
	require.NoError(t, err)
	cfg, err := edge.ConfigFromDistribution(info)
	require.NoError(t, err)
	srv := httptest.NewTLSServer(edge.New(f.plat, cfg))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/users/42/profile")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, index, body)

	code, body = get("/static/app.js")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "render()", body)

	code, body = get("/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, index, body)

	require.NoError(t, dispatcher.Close())
	keys := make([]string, 0, len(f.recorder.events))
	for _, ev := range f.recorder.events {
		assert.Equal(t, "site-assets", ev.Bucket)
		keys = append(keys, ev.Key)
	}
	assert.ElementsMatch(t, []string{"index.html", "static/app.js"}, keys)

	created := s.Created()
	report, err = s.Destroy(ctx)
	require.NoError(t, err)
	assert.Equal(t, Destroyed, report.State)
	if diff := cmp.Diff(reversed(created), report.Deleted); diff != "" {
		t.Errorf("destroy order is not the reverse of create order (-want +got):\n%s", diff)
	}
	assert.ErrorIs(t, f.plat.HeadBucket(ctx, "site-assets"), platform.ErrNoSuchBucket)

	_, err = s.Outputs()
	assert.ErrorIs(t, err, ErrNotApplied)
}

func TestStack_ApplyFailureLeavesResources(t *testing.T) {
	f := newFixture(t)
	f.client.failDistribution = true
	ctx := context.Background()

	s := f.stack(spa("site-assets", resource.RemovalDestroy))
	_, err := s.Plan()
	require.NoError(t, err)

	report, err := s.Apply(ctx)
	require.Error(t, err)
	assert.True(t, stackerr.IsProvisioning(err))
	assert.Equal(t, Failed, report.State)
	assert.Equal(t, "SiteBucketPolicy", report.LastApplied)
	failure, ok := report.Failed()
	require.True(t, ok)
	assert.Equal(t, "SiteDistribution", failure.Resource)
	assert.Equal(t, "ProvisioningError", failure.Category)
	assert.Contains(t, failure.Reason, "distribution quota exceeded")

	assert.Equal(t, []string{"SiteBucket", "SiteIdentity", "SiteBucketPolicy"}, s.Created())
	assert.NoError(t, f.plat.HeadBucket(ctx, "site-assets"), "no automatic rollback")

	_, err = s.Outputs()
	assert.ErrorIs(t, err, ErrNotApplied)
	_, err = s.Apply(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Plan()
	assert.ErrorIs(t, err, ErrInvalidTransition, "partial resources must be destroyed before re-planning")

	report, err = s.Destroy(ctx)
	require.NoError(t, err)
	assert.Equal(t, Destroyed, report.State)
	assert.Equal(t, []string{"SiteBucketPolicy", "SiteIdentity", "SiteBucket"}, report.Deleted)
}

func TestStack_DestroyIsBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.stack(spa("site-assets", resource.RemovalDestroy))
	_, err := s.Plan()
	require.NoError(t, err)
	_, err = s.Apply(ctx)
	require.NoError(t, err)
	require.NoError(t, f.plat.PutObject(ctx, "site-assets", "index.html", []byte("x"), ""))

	f.client.failIdentityDelete = true
	report, err := s.Destroy(ctx)
	require.Error(t, err)
	assert.True(t, stackerr.IsProvisioning(err))
	assert.Equal(t, Failed, report.State)
	assert.Equal(t, []string{"SiteUploadTrigger", "SiteDistribution", "SiteBucketPolicy", "SiteBucket"}, report.Deleted,
		"deletion continues past the failing identity")
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "SiteIdentity", report.Failures[0].Resource)
	assert.Equal(t, []string{"SiteIdentity"}, s.Created())
	assert.ErrorIs(t, f.plat.HeadBucket(ctx, "site-assets"), platform.ErrNoSuchBucket, "non-empty bucket is purged")

	f.client.failIdentityDelete = false
	report, err = s.Destroy(ctx)
	require.NoError(t, err)
	assert.Equal(t, Destroyed, report.State)
	assert.Equal(t, []string{"SiteIdentity"}, report.Deleted)
	assert.Empty(t, s.Created())
}

func TestStack_RetainedBucket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.stack(spa("site-assets", resource.RemovalRetain))
	_, err := s.Plan()
	require.NoError(t, err)
	_, err = s.Apply(ctx)
	require.NoError(t, err)

	report, err := s.Destroy(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SiteBucket"}, report.Retained)
	assert.NoError(t, f.plat.HeadBucket(ctx, "site-assets"))
}

func TestStack_PlanFailure(t *testing.T) {
	f := newFixture(t)
	descs := spa("site-assets", resource.RemovalDestroy)
	descs[0] = resource.NewBucket("SiteBucket", resource.Bucket{Name: "site-assets"}, resource.WithDependsOn("SiteDistribution"))

	s := f.stack(descs)
	_, err := s.Plan()
	require.Error(t, err)
	assert.ErrorIs(t, err, stackerr.ErrCyclicDependency)
	assert.Equal(t, Failed, s.State())
	failure, ok := s.Report().Failed()
	require.True(t, ok)
	assert.Equal(t, "ConfigurationError", failure.Category)

	_, err = s.Apply(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	report, err := s.Destroy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Destroyed, report.State)
}

func TestStack_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.stack(spa("site-assets", resource.RemovalDestroy))

	_, err := s.Apply(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Destroy(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Uninitialized, s.State())

	_, err = s.Plan()
	require.NoError(t, err)
	_, err = s.Destroy(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition, "a planned stack has nothing to destroy")
}

func TestStack_TransitionMetrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	s := f.stack(spa("site-assets", resource.RemovalDestroy), WithObserver(metrics.NewObserver(reg)))

	_, err := s.Plan()
	require.NoError(t, err)
	_, err = s.Apply(context.Background())
	require.NoError(t, err)
	_, err = s.Destroy(context.Background())
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "sitestack_lifecycle_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 6, n, "PLANNING PLANNED APPLYING APPLIED DESTROYING DESTROYED")
}

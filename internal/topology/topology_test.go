package topology

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-site-go/internal/config"
	"github.com/lex00/wetwire-site-go/internal/plan"
	"github.com/lex00/wetwire-site-go/internal/stackerr"
	"github.com/lex00/wetwire-site-go/resource"
)

func baseConfig() *config.Config {
	return &config.Config{
		Stack: "site",
		S3: config.S3{
			BucketName:    "site-assets",
			IndexDocument: "index.html",
			ErrorDocument: "index.html",
			RemovalPolicy: "destroy",
		},
		Distribution: config.Distribution{
			PriceClass:           "PriceClass_100",
			ViewerProtocolPolicy: "redirect-to-https",
			AllowedMethods:       []string{"GET", "HEAD"},
			ErrorResponses: []config.ErrorResponse{
				{Code: 403, Status: 200, Path: "/index.html"},
				{Code: 404, Status: 200, Path: "/index.html"},
			},
		},
	}
}

func TestBuild_PlansInDependencyOrder(t *testing.T) {
	descs, err := Build(baseConfig())
	require.NoError(t, err)
	require.Len(t, descs, 4)

	p, err := plan.Build(descs)
	require.NoError(t, err)
	want := []string{BucketName, IdentityName, BucketPolicyName, DistributionName}
	if diff := cmp.Diff(want, p.Names()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Resources(t *testing.T) {
	c := baseConfig()
	c.S3.RemovalPolicy = "retain"
	c.Distribution.ViewerProtocolPolicy = "https-only"

	descs, err := Build(c)
	require.NoError(t, err)

	b, ok := descs[0].BucketSpec()
	require.True(t, ok)
	assert.Equal(t, "site-assets", b.Name)
	assert.Equal(t, resource.AccessPrivate, b.AccessMode)
	assert.Equal(t, resource.RemovalRetain, b.RemovalPolicy)

	g, ok := descs[2].GrantSpec()
	require.True(t, ok)
	assert.Equal(t, []string{"s3:GetObject"}, g.Actions)

	d, ok := descs[3].DistributionSpec()
	require.True(t, ok)
	assert.Equal(t, resource.HTTPSOnly, d.ViewerProtocolPolicy)
	assert.Equal(t, resource.DefaultSPA("index.html").Rules(), d.ErrorMap.Rules())
}

func TestBuild_Trigger(t *testing.T) {
	c := baseConfig()
	c.Trigger.Handler = "thumbnailer"

	descs, err := Build(c)
	require.NoError(t, err)
	require.Len(t, descs, 5)

	tr, ok := descs[4].TriggerSpec()
	require.True(t, ok)
	assert.Equal(t, BucketName, tr.Source)
	assert.Equal(t, "thumbnailer", tr.HandlerRef)
	assert.Equal(t, []string{BucketName}, descs[4].DependsOn())
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"removal policy", func(c *config.Config) { c.S3.RemovalPolicy = "archive" }, stackerr.ErrInvalidBucket},
		{"viewer policy", func(c *config.Config) { c.Distribution.ViewerProtocolPolicy = "http-only" }, stackerr.ErrInvalidBehavior},
		{"price class", func(c *config.Config) { c.Distribution.PriceClass = "cheap" }, stackerr.ErrInvalidBehavior},
		{"error map", func(c *config.Config) {
			c.Distribution.ErrorResponses = append(c.Distribution.ErrorResponses, config.ErrorResponse{Code: 404, Status: 200, Path: "/x.html"})
		}, stackerr.ErrInvalidErrorMap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := baseConfig()
			tt.mutate(c)
			_, err := Build(c)
			require.Error(t, err)
			assert.True(t, stackerr.IsConfiguration(err))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuild_AllowAllIsRejectedAtPlanning(t *testing.T) {
	c := baseConfig()
	c.Distribution.ViewerProtocolPolicy = "allow-all"

	descs, err := Build(c)
	require.NoError(t, err)

	_, err = plan.Build(descs)
	assert.ErrorIs(t, err, stackerr.ErrInvalidBehavior)
}

func TestBuild_DefaultFallbackUsesIndexDocument(t *testing.T) {
	c := baseConfig()
	c.S3.IndexDocument = "app.html"
	c.Distribution.ErrorResponses = nil

	descs, err := Build(c)
	require.NoError(t, err)

	d, ok := descs[3].DistributionSpec()
	require.True(t, ok)
	for _, code := range []int{403, 404} {
		rule, ok := d.ErrorMap.Resolve(code)
		require.True(t, ok, "no fallback for %d", code)
		assert.Equal(t, "/app.html", rule.ResponsePath)
		assert.Equal(t, 200, rule.SubstituteStatus)
	}
}

func TestBuild_ConfiguredErrorResponsesWin(t *testing.T) {
	c := baseConfig()
	c.S3.IndexDocument = "app.html"
	c.Distribution.ErrorResponses = []config.ErrorResponse{{Code: 404, Status: 404, Path: "/missing.html", TTL: 60}}

	descs, err := Build(c)
	require.NoError(t, err)

	d, _ := descs[3].DistributionSpec()
	assert.Equal(t, 1, d.ErrorMap.Len())
	_, ok := d.ErrorMap.Resolve(403)
	assert.False(t, ok)
}

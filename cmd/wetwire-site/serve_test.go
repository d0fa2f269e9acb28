package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lex00/wetwire-site-go/internal/config"
	"github.com/lex00/wetwire-site-go/internal/topology"
)

func loadSite(t *testing.T, content string) (*config.Config, *observer.ObservedLogs, *site) {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, content))
	require.NoError(t, err)
	descs, err := topology.Build(cfg)
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	s, err := startSite(context.Background(), zap.New(core), cfg, descs)
	require.NoError(t, err)
	return cfg, logs, s
}

func writeContent(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0644))
	return dir
}

func get(t *testing.T, client *http.Client, url string, https bool) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if https {
		req.Header.Set("X-Forwarded-Proto", "https")
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestSite_ServesUploadedContent(t *testing.T) {
	_, logs, s := loadSite(t, siteConfig)

	applied := s.applyResult()
	require.True(t, applied.Success, "%+v", applied.Failure)
	assert.Equal(t, "APPLIED", applied.State)
	assert.Equal(t, "SiteUploadTrigger", applied.LastApplied)
	require.NotNil(t, applied.Outputs)
	assert.NotEmpty(t, applied.Outputs.DistributionEndpoint)

	files, size, err := s.upload(context.Background(), writeContent(t))
	require.NoError(t, err)
	assert.Equal(t, 2, files)
	assert.Equal(t, int64(len("<html>app</html>")+len("console.log(1)")), size)

	srv := httptest.NewServer(s.handler())
	defer srv.Close()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, body := get(t, client, srv.URL+"/", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>app</html>", body)

	resp, body = get(t, client, srv.URL+"/assets/app.js", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log(1)", body)

	resp, body = get(t, client, srv.URL+"/settings/profile", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>app</html>", body)

	resp, _ = get(t, client, srv.URL+"/", false)
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)

	_, body = get(t, client, srv.URL+"/metrics", false)
	assert.Contains(t, body, "sitestack_edge_responses_total")
	assert.Contains(t, body, "sitestack_lifecycle_transitions_total")

	destroyed, err := s.shutdown(context.Background())
	require.NoError(t, err)
	assert.True(t, destroyed.Success)
	assert.Equal(t, "DESTROYED", destroyed.State)
	assert.Equal(t, []string{"SiteUploadTrigger", "SiteDistribution", "SiteBucketPolicy", "SiteIdentity", "SiteBucket"}, destroyed.Deleted)

	assert.Equal(t, 2, logs.FilterMessage("object uploaded").Len())
}

func TestSite_UnknownHandlerFailsApply(t *testing.T) {
	_, _, s := loadSite(t, "stack: site\ns3:\n  bucketName: site-assets\ntrigger:\n  handler: thumbnailer\n")

	applied := s.applyResult()
	assert.False(t, applied.Success)
	assert.Equal(t, "FAILED", applied.State)
	assert.Equal(t, "SiteDistribution", applied.LastApplied)
	require.NotNil(t, applied.Failure)
	assert.Equal(t, "SiteUploadTrigger", applied.Failure.Resource)
	assert.Equal(t, "PreconditionError", applied.Failure.Category)
	assert.Nil(t, applied.Outputs)

	destroyed, err := s.shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DESTROYED", destroyed.State)
	assert.Len(t, destroyed.Deleted, 4)
}

func TestSite_RetainedBucket(t *testing.T) {
	_, _, s := loadSite(t, "stack: site\ns3:\n  bucketName: site-assets\n  removalPolicy: retain\n")
	require.True(t, s.applyResult().Success)

	destroyed, err := s.shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DESTROYED", destroyed.State)
	assert.Equal(t, []string{"SiteBucket"}, destroyed.Retained)
	assert.NotContains(t, destroyed.Deleted, "SiteBucket")
}

func TestPrintReport_Text(t *testing.T) {
	_, _, s := loadSite(t, siteConfig)
	var out strings.Builder
	require.NoError(t, printReport(&out, s.applyResult(), "text"))
	assert.Contains(t, out.String(), "Stack APPLIED: 5 resources created")

	destroyed, err := s.shutdown(context.Background())
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, printReport(&out, destroyed, "text"))
	assert.Contains(t, out.String(), "Stack DESTROYED: 5 deleted, 0 retained")

	assert.EqualError(t, printReport(&out, destroyed, "xml"), "unknown format: xml")
}

func TestSite_FallbackServesConfiguredIndexDocument(t *testing.T) {
	_, _, s := loadSite(t, "stack: site\ns3:\n  bucketName: site-assets\n  indexDocument: app.html\n")
	require.True(t, s.applyResult().Success)
	defer func() {
		_, err := s.shutdown(context.Background())
		assert.NoError(t, err)
	}()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.html"), []byte("<html>shell</html>"), 0644))
	_, _, err := s.upload(context.Background(), dir)
	require.NoError(t, err)

	srv := httptest.NewServer(s.handler())
	defer srv.Close()

	for _, path := range []string{"/", "/users/42"} {
		resp, body := get(t, srv.Client(), srv.URL+path, true)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "<html>shell</html>", body, path)
	}
}

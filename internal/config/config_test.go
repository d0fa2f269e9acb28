package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-site-go/internal/stackerr"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "site.yaml", "s3:\n  bucketName: site-assets\n")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "site", c.Stack)
	assert.Equal(t, "site-assets", c.S3.BucketName)
	assert.Equal(t, "index.html", c.S3.IndexDocument)
	assert.Equal(t, "index.html", c.S3.ErrorDocument)
	assert.Equal(t, "destroy", c.S3.RemovalPolicy)
	assert.Equal(t, "PriceClass_100", c.Distribution.PriceClass)
	assert.Equal(t, "redirect-to-https", c.Distribution.ViewerProtocolPolicy)
	assert.Equal(t, []string{"GET", "HEAD"}, c.Distribution.AllowedMethods)
	assert.Empty(t, c.Trigger.Handler)
	assert.Empty(t, c.Distribution.ErrorResponses)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, "site.yaml", `
stack: docs
s3:
  bucketName: docs-assets
  indexDocument: main.html
  removalPolicy: retain
distribution:
  priceClass: PriceClass_All
  viewerProtocolPolicy: https-only
  errorResponses:
    - code: 404
      status: 200
      path: /main.html
      ttl: 30
trigger:
  handler: thumbnailer
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "docs", c.Stack)
	assert.Equal(t, "main.html", c.S3.IndexDocument)
	assert.Equal(t, "retain", c.S3.RemovalPolicy)
	assert.Equal(t, "PriceClass_All", c.Distribution.PriceClass)
	assert.Equal(t, "https-only", c.Distribution.ViewerProtocolPolicy)
	assert.Equal(t, "thumbnailer", c.Trigger.Handler)
	require.Len(t, c.Distribution.ErrorResponses, 1)
	assert.Equal(t, ErrorResponse{Code: 404, Status: 200, Path: "/main.html", TTL: 30}, c.Distribution.ErrorResponses[0])
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "site.json", `{"s3": {"bucketName": "json-assets"}}`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json-assets", c.S3.BucketName)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SITE_S3_BUCKETNAME", "env-assets")
	t.Setenv("SITE_TRIGGER_HANDLER", "indexer")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-assets", c.S3.BucketName)
	assert.Equal(t, "indexer", c.Trigger.Handler)
}

func TestLoad_MissingBucketName(t *testing.T) {
	path := writeConfig(t, "site.yaml", "stack: site\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, stackerr.IsConfiguration(err))
	assert.ErrorIs(t, err, stackerr.ErrInvalidBucket)
	assert.Contains(t, err.Error(), "s3.bucketName")
}

func TestLoad_InvalidEnums(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"removal policy", "s3:\n  bucketName: a-bucket\n  removalPolicy: snapshot\n", stackerr.ErrInvalidBucket},
		{"price class", "s3:\n  bucketName: a-bucket\ndistribution:\n  priceClass: PriceClass_1\n", stackerr.ErrInvalidBehavior},
		{"viewer policy", "s3:\n  bucketName: a-bucket\ndistribution:\n  viewerProtocolPolicy: http-only\n", stackerr.ErrInvalidBehavior},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "site.yaml", tt.content))
			require.Error(t, err)
			assert.True(t, stackerr.IsConfiguration(err))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestDistribution_ErrorMapDuplicate(t *testing.T) {
	d := Distribution{ErrorResponses: []ErrorResponse{
		{Code: 404, Status: 200, Path: "/index.html"},
		{Code: 404, Status: 200, Path: "/other.html"},
	}}
	_, err := d.ErrorMap()
	assert.ErrorIs(t, err, stackerr.ErrInvalidErrorMap)
}

package wetwire_site

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceDef_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(ResourceDef{Type: "AWS::CloudFront::CloudFrontOriginAccessIdentity"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Type": "AWS::CloudFront::CloudFrontOriginAccessIdentity"}`, string(data))
}

func TestTemplate_MarshalJSON(t *testing.T) {
	tmpl := Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Resources: map[string]ResourceDef{
			"SiteBucket": {
				Type:           "AWS::S3::Bucket",
				Properties:     map[string]any{"BucketName": "site-assets"},
				DeletionPolicy: "Retain",
			},
		},
		Outputs: map[string]Output{
			"BucketId": {Value: map[string]string{"Ref": "SiteBucket"}},
		},
	}

	data, err := json.Marshal(tmpl)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"AWSTemplateFormatVersion": "2010-09-09",
		"Resources": {
			"SiteBucket": {
				"Type": "AWS::S3::Bucket",
				"Properties": {"BucketName": "site-assets"},
				"DeletionPolicy": "Retain"
			}
		},
		"Outputs": {"BucketId": {"Value": {"Ref": "SiteBucket"}}}
	}`, string(data))
}

func TestApplyResult_MarshalJSON(t *testing.T) {
	result := ApplyResult{
		State:       "FAILED",
		LastApplied: "SiteBucketPolicy",
		Created:     []string{"SiteBucket", "SiteIdentity", "SiteBucketPolicy"},
		Failure: &Failure{
			Resource: "SiteDistribution",
			Category: "ProvisioningError",
			Reason:   "quota exceeded",
		},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "SiteBucketPolicy", decoded["lastApplied"])
	assert.NotContains(t, decoded, "outputs")
	failure := decoded["failure"].(map[string]any)
	assert.Equal(t, "SiteDistribution", failure["resource"])
}

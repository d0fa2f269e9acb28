// Package topology assembles the static-site descriptor set from
// configuration.
package topology

import (
	"github.com/lex00/wetwire-site-go/internal/config"
	"github.com/lex00/wetwire-site-go/internal/policy"
	"github.com/lex00/wetwire-site-go/internal/stackerr"
	"github.com/lex00/wetwire-site-go/resource"
)

// Logical names of the generated resources.
const (
	BucketName       = "SiteBucket"
	IdentityName     = "SiteIdentity"
	BucketPolicyName = "SiteBucketPolicy"
	DistributionName = "SiteDistribution"
	TriggerName      = "SiteUploadTrigger"
)

// Build returns the bucket, identity, read grant and distribution for a
// single-page application, plus an upload trigger when a handler is
// configured. Without configured error responses, 403 and 404 fall back to
// the bucket's index document.
func Build(c *config.Config) ([]resource.Descriptor, error) {
	removal, err := resource.ParseRemovalPolicy(c.S3.RemovalPolicy)
	if err != nil {
		return nil, stackerr.Configuration(BucketName, stackerr.ErrInvalidBucket, "%v", err)
	}
	viewer, err := resource.ParseViewerProtocolPolicy(c.Distribution.ViewerProtocolPolicy)
	if err != nil {
		return nil, stackerr.Configuration(DistributionName, stackerr.ErrInvalidBehavior, "%v", err)
	}
	price, err := resource.ParsePriceClass(c.Distribution.PriceClass)
	if err != nil {
		return nil, stackerr.Configuration(DistributionName, stackerr.ErrInvalidBehavior, "%v", err)
	}
	errorMap := resource.DefaultSPA(c.S3.IndexDocument)
	if len(c.Distribution.ErrorResponses) > 0 {
		if errorMap, err = c.Distribution.ErrorMap(); err != nil {
			return nil, stackerr.Configuration(DistributionName, err, "")
		}
	}

	descs := []resource.Descriptor{
		resource.NewBucket(BucketName, resource.Bucket{
			Name:          c.S3.BucketName,
			IndexDocument: c.S3.IndexDocument,
			ErrorDocument: c.S3.ErrorDocument,
			RemovalPolicy: removal,
		}),
		resource.NewIdentity(IdentityName, resource.Identity{
			Comment: "origin access for " + c.S3.BucketName,
		}),
		resource.NewBucketPolicy(BucketPolicyName, resource.Grant{
			Bucket:   BucketName,
			Identity: IdentityName,
			Actions:  []string{policy.ActionGetObject},
		}),
		resource.NewDistribution(DistributionName, resource.Distribution{
			Origin:               BucketName,
			Identity:             IdentityName,
			ViewerProtocolPolicy: viewer,
			AllowedMethods:       c.Distribution.AllowedMethods,
			ErrorMap:             errorMap,
			PriceClass:           price,
			Comment:              c.Stack,
		}),
	}
	if c.Trigger.Handler != "" {
		descs = append(descs, resource.NewUploadTrigger(TriggerName, resource.UploadTrigger{
			Source:     BucketName,
			HandlerRef: c.Trigger.Handler,
		}))
	}
	return descs, nil
}

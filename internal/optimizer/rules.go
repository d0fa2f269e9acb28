package optimizer

import (
	"fmt"
	"net/http"
	"strings"

	wetwire "github.com/lex00/wetwire-site-go"
	"github.com/lex00/wetwire-site-go/resource"
)

var rules = []Rule{
	{
		ID:       "OPT-S3-001",
		Kind:     resource.KindBucket,
		Category: CategoryReliability,
		Check:    func(d resource.Descriptor) *wetwire.OptimizeSuggestion {
			b, _ := d.BucketSpec()
			if b.RemovalPolicy != resource.RemovalDestroy {
				return nil
			}
			return &wetwire.OptimizeSuggestion{
				Severity:    "medium",
				Title:       "Bucket content is deleted on teardown",
				Description: fmt.Sprintf("Destroying the stack empties and deletes bucket %s.", b.Name),
				Suggestion:  "Set s3.removalPolicy to retain for buckets whose content is not rebuilt on deploy.",
			}
		},
	},
	{
		ID:       "OPT-S3-002",
		Kind:     resource.KindBucket,
		Category: CategoryReliability,
		Check:    func(d resource.Descriptor) *wetwire.OptimizeSuggestion {
			b, _ := d.BucketSpec()
			if b.ErrorDocument == b.IndexDocument {
				return nil
			}
			return &wetwire.OptimizeSuggestion{
				Severity:    "low",
				Title:       "Error document differs from the index document",
				Description: fmt.Sprintf("Client-side routes reaching the bucket website directly render %s instead of %s.", b.ErrorDocument, b.IndexDocument),
				Suggestion:  "Set s3.errorDocument to the index document for single-page applications.",
			}
		},
	},
	{
		ID:       "OPT-CDN-001",
		Kind:     resource.KindDistribution,
		Category: CategoryReliability,
		Check:    func(d resource.Descriptor) *wetwire.OptimizeSuggestion {
			dist, _ := d.DistributionSpec()
			if _, ok := dist.ErrorMap.Resolve(http.StatusForbidden); ok {
				return nil
			}
			return &wetwire.OptimizeSuggestion{
				Severity:    "high",
				Title:       "No fallback for 403",
				Description: "A private origin answers 403 for missing keys, so deep links are not rewritten to the application.",
				Suggestion:  "Add a distribution.errorResponses entry for code 403 that serves the index document with status 200.",
			}
		},
	},
	{
		ID:       "OPT-CDN-002",
		Kind:     resource.KindDistribution,
		Category: CategoryPerformance,
		Check:    func(d resource.Descriptor) *wetwire.OptimizeSuggestion {
			dist, _ := d.DistributionSpec()
			var uncached []string
			for _, r := range dist.ErrorMap.Rules() {
				if r.CacheTTLSeconds == 0 {
					uncached = append(uncached, fmt.Sprint(r.MatchCode))
				}
			}
			if len(uncached) == 0 {
				return nil
			}
			return &wetwire.OptimizeSuggestion{
				Severity:    "low",
				Title:       "Error fallbacks are not cached",
				Description: fmt.Sprintf("Every %s response goes back to the origin.", strings.Join(uncached, "/")),
				Suggestion:  "Give the errorResponses entries a ttl of a few seconds.",
			}
		},
	},
	{
		ID:       "OPT-CDN-003",
		Kind:     resource.KindDistribution,
		Category: CategorySecurity,
		Check:    func(d resource.Descriptor) *wetwire.OptimizeSuggestion {
			dist, _ := d.DistributionSpec()
			if dist.ViewerProtocolPolicy != resource.RedirectToHTTPS {
				return nil
			}
			return &wetwire.OptimizeSuggestion{
				Severity:    "low",
				Title:       "First request may travel over HTTP",
				Description: "redirect-to-https answers plain HTTP requests with a redirect, so the initial request and its headers are sent unencrypted.",
				Suggestion:  "Use https-only when no viewer relies on the redirect.",
			}
		},
	},
	{
		ID:       "OPT-TRG-001",
		Kind:     resource.KindUploadTrigger,
		Category: CategoryReliability,
		Check:    func(d resource.Descriptor) *wetwire.OptimizeSuggestion {
			tr, _ := d.TriggerSpec()
			if strings.HasPrefix(tr.HandlerRef, "arn:") {
				return nil
			}
			return &wetwire.OptimizeSuggestion{
				Severity:    "medium",
				Title:       "Upload handler is referenced by name",
				Description: fmt.Sprintf("Handler %q resolves to a function in the account and region the stack is deployed to.", tr.HandlerRef),
				Suggestion:  "Use the function ARN to pin the handler to one account and region.",
			}
		},
	},
}

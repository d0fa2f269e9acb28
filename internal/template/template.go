// Package template synthesises a CloudFormation template from a plan.
package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	wetwire "github.com/lex00/wetwire-site-go"
	"github.com/lex00/wetwire-site-go/intrinsics"
	"github.com/lex00/wetwire-site-go/internal/plan"
	"github.com/lex00/wetwire-site-go/resource"
)

// FormatVersion is the only CloudFormation template version.
const FormatVersion = "2010-09-09"

// Output names.
const (
	OutputBucketID             = "BucketId"
	OutputDistributionID       = "DistributionId"
	OutputDistributionEndpoint = "DistributionEndpoint"
	OutputPrincipalRef         = "PrincipalRef"
)

// Builder constructs CloudFormation templates from a plan.
type Builder struct {
	plan        *plan.Plan
	description string
	position    map[string]int
}

// NewBuilder creates a template builder for p.
func NewBuilder(p *plan.Plan) *Builder {
	b := &Builder{plan: p, position: make(map[string]int, p.Len())}
	for i, name := range p.Names() {
		b.position[name] = i
	}
	return b
}

// WithDescription sets the template description.
func (b *Builder) WithDescription(desc string) *Builder {
	b.description = desc
	return b
}

// Build constructs the CloudFormation template.
func (b *Builder) Build() (*wetwire.Template, error) {
	t := &wetwire.Template{
		AWSTemplateFormatVersion: FormatVersion,
		Description:              b.description,
		Resources:                make(map[string]wetwire.ResourceDef),
	}

	for _, d := range b.plan.Order() {
		def, err := b.resourceDef(d)
		if err != nil {
			return nil, fmt.Errorf("serializing %s: %w", d.Name(), err)
		}
		t.Resources[d.Name()] = def

		if tr, ok := d.TriggerSpec(); ok {
			t.Resources[permissionName(d.Name())] = wetwire.ResourceDef{
				Type: "AWS::Lambda::Permission",
				Properties: map[string]any{
					"Action":       "lambda:InvokeFunction",
					"FunctionName": handlerArn(tr.HandlerRef),
					"Principal":    "events.amazonaws.com",
					"SourceArn":    intrinsics.GetAtt{LogicalName: d.Name(), Attribute: "Arn"},
				},
				DependsOn: []string{d.Name()},
			}
		}
	}

	t.Outputs = b.outputs()
	return t, nil
}

func (b *Builder) resourceDef(d resource.Descriptor) (wetwire.ResourceDef, error) {
	def := wetwire.ResourceDef{
		Type:      d.Kind().CFType(),
		DependsOn: b.dependsOn(d.Name()),
	}
	switch d.Kind() {
	case resource.KindBucket:
		spec, _ := d.BucketSpec()
		def.Properties = b.bucketProperties(d.Name(), spec)
		def.DeletionPolicy = "Delete"
		if spec.RemovalPolicy == resource.RemovalRetain {
			def.DeletionPolicy = "Retain"
		}
		def.UpdateReplacePolicy = def.DeletionPolicy
	case resource.KindOriginAccessIdentity:
		spec, _ := d.IdentitySpec()
		def.Properties = map[string]any{
			"CloudFrontOriginAccessIdentityConfig": map[string]any{"Comment": spec.Comment},
		}
	case resource.KindBucketPolicy:
		spec, _ := d.GrantSpec()
		def.Properties = bucketPolicyProperties(spec)
	case resource.KindDistribution:
		spec, _ := d.DistributionSpec()
		props, err := b.distributionProperties(spec)
		if err != nil {
			return def, err
		}
		def.Properties = props
	case resource.KindUploadTrigger:
		spec, _ := d.TriggerSpec()
		def.Properties = triggerProperties(spec)
	default:
		return def, fmt.Errorf("unknown resource kind: %s", d.Kind())
	}
	return def, nil
}

// dependsOn lists the dependencies of name in plan order.
func (b *Builder) dependsOn(name string) []string {
	deps := b.plan.Dependencies(name)
	if len(deps) == 0 {
		return nil
	}
	out := make([]string, len(deps))
	copy(out, deps)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && b.position[out[j]] < b.position[out[j-1]]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (b *Builder) bucketProperties(name string, spec resource.Bucket) map[string]any {
	props := map[string]any{
		"BucketName":    spec.Name,
		"AccessControl": string(spec.AccessMode),
		"PublicAccessBlockConfiguration": map[string]any{
			"BlockPublicAcls":       true,
			"BlockPublicPolicy":     true,
			"IgnorePublicAcls":      true,
			"RestrictPublicBuckets": true,
		},
		"WebsiteConfiguration": map[string]any{
			"IndexDocument": spec.IndexDocument,
			"ErrorDocument": spec.ErrorDocument,
		},
	}
	if b.hasTrigger(name) {
		props["NotificationConfiguration"] = map[string]any{
			"EventBridgeConfiguration": map[string]any{"EventBridgeEnabled": true},
		}
	}
	return props
}

func (b *Builder) hasTrigger(bucket string) bool {
	for _, d := range b.plan.Order() {
		if tr, ok := d.TriggerSpec(); ok && tr.Source == bucket {
			return true
		}
	}
	return false
}

func bucketPolicyProperties(g resource.Grant) map[string]any {
	doc := intrinsics.NewPolicyDocument()
	doc.Statement = intrinsics.Any(intrinsics.PolicyStatement{
		Effect:    "Allow",
		Principal: intrinsics.CanonicalUserPrincipal{intrinsics.GetAtt{LogicalName: g.Identity, Attribute: resource.AttrCanonicalID}},
		Action:    g.Actions,
		Resource:  objectsArn(g.Bucket),
	})
	return map[string]any{
		"Bucket":         intrinsics.Ref{LogicalName: g.Bucket},
		"PolicyDocument": doc,
	}
}

func (b *Builder) distributionProperties(spec resource.Distribution) (map[string]any, error) {
	origin, ok := b.plan.Lookup(spec.Origin)
	if !ok {
		return nil, fmt.Errorf("origin %q is not in the plan", spec.Origin)
	}
	bucket, _ := origin.BucketSpec()
	originID := spec.Origin + "Origin"

	errorResponses := make([]any, 0, spec.ErrorMap.Len())
	for _, r := range spec.ErrorMap.Rules() {
		errorResponses = append(errorResponses, map[string]any{
			"ErrorCode":          r.MatchCode,
			"ResponseCode":       r.SubstituteStatus,
			"ResponsePagePath":   r.ResponsePath,
			"ErrorCachingMinTTL": r.CacheTTLSeconds,
		})
	}

	config := map[string]any{
		"Enabled":           true,
		"DefaultRootObject": bucket.IndexDocument,
		"PriceClass":        string(spec.PriceClass),
		"Origins": intrinsics.Any(map[string]any{
			"Id":         originID,
			"DomainName": intrinsics.GetAtt{LogicalName: spec.Origin, Attribute: "RegionalDomainName"},
			"S3OriginConfig": map[string]any{
				"OriginAccessIdentity": intrinsics.Join{
					Delimiter: "",
					Values:    intrinsics.Any("origin-access-identity/cloudfront/", intrinsics.Ref{LogicalName: spec.Identity}),
				},
			},
		}),
		"DefaultCacheBehavior": map[string]any{
			"TargetOriginId":       originID,
			"ViewerProtocolPolicy": string(spec.ViewerProtocolPolicy),
			"AllowedMethods":       spec.AllowedMethods,
			"CachedMethods":        spec.AllowedMethods,
			"Compress":             true,
			"ForwardedValues":      map[string]any{"QueryString": false},
		},
	}
	if spec.Comment != "" {
		config["Comment"] = spec.Comment
	}
	if len(errorResponses) > 0 {
		config["CustomErrorResponses"] = errorResponses
	}
	return map[string]any{"DistributionConfig": config}, nil
}

func triggerProperties(tr resource.UploadTrigger) map[string]any {
	return map[string]any{
		"State": "ENABLED",
		"EventPattern": map[string]any{
			"source":      []string{"aws.s3"},
			"detail-type": []string{"Object Created"},
			"detail": map[string]any{
				"bucket": map[string]any{"name": intrinsics.Any(intrinsics.Ref{LogicalName: tr.Source})},
			},
		},
		"Targets": intrinsics.Any(map[string]any{
			"Id":  targetID(tr.HandlerRef),
			"Arn": handlerArn(tr.HandlerRef),
		}),
	}
}

func (b *Builder) outputs() map[string]wetwire.Output {
	out := make(map[string]wetwire.Output)
	for _, d := range b.plan.Order() {
		switch d.Kind() {
		case resource.KindBucket:
			if _, ok := out[OutputBucketID]; !ok {
				out[OutputBucketID] = output("Content bucket name", intrinsics.Ref{LogicalName: d.Name()}, OutputBucketID)
			}
		case resource.KindDistribution:
			if _, ok := out[OutputDistributionID]; ok {
				continue
			}
			spec, _ := d.DistributionSpec()
			out[OutputDistributionID] = output("Distribution ID", intrinsics.Ref{LogicalName: d.Name()}, OutputDistributionID)
			out[OutputDistributionEndpoint] = output("Public HTTPS endpoint",
				intrinsics.Sub{String: fmt.Sprintf("https://${%s.DomainName}", d.Name())}, OutputDistributionEndpoint)
			out[OutputPrincipalRef] = output("Principal granted read access to the bucket",
				intrinsics.Sub{String: fmt.Sprintf("arn:aws:iam::cloudfront:user/CloudFront Origin Access Identity ${%s}", spec.Identity)}, OutputPrincipalRef)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func output(desc string, value any, export string) wetwire.Output {
	return wetwire.Output{
		Description: desc,
		Value:       value,
		Export: &wetwire.Export{
			Name: intrinsics.Join{Delimiter: "-", Values: intrinsics.Any(intrinsics.AWS_STACK_NAME, export)},
		},
	}
}

func objectsArn(bucket string) intrinsics.Join {
	return intrinsics.Join{
		Delimiter: "",
		Values:    intrinsics.Any("arn:aws:s3:::", intrinsics.Ref{LogicalName: bucket}, "/*"),
	}
}

// handlerArn resolves a handler reference: full ARNs are used as given,
// anything else names a function in the stack's account and region.
func handlerArn(ref string) any {
	if strings.HasPrefix(ref, "arn:") {
		return ref
	}
	return intrinsics.Sub{String: "arn:${AWS::Partition}:lambda:${AWS::Region}:${AWS::AccountId}:function:" + ref}
}

func targetID(ref string) string {
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		ref = ref[i+1:]
	}
	if len(ref) > 64 {
		ref = ref[:64]
	}
	return ref
}

func permissionName(trigger string) string {
	return trigger + "Permission"
}

// ToJSON serializes the template to JSON.
func ToJSON(t *wetwire.Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ToYAML serializes the template to YAML. Intrinsics are rendered in their
// JSON long form ("Fn::GetAtt": [...]).
func ToYAML(t *wetwire.Template) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

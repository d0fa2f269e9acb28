// Package intrinsics provides the CloudFormation intrinsic functions and IAM
// policy types used when a site stack is synthesised.
//
// The core intrinsics are re-exported from cloudformation-schema-go:
//
//	Ref{"SiteBucket"}                         → {"Ref": "SiteBucket"}
//	GetAtt{"SiteBucket", "RegionalDomainName"} → {"Fn::GetAtt": ["SiteBucket", "RegionalDomainName"]}
//	Sub{"https://${SiteDistribution.DomainName}"}
//	Join{"", []any{"arn:aws:s3:::", Ref{"SiteBucket"}, "/*"}}
package intrinsics

import (
	"github.com/lex00/cloudformation-schema-go/intrinsics"
)

type (
	// Ref represents a CloudFormation Ref intrinsic function.
	Ref = intrinsics.Ref

	// GetAtt represents a CloudFormation Fn::GetAtt intrinsic function.
	GetAtt = intrinsics.GetAtt

	// Sub represents a CloudFormation Fn::Sub intrinsic function.
	Sub = intrinsics.Sub

	// Join represents a CloudFormation Fn::Join intrinsic function.
	Join = intrinsics.Join
)

// AWS_STACK_NAME returns the name of the stack.
var AWS_STACK_NAME = intrinsics.AWS_STACK_NAME

// Any creates a []any slice from the given items.
func Any(items ...any) []any {
	return items
}

package stackerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfiguration_WrapsSentinel(t *testing.T) {
	err := Configuration("SiteBucketPolicy", ErrOverbroadGrant, "action %q mutates objects", "s3:PutObject")

	assert.True(t, errors.Is(err, ErrOverbroadGrant))
	assert.True(t, IsConfiguration(err))
	assert.False(t, IsPrecondition(err))
	assert.Equal(t, `configuration error: SiteBucketPolicy: OverbroadGrant: action "s3:PutObject" mutates objects`, err.Error())
}

func TestCategory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"configuration", Configuration("", ErrCyclicDependency, ""), "ConfigurationError"},
		{"precondition", Precondition("SiteDistribution", ErrOriginNotAuthorized, ""), "PreconditionError"},
		{"provisioning", Provisioning("SiteBucket", "create", errors.New("boom")), "ProvisioningError"},
		{"wrapped provisioning", fmt.Errorf("apply: %w", Provisioning("SiteBucket", "create", errors.New("boom"))), "ProvisioningError"},
		{"plain", errors.New("other"), "Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Category(tt.err))
		})
	}
}

func TestProvisioning_Unwrap(t *testing.T) {
	cause := errors.New("bucket already exists")
	err := Provisioning("SiteBucket", "create", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "provisioning error: create SiteBucket: bucket already exists", err.Error())
}

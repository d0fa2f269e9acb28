// Package config loads the site stack settings from a file and the
// environment.
//
// Keys mirror the configuration file layout (s3.bucketName,
// distribution.priceClass, ...). Every key can be overridden from the
// environment with the SITE_ prefix and dots replaced by underscores, for
// example SITE_S3_BUCKETNAME.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/lex00/wetwire-site-go/internal/stackerr"
	"github.com/lex00/wetwire-site-go/resource"
)

// EnvPrefix is prepended to environment overrides.
const EnvPrefix = "SITE"

// Config is the full stack configuration.
type Config struct {
	Stack        string       `mapstructure:"stack"`
	S3           S3           `mapstructure:"s3"`
	Distribution Distribution `mapstructure:"distribution"`
	Trigger      Trigger      `mapstructure:"trigger"`
}

// S3 configures the content bucket.
type S3 struct {
	BucketName    string `mapstructure:"bucketName"`
	IndexDocument string `mapstructure:"indexDocument"`
	ErrorDocument string `mapstructure:"errorDocument"`
	RemovalPolicy string `mapstructure:"removalPolicy"`
}

// Distribution configures the CDN distribution.
type Distribution struct {
	PriceClass           string          `mapstructure:"priceClass"`
	ViewerProtocolPolicy string          `mapstructure:"viewerProtocolPolicy"`
	AllowedMethods       []string        `mapstructure:"allowedMethods"`
	ErrorResponses       []ErrorResponse `mapstructure:"errorResponses"`
}

// ErrorResponse is one error fallback rule.
type ErrorResponse struct {
	Code   int    `mapstructure:"code"`
	Status int    `mapstructure:"status"`
	Path   string `mapstructure:"path"`
	TTL    int    `mapstructure:"ttl"`
}

// Trigger configures the optional upload trigger. An empty Handler means no
// trigger is declared.
type Trigger struct {
	Handler string `mapstructure:"handler"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stack", "site")
	v.SetDefault("s3.bucketName", "")
	v.SetDefault("s3.indexDocument", resource.DefaultIndexDocument)
	v.SetDefault("s3.errorDocument", resource.DefaultIndexDocument)
	v.SetDefault("s3.removalPolicy", "destroy")
	v.SetDefault("distribution.priceClass", string(resource.PriceClass100))
	v.SetDefault("distribution.viewerProtocolPolicy", string(resource.RedirectToHTTPS))
	v.SetDefault("distribution.allowedMethods", resource.ReadMethods)
	v.SetDefault("trigger.handler", "")
}

// Load reads the configuration file at path, when set, and applies
// environment overrides on top of the defaults. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s: %w", path, err)
			}
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks required keys and enum values.
func (c *Config) Validate() error {
	if c.S3.BucketName == "" {
		return stackerr.Configuration("", stackerr.ErrInvalidBucket, "s3.bucketName is required")
	}
	if _, err := resource.ParseRemovalPolicy(c.S3.RemovalPolicy); err != nil {
		return stackerr.Configuration("", stackerr.ErrInvalidBucket, "s3.removalPolicy: %v", err)
	}
	if _, err := resource.ParsePriceClass(c.Distribution.PriceClass); err != nil {
		return stackerr.Configuration("", stackerr.ErrInvalidBehavior, "distribution.priceClass: %v", err)
	}
	if _, err := resource.ParseViewerProtocolPolicy(c.Distribution.ViewerProtocolPolicy); err != nil {
		return stackerr.Configuration("", stackerr.ErrInvalidBehavior, "distribution.viewerProtocolPolicy: %v", err)
	}
	return nil
}

// ErrorMap builds the fallback map from the configured error responses.
// Callers fall back to resource.DefaultSPA when none are configured.
func (d Distribution) ErrorMap() (resource.ErrorFallbackMap, error) {
	rules := make([]resource.ErrorFallbackRule, 0, len(d.ErrorResponses))
	for _, r := range d.ErrorResponses {
		rules = append(rules, resource.ErrorFallbackRule{
			MatchCode:        r.Code,
			SubstituteStatus: r.Status,
			CacheTTLSeconds:  r.TTL,
			ResponsePath:     r.Path,
		})
	}
	return resource.NewErrorFallbackMap(rules...)
}

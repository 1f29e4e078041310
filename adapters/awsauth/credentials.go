// Package awsauth resolves AWS credentials and region for the AWS-backed
// speech adapters.
package awsauth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// DefaultRegion is used when no region is configured anywhere.
const DefaultRegion = "us-east-1"

// Options configures credential resolution. All fields are optional; the
// default credential chain and AWS_DEFAULT_REGION fill the gaps.
type Options struct {
	APIKey    string
	APISecret string
	Region    string
}

// ResolveRegion picks the region from options, then AWS_DEFAULT_REGION,
// then the default.
func ResolveRegion(region string) string {
	if region != "" {
		return region
	}
	if env := os.Getenv("AWS_DEFAULT_REGION"); env != "" {
		return env
	}
	return DefaultRegion
}

// LoadConfig builds an aws.Config. An explicit key/secret pair takes
// precedence over the default chain; resolution fails when no usable
// credentials are found.
func LoadConfig(ctx context.Context, opts Options) (aws.Config, error) {
	region := ResolveRegion(opts.Region)

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if opts.APIKey != "" && opts.APISecret != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.APIKey, opts.APISecret, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("no valid aws credentials found: %w", err)
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return aws.Config{}, errors.New("no valid aws credentials found")
	}

	return cfg, nil
}

package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf(
		"Error in inputs: %s",
		e.Message)
}

func TrimAndCheckEmptyString(s *string) bool {
	*s = strings.TrimSpace(*s)
	return len(*s) == 0
}

// LoadAWSConfig resolves credentials from the default chain, pinning the region when one is given.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if !TrimAndCheckEmptyString(&region) {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS configuration: %w", err)
	}
	return cfg, nil
}

package layer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"go.uber.org/zap"

	"github.com/amithasarath/test-common-framework/common"
	"github.com/amithasarath/test-common-framework/utils"
)

func Client(ctx context.Context, region string) (*lambda.Client, error) {
	cfg, err := common.LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return lambda.NewFromConfig(cfg), nil
}

// DefaultRetryPolicy retries throttled publish calls.
func DefaultRetryPolicy() utils.RetryPolicy {
	return utils.RetryPolicy{
		MaxAttempts: 4,
		Delay:       2 * time.Second,
		Backoff:     2,
		RetryIf:     common.IsThrottled,
	}
}

func (wrapper ServiceWrapper) retryPolicy() utils.RetryPolicy {
	policy := wrapper.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}
	if policy.OnRetry == nil {
		log := wrapper.logger()
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			log.Warn("publish throttled, retrying",
				zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		}
	}
	return policy
}

func ValidateLayerParams(params common.LayerParams) error {
	if common.TrimAndCheckEmptyString(&params.LayerName) {
		return &common.InputError{Message: "Layer Name cannot be null."}
	}
	if common.TrimAndCheckEmptyString(&params.SourceDir) {
		return &common.InputError{Message: "Source directory has to be included."}
	}
	if params.PackagesPerLayer < 0 {
		return &common.InputError{Message: "Packages per layer cannot be negative."}
	}
	return nil
}

// Publish uploads content as a new version of the named layer.
func (wrapper ServiceWrapper) Publish(ctx context.Context, name string, params common.LayerParams, content []byte) (*lambda.PublishLayerVersionOutput, error) {
	input := &lambda.PublishLayerVersionInput{
		LayerName: aws.String(name),
		Content:   &types.LayerVersionContentInput{ZipFile: content},
	}
	if !common.TrimAndCheckEmptyString(&params.Description) {
		input.Description = aws.String(params.Description)
	}
	if !common.TrimAndCheckEmptyString(&params.LicenseInfo) {
		input.LicenseInfo = aws.String(params.LicenseInfo)
	}
	for _, runtime := range params.CompatibleRuntimes {
		input.CompatibleRuntimes = append(input.CompatibleRuntimes, types.Runtime(runtime))
	}
	for _, architecture := range params.Architectures {
		input.CompatibleArchitectures = append(input.CompatibleArchitectures, types.Architecture(architecture))
	}

	output, err := utils.RetryWithResult(ctx, wrapper.retryPolicy(), func(ctx context.Context) (*lambda.PublishLayerVersionOutput, error) {
		return wrapper.Client.PublishLayerVersion(ctx, input)
	})
	if err != nil {
		return nil, fmt.Errorf("unable to publish layer %s: %w", name, err)
	}
	return output, nil
}

// LatestVersion returns the newest version of a layer, or nil when none was published.
func (wrapper ServiceWrapper) LatestVersion(ctx context.Context, name string) (*types.LayerVersionsListItem, error) {
	output, err := wrapper.Client.ListLayerVersions(ctx, &lambda.ListLayerVersionsInput{
		LayerName: aws.String(name),
		MaxItems:  aws.Int32(1),
	})
	if err != nil {
		if common.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(output.LayerVersions) == 0 {
		return nil, nil
	}
	return &output.LayerVersions[0], nil
}

// LayerName returns the name used for the index-th layer out of total.
func LayerName(base string, index, total int) string {
	if total <= 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, index+1)
}

// PublishAll packages every dependency in params.SourceDir and publishes
// them as one or more layers.
func (wrapper ServiceWrapper) PublishAll(ctx context.Context, params common.LayerParams) ([]PublishedLayer, error) {
	if err := ValidateLayerParams(params); err != nil {
		return nil, err
	}
	log := wrapper.logger()

	packages, err := DiscoverPackages(params.SourceDir)
	if err != nil {
		return nil, err
	}
	groups, err := Plan(packages, params.PackagesPerLayer)
	if err != nil {
		return nil, err
	}
	prefix := DefaultPrefix
	if params.Prefix != "" {
		prefix = normalizePrefix(params.Prefix)
	}

	published := make([]PublishedLayer, 0, len(groups))
	var uncompressedTotal int64
	for index, group := range groups {
		name := LayerName(params.LayerName, index, len(groups))

		var buffer bytes.Buffer
		stats, err := BuildArchive(&buffer, group, prefix)
		if err != nil {
			return published, err
		}
		stats.CompressedBytes = int64(buffer.Len())
		if err := CheckSize(stats); err != nil {
			return published, fmt.Errorf("layer %s: %w", name, err)
		}
		uncompressedTotal += stats.UncompressedBytes
		if uncompressedTotal > MaxUncompressedBytes {
			return published, fmt.Errorf("%w: layers total %d bytes uncompressed, limit is %d",
				ErrLayerTooLarge, uncompressedTotal, MaxUncompressedBytes)
		}

		log.Info("publishing layer",
			zap.String("layer", name),
			zap.Int("packages", len(group)),
			zap.Int("files", stats.Files),
			zap.Int64("compressed_bytes", stats.CompressedBytes))

		var previousVersion int64
		previous, err := wrapper.LatestVersion(ctx, name)
		if err != nil {
			log.Warn("unable to look up the current layer version", zap.String("layer", name), zap.Error(err))
		} else if previous != nil {
			previousVersion = previous.Version
		}

		output, err := wrapper.Publish(ctx, name, params, buffer.Bytes())
		if err != nil {
			return published, err
		}

		names := make([]string, 0, len(group))
		for _, pkg := range group {
			names = append(names, pkg.Name)
		}
		published = append(published, PublishedLayer{
			Name:            name,
			LayerArn:        aws.ToString(output.LayerArn),
			LayerVersionArn: aws.ToString(output.LayerVersionArn),
			Version:         output.Version,
			PreviousVersion: previousVersion,
			Packages:        names,
			Stats:           stats,
		})
		log.Info("layer published",
			zap.String("layer", name),
			zap.String("arn", aws.ToString(output.LayerVersionArn)),
			zap.Int64("previous_version", previousVersion))
	}
	return published, nil
}

package lambda

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"go.uber.org/zap"

	"github.com/amithasarath/test-common-framework/common"
	"github.com/amithasarath/test-common-framework/layer"
	"github.com/amithasarath/test-common-framework/utils"
)

type FunctionApi interface {
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
	UpdateFunctionConfiguration(ctx context.Context, params *lambda.UpdateFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error)
	CreateFunction(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
	DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
}

// RoleProvider hands out an execution role ARN for a new function.
type RoleProvider interface {
	EnsureExecutionRole(ctx context.Context, roleName string, rolePolicy string) (*string, error)
}

type ServiceWrapper struct {
	Client      FunctionApi
	Logger      *zap.Logger
	RetryPolicy utils.RetryPolicy
}

func Client(ctx context.Context, region string) (*lambda.Client, error) {
	cfg, err := common.LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return lambda.NewFromConfig(cfg), nil
}

// DefaultRetryPolicy covers the window where Lambda rejects an update because
// the previous one is still being applied.
func DefaultRetryPolicy() utils.RetryPolicy {
	return utils.RetryPolicy{
		MaxAttempts: 10,
		Delay:       2 * time.Second,
		Backoff:     1,
		RetryIf:     common.IsConflict,
	}
}

func (wrapper ServiceWrapper) logger() *zap.Logger {
	if wrapper.Logger == nil {
		return zap.NewNop()
	}
	return wrapper.Logger
}

func (wrapper ServiceWrapper) retryPolicy() utils.RetryPolicy {
	policy := wrapper.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}
	if policy.OnRetry == nil {
		log := wrapper.logger()
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			log.Warn("Lambda rejected the request, retrying",
				zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		}
	}
	return policy
}

// GetFunctionDetails returns nil without error when the function does not exist.
func (wrapper ServiceWrapper) GetFunctionDetails(ctx context.Context, name string) (*lambda.GetFunctionOutput, error) {
	resp, err := wrapper.Client.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		if common.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to get function %s: %w", name, err)
	}
	return resp, nil
}

func ValidateInputParams(lambdaParams common.DeployParams, createFlag bool) error {
	var errorMessage strings.Builder
	if common.TrimAndCheckEmptyString(&lambdaParams.FunctionName) {
		errorMessage.WriteString("Function Name cannot be null.\n")
	}
	checkS3 := !common.TrimAndCheckEmptyString(&lambdaParams.BucketName) && !common.TrimAndCheckEmptyString(&lambdaParams.KeyName)
	if !checkS3 && common.TrimAndCheckEmptyString(&lambdaParams.ZipFile) {
		errorMessage.WriteString("Either S3 Bucket and Key or Zip file has to be included.\n")
	}
	if createFlag {
		if common.TrimAndCheckEmptyString(&lambdaParams.Runtime) {
			errorMessage.WriteString("Runtime must be specified.\n")
		}
		if common.TrimAndCheckEmptyString(&lambdaParams.HandlerName) {
			errorMessage.WriteString("HandlerName must be specified.\n")
		}
	}
	if len(lambdaParams.Layers) > layer.MaxLayersPerFunction {
		errorMessage.WriteString(fmt.Sprintf("At most %d layers can be attached.\n", layer.MaxLayersPerFunction))
	}

	if errorMessage.Len() > 0 {
		return &common.InputError{
			Message: errorMessage.String(),
		}
	}
	return nil
}

func (wrapper ServiceWrapper) UpdateFunctionConfiguration(ctx context.Context, lambdaParams common.DeployParams) error {
	wrapper.logger().Info("Updating Function Configuration", zap.String("function", lambdaParams.FunctionName))
	configInput := &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(lambdaParams.FunctionName),
	}
	if lambdaParams.Memory > 0 {
		configInput.MemorySize = aws.Int32(int32(lambdaParams.Memory))
	}
	if lambdaParams.Timeout > 0 {
		configInput.Timeout = aws.Int32(int32(lambdaParams.Timeout))
	}
	if lambdaParams.EnvironmentVariables != nil {
		configInput.Environment = &types.Environment{
			Variables: lambdaParams.EnvironmentVariables,
		}
	}
	if !common.TrimAndCheckEmptyString(&lambdaParams.RoleArn) {
		configInput.Role = aws.String(lambdaParams.RoleArn)
	}
	if len(lambdaParams.Layers) > 0 {
		configInput.Layers = lambdaParams.Layers
	}

	return wrapper.updateConfiguration(ctx, configInput)
}

func (wrapper ServiceWrapper) updateConfiguration(ctx context.Context, configInput *lambda.UpdateFunctionConfigurationInput) error {
	err := utils.Retry(ctx, wrapper.retryPolicy(), func(ctx context.Context) error {
		_, err := wrapper.Client.UpdateFunctionConfiguration(ctx, configInput)
		return err
	})
	if err != nil {
		return fmt.Errorf("unable to update configuration of %s: %w", aws.ToString(configInput.FunctionName), err)
	}
	wrapper.logger().Info("Resource Updated successfully", zap.String("function", aws.ToString(configInput.FunctionName)))
	return nil
}

func (wrapper ServiceWrapper) UpdateFunction(ctx context.Context, lambdaParams common.DeployParams) error {
	functionInput := &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(lambdaParams.FunctionName),
	}

	wrapper.logger().Info("Updating function", zap.String("function", lambdaParams.FunctionName))
	if !common.TrimAndCheckEmptyString(&lambdaParams.BucketName) && !common.TrimAndCheckEmptyString(&lambdaParams.KeyName) {
		functionInput.S3Bucket = aws.String(lambdaParams.BucketName)
		functionInput.S3Key = aws.String(lambdaParams.KeyName)
	}
	if !common.TrimAndCheckEmptyString(&lambdaParams.ZipFile) {
		contents, err := GetFunctionCodeFromZip(lambdaParams.ZipFile)
		if err != nil {
			return err
		}
		functionInput.ZipFile = contents
	}

	err := utils.Retry(ctx, wrapper.retryPolicy(), func(ctx context.Context) error {
		_, err := wrapper.Client.UpdateFunctionCode(ctx, functionInput)
		return err
	})
	if err != nil {
		return fmt.Errorf("unable to update code of %s: %w", lambdaParams.FunctionName, err)
	}
	return nil
}

// AttachLayers points the function at the given layer versions. A layer that
// is already attached in another version is replaced in place; unrelated
// layers are kept.
func (wrapper ServiceWrapper) AttachLayers(ctx context.Context, name string, layerVersionArns []string) ([]string, error) {
	details, err := wrapper.GetFunctionDetails(ctx, name)
	if err != nil {
		return nil, err
	}
	if details == nil || details.Configuration == nil {
		return nil, &common.InputError{Message: fmt.Sprintf("Function %s does not exist.", name)}
	}

	current := make([]string, 0, len(details.Configuration.Layers))
	for _, attached := range details.Configuration.Layers {
		current = append(current, aws.ToString(attached.Arn))
	}
	merged := MergeLayers(current, layerVersionArns)
	if len(merged) > layer.MaxLayersPerFunction {
		return nil, fmt.Errorf("%w: %s would reference %d layers", layer.ErrTooManyLayers, name, len(merged))
	}

	wrapper.logger().Info("Attaching layers", zap.String("function", name), zap.Strings("layers", merged))
	err = wrapper.updateConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(name),
		Layers:       merged,
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// MergeLayers replaces versions of layers already in current and appends new ones.
func MergeLayers(current []string, updates []string) []string {
	merged := make([]string, 0, len(current)+len(updates))
	positions := make(map[string]int, len(current)+len(updates))
	for _, arn := range append(append([]string{}, current...), updates...) {
		base := unversionedArn(arn)
		if position, ok := positions[base]; ok {
			merged[position] = arn
			continue
		}
		positions[base] = len(merged)
		merged = append(merged, arn)
	}
	return merged
}

// arn:aws:lambda:region:account:layer:name:version
func unversionedArn(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) == 8 {
		return strings.Join(parts[:7], ":")
	}
	return arn
}

func GetFunctionCodeFromZip(fileName string) ([]byte, error) {
	contents, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("unable to read zip file %s: %w", fileName, err)
	}
	return contents, nil
}

// New creates the function. Without a role ARN an execution role named
// after the function is provisioned through roles.
func (wrapper ServiceWrapper) New(ctx context.Context, lambdaParams common.DeployParams, roles RoleProvider) (*lambda.CreateFunctionOutput, error) {
	var roleArn *string
	if common.TrimAndCheckEmptyString(&lambdaParams.RoleArn) {
		var err error
		roleArn, err = roles.EnsureExecutionRole(ctx, lambdaParams.FunctionName+"_role", lambdaParams.Policy)
		if err != nil {
			return nil, err
		}
	} else {
		roleArn = aws.String(lambdaParams.RoleArn)
	}

	functionInput := &lambda.CreateFunctionInput{
		FunctionName: aws.String(lambdaParams.FunctionName),
		Role:         roleArn,
		Runtime:      types.Runtime(lambdaParams.Runtime),
		Handler:      aws.String(lambdaParams.HandlerName),
		Layers:       lambdaParams.Layers,
	}
	if lambdaParams.Memory > 0 {
		functionInput.MemorySize = aws.Int32(int32(lambdaParams.Memory))
	}
	if lambdaParams.Timeout > 0 {
		functionInput.Timeout = aws.Int32(int32(lambdaParams.Timeout))
	}
	if lambdaParams.EnvironmentVariables != nil {
		functionInput.Environment = &types.Environment{Variables: lambdaParams.EnvironmentVariables}
	}
	if !common.TrimAndCheckEmptyString(&lambdaParams.BucketName) && !common.TrimAndCheckEmptyString(&lambdaParams.KeyName) {
		functionInput.Code = &types.FunctionCode{
			S3Bucket: aws.String(lambdaParams.BucketName),
			S3Key:    aws.String(lambdaParams.KeyName),
		}
	}
	if !common.TrimAndCheckEmptyString(&lambdaParams.ZipFile) {
		contents, err := GetFunctionCodeFromZip(lambdaParams.ZipFile)
		if err != nil {
			return nil, err
		}
		functionInput.Code = &types.FunctionCode{
			ZipFile: contents,
		}
	}

	// A freshly created role takes a few seconds before Lambda can assume it.
	policy := wrapper.retryPolicy()
	policy.RetryIf = isRoleNotReady
	output, err := utils.RetryWithResult(ctx, policy, func(ctx context.Context) (*lambda.CreateFunctionOutput, error) {
		return wrapper.Client.CreateFunction(ctx, functionInput)
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create function %s: %w", lambdaParams.FunctionName, err)
	}
	wrapper.logger().Info("Function created", zap.String("arn", aws.ToString(output.FunctionArn)))
	return output, nil
}

func isRoleNotReady(err error) bool {
	var invalid *types.InvalidParameterValueException
	return errors.As(err, &invalid) && strings.Contains(invalid.ErrorMessage(), "cannot be assumed")
}

func (wrapper ServiceWrapper) Delete(ctx context.Context, name string) (*lambda.GetFunctionOutput, error) {
	functionDetails, err := wrapper.Client.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("not able to delete the function %s: %w", name, err)
	}

	_, err = wrapper.Client.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("not able to delete the function %s: %w", name, err)
	}
	wrapper.logger().Info("Function deleted", zap.String("function", name))

	return functionDetails, nil
}

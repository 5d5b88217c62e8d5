package main

import (
	"bytes"
	"errors"
	"flag"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/amithasarath/test-common-framework/common"
	"github.com/amithasarath/test-common-framework/version"
)

func TestParseEnvironmentVariables(t *testing.T) {
	vars, err := ParseEnvironmentVariables(`{"STAGE": "dev", "RETRIES": 3, "FEATURE": {"ENABLED": true}}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"STAGE":           "dev",
		"RETRIES":         "3",
		"FEATURE_ENABLED": "true",
	}, vars)

	vars, err = ParseEnvironmentVariables(`{"HOSTS": ["a", "b"], "EMPTY": null}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"HOSTS": `["a","b"]`, "EMPTY": "null"}, vars)

	vars, err = ParseEnvironmentVariables("  ")
	require.NoError(t, err)
	assert.Nil(t, vars)

	var inputErr *common.InputError
	_, err = ParseEnvironmentVariables(`["STAGE"]`)
	assert.True(t, errors.As(err, &inputErr))
	_, err = ParseEnvironmentVariables(`{"STAGE": `)
	assert.True(t, errors.As(err, &inputErr))
}

func TestSetLambdaParams(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("name", "", "")
	set.String("runtime", "", "")
	set.Int("memory", 128, "")
	set.String("environment_variables", "", "")
	layers := cli.NewStringSlice()
	set.Var(layers, "layers", "")
	require.NoError(t, set.Parse([]string{
		"-name", "orders",
		"-runtime", "python3.12",
		"-memory", "256",
		"-environment_variables", `{"STAGE": "prod"}`,
		"-layers", "arn:aws:lambda:us-east-1:123456789012:layer:deps-1:3",
	}))

	params, err := SetLambdaParams(cli.NewContext(cli.NewApp(), set, nil))
	require.NoError(t, err)
	assert.Equal(t, "orders", params.FunctionName)
	assert.Equal(t, "python3.12", params.Runtime)
	assert.Equal(t, 256, params.Memory)
	assert.Equal(t, map[string]string{"STAGE": "prod"}, params.EnvironmentVariables)
	assert.Equal(t, []string{"arn:aws:lambda:us-east-1:123456789012:layer:deps-1:3"}, params.Layers)
}

func TestVersionCommand(t *testing.T) {
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out

	require.NoError(t, app.Run([]string{"lambda-layers", "version"}))
	assert.Equal(t, version.Get()+"\n", out.String())
}

func TestCommandsRejectBadLogLevel(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}

	err := app.Run([]string{"lambda-layers", "--log_level", "loud", "delete_lambda", "--name", "orders"})
	assert.Error(t, err)
}

func TestDeleteLambdaRequiresName(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}

	err := app.Run([]string{"lambda-layers", "delete_lambda"})
	var inputErr *common.InputError
	assert.True(t, errors.As(err, &inputErr))
}

func TestExecutionRole(t *testing.T) {
	assert.Equal(t, "", executionRole(nil))
	assert.Equal(t, "", executionRole(&awslambda.GetFunctionOutput{}))
	assert.Equal(t, "", executionRole(&awslambda.GetFunctionOutput{Configuration: &types.FunctionConfiguration{}}))
	assert.Equal(t, "arn:aws:iam::123456789012:role/orders_role", executionRole(&awslambda.GetFunctionOutput{
		Configuration: &types.FunctionConfiguration{Role: aws.String("arn:aws:iam::123456789012:role/orders_role")},
	}))
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
	"go.uber.org/zap"

	"github.com/amithasarath/test-common-framework/common"
	"github.com/amithasarath/test-common-framework/iam"
	"github.com/amithasarath/test-common-framework/lambda"
	"github.com/amithasarath/test-common-framework/layer"
	"github.com/amithasarath/test-common-framework/utils"
	"github.com/amithasarath/test-common-framework/version"
)

const loggerName = "lambda-layers"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Not able to run the command. The reason is %s\n", err.Error())
		os.Exit(1)
	}
}

func newApp() *cli.App {
	configFlag := &cli.StringFlag{
		Name:  "config",
		Usage: "yaml config file name",
	}
	regionFlag := altsrc.NewStringFlag(
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"r"},
			Usage:   "Region",
		},
	)

	layerFlags := []cli.Flag{
		configFlag,
		regionFlag,
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "layer_name",
			Aliases: []string{"ln"},
			Usage:   "Name of the layer; suffixed with -1, -2... when dependencies are split",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "source_dir",
			Aliases: []string{"src"},
			Usage:   "Directory the dependencies were installed into",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "prefix",
			Value: layer.DefaultPrefix,
			Usage: "Path inside the zip where dependencies are placed",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    "packages_per_layer",
			Aliases: []string{"ppl"},
			Usage:   "Split dependencies into layers of at most this many packages (0 keeps one layer)",
		}),
		altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
			Name:    "compatible_runtimes",
			Aliases: []string{"rt"},
			Usage:   "Compatible runtimes of the layer",
		}),
		altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
			Name:  "architectures",
			Usage: "Compatible architectures of the layer",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "description",
			Value: "test_common_framework " + version.Tag(),
			Usage: "Description of the layer version",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "license_info",
			Usage: "License of the layer",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "attach_to",
			Usage: "Function to attach the published layers to",
		}),
	}

	functionFlags := []cli.Flag{
		configFlag,
		regionFlag,
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "name",
			Aliases: []string{"n"},
			Usage:   "Name of the Lambda function",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "policy",
			Aliases: []string{"p"},
			Usage:   "Execution policy of Lambda; a basic logging policy is generated when empty",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "runtime",
			Aliases: []string{"rt"},
			Usage:   "Runtime of the Lambda function",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "handler_name",
			Aliases: []string{"hn"},
			Usage:   "Name of the handler",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "s3_bucket",
			Aliases: []string{"s3"},
			Usage:   "Name of the S3 bucket",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "s3_key",
			Aliases: []string{"key"},
			Usage:   "S3 Key",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "zip_file",
			Aliases: []string{"zip"},
			Usage:   "Name of the Zip File",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    "memory",
			Aliases: []string{"mem"},
			Value:   128,
			Usage:   "Memory of the Lambda function",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    "time_out",
			Aliases: []string{"to"},
			Value:   60,
			Usage:   "Timeout of the Lambda function",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "environment_variables",
			Aliases: []string{"ev"},
			Usage:   "Environment variables of the Lambda function as a JSON object",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "role_arn",
			Aliases: []string{"ra"},
			Usage:   "Role ARN",
		}),
		altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
			Name:  "layers",
			Usage: "Layer version ARNs to attach",
		}),
	}

	attachFlags := []cli.Flag{
		configFlag,
		regionFlag,
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "name",
			Aliases: []string{"n"},
			Usage:   "Name of the Lambda function",
		}),
		altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
			Name:  "layers",
			Usage: "Layer version ARNs to attach",
		}),
	}

	commands := []*cli.Command{
		{
			Name:    "publish_layers",
			Aliases: []string{"pl"},
			Before:  altsrc.InitInputSourceWithContext(layerFlags, altsrc.NewYamlSourceFromFlagFunc("config")),
			Flags:   layerFlags,
			Usage:   "Packages installed dependencies into one or more layers and publishes them",
			Action:  PublishLayers,
		},
		{
			Name:    "upsert_lambda",
			Aliases: []string{"ul"},
			Before:  altsrc.InitInputSourceWithContext(functionFlags, altsrc.NewYamlSourceFromFlagFunc("config")),
			Flags:   functionFlags,
			Usage:   "Creates or Updates a Lambda",
			Action:  UpsertLambda,
		},
		{
			Name:    "attach_layers",
			Aliases: []string{"al"},
			Before:  altsrc.InitInputSourceWithContext(attachFlags, altsrc.NewYamlSourceFromFlagFunc("config")),
			Flags:   attachFlags,
			Usage:   "Attaches layer versions to a Lambda, replacing older versions of the same layers",
			Action:  AttachLayers,
		},
		{
			Name:    "delete_lambda",
			Aliases: []string{"dl"},
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "name",
					Usage: "Name of the Lambda function",
				},
				&cli.StringFlag{
					Name:  "region",
					Usage: "Region",
				},
				&cli.BoolFlag{
					Name:  "delete_role",
					Usage: "Also delete the execution role and detach its policies",
				},
			},
			Usage:  "Deletes a Lambda",
			Action: DeleteLambda,
		},
		{
			Name:  "version",
			Usage: "Prints the framework version",
			Action: func(cCtx *cli.Context) error {
				_, err := fmt.Fprintln(cCtx.App.Writer, version.Get())
				return err
			},
		},
	}

	return &cli.App{
		Name:  "lambda-layers",
		Usage: "Packages dependencies into Lambda layers and deploys functions that use them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log_level",
				Value:   "info",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: commands,
	}
}

func newLogger(cCtx *cli.Context) (*zap.Logger, error) {
	level, err := utils.ParseLevel(cCtx.String("log_level"))
	if err != nil {
		return nil, err
	}
	return utils.SetupLogger(loggerName, level), nil
}

func PublishLayers(cCtx *cli.Context) error {
	logger, err := newLogger(cCtx)
	if err != nil {
		return err
	}
	ctx := cCtx.Context
	params := SetLayerParams(cCtx)

	client, err := layer.Client(ctx, params.Region)
	if err != nil {
		return err
	}
	layerWrapper := layer.ServiceWrapper{Client: client, Logger: logger}

	published, err := layerWrapper.PublishAll(ctx, params)
	if err != nil {
		return err
	}
	arns := make([]string, 0, len(published))
	for _, p := range published {
		arns = append(arns, p.LayerVersionArn)
		fmt.Fprintln(cCtx.App.Writer, p.LayerVersionArn)
	}

	functionName := cCtx.String("attach_to")
	if common.TrimAndCheckEmptyString(&functionName) {
		return nil
	}
	lambdaWrapper := lambda.ServiceWrapper{Client: client, Logger: logger}
	_, err = lambdaWrapper.AttachLayers(ctx, functionName, arns)
	return err
}

func SetLayerParams(cCtx *cli.Context) common.LayerParams {
	return common.LayerParams{
		LayerName:          cCtx.String("layer_name"),
		Description:        cCtx.String("description"),
		SourceDir:          cCtx.String("source_dir"),
		Prefix:             cCtx.String("prefix"),
		PackagesPerLayer:   cCtx.Int("packages_per_layer"),
		CompatibleRuntimes: cCtx.StringSlice("compatible_runtimes"),
		Architectures:      cCtx.StringSlice("architectures"),
		LicenseInfo:        cCtx.String("license_info"),
		Region:             cCtx.String("region"),
	}
}

func UpsertLambda(cCtx *cli.Context) error {
	logger, err := newLogger(cCtx)
	if err != nil {
		return err
	}
	ctx := cCtx.Context

	lambdaParams, err := SetLambdaParams(cCtx)
	if err != nil {
		return err
	}

	client, err := lambda.Client(ctx, lambdaParams.Region)
	if err != nil {
		return err
	}
	lambdaWrapper := lambda.ServiceWrapper{Client: client, Logger: logger}

	functionDetails, err := lambdaWrapper.GetFunctionDetails(ctx, lambdaParams.FunctionName)
	if err != nil {
		return err
	}

	if functionDetails == nil {
		if err := lambda.ValidateInputParams(*lambdaParams, true); err != nil {
			return err
		}
		iamClient, err := iam.Client(ctx, lambdaParams.Region)
		if err != nil {
			return err
		}
		iamWrapper := iam.ServiceWrapper{Client: iamClient, Logger: logger}
		_, err = lambdaWrapper.New(ctx, *lambdaParams, iamWrapper)
		return err
	}

	if err := lambda.ValidateInputParams(*lambdaParams, false); err != nil {
		return err
	}
	if err := lambdaWrapper.UpdateFunction(ctx, *lambdaParams); err != nil {
		return err
	}
	// The code update has to settle before the configuration can change; the wrapper retries conflicts.
	return lambdaWrapper.UpdateFunctionConfiguration(ctx, *lambdaParams)
}

func SetLambdaParams(cCtx *cli.Context) (*common.DeployParams, error) {
	lambdaParams := common.DeployParams{
		FunctionName: cCtx.String("name"),
		Policy:       cCtx.String("policy"),
		Runtime:      cCtx.String("runtime"),
		BucketName:   cCtx.String("s3_bucket"),
		KeyName:      cCtx.String("s3_key"),
		Region:       cCtx.String("region"),
		ZipFile:      cCtx.String("zip_file"),
		Memory:       cCtx.Int("memory"),
		HandlerName:  cCtx.String("handler_name"),
		Timeout:      cCtx.Int("time_out"),
		RoleArn:      cCtx.String("role_arn"),
		Layers:       cCtx.StringSlice("layers"),
	}

	envVariables, err := ParseEnvironmentVariables(cCtx.String("environment_variables"))
	if err != nil {
		return nil, err
	}
	lambdaParams.EnvironmentVariables = envVariables
	return &lambdaParams, nil
}

// ParseEnvironmentVariables reads a JSON object of variables. Non-string
// values are rendered with their JSON text.
func ParseEnvironmentVariables(raw string) (map[string]string, error) {
	if common.TrimAndCheckEmptyString(&raw) {
		return nil, nil
	}
	decoded, ok := utils.SafeJSONLoads(raw, nil).(map[string]any)
	if !ok {
		return nil, &common.InputError{Message: "Environment variables must be a JSON object."}
	}
	result := make(map[string]string, len(decoded))
	for key, value := range utils.FlattenDict(decoded, "_") {
		switch typed := value.(type) {
		case string:
			result[key] = typed
		default:
			result[key] = utils.SafeJSONDumps(typed, "")
		}
	}
	return result, nil
}

func AttachLayers(cCtx *cli.Context) error {
	logger, err := newLogger(cCtx)
	if err != nil {
		return err
	}
	ctx := cCtx.Context
	name := cCtx.String("name")
	if common.TrimAndCheckEmptyString(&name) {
		return &common.InputError{Message: "Function Name cannot be null"}
	}
	layers := cCtx.StringSlice("layers")
	if len(layers) == 0 {
		return &common.InputError{Message: "At least one layer ARN has to be included"}
	}

	client, err := lambda.Client(ctx, cCtx.String("region"))
	if err != nil {
		return err
	}
	lambdaWrapper := lambda.ServiceWrapper{Client: client, Logger: logger}
	merged, err := lambdaWrapper.AttachLayers(ctx, name, layers)
	if err != nil {
		return err
	}
	fmt.Fprintln(cCtx.App.Writer, strings.Join(merged, "\n"))
	return nil
}

func DeleteLambda(cCtx *cli.Context) error {
	logger, err := newLogger(cCtx)
	if err != nil {
		return err
	}
	ctx := cCtx.Context
	name := cCtx.String("name")
	logger.Info("Deleting Lambda", zap.String("function", name))
	if common.TrimAndCheckEmptyString(&name) {
		return &common.InputError{
			Message: "Function Name cannot be null",
		}
	}

	client, err := lambda.Client(ctx, cCtx.String("region"))
	if err != nil {
		return err
	}
	lambdaWrapper := lambda.ServiceWrapper{Client: client, Logger: logger}

	functionDetails, err := lambdaWrapper.Delete(ctx, name)
	if err != nil {
		return err
	}
	if !cCtx.Bool("delete_role") {
		return nil
	}
	roleArn := executionRole(functionDetails)
	if roleArn == "" {
		logger.Warn("Function had no execution role to delete", zap.String("function", name))
		return nil
	}

	iamClient, err := iam.Client(ctx, cCtx.String("region"))
	if err != nil {
		return err
	}
	wrapper := iam.ServiceWrapper{Client: iamClient, Logger: logger}
	return wrapper.DeleteRole(ctx, roleArn)
}

func executionRole(details *awslambda.GetFunctionOutput) string {
	if details == nil || details.Configuration == nil {
		return ""
	}
	return aws.ToString(details.Configuration.Role)
}

package main

import (
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/amithasarath/test-common-framework/handler"
	"github.com/amithasarath/test-common-framework/utils"
)

func main() {
	level, err := utils.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = utils.DefaultLevel
	}
	logger := utils.SetupLogger("my_lambda", level)

	lambda.Start(handler.New(logger).Handle)
}

package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestTrimAndCheckEmptyString(t *testing.T) {
	s := "  name \n"
	assert.False(t, TrimAndCheckEmptyString(&s))
	assert.Equal(t, "name", s)

	blank := " \t "
	assert.True(t, TrimAndCheckEmptyString(&blank))
	assert.Equal(t, "", blank)
}

func TestInputError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &InputError{Message: "Runtime cannot be empty"})
	var inputErr *InputError
	assert.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "Error in inputs: Runtime cannot be empty", inputErr.Error())
}

func TestAWSErrorClassification(t *testing.T) {
	notFound := fmt.Errorf("get: %w", &types.ResourceNotFoundException{Message: aws.String("missing")})
	conflict := fmt.Errorf("update: %w", &types.ResourceConflictException{Message: aws.String("in progress")})
	tooMany := &types.TooManyRequestsException{Message: aws.String("slow down")}
	throttling := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Rate exceeded"}
	other := &smithy.GenericAPIError{Code: "AccessDeniedException"}

	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(conflict))

	assert.True(t, IsConflict(conflict))
	assert.False(t, IsConflict(notFound))

	assert.True(t, IsThrottled(tooMany))
	assert.True(t, IsThrottled(throttling))
	assert.False(t, IsThrottled(other))
	assert.False(t, IsThrottled(nil))
}

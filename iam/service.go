package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"go.uber.org/zap"

	"github.com/amithasarath/test-common-framework/common"
	"github.com/amithasarath/test-common-framework/utils"
)

type Api interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
	CreatePolicy(ctx context.Context, params *iam.CreatePolicyInput, optFns ...func(*iam.Options)) (*iam.CreatePolicyOutput, error)
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
	DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
}

type ServiceWrapper struct {
	Client Api
	Logger *zap.Logger
}

type PolicyDocument struct {
	Version   string
	Statement []PolicyStatement
}

// PolicyStatement defines a statement in a policy document.
type PolicyStatement struct {
	Effect    string
	Action    []string
	Principal map[string]string `json:",omitempty"`
	Resource  *string           `json:",omitempty"`
}

// BasicExecutionPolicy lets the function write its CloudWatch logs.
var BasicExecutionPolicy = PolicyDocument{
	Version: "2012-10-17",
	Statement: []PolicyStatement{{
		Effect:   "Allow",
		Action:   []string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
		Resource: aws.String("arn:aws:logs:*:*:*"),
	}},
}

var lambdaTrustPolicy = PolicyDocument{
	Version: "2012-10-17",
	Statement: []PolicyStatement{{
		Effect:    "Allow",
		Principal: map[string]string{"Service": "lambda.amazonaws.com"},
		Action:    []string{"sts:AssumeRole"},
	}},
}

func Client(ctx context.Context, region string) (*iam.Client, error) {
	cfg, err := common.LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return iam.NewFromConfig(cfg), nil
}

func (wrapper ServiceWrapper) logger() *zap.Logger {
	if wrapper.Logger == nil {
		return zap.NewNop()
	}
	return wrapper.Logger
}

// ValidatePolicy checks that policy is a JSON object carrying a Version and at least one Statement.
func ValidatePolicy(policy string) error {
	document, ok := utils.SafeJSONLoads(policy, nil).(map[string]any)
	if !ok {
		return &common.InputError{Message: "Policy is not a JSON object."}
	}
	if utils.GetNestedValue(document, "Version", "") == "" {
		return &common.InputError{Message: "Policy Version must be specified."}
	}
	if utils.GetNestedValue(document, "Statement.0", nil) == nil && utils.GetNestedValue(document, "Statement.Effect", nil) == nil {
		return &common.InputError{Message: "Policy must contain a Statement."}
	}
	return nil
}

func (wrapper ServiceWrapper) CheckRoleExists(ctx context.Context, roleName string) *string {
	result, err := wrapper.Client.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(roleName)})
	if err != nil || result.Role == nil {
		return nil
	}
	return result.Role.Arn
}

func (wrapper ServiceWrapper) CreatePolicy(ctx context.Context, policyDocument string, policyName string) (*types.Policy, error) {
	result, err := wrapper.Client.CreatePolicy(ctx, &iam.CreatePolicyInput{
		PolicyDocument: aws.String(policyDocument),
		PolicyName:     aws.String(policyName),
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't create policy %v: %w", policyName, err)
	}
	return result.Policy, nil
}

func (wrapper ServiceWrapper) AttachRolePolicy(ctx context.Context, policyArn string, roleName string) error {
	_, err := wrapper.Client.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		PolicyArn: aws.String(policyArn),
		RoleName:  aws.String(roleName),
	})
	if err != nil {
		return fmt.Errorf("couldn't attach policy %v to role %v: %w", policyArn, roleName, err)
	}
	return nil
}

func (wrapper ServiceWrapper) NewRole(ctx context.Context, roleName string, trustPolicy PolicyDocument) (*types.Role, error) {
	policyBytes, err := json.Marshal(trustPolicy)
	if err != nil {
		return nil, fmt.Errorf("couldn't create trust policy for %v: %w", roleName, err)
	}
	result, err := wrapper.Client.CreateRole(ctx, &iam.CreateRoleInput{
		AssumeRolePolicyDocument: aws.String(string(policyBytes)),
		RoleName:                 aws.String(roleName),
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't create role %v: %w", roleName, err)
	}
	return result.Role, nil
}

func (wrapper ServiceWrapper) ListAttachedRolePolicies(ctx context.Context, roleName string) ([]types.AttachedPolicy, error) {
	result, err := wrapper.Client.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't list attached policies for role %v: %w", roleName, err)
	}
	return result.AttachedPolicies, nil
}

func (wrapper ServiceWrapper) SetupPoliciesAndAttachPolicy(ctx context.Context, roleName string, lambdaExecutionRolePolicy string) error {
	policy, err := wrapper.CreatePolicy(ctx, strings.TrimSpace(lambdaExecutionRolePolicy), roleName+"_policy")
	if err != nil {
		return err
	}
	return wrapper.AttachRolePolicy(ctx, aws.ToString(policy.Arn), roleName)
}

// EnsureExecutionRole returns the ARN of roleName, creating the role and
// attaching rolePolicy when needed. An empty rolePolicy means BasicExecutionPolicy.
func (wrapper ServiceWrapper) EnsureExecutionRole(ctx context.Context, roleName string, rolePolicy string) (*string, error) {
	if common.TrimAndCheckEmptyString(&rolePolicy) {
		policyBytes, err := json.Marshal(BasicExecutionPolicy)
		if err != nil {
			return nil, err
		}
		rolePolicy = string(policyBytes)
	}
	if err := ValidatePolicy(rolePolicy); err != nil {
		return nil, err
	}

	roleArn := wrapper.CheckRoleExists(ctx, roleName)
	if roleArn == nil {
		wrapper.logger().Info("Creating execution role", zap.String("role", roleName))
		role, err := wrapper.NewRole(ctx, roleName, lambdaTrustPolicy)
		if err != nil {
			return nil, err
		}
		roleArn = role.Arn
	}

	policies, err := wrapper.ListAttachedRolePolicies(ctx, roleName)
	if err != nil {
		return nil, err
	}
	if len(policies) == 0 {
		if err := wrapper.SetupPoliciesAndAttachPolicy(ctx, roleName, rolePolicy); err != nil {
			return nil, err
		}
	}
	return roleArn, nil
}

// DeleteRole detaches the managed policies of the role named by roleArn
// (or plain role name) and then deletes it.
func (wrapper ServiceWrapper) DeleteRole(ctx context.Context, roleArn string) error {
	roleName := roleArn[strings.LastIndex(roleArn, "/")+1:]

	policies, err := wrapper.ListAttachedRolePolicies(ctx, roleName)
	if err != nil {
		return err
	}
	for _, policy := range policies {
		_, err := wrapper.Client.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			PolicyArn: policy.PolicyArn,
			RoleName:  aws.String(roleName),
		})
		if err != nil {
			return fmt.Errorf("couldn't detach policy %v from role %v: %w", aws.ToString(policy.PolicyArn), roleName, err)
		}
	}

	if _, err := wrapper.Client.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(roleName)}); err != nil {
		return fmt.Errorf("couldn't delete role %v: %w", roleName, err)
	}
	wrapper.logger().Info("Role deleted", zap.String("role", roleName))
	return nil
}

// Package handler is a sample API Gateway Lambda function built on the
// framework utilities. It is deployed with its dependencies in layers.
package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/amithasarath/test-common-framework/utils"
	"github.com/amithasarath/test-common-framework/version"
)

type Response struct {
	StatusCode int            `json:"status_code"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data"`
}

// UserInfo and ProcessedEvent keep values as decoded from JSON, so a numeric
// id stays a number.
type UserInfo struct {
	UserID any `json:"user_id"`
	Email  any `json:"email"`
}

type ProcessedEvent struct {
	UserID  any
	Action  any
	RawBody map[string]any
}

type Handler struct {
	Logger *zap.Logger
}

func New(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Logger: logger}
}

// FormatResponse builds an API Gateway response with a JSON body.
func FormatResponse(statusCode int, body any) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       utils.SafeJSONDumps(body, "{}"),
	}
}

// ExtractUserInfo reads the Cognito claims forwarded by the authorizer.
func ExtractUserInfo(request events.APIGatewayProxyRequest) UserInfo {
	authorizer := map[string]any(request.RequestContext.Authorizer)
	return UserInfo{
		UserID: utils.GetNestedValue(authorizer, "claims.sub", "anonymous"),
		Email:  utils.GetNestedValue(authorizer, "claims.email", ""),
	}
}

func (h *Handler) ProcessEvent(request events.APIGatewayProxyRequest) (*ProcessedEvent, error) {
	decoded := utils.SafeJSONLoads(request.Body, map[string]any{})
	body, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("request body must be a JSON object, got %T", decoded)
	}

	processed := &ProcessedEvent{
		UserID:  utils.GetNestedValue(body, "user.id", "anonymous"),
		Action:  utils.GetNestedValue(body, "request.action", "unknown"),
		RawBody: body,
	}
	h.Logger.Info("Flattened request data", zap.Any("data", utils.FlattenDict(body, utils.DefaultDelimiter)))
	return processed, nil
}

func (h *Handler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	h.Logger.Info("Lambda started", zap.String("framework_version", version.Get()))
	h.Logger.Debug("Event", zap.String("event", utils.SafeJSONDumps(request, "{}")))

	processed, err := h.ProcessEvent(request)
	if err != nil {
		h.Logger.Error("Error processing request", zap.Error(err))
		return FormatResponse(http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"message": "Internal server error",
		}), nil
	}

	h.Logger.Info("Processing request", zap.Any("user_id", processed.UserID), zap.Any("action", processed.Action))
	return FormatResponse(http.StatusOK, Response{
		StatusCode: http.StatusOK,
		Message:    "Request processed successfully",
		Data: map[string]any{
			"user_id":           processed.UserID,
			"action":            processed.Action,
			"framework_version": version.Get(),
		},
	}), nil
}

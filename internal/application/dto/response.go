package dto

import (
	"time"

	"github.com/turtacn/credcore/pkg/errors"
)

// APIResponse 通用 API 响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorDTO   `json:"error,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorDTO 错误信息 DTO
type ErrorDTO struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message,omitempty"`
	Description string                 `json:"description,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse 创建成功响应
func SuccessResponse(data interface{}, traceID string) *APIResponse {
	return &APIResponse{
		Success:   true,
		Data:      data,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// ErrorResponse 创建错误响应
// Errors without a code are reported as internal_error and their text is not exposed.
func ErrorResponse(err error, traceID string) *APIResponse {
	resp := errors.ToErrorResponse(err)
	return &APIResponse{
		Success: false,
		Error: &ErrorDTO{
			Code:        resp.Error,
			Message:     resp.Message,
			Description: resp.ErrorDescription,
			Details:     resp.Metadata,
		},
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/credcore/internal/application/dto"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/utils"
)

// maxBodyBytes bounds request bodies; payloads to sign are expected to be small documents.
const maxBodyBytes = 1 << 20

// bindStrictJSON decodes exactly one JSON document into v, rejecting unknown
// fields, then checks v's validate tags.
func bindStrictJSON(c *gin.Context, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		return errors.MalformedInput("failed to read request body")
	}
	if len(body) > maxBodyBytes {
		return errors.MalformedInput("request body too large")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.MalformedInput("invalid JSON body: " + err.Error())
	}
	if dec.More() {
		return errors.MalformedInput("trailing data after JSON body")
	}
	return utils.ValidateStruct(v)
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, dto.SuccessResponse(data, monitoring.TraceID(c.Request.Context())))
}

// respondError maps err to its HTTP status through its error code and marks the
// request span as failed.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	monitoring.RecordError(c.Request.Context(), err)
	status := http.StatusInternalServerError
	if ce, ok := errors.AsCredError(err); ok {
		status = ce.HTTPStatus()
	}
	c.AbortWithStatusJSON(status, dto.ErrorResponse(err, monitoring.TraceID(c.Request.Context())))
}

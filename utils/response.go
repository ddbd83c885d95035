package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// RestResult is the uniform envelope every API response is wrapped in.
type RestResult struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Respond writes the envelope with the given HTTP status.
func Respond(ctx *gin.Context, status int, result RestResult) {
	ctx.JSON(status, result)
}

// Success returns a success envelope with an optional payload.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, RestResult{Status: StatusSuccess, Data: data})
}

// Failure returns a failure envelope carrying a human readable message.
func Failure(ctx *gin.Context, status int, message string) {
	Respond(ctx, status, RestResult{Status: StatusFailure, Error: message})
}

// AbortWithFailure writes a failure envelope and stops the handler chain.
func AbortWithFailure(ctx *gin.Context, status int, message string) {
	Failure(ctx, status, message)
	ctx.Abort()
}

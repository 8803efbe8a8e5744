package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xerolink/xerolink/internal/errors"
)

// statusFor maps stable error codes to HTTP status codes.
func statusFor(code string) int {
	switch code {
	case errors.CodeNotConfigured, errors.CodeNotConnected:
		return http.StatusConflict
	case errors.CodeInvalidState, errors.CodeExpiredState, errors.CodeUnsupportedResource:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeUnauthorized, errors.CodeRefreshFailed:
		return http.StatusUnauthorized
	case errors.CodeForbidden:
		return http.StatusForbidden
	case errors.CodeRateLimited:
		return http.StatusTooManyRequests
	case errors.CodeTokenExchangeFailed, errors.CodeUpstreamUnavailable:
		return http.StatusBadGateway
	case errors.CodeUpstreamUnreachable:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders an error as a JSON body with its stable code. Rate
// limit errors additionally carry the upstream retry hint.
func writeError(c *gin.Context, err error) {
	code := errors.CodeOf(err)
	body := gin.H{
		"code":    code,
		"message": err.Error(),
	}

	var rateLimited *errors.ErrRateLimited
	if errors.As(err, &rateLimited) && rateLimited.RetryAfter > 0 {
		seconds := int(rateLimited.RetryAfter.Seconds())
		body["retry_after_seconds"] = seconds
		c.Header("Retry-After", strconv.Itoa(seconds))
	}

	c.JSON(statusFor(code), body)
}

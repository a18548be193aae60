package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/llm-proxy/internal/gateway"
	"github.com/nulzo/llm-proxy/internal/httpclient"
	"github.com/nulzo/llm-proxy/internal/store"
	"github.com/nulzo/llm-proxy/pkg/api"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error attached by a handler as
// application/problem+json.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		problem := ToProblem(c.Errors.Last().Err)
		if problem.Instance == "" {
			problem.Instance = c.Request.URL.Path
		}

		if problem.Status >= http.StatusInternalServerError {
			logger.Error("Request failed",
				zap.Int("status", problem.Status),
				zap.String("path", c.Request.URL.Path),
				zap.NamedError("cause", problem.Log),
			)
		} else if problem.Log != nil {
			logger.Debug("Request rejected", zap.Int("status", problem.Status), zap.Error(problem.Log))
		}

		c.Header("Content-Type", "application/problem+json")
		c.JSON(problem.Status, problem)
		c.Abort()
	}
}

// ToProblem maps domain errors to their HTTP representation.
func ToProblem(err error) *api.Problem {
	var problem *api.Problem
	if errors.As(err, &problem) {
		return problem
	}

	switch {
	case errors.Is(err, gateway.ErrUnsupportedModel),
		errors.Is(err, gateway.ErrUnsupportedProvider):
		return api.BadRequestError(err.Error(), api.WithLog(err))

	case errors.Is(err, gateway.ErrMissingCredential):
		return api.UnauthorizedError(err.Error(), api.WithLog(err))

	case errors.Is(err, gateway.ErrUpstream):
		var upstream *httpclient.UpstreamError
		if errors.As(err, &upstream) {
			return api.ProviderError(upstream.Message(), err,
				api.WithExtension("upstream_status", upstream.StatusCode))
		}
		return api.ProviderError(err.Error(), err)

	case errors.Is(err, store.ErrNotFound):
		return api.NotFoundError(err.Error())
	}

	return api.InternalError("An unexpected error occurred.", err)
}

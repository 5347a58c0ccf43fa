package rpcapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teaclave-go/platform/internal/obslog"
)

// NewRouter builds the gin.Engine serving the frontend RPC surface: JWT
// bearer authentication on every Auth-required endpoint, a per-subject
// rate limiter, and a uniform error envelope translating the taclerr
// taxonomy to HTTP status codes.
func NewRouter(f *Frontend, auth *Authenticator, limiter *RateLimiter, log *obslog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	for _, ep := range f.Routes() {
		handler := wrapHandler(ep, auth, limiter)
		switch ep.Method {
		case MethodGET:
			r.GET(ep.Path, handler)
		case MethodPOST:
			r.POST(ep.Path, handler)
		case MethodDELETE:
			r.DELETE(ep.Path, handler)
		}
	}
	return r
}

func requestLogger(log *obslog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithContext(c.Request.Context()).WithField("status", c.Writer.Status()).
			WithField("latency_ms", time.Since(start).Milliseconds()).
			Info(c.Request.Method + " " + c.FullPath())
	}
}

// wrapHandler adapts one Endpoint into a gin.HandlerFunc: authenticates (if
// required), rate-limits by subject, parses the request body/path/query
// into an APIRequest, invokes the handler, and writes a JSON response.
func wrapHandler(ep Endpoint, auth *Authenticator, limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := APIRequest{
			PathParams: make(map[string]string, len(c.Params)),
			Query:      make(map[string]string),
		}
		for _, p := range c.Params {
			req.PathParams[p.Key] = p.Value
		}
		for k := range c.Request.URL.Query() {
			req.Query[k] = c.Query(k)
		}

		if ep.Auth {
			token, ok := BearerToken(c.GetHeader("Authorization"))
			if !ok {
				c.JSON(http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
				c.Abort()
				return
			}
			claims, err := auth.Validate(token)
			if err != nil {
				c.JSON(httpStatus(err), errorBody{Error: err.Error()})
				c.Abort()
				return
			}
			req.UserID = claims.UserID
			req.Role = claims.Role
		}

		limitKey := req.UserID
		if limitKey == "" {
			limitKey = c.ClientIP()
		}
		if limiter != nil && !limiter.Allow(limitKey) {
			c.JSON(http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			c.Abort()
			return
		}

		var body map[string]any
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
				c.JSON(http.StatusBadRequest, errorBody{Error: "malformed JSON body"})
				c.Abort()
				return
			}
		}
		req.Body = body

		result, err := ep.Handler(requestContext(c), req)
		if err != nil {
			c.JSON(httpStatus(err), errorBody{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func requestContext(c *gin.Context) context.Context {
	return obslog.WithTraceID(c.Request.Context(), strconv.FormatInt(time.Now().UnixNano(), 36))
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/curaious/xm/internal/api/authenticator"
	"github.com/curaious/xm/internal/api/controllers"
	"github.com/curaious/xm/internal/api/response"
	"github.com/curaious/xm/internal/perrors"
	"github.com/curaious/xm/internal/security"
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/curaious/xm/internal/api")

func (s *Server) initNewRoutes() fasthttp.RequestHandler {
	r := router.New()

	r.GET("/api/health", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		_, _ = ctx.Write([]byte("OK"))
	})

	controllers.RegisterAuthRoutes(r, s.services, s.auth)
	controllers.RegisterWorkspaceRoutes(r, s.services)

	return withMiddlewares(r.Handler, s.auth, s.conf.ALLOWED_HEADERS)
}

func withMiddlewares(next fasthttp.RequestHandler, auth *authenticator.Authenticator, allowedHeaders string) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		applyCORS(ctx, allowedHeaders)
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		start := time.Now()
		method := string(ctx.Method())
		requestURI := string(ctx.RequestURI())
		slog.Info("Started processing", slog.String("method", method), slog.String("request_uri", requestURI))

		h := http.Header{}
		ctx.Request.Header.VisitAll(func(k, v []byte) {
			h.Set(string(k), string(v))
		})
		stdCtx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(h))

		stdCtx, span := tracer.Start(stdCtx, method+" "+string(ctx.Path()), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		// Public routes still get a caller when a valid token is presented
		claims, err := authenticate(ctx, auth)
		if err != nil && !isPublicRoute(ctx) {
			response.NewResponse[any](stdCtx, "Unauthorized", nil).
				WithError(perrors.NewErrUnauthorized("Unauthorized", err)).
				Write(ctx)
			span.SetAttributes(attribute.Int("http.status_code", ctx.Response.StatusCode()))
			return
		}
		if claims != nil {
			stdCtx = security.WithUserContext(stdCtx, claims.UserContext())
			span.SetAttributes(attribute.String("user.id", claims.UserID.String()))
		}
		ctx.SetUserValue(controllers.RequestContextKey, stdCtx)

		next(ctx)

		span.SetAttributes(attribute.Int("http.status_code", ctx.Response.StatusCode()))
		slog.Info("Finished processing", slog.String("method", method), slog.String("request_uri", requestURI), slog.Duration("duration", time.Since(start)))
	}
}

var errMissingToken = errors.New("missing access token")

func authenticate(ctx *fasthttp.RequestCtx, auth *authenticator.Authenticator) (*authenticator.UserClaims, error) {
	accessToken := strings.TrimPrefix(string(ctx.Request.Header.Peek("Authorization")), "Bearer ")
	if accessToken == "" {
		accessToken = string(ctx.Request.Header.Cookie("access_token"))
	}
	if accessToken == "" {
		return nil, errMissingToken
	}

	return auth.VerifyAccessToken(accessToken)
}

func applyCORS(ctx *fasthttp.RequestCtx, allowedHeaders string) {
	headers := &ctx.Response.Header
	headers.Set("Access-Control-Allow-Origin", string(ctx.Request.Header.Peek("Origin")))
	headers.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS,PATCH")
	headers.Set("Access-Control-Allow-Headers", allowedHeaders)
	headers.Set("Access-Control-Allow-Credentials", "true")
}

func isPublicRoute(ctx *fasthttp.RequestCtx) bool {
	switch string(ctx.Path()) {
	case "/api/health",
		"/api/auth/enabled",
		"/api/auth/login",
		"/api/auth/logout",
		"/api/auth/oidc/login",
		"/api/auth/oidc/callback":
		return true
	default:
		return false
	}
}

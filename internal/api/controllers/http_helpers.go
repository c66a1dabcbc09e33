package controllers

import (
	"context"
	"errors"
	"fmt"

	json "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/curaious/xm/internal/api/response"
	"github.com/curaious/xm/internal/perrors"
	"github.com/curaious/xm/internal/security"
	"github.com/curaious/xm/internal/services/role"
	"github.com/curaious/xm/internal/services/user"
	"github.com/curaious/xm/internal/services/workspace"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// RequestContextKey is the user value the middleware stores the request's
// context.Context under.
const RequestContextKey = "requestContext"

// requestContext returns the context built by the middleware. fasthttp does not
// provide a standard context, so unauthenticated requests fall back to Background.
func requestContext(ctx *fasthttp.RequestCtx) context.Context {
	if c, ok := ctx.UserValue(RequestContextKey).(context.Context); ok && c != nil {
		return c
	}
	return context.Background()
}

func parseBody(ctx *fasthttp.RequestCtx, target any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return errors.New("request body is empty")
	}

	return json.Unmarshal(body, target)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// parseAndValidate decodes the body into target and checks its validate tags.
func parseAndValidate(ctx *fasthttp.RequestCtx, target any) error {
	if err := parseBody(ctx, target); err != nil {
		return err
	}
	return validate.Struct(target)
}

func writeError(ctx *fasthttp.RequestCtx, stdCtx context.Context, message string, err error) {
	response.NewResponse[any](stdCtx, message, nil).WithError(err).Write(ctx)
}

func writeOK(ctx *fasthttp.RequestCtx, stdCtx context.Context, message string, data any) {
	response.NewResponse(stdCtx, message, data).Write(ctx)
}

func pathParam(ctx *fasthttp.RequestCtx, key string) (string, error) {
	val := ctx.UserValue(key)
	if val == nil {
		return "", fmt.Errorf("%s is required", key)
	}

	return fmt.Sprint(val), nil
}

func pathParamUUID(ctx *fasthttp.RequestCtx, key string) (uuid.UUID, error) {
	val, err := pathParam(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}

	return uuid.Parse(val)
}

func requireStringQuery(ctx *fasthttp.RequestCtx, key string) (string, error) {
	raw := ctx.QueryArgs().Peek(key)
	if len(raw) == 0 {
		return "", fmt.Errorf("%s parameter is required", key)
	}

	return string(raw), nil
}

// domainError converts service errors into perrors with a matching status.
// message is used for anything that is not a known domain error.
func domainError(message string, err error) error {
	var dup *workspace.DuplicateRoleError
	switch {
	case errors.As(err, &dup):
		return perrors.NewErrConflict("User already exists", err, map[string]interface{}{
			"email": dup.Email,
			"role":  string(dup.Role),
		})
	case errors.Is(err, workspace.ErrDuplicateRoleAssignment):
		return perrors.NewErrConflict("User already exists", err)
	case errors.Is(err, workspace.ErrWorkspaceNotFound):
		return perrors.NewErrNotFound("Workspace not found", err)
	case errors.Is(err, user.ErrUserNotFound):
		return perrors.NewErrNotFound("User not found", err)
	case errors.Is(err, security.ErrAuthenticationRequired), errors.Is(err, security.ErrNoUserContext):
		return perrors.NewErrUnauthorized("Authentication required", err)
	case errors.Is(err, workspace.ErrForbidden), errors.Is(err, workspace.ErrNotWorkspaceMember):
		return perrors.NewErrForbidden("Forbidden", err)
	case errors.Is(err, role.ErrUnknownRole):
		return perrors.NewErrInvalidRequest("Unknown role", err)
	default:
		return perrors.NewErrInternalServerError(message, err)
	}
}

package controllers

import (
	"errors"
	"time"

	"github.com/curaious/xm/internal/api/authenticator"
	"github.com/curaious/xm/internal/perrors"
	"github.com/curaious/xm/internal/security"
	"github.com/curaious/xm/internal/services"
	"github.com/curaious/xm/internal/services/user"
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Email string          `json:"email"`
	Roles []security.Role `json:"roles"`
}

const accessTokenCookie = "access_token"

func setAccessTokenCookie(ctx *fasthttp.RequestCtx, token string, expires time.Time) {
	var cookie fasthttp.Cookie
	cookie.SetKey(accessTokenCookie)
	cookie.SetValue(token)
	cookie.SetPath("/")
	cookie.SetHTTPOnly(true)
	cookie.SetSecure(string(ctx.URI().Scheme()) == "https")
	cookie.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	cookie.SetExpire(expires)
	ctx.Response.Header.SetCookie(&cookie)
}

func RegisterAuthRoutes(r *router.Router, svc *services.Services, auth *authenticator.Authenticator) {
	// Issues an access token carrying the user's global roles
	issue := func(ctx *fasthttp.RequestCtx, u *user.User) (string, []security.Role, error) {
		roles, err := svc.User.GlobalRoles(requestContext(ctx), u.ID)
		if err != nil {
			return "", nil, err
		}

		token, err := auth.GenerateToken(u.ID, u.Email, u.Name, roles)
		if err != nil {
			return "", nil, err
		}

		setAccessTokenCookie(ctx, token, time.Now().Add(auth.TokenTTL()))
		return token, roles, nil
	}

	r.GET("/api/auth/enabled", func(ctx *fasthttp.RequestCtx) {
		writeOK(ctx, requestContext(ctx), "success", map[string]any{
			"oidc_enabled": auth.OIDCEnabled(),
		})
	})

	// Login with email/password
	r.POST("/api/auth/login", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		var req LoginRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		if req.Email == "" || req.Password == "" {
			writeError(ctx, stdCtx, "Email and password are required", perrors.NewErrInvalidRequest("Email and password are required", errors.New("missing credentials")))
			return
		}

		u, err := svc.User.Authenticate(stdCtx, req.Email, req.Password)
		if err != nil {
			if errors.Is(err, user.ErrInvalidCredentials) {
				writeError(ctx, stdCtx, "Invalid credentials", perrors.NewErrUnauthorized("Invalid credentials", err))
				return
			}
			writeError(ctx, stdCtx, "Failed to authenticate", perrors.NewErrInternalServerError("Failed to authenticate", err))
			return
		}

		token, roles, err := issue(ctx, u)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to generate token", perrors.NewErrInternalServerError("Failed to generate token", err))
			return
		}

		writeOK(ctx, stdCtx, "success", LoginResponse{
			Token: token,
			User: UserResponse{
				ID:    u.ID.String(),
				Name:  u.Name,
				Email: u.Email,
				Roles: roles,
			},
		})
	})

	// Current user with the active workspace resolved from the session
	r.GET("/api/auth/me", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		uc, err := svc.Security.UserContext(stdCtx)
		if err != nil {
			writeError(ctx, stdCtx, "Unauthorized", domainError("Failed to resolve user", err))
			return
		}

		writeOK(ctx, stdCtx, "success", uc)
	})

	r.POST("/api/auth/logout", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		if uc, ok := security.FromContext(stdCtx); ok && uc.User.ID != nil {
			if err := svc.Sessions.ClearActiveWorkspace(stdCtx, *uc.User.ID, nil); err != nil {
				writeError(ctx, stdCtx, "Failed to clear session", perrors.NewErrInternalServerError("Failed to clear session", err))
				return
			}
		}

		setAccessTokenCookie(ctx, "", time.Now().Add(-1*time.Hour))

		writeOK(ctx, stdCtx, "success", map[string]any{
			"message": "Logged out successfully",
		})
	})

	r.GET("/api/auth/oidc/login", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		if !auth.OIDCEnabled() {
			writeError(ctx, stdCtx, "OIDC login is disabled", perrors.NewErrNotFound("OIDC login is disabled", errors.New("oidc not configured")))
			return
		}

		encodedState, err := auth.GetSignedState(authenticator.NewState(auth.PostLoginRedirect(), 5*time.Minute))
		if err != nil {
			writeError(ctx, stdCtx, "Failed to create signed state", perrors.NewErrInternalServerError("Failed to create signed state", err))
			return
		}

		ctx.Redirect(auth.AuthCodeURL(encodedState), fasthttp.StatusTemporaryRedirect)
	})

	// Exchanges the code, then logs in the local user with the verified email
	r.GET("/api/auth/oidc/callback", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		encodedState := ctx.QueryArgs().Peek("state")
		code := ctx.QueryArgs().Peek("code")

		if len(encodedState) == 0 || len(code) == 0 {
			writeError(ctx, stdCtx, "Missing parameters", perrors.NewErrInvalidRequest("Missing parameters", errors.New("state and code are required")))
			return
		}

		state, err := auth.VerifySignedState(string(encodedState))
		if err != nil {
			writeError(ctx, stdCtx, "Failed to decode state", perrors.NewErrInvalidRequest("Failed to decode state", err))
			return
		}

		token, err := auth.Exchange(stdCtx, string(code))
		if err != nil {
			writeError(ctx, stdCtx, "Failed to exchange token", perrors.NewErrUnauthorized("Failed to exchange token", err))
			return
		}

		idToken, err := auth.VerifyIDToken(stdCtx, token)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to verify ID token", perrors.NewErrUnauthorized("Failed to verify ID token", err))
			return
		}

		var profile struct {
			Email         string `json:"email"`
			EmailVerified bool   `json:"email_verified"`
		}
		if err := idToken.Claims(&profile); err != nil {
			writeError(ctx, stdCtx, "Failed to get claims", perrors.NewErrUnauthorized("Failed to get claims", err))
			return
		}
		if profile.Email == "" || !profile.EmailVerified {
			writeError(ctx, stdCtx, "Email not verified", perrors.NewErrUnauthorized("Email not verified", errors.New("id token has no verified email")))
			return
		}

		u, err := svc.User.GetByEmail(stdCtx, profile.Email)
		if err != nil {
			writeError(ctx, stdCtx, "Unknown user", domainError("Failed to look up user", err))
			return
		}

		if _, _, err := issue(ctx, u); err != nil {
			writeError(ctx, stdCtx, "Failed to generate token", perrors.NewErrInternalServerError("Failed to generate token", err))
			return
		}

		ctx.Redirect(state.Redirect, fasthttp.StatusFound)
	})
}

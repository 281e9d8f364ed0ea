package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/soslanov/authd/internal/domain/user"
)

type Controller struct {
	log     *zap.Logger
	uc      *Usecase
	cookies CookieConfig
}

func NewController(log *zap.Logger, uc *Usecase, cookies CookieConfig) *Controller {
	return &Controller{
		log:     log.With(zap.String("component", "auth.http")),
		uc:      uc,
		cookies: cookies,
	}
}

// Register mounts the routes on the versioned API group.
func (h *Controller) Register(g *echo.Group) {
	a := g.Group("/auth")
	a.POST("/sign-up", h.signUp)
	a.POST("/sign-in", h.signIn)
	a.POST("/sign-out", h.signOut)
	a.POST("/refresh", h.refresh)
	a.GET("/email/verify/:code", h.verifyEmail)
	a.POST("/password/forgot", h.forgotPassword)
	a.POST("/password/reset", h.resetPassword)
	a.POST("/check/email", h.checkEmail)
	a.POST("/check/username", h.checkUsername)

	u := g.Group("/users", RequireAuth(h.uc))
	u.GET("/me", h.me)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func fail(c echo.Context, status int, code, msg string) error {
	var b errorBody
	b.Error.Code = code
	b.Error.Message = msg
	return c.JSON(status, b)
}

// writeError maps usecase errors to the response taxonomy. Internals never
// reach the body.
func (h *Controller) writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return fail(c, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, ErrUnauthorized):
		return fail(c, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, ErrEmailNotVerified):
		return fail(c, http.StatusForbidden, "email_not_verified", "verify your email address first")
	case errors.Is(err, ErrEmailTaken):
		return fail(c, http.StatusConflict, "email_taken", "email already in use")
	case errors.Is(err, ErrUsernameTaken):
		return fail(c, http.StatusConflict, "username_taken", "username already in use")
	case errors.Is(err, ErrUserNotFound):
		return fail(c, http.StatusNotFound, "user_not_found", "user not found")
	case errors.Is(err, ErrCodeInvalid):
		return fail(c, http.StatusNotFound, "code_invalid", "verification code invalid or expired")
	case errors.Is(err, ErrTooManyRequests):
		return fail(c, http.StatusTooManyRequests, "rate_limited", "too many requests, try again later")
	case errors.Is(err, ErrStoreUnavailable):
		return fail(c, http.StatusServiceUnavailable, "store_unavailable", "service temporarily unavailable")
	default:
		h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "internal", "internal server error")
	}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *signUpRequest) validate() string {
	switch {
	case !validEmail(r.Email):
		return "a valid email is required"
	case len(r.Username) < 3 || len(r.Username) > 32:
		return "username must be 3 to 32 characters"
	case len(r.Password) < 8:
		return "password must be at least 8 characters"
	}
	return ""
}

func (h *Controller) signUp(c echo.Context) error {
	var req signUpRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "bad_request", "malformed request body")
	}
	if msg := req.validate(); msg != "" {
		return fail(c, http.StatusBadRequest, "validation", msg)
	}

	usr, err := h.uc.SignUp(c.Request().Context(), SignUpInput{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, userResponse(usr))
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Controller) signIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "bad_request", "malformed request body")
	}
	if !validEmail(req.Email) || req.Password == "" {
		return fail(c, http.StatusBadRequest, "validation", "email and password are required")
	}

	usr, toks, err := h.uc.SignIn(c.Request().Context(), SignInInput{
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Password:  req.Password,
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return h.writeError(c, err)
	}

	setAccessCookie(c, toks.Access, h.cookies)
	setRefreshCookie(c, toks.Refresh, toks.RefreshTTL, h.cookies)
	return c.JSON(http.StatusOK, userResponse(usr))
}

func (h *Controller) signOut(c echo.Context) error {
	tok := accessTokenFrom(c)
	if tok != "" {
		if err := h.uc.SignOut(c.Request().Context(), tok); err != nil {
			clearAuthCookies(c, h.cookies)
			return h.writeError(c, err)
		}
	}
	clearAuthCookies(c, h.cookies)
	return c.JSON(http.StatusOK, map[string]string{"status": "signed_out"})
}

func (h *Controller) refresh(c echo.Context) error {
	tok := refreshTokenFrom(c)
	if tok == "" {
		clearAuthCookies(c, h.cookies)
		return fail(c, http.StatusUnauthorized, "unauthorized", "authentication required")
	}

	res, err := h.uc.Refresh(c.Request().Context(), tok)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			clearAuthCookies(c, h.cookies)
		}
		return h.writeError(c, err)
	}

	setAccessCookie(c, res.Tokens.Access, h.cookies)
	if res.Rotated {
		setRefreshCookie(c, res.Tokens.Refresh, res.Tokens.RefreshTTL, h.cookies)
	}
	return c.JSON(http.StatusOK, map[string]any{"rotated": res.Rotated})
}

func (h *Controller) verifyEmail(c echo.Context) error {
	code := c.Param("code")
	if code == "" {
		return fail(c, http.StatusBadRequest, "validation", "verification code is required")
	}
	usr, err := h.uc.VerifyEmail(c.Request().Context(), code)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, userResponse(usr))
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Controller) forgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "bad_request", "malformed request body")
	}
	if !validEmail(req.Email) {
		return fail(c, http.StatusBadRequest, "validation", "a valid email is required")
	}
	if err := h.uc.ForgotPassword(c.Request().Context(), strings.ToLower(strings.TrimSpace(req.Email))); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "reset_email_sent"})
}

type resetPasswordRequest struct {
	Password         string `json:"password"`
	VerificationCode string `json:"verificationCode"`
}

func (h *Controller) resetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "bad_request", "malformed request body")
	}
	if len(req.Password) < 8 {
		return fail(c, http.StatusBadRequest, "validation", "password must be at least 8 characters")
	}
	if req.VerificationCode == "" {
		return fail(c, http.StatusBadRequest, "validation", "verification code is required")
	}
	if err := h.uc.ResetPassword(c.Request().Context(), req.VerificationCode, req.Password); err != nil {
		return h.writeError(c, err)
	}
	clearAuthCookies(c, h.cookies)
	return c.JSON(http.StatusOK, map[string]string{"status": "password_reset"})
}

func (h *Controller) checkEmail(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "bad_request", "malformed request body")
	}
	if !validEmail(req.Email) {
		return fail(c, http.StatusBadRequest, "validation", "a valid email is required")
	}
	if err := h.uc.CheckEmail(c.Request().Context(), strings.ToLower(strings.TrimSpace(req.Email))); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "available"})
}

type checkUsernameRequest struct {
	Username string `json:"username"`
}

func (h *Controller) checkUsername(c echo.Context) error {
	var req checkUsernameRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "bad_request", "malformed request body")
	}
	if len(req.Username) < 3 {
		return fail(c, http.StatusBadRequest, "validation", "username must be at least 3 characters")
	}
	if err := h.uc.CheckUsername(c.Request().Context(), strings.TrimSpace(req.Username)); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "available"})
}

func (h *Controller) me(c echo.Context) error {
	id, ok := IdentityFrom(c)
	if !ok {
		return fail(c, http.StatusUnauthorized, "unauthorized", "authentication required")
	}
	usr, err := h.uc.CurrentUser(c.Request().Context(), id.UserID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, userResponse(usr))
}

func userResponse(u *user.User) map[string]any {
	return map[string]any{"user": u.Public()}
}

func accessTokenFrom(c echo.Context) string {
	if ck, err := c.Cookie(accessCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func refreshTokenFrom(c echo.Context) string {
	if ck, err := c.Cookie(refreshCookie); err == nil {
		return ck.Value
	}
	return ""
}

func validEmail(s string) bool {
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 {
		return false
	}
	return strings.Contains(s[at+1:], ".") && !strings.ContainsAny(s, " \t")
}

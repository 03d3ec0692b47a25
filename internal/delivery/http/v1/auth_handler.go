package v1

import (
	"net/http"
	"strings"

	"go-marketplace-backend/internal/delivery/http/response"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// AuthRouteOptions carries the per-route limiters and cookie policy.
type AuthRouteOptions struct {
	AuthLimit     gin.HandlerFunc
	OTPLimit      gin.HandlerFunc
	SecureCookies bool
}

type AuthHandler struct {
	flowUC        domain.AuthFlowUsecase
	authUC        domain.AuthUsecase
	secureCookies bool
}

func NewAuthHandler(public *gin.RouterGroup, protected *gin.RouterGroup, flowUC domain.AuthFlowUsecase, authUC domain.AuthUsecase, opts AuthRouteOptions) {
	handler := &AuthHandler{
		flowUC:        flowUC,
		authUC:        authUC,
		secureCookies: opts.SecureCookies,
	}
	authLimit, otpLimit := orNoop(opts.AuthLimit), orNoop(opts.OTPLimit)

	// Public Routes
	publicAuth := public.Group("/auth")
	{
		publicAuth.POST("/register", authLimit, handler.Register)
		publicAuth.POST("/login", authLimit, handler.Login)
		publicAuth.POST("/oauth/callback", authLimit, handler.OAuthCallback)
		publicAuth.POST("/verify-otp", otpLimit, handler.VerifyOTP)
		publicAuth.POST("/resend-otp", otpLimit, handler.ResendOTP)
		publicAuth.POST("/role", handler.SelectRole)
		publicAuth.POST("/profile", handler.CompleteProfile)
		publicAuth.GET("/flow/:id", handler.GetFlow)
		publicAuth.GET("/email-exists", authLimit, handler.EmailExists)
	}

	// Protected Routes
	protectedAuth := protected.Group("/auth")
	{
		protectedAuth.GET("/me", handler.Me)
	}
}

// Register godoc
// @Summary      Start signup
// @Description  Creates the identity and moves the flow to OTP verification.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        register  body      domain.RegisterRequest  true  "Signup form"
// @Success      201       {object}  response.Response{data=domain.FlowResult}
// @Failure      400       {object}  response.Response
// @Failure      409       {object}  response.Response
// @Failure      503       {object}  response.Response
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req domain.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Language == "" {
		req.Language = string(requestLanguage(c))
	}

	res, err := h.flowUC.Register(c, &req)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusCreated, "Verification code sent", res)
}

// Login godoc
// @Summary      Sign in
// @Description  Password sign-in. Unverified accounts resume at OTP verification, users without a role at role selection.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        login  body      domain.LoginRequest  true  "Credentials"
// @Success      200    {object}  response.Response{data=domain.FlowResult}
// @Failure      401    {object}  response.Response
// @Failure      429    {object}  response.Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req domain.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Language == "" {
		req.Language = string(requestLanguage(c))
	}

	client := domain.ClientInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: c.GetString("RequestID"),
	}
	res, err := h.flowUC.Login(c, &req, client)
	if err != nil {
		c.Error(err)
		return
	}
	h.grant(c, res)
	response.Success(c, http.StatusOK, "Login successful", res)
}

// OAuthCallback godoc
// @Summary      Complete a social sign-in
// @Description  Exchanges the provider access token for a flow positioned at the next required step.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        callback  body      domain.OAuthCallbackRequest  true  "Provider token"
// @Success      200       {object}  response.Response{data=domain.FlowResult}
// @Failure      401       {object}  response.Response
// @Router       /auth/oauth/callback [post]
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	var req domain.OAuthCallbackRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Language == "" {
		req.Language = string(requestLanguage(c))
	}

	res, err := h.flowUC.OAuthCallback(c, &req)
	if err != nil {
		c.Error(err)
		return
	}
	h.grant(c, res)
	response.Success(c, http.StatusOK, "Signed in", res)
}

// VerifyOTP godoc
// @Summary      Verify the one-time code
// @Description  A wrong code keeps the flow on verify-otp; error.clear_input tells the SPA to empty the boxes.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        otp  body      domain.VerifyOTPRequest  true  "Flow id and code"
// @Success      200  {object}  response.Response{data=domain.FlowResult}
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      429  {object}  response.Response
// @Router       /auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req domain.VerifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Code = strings.TrimSpace(req.Code)

	res, err := h.flowUC.VerifyOTP(c, &req)
	if err != nil {
		c.Error(err)
		return
	}
	h.grant(c, res)
	response.Success(c, http.StatusOK, "Code verified", res)
}

// ResendOTP godoc
// @Summary      Resend the one-time code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        resend  body      domain.ResendOTPRequest  true  "Flow id"
// @Success      200     {object}  response.Response{data=domain.FlowResult}
// @Failure      429     {object}  response.Response
// @Router       /auth/resend-otp [post]
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req domain.ResendOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.flowUC.ResendOTP(c, &req)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Verification code sent", res)
}

// SelectRole godoc
// @Summary      Pick the account role
// @Description  engineer, client or enterprise. The admin role cannot be self-assigned.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        role  body      domain.SelectRoleRequest  true  "Flow id and role"
// @Success      200   {object}  response.Response{data=domain.FlowResult}
// @Failure      403   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /auth/role [post]
func (h *AuthHandler) SelectRole(c *gin.Context) {
	var req domain.SelectRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))

	res, err := h.flowUC.SelectRole(c, &req)
	if err != nil {
		c.Error(err)
		return
	}
	h.grant(c, res)
	response.Success(c, http.StatusOK, "Role selected", res)
}

// CompleteProfile godoc
// @Summary      Submit the registration form
// @Description  Used after automatic profile provisioning failed. Completes the flow and opens the session.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        profile  body      domain.ProfileSetupRequest  true  "Structured profile"
// @Success      200      {object}  response.Response{data=domain.FlowResult}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /auth/profile [post]
func (h *AuthHandler) CompleteProfile(c *gin.Context) {
	var req domain.ProfileSetupRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.flowUC.CompleteProfile(c, &req)
	if err != nil {
		c.Error(err)
		return
	}
	h.grant(c, res)
	response.Success(c, http.StatusOK, "Registration complete", res)
}

// GetFlow godoc
// @Summary      Resume a flow
// @Tags         auth
// @Produce      json
// @Param        id   path      string  true  "Flow ID"
// @Success      200  {object}  response.Response{data=domain.FlowView}
// @Failure      404  {object}  response.Response
// @Router       /auth/flow/{id} [get]
func (h *AuthHandler) GetFlow(c *gin.Context) {
	view, err := h.flowUC.GetFlow(c, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Flow", view)
}

// EmailExists godoc
// @Summary      Check whether an email is registered
// @Tags         auth
// @Produce      json
// @Param        email  query     string  true  "Email"
// @Success      200    {object}  response.Response
// @Router       /auth/email-exists [get]
func (h *AuthHandler) EmailExists(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.Query("email")))
	if email == "" || !strings.Contains(email, "@") {
		c.Error(apperror.BadRequest("A valid email is required"))
		return
	}

	exists, err := h.authUC.CheckEmailExists(c, email)
	if err != nil {
		c.Error(apperror.Internal(err))
		return
	}
	response.Success(c, http.StatusOK, "Email checked", gin.H{"exists": exists})
}

// Me godoc
// @Summary      Current user
// @Description  The users row and the guard state of the calling session.
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authUC.GetCurrentUser(c, callerID(c))
	if err != nil {
		c.Error(err)
		return
	}

	guard, _ := c.Get(string(domain.KeyGuardState))
	response.Success(c, http.StatusOK, "User profile retrieved", gin.H{
		"user":  user,
		"guard": guard,
	})
}

// grant sets the session cookie when the flow just completed.
func (h *AuthHandler) grant(c *gin.Context, res *domain.FlowResult) {
	if res == nil || res.Session == nil {
		return
	}
	setSessionCookie(c, res.Session.Token, res.Session.ExpiresAt, h.secureCookies)
}

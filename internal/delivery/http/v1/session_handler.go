package v1

import (
	"errors"
	"net/http"
	"time"

	"go-marketplace-backend/internal/delivery/http/middleware"
	"go-marketplace-backend/internal/delivery/http/response"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/internal/session"
	"go-marketplace-backend/pkg/apperror"
	"go-marketplace-backend/pkg/logger"
	"go-marketplace-backend/pkg/security"
	"go-marketplace-backend/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

type SessionRouteOptions struct {
	Origins       middleware.OriginPolicy
	SecureCookies bool
	SecurityLog   *security.SecurityLogger
}

type SessionHandler struct {
	profileUC     domain.ProfileUsecase
	validate      *validator.Validate
	secLog        *security.SecurityLogger
	secureCookies bool
	upgrader      websocket.Upgrader
}

// sessionEvent is one frame on the events stream.
type sessionEvent struct {
	Type  string        `json:"type"`
	State session.State `json:"state"`
}

func NewSessionHandler(protected *gin.RouterGroup, profileUC domain.ProfileUsecase, validate *validator.Validate, opts SessionRouteOptions) {
	if validate == nil {
		validate = validation.New()
	}
	secLog := opts.SecurityLog
	if secLog == nil {
		secLog = security.DefaultLogger()
	}
	origins := opts.Origins
	handler := &SessionHandler{
		profileUC:     profileUC,
		validate:      validate,
		secLog:        secLog,
		secureCookies: opts.SecureCookies,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return origins.Allows(r.Header.Get("Origin"))
			},
		},
	}

	s := protected.Group("/session")
	{
		s.GET("", handler.Get)
		s.PATCH("/user", handler.UpdateUser)
		s.POST("/logout", handler.Logout)
		s.GET("/events", handler.Events)
	}
}

func currentStore(c *gin.Context) (*session.Store, bool) {
	store, ok := middleware.SessionStore(c)
	if !ok {
		c.Error(apperror.Unauthorized("Authentication required").WithDetails(gin.H{"redirect": domain.PathAuth}))
	}
	return store, ok
}

// Get godoc
// @Summary      Current session state
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=session.State}
// @Failure      401  {object}  response.Response
// @Router       /session [get]
func (h *SessionHandler) Get(c *gin.Context) {
	store, ok := currentStore(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, "Session", store.State())
}

// UpdateUser godoc
// @Summary      Update the session user
// @Description  Partial update. Derived profile fields are recomputed only when their source changed. The profiles row is updated on a best-effort basis.
// @Tags         session
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        update  body      domain.UserUpdate  true  "Fields to change"
// @Success      200     {object}  response.Response{data=session.State}
// @Failure      400     {object}  response.Response
// @Router       /session/user [patch]
func (h *SessionHandler) UpdateUser(c *gin.Context) {
	store, ok := currentStore(c)
	if !ok {
		return
	}

	var update domain.UserUpdate
	if !bindJSON(c, &update) {
		return
	}
	if update.IsEmpty() {
		c.Error(apperror.BadRequest("No changes provided"))
		return
	}
	if err := h.validate.Struct(update); err != nil {
		lang := requestLanguage(c)
		if update.Language != nil {
			lang = domain.NormalizeLanguage(*update.Language)
		}
		c.Error(validation.AppError(err, lang))
		return
	}

	st, err := store.UpdateUser(c.Request.Context(), update)
	if errors.Is(err, session.ErrNotAuthenticated) {
		c.Error(apperror.Unauthorized("Session has ended").WithDetails(gin.H{"redirect": domain.PathAuth}))
		return
	}
	if err != nil {
		c.Error(apperror.Unavailable("Could not save session", err))
		return
	}

	if h.profileUC != nil {
		if _, err := h.profileUC.UpdateProfile(c, callerID(c), update); err != nil {
			logger.Log.WarnContext(c.Request.Context(), "profile sync after session update failed",
				"user_id", callerID(c), "error", err)
		}
	}
	response.Success(c, http.StatusOK, "Session updated", st)
}

// Logout godoc
// @Summary      End the session
// @Description  Clears every session key. Other tabs on the same session receive the logged-out state.
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Router       /session/logout [post]
func (h *SessionHandler) Logout(c *gin.Context) {
	store, ok := currentStore(c)
	if !ok {
		return
	}

	userID := callerID(c)
	if _, err := store.Logout(c.Request.Context()); err != nil {
		c.Error(apperror.Unavailable("Could not end session", err))
		return
	}
	clearSessionCookie(c, h.secureCookies)
	h.secLog.LogLogout(c.Request.Context(), userID, store.ID(), c.ClientIP(), c.GetString("RequestID"))

	response.Success(c, http.StatusOK, "Logged out", gin.H{"redirect": domain.PathAuth})
}

// Events godoc
// @Summary      Session state stream
// @Description  WebSocket. Sends the current state, then every change made by any tab or instance holding the session.
// @Tags         session
// @Security     BearerAuth
// @Router       /session/events [get]
func (h *SessionHandler) Events(c *gin.Context) {
	store, ok := currentStore(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied.
		logger.Log.DebugContext(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id, updates := store.Subscribe()
	defer store.Unsubscribe(id)

	// Clients never send data; reading only services control frames.
	done := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := writeEvent(conn, store.State()); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case st, ok := <-updates:
			if !ok {
				closeSocket(conn, websocket.CloseGoingAway, "session closed")
				return
			}
			if err := writeEvent(conn, st); err != nil {
				return
			}
			if !st.IsAuthenticated {
				closeSocket(conn, websocket.CloseNormalClosure, "logged out")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, st session.State) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(sessionEvent{Type: "state", State: st})
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

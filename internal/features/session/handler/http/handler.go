package http

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pi-storefront/internal/common/middleware"
	"pi-storefront/internal/features/session/models"
)

const stateEvent = "state"

// Service is the part of the session manager exposed over HTTP.
type Service interface {
	State() models.State
	Login(ctx context.Context) error
	Logout(ctx context.Context)
	Subscribe() (<-chan models.State, func())
}

// StateResponse is a session snapshot with its derived phase.
type StateResponse struct {
	Identity *models.Identity `json:"identity"`
	Loading  bool             `json:"loading"`
	SDKReady bool             `json:"sdk_ready"`
	Phase    models.Phase     `json:"phase"`
}

func NewStateResponse(s models.State) StateResponse {
	return StateResponse{
		Identity: s.Identity,
		Loading:  s.Loading,
		SDKReady: s.SDKReady,
		Phase:    s.Phase(),
	}
}

type Handler struct {
	service Service
	logger  zerolog.Logger
}

func NewHandler(service Service, logger zerolog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	wrap := middleware.HandleErrorWrapper(h.logger)

	session := router.Group("/session")
	{
		session.GET("", h.GetState)
		session.POST("/login", wrap(h.Login))
		session.POST("/logout", h.Logout)
		session.GET("/events", h.Events)
	}
}

// @Summary Get session state
// @Description Returns the current session snapshot with its derived phase.
// @Tags session
// @Produce json
// @Success 200 {object} StateResponse
// @Router /session [get]
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, NewStateResponse(h.service.State()))
}

// Login runs the interactive login and responds with the resulting state.
// Errors are left on the context for HandleErrorWrapper to render; the
// previous identity is preserved by the manager.
//
// @Summary Log in
// @Description Fetches a platform access token and verifies it with the backend. A failed login keeps the previous identity.
// @Tags session
// @Accept json
// @Produce json
// @Success 200 {object} StateResponse
// @Failure 401 {object} middleware.ErrorResponse "Verification failed"
// @Failure 409 {object} middleware.ErrorResponse "Login already in progress"
// @Failure 503 {object} middleware.ErrorResponse "Pi SDK unavailable"
// @Failure 504 {object} middleware.ErrorResponse "Token or verification timed out"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /session/login [post]
func (h *Handler) Login(c *gin.Context) {
	if err := h.service.Login(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, NewStateResponse(h.service.State()))
}

// @Summary Log out
// @Description Forgets the persisted identity. Never fails.
// @Tags session
// @Produce json
// @Success 200 {object} StateResponse
// @Router /session/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	h.service.Logout(c.Request.Context())
	c.JSON(http.StatusOK, NewStateResponse(h.service.State()))
}

// Events streams every state change as server-sent events until the client
// goes away or the manager shuts down.
//
// @Summary Stream session state
// @Description Server-sent events; each "state" event carries a StateResponse.
// @Tags session
// @Produce text/event-stream
// @Success 200 {object} StateResponse "state event payload"
// @Router /session/events [get]
func (h *Handler) Events(c *gin.Context) {
	updates, unsubscribe := h.service.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case s, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent(stateEvent, NewStateResponse(s))
			return true
		}
	})
}

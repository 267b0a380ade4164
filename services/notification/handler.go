package notification

import (
	"net/http"

	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/middleware"
	"rewards-controlplane/pkg/server"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type handler struct {
	store *Store
}

func registerRoutes(r *server.Router, store *Store) {
	h := &handler{store: store}
	r.API.GET("/me/notifications", h.inbox)
	r.API.POST("/me/notifications/:id/read", h.markRead)
}

func (h *handler) inbox(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	items, err := h.store.Inbox(c.Request.Context(), p.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (h *handler) markRead(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.Error(errutil.ValidationFailed("invalid notification id", err))
		return
	}

	if err := h.store.MarkRead(c.Request.Context(), p.UserID, id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

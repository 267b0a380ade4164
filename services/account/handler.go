package account

import (
	"net/http"

	"rewards-controlplane/pkg/middleware"
	"rewards-controlplane/pkg/server"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

func registerRoutes(r *server.Router, svc *Service) {
	h := &handler{svc: svc}
	r.API.GET("/me", h.me)
}

func (h *handler) me(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	acc, err := h.svc.Get(c.Request.Context(), p.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, acc)
}

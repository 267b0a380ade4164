package cart

import (
	"net/http"

	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/middleware"
	"rewards-controlplane/pkg/server"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

type addItemRequest struct {
	ProductID snowflake.ID `json:"product_id" binding:"required"`
	Quantity  int64        `json:"quantity" binding:"required,gt=0"`
}

func registerRoutes(r *server.Router, svc *Service) {
	h := &handler{svc: svc}
	r.API.GET("/cart", h.list)
	r.API.POST("/cart", h.add)
	r.API.DELETE("/cart/:productId", h.remove)
}

func (h *handler) list(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	items, err := h.svc.Items(c.Request.Context(), nil, p.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (h *handler) add(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid cart item", err))
		return
	}

	item, err := h.svc.Add(c.Request.Context(), p.UserID, req.ProductID, req.Quantity)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *handler) remove(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	productID, err := snowflake.ParseString(c.Param("productId"))
	if err != nil {
		c.Error(errutil.ValidationFailed("invalid product id", err))
		return
	}

	if err := h.svc.Remove(c.Request.Context(), p.UserID, productID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

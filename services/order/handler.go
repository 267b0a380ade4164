package order

import (
	"net/http"

	"rewards-controlplane/pkg/db/pagination"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/middleware"
	"rewards-controlplane/pkg/server"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

type createOrderRequest struct {
	ProductID snowflake.ID `json:"product_id" binding:"required"`
	Quantity  int64        `json:"quantity" binding:"required"`
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type listOrdersQuery struct {
	Status string `form:"status"`
	pagination.Pagination
}

func registerRoutes(r *server.Router, svc *Service) {
	h := &handler{svc: svc}

	r.API.GET("/me/orders", h.myOrders)
	r.API.POST("/orders", h.createFromProduct)
	r.API.POST("/orders/checkout", h.createFromCart)

	admin := r.API.Group("/admin")
	admin.GET("/orders", h.listOrders)
	admin.GET("/orders/:id", h.getOrder)
	admin.PUT("/orders/:id/status", h.setStatus)
}

func pathOrderID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.Error(errutil.ValidationFailed("invalid order id", err))
		return 0, false
	}
	return id, true
}

func (h *handler) createFromProduct(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("product_id and an integer quantity are required", err))
		return
	}

	o, err := h.svc.CreateFromSingleProduct(c.Request.Context(), p.UserID, req.ProductID, req.Quantity)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, o)
}

func (h *handler) createFromCart(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	o, err := h.svc.CreateFromCart(c.Request.Context(), p.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, o)
}

func (h *handler) myOrders(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.ValidationFailed("invalid pagination", err))
		return
	}

	orders, info, err := h.svc.ListUserOrders(c.Request.Context(), p.UserID, page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orders, "page_info": info})
}

func (h *handler) listOrders(c *gin.Context) {
	var q listOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.Error(errutil.ValidationFailed("invalid query", err))
		return
	}

	views, info, err := h.svc.ListOrders(c.Request.Context(), ListParams{
		Status: Status(q.Status),
		Cursor: q.Cursor,
		Limit:  q.Limit,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": views, "page_info": info})
}

func (h *handler) getOrder(c *gin.Context) {
	id, ok := pathOrderID(c)
	if !ok {
		return
	}

	view, err := h.svc.GetOrderView(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *handler) setStatus(c *gin.Context) {
	id, ok := pathOrderID(c)
	if !ok {
		return
	}

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("status is required", err))
		return
	}

	admin, _ := middleware.PrincipalFrom(c)
	o, err := h.svc.SetStatus(c.Request.Context(), SetStatusParams{
		OrderID: id,
		Status:  Status(req.Status),
		AdminID: admin.UserID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, o)
}

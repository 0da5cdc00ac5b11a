package main

import (
	"crypto/rand"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/instatrade/itn/internal/invoice"
	"github.com/instatrade/itn/internal/orchestrator"
	"github.com/instatrade/itn/internal/router"
)

// defaultJitter draws a uniform value in [-0.01, 0.01] using crypto/rand,
// the production jitter source for the capital auction (spec.md §4.9);
// tests inject a fixed deterministic JitterFunc instead.
func defaultJitter() decimal.Decimal {
	n, err := rand.Int(rand.Reader, big.NewInt(201))
	if err != nil {
		return decimal.Zero
	}
	milli := n.Int64() - 100 // [-100, 100]
	return decimal.NewFromInt(milli).Div(decimal.NewFromInt(10000))
}

type lineItemDTO struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type createInvoiceDTO struct {
	SupplierID string        `json:"supplier_id" binding:"required"`
	BuyerID    string        `json:"buyer_id" binding:"required"`
	Currency   string        `json:"currency" binding:"required"`
	Terms      int           `json:"terms"`
	LineItems  []lineItemDTO `json:"line_items" binding:"required"`
}

type acceptInvoiceDTO struct {
	AuthenticatedUser string `json:"authenticated_user" binding:"required"`
	Signature         []byte `json:"signature"`
}

type settleInvoiceDTO struct {
	Priority router.Priority `json:"priority"`
}

func registerAPIRoutes(r *gin.Engine, orc *orchestrator.Orchestrator) {
	api := r.Group("/api/v1")

	api.POST("/invoices", func(c *gin.Context) {
		var dto createInvoiceDTO
		if err := c.ShouldBindJSON(&dto); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		items := make([]invoice.LineItem, len(dto.LineItems))
		for i, li := range dto.LineItems {
			items[i] = invoice.LineItem{Description: li.Description, Quantity: li.Quantity, UnitPrice: li.UnitPrice}
		}

		inv, err := orc.CreateInvoice(orchestrator.CreateInvoiceRequest{
			SupplierID: dto.SupplierID,
			BuyerID:    dto.BuyerID,
			Currency:   dto.Currency,
			Terms:      dto.Terms,
			LineItems:  items,
		})
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, inv)
	})

	api.GET("/invoices/:id", func(c *gin.Context) {
		inv, err := orc.Invoices().Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, inv)
	})

	api.GET("/invoices", func(c *gin.Context) {
		q := invoice.Query{
			SupplierID: c.Query("supplier_id"),
			BuyerID:    c.Query("buyer_id"),
			Status:     invoice.Status(c.Query("status")),
		}
		c.JSON(http.StatusOK, orc.Invoices().Find(q))
	})

	api.POST("/invoices/:id/accept", func(c *gin.Context) {
		var dto acceptInvoiceDTO
		if err := c.ShouldBindJSON(&dto); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		inv, err := orc.AcceptInvoice(c.Request.Context(), c.Param("id"), dto.AuthenticatedUser, dto.Signature)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, inv)
	})

	api.POST("/invoices/:id/settle", func(c *gin.Context) {
		var dto settleInvoiceDTO
		_ = c.ShouldBindJSON(&dto)
		if dto.Priority == "" {
			dto.Priority = router.PriorityBalanced
		}
		s, err := orc.SettleInvoice(c.Request.Context(), c.Param("id"), dto.Priority)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s)
	})
}

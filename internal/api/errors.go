package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos-ledger/internal/service"
	"pos-ledger/internal/util"
)

var errorStatus = []struct {
	err    error
	status int
	title  string
}{
	{service.ErrPurchaseNotFound, http.StatusNotFound, "Purchase not found"},
	{service.ErrProductNotFound, http.StatusNotFound, "Product not found"},
	{service.ErrSessionNotFound, http.StatusNotFound, "Session not found"},
	{service.ErrItemNotFound, http.StatusNotFound, "Item not found"},
	{service.ErrNoActiveSession, http.StatusConflict, "No active session"},
	{service.ErrInsufficientStock, http.StatusConflict, "Insufficient stock"},
	{service.ErrInvalidStateTransition, http.StatusConflict, "Invalid state transition"},
	{service.ErrSessionAlreadyOpen, http.StatusConflict, "Session already open"},
	{service.ErrAlreadyClosed, http.StatusConflict, "Session already closed"},
	{service.ErrAlreadyReturned, http.StatusConflict, "Item already returned"},
	{service.ErrProductExists, http.StatusConflict, "Product already exists"},
	{service.ErrDuplicateRequest, http.StatusConflict, "Duplicate request"},
	{service.ErrEmptyCart, http.StatusUnprocessableEntity, "Empty cart"},
	{service.ErrInvalidQuantity, http.StatusUnprocessableEntity, "Invalid quantity"},
	{service.ErrInvalidAmount, http.StatusUnprocessableEntity, "Invalid amount"},
	{service.ErrInvalidChannel, http.StatusUnprocessableEntity, "Invalid channel"},
	{service.ErrInvalidPhone, http.StatusUnprocessableEntity, "Invalid phone"},
	{service.ErrInvalidProduct, http.StatusUnprocessableEntity, "Invalid product"},
	{service.ErrProductUnavailable, http.StatusUnprocessableEntity, "Product unavailable"},
	{service.ErrMissingCustomerIdentifier, http.StatusUnprocessableEntity, "Missing customer identifier"},
	{service.ErrNotOwner, http.StatusForbidden, "Not session owner"},
	{service.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{service.ErrTransactionFailed, http.StatusServiceUnavailable, "Transaction failed, retry later"},
}

// respondError writes err as a JSON error with its mapped status
func respondError(c *gin.Context, err error) {
	for _, e := range errorStatus {
		if !errors.Is(err, e.err) {
			continue
		}
		body := gin.H{
			"error":   e.title,
			"details": err.Error(),
		}
		var shortage *service.InsufficientStockError
		if errors.As(err, &shortage) {
			body["product_id"] = shortage.ProductID
			body["available"] = shortage.Available
			body["requested"] = shortage.Requested
		}
		c.JSON(e.status, body)
		return
	}

	util.GetLogger().Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal error",
		"details": err.Error(),
	})
}

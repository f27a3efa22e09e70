package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/candleshop/internal/domain/order"
	"github.com/xenking/candleshop/internal/domain/promotion"
)

// writeDomainError maps err to a response. unknownPromotion is the status of
// promotion.ErrNotFound: 404 when the promotion is the addressed resource,
// 422 when it was only referenced by a cart.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, unknownPromotion int) {
	var (
		reqErr      *requestError
		quantityErr *order.InvalidQuantityError
		productErr  *order.ProductNotFoundError
		rejectedErr *order.PromotionRejectedError
	)
	switch {
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, reqErr.msg, reqErr.details)
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &quantityErr):
		writeError(w, http.StatusUnprocessableEntity, quantityErr.Error(), nil)
	case errors.As(err, &productErr):
		writeError(w, http.StatusUnprocessableEntity, productErr.Error(), nil)
	case errors.As(err, &rejectedErr):
		writeError(w, http.StatusUnprocessableEntity, "promotion code does not apply", map[string]string{
			"reason": string(rejectedErr.Result.Reason),
			"error":  rejectedErr.Result.Error,
		})
	case errors.Is(err, promotion.ErrNotFound):
		writeError(w, unknownPromotion, "promotion not found", nil)
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found", nil)
	case errors.Is(err, order.ErrNotPending):
		writeError(w, http.StatusConflict, "order is not pending", nil)
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

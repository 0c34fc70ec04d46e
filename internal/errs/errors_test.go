package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"invalid argument", InvalidArgument("bad iban"), http.StatusBadRequest},
		{"access denied", AccessDenied("supervisor required"), http.StatusForbidden},
		{"not found", NotFound("product", 42), http.StatusNotFound},
		{"conflict", Conflict("cashier still logged in"), http.StatusConflict},
		{"insufficient funds", InsufficientFunds(decimal.NewFromInt(6), decimal.NewFromInt(5)), http.StatusUnprocessableEntity},
		{"age restriction", AgeRestriction([]int64{3}), http.StatusUnprocessableEntity},
		{"already finished", AlreadyFinished(17), http.StatusUnprocessableEntity},
		{"internal", Internal("boom", errors.New("cause")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
			assert.Equal(t, tt.want, HTTPStatusOf(tt.err))
		})
	}
}

func TestErrorStableIDs(t *testing.T) {
	assert.Equal(t, "InvalidArgument", InvalidArgument("x").ID)
	assert.Equal(t, "AccessDenied", AccessDenied("x").ID)
	assert.Equal(t, "NotFound", NotFound("till", 1).ID)
	assert.Equal(t, "Conflict", Conflict("x").ID)
	assert.Equal(t, "InsufficientFunds", InsufficientFunds(decimal.Zero, decimal.Zero).ID)
	assert.Equal(t, "AgeRestriction", AgeRestriction(nil).ID)
	assert.Equal(t, "AlreadyFinished", AlreadyFinished(1).ID)
	assert.Equal(t, "Internal", Internal("x", nil).ID)
}

func TestInsufficientFundsDetails(t *testing.T) {
	err := InsufficientFunds(decimal.RequireFromString("6.00"), decimal.RequireFromString("5.00"))

	require.NotNil(t, err.Details)
	needed, ok := err.Details["needed_fund"].(decimal.Decimal)
	require.True(t, ok)
	available, ok := err.Details["available_fund"].(decimal.Decimal)
	require.True(t, ok)

	assert.True(t, needed.Equal(decimal.RequireFromString("6.00")))
	assert.True(t, available.Equal(decimal.RequireFromString("5.00")))
	assert.Contains(t, err.Message, "needed 6.00")
	assert.Contains(t, err.Message, "available 5.00")
}

func TestAgeRestrictionCarriesProductIDs(t *testing.T) {
	err := AgeRestriction([]int64{3, 7})

	ids, ok := err.Details["product_ids"].([]int64)
	require.True(t, ok)
	assert.Equal(t, []int64{3, 7}, ids)
}

func TestProductNotEditableID(t *testing.T) {
	err := ProductNotEditable(9)

	assert.Equal(t, "ProductNotEditable", err.ID)
	assert.Equal(t, KindInvalidArgument, err.Kind)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
}

func TestKindPredicatesThroughWrapping(t *testing.T) {
	base := NotFound("account", 5)
	wrapped := fmt.Errorf("loading account: %w", base)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.Equal(t, "NotFound", IDOf(wrapped))
	assert.Equal(t, http.StatusNotFound, HTTPStatusOf(wrapped))
}

func TestUnrecognisedErrorDefaultsToInternal(t *testing.T) {
	err := errors.New("plain failure")

	assert.Equal(t, KindUnknown, KindOf(err))
	assert.True(t, IsInternal(err))
	assert.Equal(t, "Internal", IDOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusOf(err))
}

func TestInternalUnwrapsCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internal("booking failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "caused by")
}

// Withdrawal and admin HTTP handlers.
//
//   - GET  /withdrawals       (saved payout details, balance, past requests)
//   - POST /withdrawals       (new payout request)
//   - GET  /admin/dashboard   (platform aggregates, administrators only)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/monitizeclub/monitize-backend/internal/repo"
)

// WithdrawalRequestBody is the JSON payload for a payout request. Either
// upi_id or all bank fields are required.
type WithdrawalRequestBody struct {
	Amount            decimal.Decimal `json:"amount" swaggertype:"string" example:"1500.00"`
	UPIID             string          `json:"upi_id" example:"creator@okbank"`
	BankAccountName   string          `json:"bank_account_name"`
	BankAccountNumber string          `json:"bank_account_number"`
	BankIFSC          string          `json:"bank_ifsc"`
}

// GetWithdrawals godoc
// @ID          getWithdrawals
// @Summary     Withdrawal overview
// @Tags        Withdrawals
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer session token"
// @Success     200  {object} services.WithdrawalOverview
// @Failure     401  {object} handlers.ErrorResponse
// @Router      /withdrawals [get]
func (h *Handlers) GetWithdrawals(c *gin.Context) {
	ov, err := h.withdrawals.Overview(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ov)
}

// PostWithdrawal godoc
// @ID          postWithdrawal
// @Summary     Request a withdrawal
// @Tags        Withdrawals
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer session token"
// @Param       body           body    handlers.WithdrawalRequestBody  true  "Payout request"
// @Success     201  {object} domain.WithdrawalRequest
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     409  {object} handlers.ErrorResponse "Insufficient balance"
// @Router      /withdrawals [post]
func (h *Handlers) PostWithdrawal(c *gin.Context) {
	var req WithdrawalRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount required")
		return
	}
	w, err := h.withdrawals.Request(c.Request.Context(), userID(c), req.Amount, repo.PayoutDetails{
		UPIID:             req.UPIID,
		BankAccountName:   req.BankAccountName,
		BankAccountNumber: req.BankAccountNumber,
		BankIFSC:          req.BankIFSC,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, w)
}

// AdminDashboard godoc
// @ID          adminDashboard
// @Summary     Admin dashboard
// @Tags        Admin
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer admin session token"
// @Success     200  {object} repo.Dashboard
// @Failure     401  {object} handlers.ErrorResponse
// @Failure     403  {object} handlers.ErrorResponse
// @Router      /admin/dashboard [get]
func (h *Handlers) AdminDashboard(c *gin.Context) {
	d, err := h.admin.Dashboard(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

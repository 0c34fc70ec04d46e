// Package payout models payout runs: the batches in which residual
// customer balances leave the system as SEPA credit transfers after the
// event. The package is purely functional; attaching customers to a run
// happens in the payout repository.
package payout

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/core/sepa"
	"github.com/stustapay/stustapayd/internal/errs"
)

// Run is one payout batch. Customers are attached at creation time and
// stay attached; SetDoneAt marks that all export files were written and
// validated.
type Run struct {
	ID            int64      `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	CreatedBy     string     `json:"created_by"`
	ExecutionDate time.Time  `json:"execution_date"`
	SetDoneAt     *time.Time `json:"set_done_at"`
}

// Payout is one customer's residual balance inside a run: the amount is
// the account balance minus the effective donation.
type Payout struct {
	CustomerAccountID int64           `json:"customer_account_id"`
	IBAN              string          `json:"iban"`
	AccountName       string          `json:"account_name"`
	Email             string          `json:"email"`
	UserTagUID        uint64          `json:"user_tag_uid"`
	Amount            decimal.Decimal `json:"amount"`
	PayoutRunID       *int64          `json:"payout_run_id"`
}

// Reference renders the remittance text from the configured template,
// substituting {user_tag_uid} with the tag uid in display form.
func Reference(template string, uid uint64) string {
	return strings.ReplaceAll(template, "{user_tag_uid}", account.FormatTagUID(uid))
}

// csvHeader is the fixed column set of the per-run CSV file. The
// beneficiary bic column stays empty: transfers are IBAN-only, only the
// sender side carries a BIC.
var csvHeader = []string{
	"beneficiary_name", "iban", "bic", "amount", "currency", "reference",
	"execution_date", "uid", "email", "account_name",
}

// CSVOptions parameterizes a CSV export.
type CSVOptions struct {
	Currency            string
	SenderName          string
	DescriptionTemplate string
	ExecutionDate       time.Time
}

// RenderCSV produces the whole-run CSV file covering all payouts of a
// run, one row per customer, amounts with two fraction digits.
func RenderCSV(payouts []Payout, opts CSVOptions) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, errs.Internal("writing csv header", err)
	}
	for _, p := range payouts {
		row := []string{
			p.AccountName,
			p.IBAN,
			"",
			p.Amount.StringFixed(2),
			opts.Currency,
			Reference(opts.DescriptionTemplate, p.UserTagUID),
			opts.ExecutionDate.Format("2006-01-02"),
			account.FormatTagUID(p.UserTagUID),
			p.Email,
			opts.SenderName,
		}
		if err := w.Write(row); err != nil {
			return nil, errs.Internal("writing csv row for account "+strconv.FormatInt(p.CustomerAccountID, 10), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errs.Internal("flushing csv", err)
	}
	return buf.Bytes(), nil
}

// Transfers maps a batch of payouts onto SEPA credit transfers.
func Transfers(payouts []Payout, descriptionTemplate string) []sepa.Transfer {
	transfers := make([]sepa.Transfer, 0, len(payouts))
	for _, p := range payouts {
		transfers = append(transfers, sepa.Transfer{
			Name:        p.AccountName,
			IBAN:        p.IBAN,
			Amount:      p.Amount,
			Description: Reference(descriptionTemplate, p.UserTagUID),
		})
	}
	return transfers
}

// Chunk splits payouts into batches of at most size entries, preserving
// order. A size of zero or less yields a single batch.
func Chunk(payouts []Payout, size int) [][]Payout {
	if len(payouts) == 0 {
		return nil
	}
	if size <= 0 || size >= len(payouts) {
		return [][]Payout{payouts}
	}
	batches := make([][]Payout, 0, (len(payouts)+size-1)/size)
	for start := 0; start < len(payouts); start += size {
		end := start + size
		if end > len(payouts) {
			end = len(payouts)
		}
		batches = append(batches, payouts[start:end])
	}
	return batches
}

// Total sums the amounts of a batch.
func Total(payouts []Payout) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payouts {
		sum = sum.Add(p.Amount)
	}
	return sum
}

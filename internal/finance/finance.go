// Package finance applies ledger entries to money pools and summarizes a
// client's payments against their contract.
package finance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/marcus/desk/internal/models"
)

var (
	ErrUnknownAccount = errors.New("unknown account")
	ErrUnknownClient  = errors.New("unknown client")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrInvalidType    = errors.New("transaction type must be Income or Expense")
)

// ResolveClient finds a client by id, falling back to tax id.
func ResolveClient(clients []models.Client, ref string) (models.Client, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.Client{}, ErrUnknownClient
	}
	for _, c := range clients {
		if c.ID == ref {
			return c, nil
		}
	}
	for _, c := range clients {
		if c.TaxID != "" && c.TaxID == ref {
			return c, nil
		}
	}
	return models.Client{}, fmt.Errorf("%w: %s", ErrUnknownClient, ref)
}

// signed returns the effect of tx on its account balance.
func signed(tx models.Transaction) decimal.Decimal {
	if tx.Type == models.TransactionExpense {
		return tx.Amount.Neg()
	}
	return tx.Amount
}

// Record appends tx to the ledger and moves its account balance. Income
// adds, Expense subtracts. The inputs are not modified. A transaction
// without an account only lands in the ledger.
func Record(accounts []models.FinancialAccount, txs []models.Transaction, tx models.Transaction) ([]models.FinancialAccount, []models.Transaction, error) {
	if tx.Type != models.TransactionIncome && tx.Type != models.TransactionExpense {
		return nil, nil, ErrInvalidType
	}
	if !tx.Amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}

	outAccounts := append([]models.FinancialAccount(nil), accounts...)
	if tx.AccountID != "" {
		i := indexOfAccount(outAccounts, tx.AccountID)
		if i < 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAccount, tx.AccountID)
		}
		outAccounts[i].Balance = outAccounts[i].Balance.Add(signed(tx))
	}
	if tx.ID == "" {
		tx.ID = models.NewID("tx_")
	}
	outTxs := append(append([]models.Transaction(nil), txs...), tx)
	return outAccounts, outTxs, nil
}

func indexOfAccount(accounts []models.FinancialAccount, id string) int {
	for i, a := range accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// AddAccount appends a new money pool with a zero balance.
func AddAccount(accounts []models.FinancialAccount, name, currency string) ([]models.FinancialAccount, models.FinancialAccount, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.FinancialAccount{}, errors.New("account name is required")
	}
	if currency == "" {
		currency = "KZT"
	}
	a := models.FinancialAccount{ID: models.NewID("acc_"), Name: name, Balance: decimal.Zero, Currency: currency}
	return append(append([]models.FinancialAccount(nil), accounts...), a), a, nil
}

// ClientStats summarizes payments received from one client.
type ClientStats struct {
	TotalIncome   decimal.Decimal
	ContractTotal decimal.Decimal
	Debt          decimal.Decimal
	PayPercent    int
	Transactions  int
}

// StatsFor sums the client's Income transactions against its contract
// amount. Transactions link to the client by id or by tax id.
func StatsFor(c models.Client, txs []models.Transaction) ClientStats {
	s := ClientStats{ContractTotal: c.ContractAmount, TotalIncome: decimal.Zero}
	for _, tx := range txs {
		linked := tx.ClientID == c.ID || (c.TaxID != "" && tx.ClientTaxID == c.TaxID)
		if !linked {
			continue
		}
		s.Transactions++
		if tx.Type == models.TransactionIncome {
			s.TotalIncome = s.TotalIncome.Add(tx.Amount)
		}
	}
	s.Debt = s.ContractTotal.Sub(s.TotalIncome)
	if s.ContractTotal.IsPositive() {
		pct := s.TotalIncome.Div(s.ContractTotal).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
		s.PayPercent = int(min(pct, 100))
	}
	return s
}

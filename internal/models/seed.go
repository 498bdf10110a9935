package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Seed data used when the local mirror has no stored value for a collection.

var seedTime = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// SeedUsers returns the default staff roster
func SeedUsers() []User {
	return []User{
		{ID: "u1", Name: "Administrator", Role: RoleAdmin, Salary: decimal.NewFromInt(500000)},
		{ID: "u2", Name: "Manager", Role: RoleManager, Salary: decimal.NewFromInt(350000)},
		{ID: "u3", Name: "Engineer", Role: RoleEngineer, Salary: decimal.NewFromInt(300000)},
	}
}

// SeedClients returns the demo client list
func SeedClients() []Client {
	return []Client{
		{
			ID:             "c1",
			Name:           "Demo Client",
			TaxID:          "000000000000",
			ContractAmount: decimal.Zero,
			Balance:        decimal.Zero,
			CreatedAt:      seedTime,
		},
	}
}

// SeedTasks returns the demo task list
func SeedTasks() []Task {
	return []Task{}
}

// SeedAccounts returns the default money pools
func SeedAccounts() []FinancialAccount {
	return []FinancialAccount{
		{ID: "acc_cash", Name: "Cash", Balance: decimal.Zero, Currency: "KZT"},
		{ID: "acc_bank", Name: "Bank", Balance: decimal.Zero, Currency: "KZT"},
	}
}

// SeedTransactions returns the demo ledger
func SeedTransactions() []Transaction {
	return []Transaction{}
}

// SeedMessages returns the channel greeting shown on a fresh install
func SeedMessages() []ChatMessage {
	return []ChatMessage{
		{
			ID:        "m0",
			SenderID:  "u1",
			Text:      "Welcome to the team channel",
			CreatedAt: seedTime,
			IsRead:    true,
			Type:      MessageText,
		},
	}
}

// Package wire translates between local records and the remote store's row
// shape. Remote columns use snake_case names; every mirrored entity has a
// ToWire/FromWire pair covering all of its fields.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcus/desk/internal/models"
	"github.com/shopspring/decimal"
)

// Client is the remote row for models.Client
type Client struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	TaxID          string          `json:"tax_id"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email"`
	Address        string          `json:"address"`
	ContractNumber string          `json:"contract_number"`
	ContractAmount decimal.Decimal `json:"contract_amount"`
	Balance        decimal.Decimal `json:"balance"`
	CreatedAt      time.Time       `json:"created_at"`
	InsertedAt     *time.Time      `json:"inserted_at,omitempty"` // server default, never written
}

// HistoryEntry is the remote shape of a task history item (stored in a jsonb column)
type HistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// Confirmation is the remote shape of a client confirmation (jsonb)
type Confirmation struct {
	IsConfirmed bool      `json:"is_confirmed"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	Rating      int       `json:"rating"`
}

// Task is the remote row for models.Task
type Task struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	ClientID           *string        `json:"client_id"`
	ClientName         string         `json:"client_name"`
	Address            string         `json:"address"`
	Status             string         `json:"status"`
	Priority           string         `json:"priority"`
	EngineerID         *string        `json:"engineer_id"`
	Deadline           *string        `json:"deadline"`
	Description        string         `json:"description"`
	History            []HistoryEntry `json:"history"`
	PublicToken        *string        `json:"public_token"`
	Attachments        []string       `json:"attachments"`
	ClientConfirmation *Confirmation  `json:"client_confirmation"`
	InsertedAt         *time.Time     `json:"inserted_at,omitempty"`
}

// Transaction is the remote row for models.Transaction
type Transaction struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        string          `json:"date"`
	AccountID   *string         `json:"account_id"`
	ClientID    *string         `json:"client_id"`
	ClientTaxID *string         `json:"client_tax_id"`
	Comment     string          `json:"comment"`
	InsertedAt  *time.Time      `json:"inserted_at,omitempty"`
}

// Account is the remote row for models.FinancialAccount
type Account struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Balance    decimal.Decimal `json:"balance"`
	Currency   string          `json:"currency"`
	InsertedAt *time.Time      `json:"inserted_at,omitempty"`
}

// Message is the remote row for models.ChatMessage
type Message struct {
	ID            string     `json:"id"`
	SenderID      string     `json:"sender_id"`
	ReceiverID    *string    `json:"receiver_id"`
	Text          string     `json:"text"`
	CreatedAt     time.Time  `json:"created_at"`
	IsRead        bool       `json:"is_read"`
	Type          string     `json:"type"`
	AttachmentURL *string    `json:"attachment_url"`
	InsertedAt    *time.Time `json:"inserted_at,omitempty"`
}

// nullable maps "" to nil so optional references travel as SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ClientToWire converts a local client to its remote row
func ClientToWire(c models.Client) Client {
	return Client{
		ID:             c.ID,
		Name:           c.Name,
		TaxID:          c.TaxID,
		Phone:          c.Phone,
		Email:          c.Email,
		Address:        c.Address,
		ContractNumber: c.ContractNumber,
		ContractAmount: c.ContractAmount,
		Balance:        c.Balance,
		CreatedAt:      c.CreatedAt,
	}
}

// ClientFromWire converts a remote row to a local client
func ClientFromWire(w Client) models.Client {
	return models.Client{
		ID:             w.ID,
		Name:           w.Name,
		TaxID:          w.TaxID,
		Phone:          w.Phone,
		Email:          w.Email,
		Address:        w.Address,
		ContractNumber: w.ContractNumber,
		ContractAmount: w.ContractAmount,
		Balance:        w.Balance,
		CreatedAt:      w.CreatedAt,
	}
}

// TaskToWire converts a local task to its remote row
func TaskToWire(t models.Task) Task {
	w := Task{
		ID:          t.ID,
		Title:       t.Title,
		ClientID:    nullable(t.ClientID),
		ClientName:  t.ClientName,
		Address:     t.Address,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		EngineerID:  nullable(t.EngineerID),
		Deadline:    nullable(t.Deadline),
		Description: t.Description,
		History:     make([]HistoryEntry, 0, len(t.History)),
		PublicToken: nullable(t.PublicToken),
		Attachments: t.Attachments,
	}
	for _, h := range t.History {
		w.History = append(w.History, HistoryEntry(h))
	}
	if t.ClientConfirmation != nil {
		c := Confirmation(*t.ClientConfirmation)
		w.ClientConfirmation = &c
	}
	return w
}

// TaskFromWire converts a remote row to a local task
func TaskFromWire(w Task) models.Task {
	t := models.Task{
		ID:          w.ID,
		Title:       w.Title,
		ClientID:    deref(w.ClientID),
		ClientName:  w.ClientName,
		Address:     w.Address,
		Status:      models.TaskStatus(w.Status),
		Priority:    models.Priority(w.Priority),
		EngineerID:  deref(w.EngineerID),
		Deadline:    deref(w.Deadline),
		Description: w.Description,
		History:     make([]models.HistoryEntry, 0, len(w.History)),
		PublicToken: deref(w.PublicToken),
		Attachments: w.Attachments,
	}
	for _, h := range w.History {
		t.History = append(t.History, models.HistoryEntry(h))
	}
	if w.ClientConfirmation != nil {
		c := models.Confirmation(*w.ClientConfirmation)
		t.ClientConfirmation = &c
	}
	return t
}

// TransactionToWire converts a local ledger entry to its remote row
func TransactionToWire(t models.Transaction) Transaction {
	return Transaction{
		ID:          t.ID,
		Type:        string(t.Type),
		Amount:      t.Amount,
		Category:    t.Category,
		Date:        t.Date,
		AccountID:   nullable(t.AccountID),
		ClientID:    nullable(t.ClientID),
		ClientTaxID: nullable(t.ClientTaxID),
		Comment:     t.Comment,
	}
}

// TransactionFromWire converts a remote row to a local ledger entry
func TransactionFromWire(w Transaction) models.Transaction {
	return models.Transaction{
		ID:          w.ID,
		Type:        models.TransactionType(w.Type),
		Amount:      w.Amount,
		Category:    w.Category,
		Date:        w.Date,
		AccountID:   deref(w.AccountID),
		ClientID:    deref(w.ClientID),
		ClientTaxID: deref(w.ClientTaxID),
		Comment:     w.Comment,
	}
}

// AccountToWire converts a local account to its remote row
func AccountToWire(a models.FinancialAccount) Account {
	return Account{ID: a.ID, Name: a.Name, Balance: a.Balance, Currency: a.Currency}
}

// AccountFromWire converts a remote row to a local account
func AccountFromWire(w Account) models.FinancialAccount {
	return models.FinancialAccount{ID: w.ID, Name: w.Name, Balance: w.Balance, Currency: w.Currency}
}

// MessageToWire converts a local chat message to its remote row
func MessageToWire(m models.ChatMessage) Message {
	return Message{
		ID:            m.ID,
		SenderID:      m.SenderID,
		ReceiverID:    nullable(m.ReceiverID),
		Text:          m.Text,
		CreatedAt:     m.CreatedAt,
		IsRead:        m.IsRead,
		Type:          string(m.Type),
		AttachmentURL: nullable(m.AttachmentURL),
	}
}

// MessageFromWire converts a remote row to a local chat message
func MessageFromWire(w Message) models.ChatMessage {
	m := models.ChatMessage{
		ID:            w.ID,
		SenderID:      w.SenderID,
		ReceiverID:    deref(w.ReceiverID),
		Text:          w.Text,
		CreatedAt:     w.CreatedAt,
		IsRead:        w.IsRead,
		Type:          models.MessageType(w.Type),
		AttachmentURL: deref(w.AttachmentURL),
	}
	if m.Type == "" {
		m.Type = models.MessageText
	}
	return m
}

// DecodeRows unmarshals raw rows and maps each through fromWire.
func DecodeRows[W, L any](rows []json.RawMessage, fromWire func(W) L) ([]L, error) {
	out := make([]L, 0, len(rows))
	for i, raw := range rows {
		var w W
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", i, err)
		}
		out = append(out, fromWire(w))
	}
	return out, nil
}

// EncodeRows maps each local record through toWire.
func EncodeRows[L, W any](items []L, toWire func(L) W) []W {
	out := make([]W, 0, len(items))
	for _, it := range items {
		out = append(out, toWire(it))
	}
	return out
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaskStatus represents work order status
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "New"
	TaskStatusInProgress TaskStatus = "In-Progress"
	TaskStatusCompleted  TaskStatus = "Completed"
	TaskStatusCanceled   TaskStatus = "Canceled"
)

// IsValid reports whether s is one of the known task statuses
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusNew, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCanceled:
		return true
	}
	return false
}

// Priority represents work order priority
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// TransactionType distinguishes ledger entries
type TransactionType string

const (
	TransactionIncome  TransactionType = "Income"
	TransactionExpense TransactionType = "Expense"
)

// MessageType is the kind of chat payload
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
)

// AttendanceStatus is the daily attendance mark
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "Present"
	AttendanceLate    AttendanceStatus = "Late"
	AttendanceSick    AttendanceStatus = "Sick"
	AttendanceLeave   AttendanceStatus = "Leave"
	AttendanceAbsent  AttendanceStatus = "Absent"
	AttendanceFired   AttendanceStatus = "Fired"
)

// UserRole is the staff role
type UserRole string

const (
	RoleAdmin    UserRole = "Admin"
	RoleManager  UserRole = "Manager"
	RoleEngineer UserRole = "Engineer"
)

// Client is an organization or individual the business serves
type Client struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	TaxID          string          `json:"taxId,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Email          string          `json:"email,omitempty"`
	Address        string          `json:"address,omitempty"`
	ContractNumber string          `json:"contractNumber,omitempty"`
	ContractAmount decimal.Decimal `json:"contractAmount"`
	Balance        decimal.Decimal `json:"balance"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// HistoryEntry is one action in a task's append-only log
type HistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"createdAt"`
}

// Confirmation is the client's sign-off on a completed task
type Confirmation struct {
	IsConfirmed bool      `json:"isConfirmed"`
	ConfirmedAt time.Time `json:"confirmedAt"`
	Rating      int       `json:"rating"`
}

// Task is a work order
type Task struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	ClientID           string         `json:"clientId,omitempty"`
	ClientName         string         `json:"clientName,omitempty"`
	Address            string         `json:"address,omitempty"`
	Status             TaskStatus     `json:"status"`
	Priority           Priority       `json:"priority,omitempty"`
	EngineerID         string         `json:"engineerId,omitempty"`
	Deadline           string         `json:"deadline,omitempty"` // YYYY-MM-DD
	Description        string         `json:"description,omitempty"`
	History            []HistoryEntry `json:"history"`
	PublicToken        string         `json:"publicToken,omitempty"`
	Attachments        []string       `json:"attachments,omitempty"`
	ClientConfirmation *Confirmation  `json:"clientConfirmation,omitempty"`
}

// IsConfirmed reports whether the client has signed off on the task
func (t *Task) IsConfirmed() bool {
	return t.ClientConfirmation != nil && t.ClientConfirmation.IsConfirmed
}

// Transaction is a financial ledger entry
type Transaction struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
	Date        string          `json:"date"` // YYYY-MM-DD
	AccountID   string          `json:"accountId,omitempty"`
	ClientID    string          `json:"clientId,omitempty"`
	ClientTaxID string          `json:"clientTaxId,omitempty"`
	Comment     string          `json:"comment,omitempty"`
}

// FinancialAccount is a named money pool
type FinancialAccount struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency,omitempty"`
}

// ChatMessage is a chat line; an empty ReceiverID means channel-wide
type ChatMessage struct {
	ID            string      `json:"id"`
	SenderID      string      `json:"senderId"`
	ReceiverID    string      `json:"receiverId,omitempty"`
	Text          string      `json:"text"`
	CreatedAt     time.Time   `json:"createdAt"`
	IsRead        bool        `json:"isRead"`
	Type          MessageType `json:"type"`
	AttachmentURL string      `json:"attachmentUrl,omitempty"`
}

// GeoPoint is a check-in location
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeEntry is one attendance row per (user, date)
type TimeEntry struct {
	ID         string           `json:"id"`
	UserID     string           `json:"userId"`
	Date       string           `json:"date"` // YYYY-MM-DD
	Status     AttendanceStatus `json:"status"`
	CheckIn    string           `json:"checkIn,omitempty"`  // HH:MM
	CheckOut   string           `json:"checkOut,omitempty"` // HH:MM
	TotalHours int              `json:"totalHours"`
	Location   *GeoPoint        `json:"location,omitempty"`
}

// Advance is a payroll advance against a user
type Advance struct {
	ID      string          `json:"id"`
	UserID  string          `json:"userId"`
	Amount  decimal.Decimal `json:"amount"`
	Date    string          `json:"date"`
	Comment string          `json:"comment,omitempty"`
}

// User is a staff member
type User struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Role   UserRole        `json:"role"`
	Salary decimal.Decimal `json:"salary"`
	Phone  string          `json:"phone,omitempty"`
	Email  string          `json:"email,omitempty"`
	Avatar string          `json:"avatar,omitempty"`
}

// Sale is a local-only sales record
type Sale struct {
	ID       string          `json:"id"`
	ClientID string          `json:"clientId,omitempty"`
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Date     string          `json:"date"`
}

// MonthlyService is a local-only recurring service contract
type MonthlyService struct {
	ID       string          `json:"id"`
	ClientID string          `json:"clientId"`
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
}

// Theme is the UI theme preference
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

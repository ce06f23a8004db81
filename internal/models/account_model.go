package models

import (
	"time"
)

const (
	AccountStatusActive   = "active"
	AccountStatusInactive = "inactive"
	AccountStatusError    = "error"
)

type Account struct {
	ID                int64             `db:"id" json:"id"`
	Platform          Platform          `db:"platform" json:"platform"`
	DisplayName       string            `db:"display_name" json:"display_name"`
	PlatformAccountID string            `db:"platform_account_id" json:"platform_account_id"`
	Credentials       map[string]string `db:"-" json:"-"`
	Status            string            `db:"status" json:"status"`
	LastError         string            `db:"last_error" json:"last_error,omitempty"`
	LastSyncAt        *time.Time        `db:"last_sync_at" json:"last_sync_at,omitempty"`
	TokenExpiresAt    *time.Time        `db:"token_expires_at" json:"token_expires_at,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

package gatewayapi

import (
	"context"
	"fmt"
	"time"
)

// Well-known gateway error codes. Everything else is passed through verbatim.
const (
	ErrorCodeDuplicate         = "duplicate_transaction"
	ErrorCodeInsufficientFunds = "insufficient_funds"
	ErrorCodeExpiredCard       = "expired_card"
	ErrorCodeInvalidToken      = "invalid_token"
)

type VaultRequest struct {
	SessionUID   string
	OneTimeToken string
	Email        string
	FullName     string
	Currency     string
}

type VaultResult struct {
	Success   bool
	VaultUID  string
	Error     string
	ErrorCode string
}

type ChargeRequest struct {
	VaultUID       string
	AmountInCents  int64
	Currency       string
	OrderReference string
	Email          string
	Description    string
}

// ChargeResult models declines as values: Success=false with an error code is
// a normal outcome, not a Go error. A Go error means the gateway itself was
// unreachable or misbehaved.
type ChargeResult struct {
	Success        bool
	TransactionUID string
	Error          string
	ErrorCode      string
}

// IsDuplicate tells whether the gateway recognized the charge as a duplicate
// of a prior successful charge for the same card+amount fingerprint.
func (r ChargeResult) IsDuplicate() bool {
	return !r.Success && r.ErrorCode == ErrorCodeDuplicate
}

//go:generate mockgen -source=api.go -package gatewayapi -destination gateway_mock.go Gateway
type Gateway interface {
	// CreateVault exchanges a one-time token for a reusable credential. The
	// token is single-use: a failed exchange must not be retried with the
	// same token.
	CreateVault(c context.Context, req VaultRequest) (VaultResult, error)
	// UpdateVault replaces the card behind an existing vault. This is the
	// only legitimate mutation of a vault after creation (card-update path).
	UpdateVault(c context.Context, vaultUID string, req VaultRequest) (VaultResult, error)
	Charge(c context.Context, req ChargeRequest) (ChargeResult, error)
}

// ComposeOrderReference builds an order id that is unique per charge attempt,
// so the gateway's own duplicate detection never collides two logically
// distinct charges.
func ComposeOrderReference(prefix string, sessionUID string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%d", prefix, sessionUID, now.UnixNano())
}

// ComposeUpsellOrderReference does the same for an upsell step charge.
func ComposeUpsellOrderReference(prefix string, sessionUID string, upsellStep int, now time.Time) string {
	return fmt.Sprintf("%s-%s-U%d-%d", prefix, sessionUID, upsellStep, now.UnixNano())
}

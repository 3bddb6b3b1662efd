package session

import (
	"context"

	"github.com/MarcGrol/funnelbackend/services/funnelapi"
)

// SessionUpdate is a narrow field merge: only the fields that are set are
// applied. Status moves are checked against the forward-only lifecycle.
type SessionUpdate struct {
	Status               *funnelapi.SessionStatus
	CurrentStep          *string
	VaultUID             *string
	TransactionUID       *string
	LastErrorCode        *string
	AppendUpsellAccepted string
	AppendUpsellDeclined string
	AddMetadata          []funnelapi.Meta
}

//go:generate mockgen -source=api.go -package session -destination store_mock.go SessionStore
type SessionStore interface {
	CreateSession(c context.Context, session funnelapi.Session) (funnelapi.Session, error)
	GetSession(c context.Context, sessionUID string) (funnelapi.Session, bool, error)
	// UpdateSession applies a narrow merge. When the update carries a
	// backward status move the WHOLE update is skipped, not only the status
	// field, and the current record is returned unchanged.
	UpdateSession(c context.Context, sessionUID string, update SessionUpdate) (funnelapi.Session, error)
	UpdateSessionStatus(c context.Context, sessionUID string, status funnelapi.SessionStatus) (funnelapi.Session, error)
	// ReopenSession moves a failed session back to processing so that a
	// card-update can retry the pending charge. This is the only backward
	// status move: it requires an existing vault and a non-completed session.
	ReopenSession(c context.Context, sessionUID string) (funnelapi.Session, error)
}

package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/mystore"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myuuid"
	"github.com/MarcGrol/funnelbackend/services/funnelapi"
)

func TestSessionStore(t *testing.T) {
	c := context.TODO()

	t.Run("Create assigns uid and initial state", func(t *testing.T) {
		sut, cleanup := setupStore(t, c)
		defer cleanup()

		session, err := sut.CreateSession(c, funnelapi.Session{
			Customer: funnelapi.Customer{Email: "marc@home.nl"},
		})
		assert.NoError(t, err)
		assert.NotEmpty(t, session.UID)
		assert.Equal(t, funnelapi.SessionStatusPending, session.Status)
		assert.Equal(t, funnelapi.StepCheckout, session.CurrentStep)

		stored, found, err := sut.GetSession(c, session.UID)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, session.UID, stored.UID)
	})

	t.Run("Status only moves forward", func(t *testing.T) {
		sut, cleanup := setupStore(t, c)
		defer cleanup()

		session, err := sut.CreateSession(c, funnelapi.Session{})
		assert.NoError(t, err)

		session, err = sut.UpdateSessionStatus(c, session.UID, funnelapi.SessionStatusProcessing)
		assert.NoError(t, err)
		assert.Equal(t, funnelapi.SessionStatusProcessing, session.Status)

		session, err = sut.UpdateSessionStatus(c, session.UID, funnelapi.SessionStatusCompleted)
		assert.NoError(t, err)
		assert.Equal(t, funnelapi.SessionStatusCompleted, session.Status)

		// a stale step reporting failure must not undo completion
		session, err = sut.UpdateSessionStatus(c, session.UID, funnelapi.SessionStatusFailed)
		assert.NoError(t, err)
		assert.Equal(t, funnelapi.SessionStatusCompleted, session.Status)

		session, err = sut.UpdateSessionStatus(c, session.UID, funnelapi.SessionStatusPending)
		assert.NoError(t, err)
		assert.Equal(t, funnelapi.SessionStatusCompleted, session.Status)
	})

	t.Run("Rejected status move skips the whole update", func(t *testing.T) {
		sut, cleanup := setupStore(t, c)
		defer cleanup()

		session, err := sut.CreateSession(c, funnelapi.Session{})
		assert.NoError(t, err)

		session, err = sut.UpdateSessionStatus(c, session.UID, funnelapi.SessionStatusCompleted)
		assert.NoError(t, err)

		// the stale status drags its bundled fields down with it
		failed := funnelapi.SessionStatusFailed
		session, err = sut.UpdateSession(c, session.UID, SessionUpdate{
			Status:      &failed,
			AddMetadata: []funnelapi.Meta{{Key: "orderReference", Value: "TEST-1"}},
		})
		assert.NoError(t, err)
		assert.Equal(t, funnelapi.SessionStatusCompleted, session.Status)
		assert.Empty(t, session.Metadata)
	})

	t.Run("Vault is written once", func(t *testing.T) {
		sut, cleanup := setupStore(t, c)
		defer cleanup()

		session, err := sut.CreateSession(c, funnelapi.Session{})
		assert.NoError(t, err)

		vault := "cus_123"
		session, err = sut.UpdateSession(c, session.UID, SessionUpdate{VaultUID: &vault})
		assert.NoError(t, err)
		assert.Equal(t, "cus_123", session.VaultUID)

		// idempotent re-apply of the same vault is fine
		_, err = sut.UpdateSession(c, session.UID, SessionUpdate{VaultUID: &vault})
		assert.NoError(t, err)

		other := "cus_456"
		_, err = sut.UpdateSession(c, session.UID, SessionUpdate{VaultUID: &other})
		assert.Error(t, err)
		assert.Equal(t, 409, myerrors.GetHttpStatus(err))

		stored, _, err := sut.GetSession(c, session.UID)
		assert.NoError(t, err)
		assert.Equal(t, "cus_123", stored.VaultUID)
	})

	t.Run("Update merges narrow fields", func(t *testing.T) {
		sut, cleanup := setupStore(t, c)
		defer cleanup()

		session, err := sut.CreateSession(c, funnelapi.Session{})
		assert.NoError(t, err)

		step := funnelapi.UpsellStepName(1)
		txn := "ch_123"
		session, err = sut.UpdateSession(c, session.UID, SessionUpdate{
			CurrentStep:          &step,
			TransactionUID:       &txn,
			AppendUpsellAccepted: "prod_222",
			AddMetadata:          []funnelapi.Meta{{Key: "coupon", Value: "SAVE10"}},
		})
		assert.NoError(t, err)
		assert.Equal(t, "upsell-1", session.CurrentStep)
		assert.Equal(t, "ch_123", session.TransactionUID)
		assert.Equal(t, []string{"prod_222"}, session.UpsellsAccepted)
		assert.Equal(t, funnelapi.SessionStatusPending, session.Status)
		assert.Len(t, session.Metadata, 1)
		assert.NotNil(t, session.LastModified)
	})

	t.Run("Reopen moves failed back to processing", func(t *testing.T) {
		sut, cleanup := setupStore(t, c)
		defer cleanup()

		session, err := sut.CreateSession(c, funnelapi.Session{})
		assert.NoError(t, err)

		// no vault yet: nothing to retry against
		_, err = sut.ReopenSession(c, session.UID)
		assert.Error(t, err)
		assert.Equal(t, 400, myerrors.GetHttpStatus(err))

		vault := "cus_123"
		failed := funnelapi.SessionStatusFailed
		errorCode := "insufficient_funds"
		_, err = sut.UpdateSession(c, session.UID, SessionUpdate{
			VaultUID:      &vault,
			Status:        &failed,
			LastErrorCode: &errorCode,
		})
		assert.NoError(t, err)

		session, err = sut.ReopenSession(c, session.UID)
		assert.NoError(t, err)
		assert.Equal(t, funnelapi.SessionStatusProcessing, session.Status)
		assert.Empty(t, session.LastErrorCode)
	})

	t.Run("Reopen of completed session fails", func(t *testing.T) {
		sut, cleanup := setupStore(t, c)
		defer cleanup()

		session, err := sut.CreateSession(c, funnelapi.Session{})
		assert.NoError(t, err)

		vault := "cus_123"
		completed := funnelapi.SessionStatusCompleted
		_, err = sut.UpdateSession(c, session.UID, SessionUpdate{VaultUID: &vault, Status: &completed})
		assert.NoError(t, err)

		_, err = sut.ReopenSession(c, session.UID)
		assert.Error(t, err)
		assert.Equal(t, 409, myerrors.GetHttpStatus(err))
	})

	t.Run("Update of unknown session fails", func(t *testing.T) {
		sut, cleanup := setupStore(t, c)
		defer cleanup()

		_, err := sut.UpdateSessionStatus(c, "does-not-exist", funnelapi.SessionStatusProcessing)
		assert.Error(t, err)
		assert.Equal(t, 404, myerrors.GetHttpStatus(err))
	})
}

func setupStore(t *testing.T, c context.Context) (SessionStore, func()) {
	store, cleanup, err := mystore.NewInMemoryStore[funnelapi.Session](c)
	assert.NoError(t, err)

	return NewSessionStore(store, mytime.RealNower{}, myuuid.RealUUIDer{}), cleanup
}

package session

import (
	"context"
	"fmt"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/lib/mystore"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myuuid"
	"github.com/MarcGrol/funnelbackend/services/funnelapi"
)

// sessionStore is the single source of truth for checkout state. Every
// mutation is a transactional read-modify-write keyed by session uid, so
// concurrent workflows touching the same session always see current state.
type sessionStore struct {
	store  mystore.Store[funnelapi.Session]
	nower  mytime.Nower
	uuider myuuid.UUIDer
	logger mylog.Logger
}

func NewSessionStore(store mystore.Store[funnelapi.Session], nower mytime.Nower, uuider myuuid.UUIDer) SessionStore {
	return &sessionStore{
		store:  store,
		nower:  nower,
		uuider: uuider,
		logger: mylog.New("sessionstore"),
	}
}

func (s *sessionStore) CreateSession(c context.Context, session funnelapi.Session) (funnelapi.Session, error) {
	if session.UID == "" {
		session.UID = s.uuider.Create()
	}
	session.Status = funnelapi.SessionStatusPending
	session.CurrentStep = funnelapi.StepCheckout
	session.CreatedAt = s.nower.Now()

	err := s.store.Put(c, session.UID, session)
	if err != nil {
		return funnelapi.Session{}, myerrors.NewUnavailableError(fmt.Errorf("error persisting session %s: %s", session.UID, err))
	}

	s.logger.Log(c, session.UID, mylog.SeverityInfo, "Created session %s", session.UID)

	return session, nil
}

func (s *sessionStore) GetSession(c context.Context, sessionUID string) (funnelapi.Session, bool, error) {
	session, found, err := s.store.Get(c, sessionUID)
	if err != nil {
		return funnelapi.Session{}, false, myerrors.NewUnavailableError(fmt.Errorf("error fetching session %s: %s", sessionUID, err))
	}
	return session, found, nil
}

func (s *sessionStore) UpdateSession(c context.Context, sessionUID string, update SessionUpdate) (funnelapi.Session, error) {
	var session funnelapi.Session

	err := s.store.RunInTransaction(c, func(c context.Context) error {
		var found bool
		var err error
		session, found, err = s.store.Get(c, sessionUID)
		if err != nil {
			return myerrors.NewUnavailableError(fmt.Errorf("error fetching session %s: %s", sessionUID, err))
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
		}

		if update.Status != nil && !session.Status.CanTransitionTo(*update.Status) {
			// a stale step must not overwrite a decided session
			s.logger.Log(c, sessionUID, mylog.SeverityWarn, "Ignoring backward status move %s -> %s of session %s",
				session.Status, *update.Status, sessionUID)
			return nil
		}

		if update.VaultUID != nil && session.VaultUID != "" && session.VaultUID != *update.VaultUID {
			return myerrors.NewConflictError(fmt.Errorf("session %s already has a vault", sessionUID))
		}

		session = merge(session, update)

		now := s.nower.Now()
		session.LastModified = &now

		err = s.store.Put(c, sessionUID, session)
		if err != nil {
			return myerrors.NewUnavailableError(fmt.Errorf("error storing session %s: %s", sessionUID, err))
		}

		return nil
	})
	if err != nil {
		return funnelapi.Session{}, err
	}

	return session, nil
}

func (s *sessionStore) ReopenSession(c context.Context, sessionUID string) (funnelapi.Session, error) {
	var session funnelapi.Session

	err := s.store.RunInTransaction(c, func(c context.Context) error {
		var found bool
		var err error
		session, found, err = s.store.Get(c, sessionUID)
		if err != nil {
			return myerrors.NewUnavailableError(fmt.Errorf("error fetching session %s: %s", sessionUID, err))
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
		}
		if session.Status == funnelapi.SessionStatusCompleted {
			return myerrors.NewConflictError(fmt.Errorf("session %s is already completed", sessionUID))
		}
		if session.VaultUID == "" {
			return myerrors.NewInvalidInputError(fmt.Errorf("session %s has no vault to retry against", sessionUID))
		}

		session.Status = funnelapi.SessionStatusProcessing
		session.LastErrorCode = ""
		now := s.nower.Now()
		session.LastModified = &now

		err = s.store.Put(c, sessionUID, session)
		if err != nil {
			return myerrors.NewUnavailableError(fmt.Errorf("error storing session %s: %s", sessionUID, err))
		}

		s.logger.Log(c, sessionUID, mylog.SeverityInfo, "Reopened session %s for a charge retry", sessionUID)

		return nil
	})
	if err != nil {
		return funnelapi.Session{}, err
	}

	return session, nil
}

func (s *sessionStore) UpdateSessionStatus(c context.Context, sessionUID string, status funnelapi.SessionStatus) (funnelapi.Session, error) {
	return s.UpdateSession(c, sessionUID, SessionUpdate{
		Status: &status,
	})
}

func merge(session funnelapi.Session, update SessionUpdate) funnelapi.Session {
	if update.Status != nil {
		session.Status = *update.Status
	}
	if update.CurrentStep != nil {
		session.CurrentStep = *update.CurrentStep
	}
	if update.VaultUID != nil {
		session.VaultUID = *update.VaultUID
	}
	if update.TransactionUID != nil {
		// most recent charge only: history stays derivable from emitted events
		session.TransactionUID = *update.TransactionUID
	}
	if update.LastErrorCode != nil {
		session.LastErrorCode = *update.LastErrorCode
	}
	if update.AppendUpsellAccepted != "" {
		session.UpsellsAccepted = append(session.UpsellsAccepted, update.AppendUpsellAccepted)
	}
	if update.AppendUpsellDeclined != "" {
		session.UpsellsDeclined = append(session.UpsellsDeclined, update.AppendUpsellDeclined)
	}
	session.Metadata = append(session.Metadata, update.AddMetadata...)

	return session
}

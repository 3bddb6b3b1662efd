package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/funnelbackend/lib/mycontext"
	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/myhttp"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/services/funnelapi"
)

type webService struct {
	logger mylog.Logger
	store  SessionStore
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewWebService(store SessionStore) *webService {
	return &webService{
		logger: mylog.New("session"),
		store:  store,
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) {
	// The UI polls this while a payment is in flight
	router.HandleFunc("/api/session/{sessionUID}", s.sessionStatusPage()).Methods("GET")
}

// statusResponse deliberately exposes no gateway or CRM internals
type statusResponse struct {
	SessionUID  string
	Status      funnelapi.SessionStatus
	CurrentStep string
	ErrorCode   string
}

func (s *webService) sessionStatusPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		sessionUID := mux.Vars(r)["sessionUID"]

		session, found, err := s.store.GetSession(c, sessionUID)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}
		if !found {
			errorWriter.WriteError(c, w, 2, myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID)))
			return
		}

		errorWriter.Write(c, w, http.StatusOK, statusResponse{
			SessionUID:  session.UID,
			Status:      session.Status,
			CurrentStep: session.CurrentStep,
			ErrorCode:   session.LastErrorCode,
		})
	}
}

package upsell

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/funnelbackend/lib/mycontext"
	"github.com/MarcGrol/funnelbackend/lib/myhttp"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/lib/mypublisher"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myworkflow"
	"github.com/MarcGrol/funnelbackend/services/funnelapi"
	"github.com/MarcGrol/funnelbackend/services/gatewayapi"
	"github.com/MarcGrol/funnelbackend/services/session"
)

type webService struct {
	logger  mylog.Logger
	service *service
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewWebService(sessionStore session.SessionStore, gateway gatewayapi.Gateway, engine *myworkflow.Engine,
	publisher mypublisher.Publisher, nower mytime.Nower, orderPrefix string) *webService {
	return &webService{
		logger:  mylog.New("upsell"),
		service: newService(sessionStore, gateway, engine, publisher, nower, orderPrefix),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	err := s.service.CreateTopics(c)
	if err != nil {
		return err
	}

	router.HandleFunc("/api/upsell/{sessionUID}", s.upsellPage()).Methods("POST")

	return nil
}

type outcomeResponse struct {
	SessionUID      string
	Status          funnelapi.SessionStatus
	CurrentStep     string
	UpsellsAccepted []string
	UpsellsDeclined []string
	Error           string `json:",omitempty"`
}

func (s *webService) upsellPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		sessionUID := mux.Vars(r)["sessionUID"]

		submission, err := funnelapi.NewUpsellFromRequest(r)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		sess, err := s.service.oneClickCharge(c, sessionUID, submission)
		if err != nil && sess.UID == "" {
			errorWriter.WriteError(c, w, 2, err)
			return
		}

		httpStatus := http.StatusOK
		errorMsg := ""
		if err != nil {
			httpStatus = http.StatusUnprocessableEntity
			errorMsg = err.Error()
		}

		errorWriter.Write(c, w, httpStatus, outcomeResponse{
			SessionUID:      sess.UID,
			Status:          sess.Status,
			CurrentStep:     sess.CurrentStep,
			UpsellsAccepted: sess.UpsellsAccepted,
			UpsellsDeclined: sess.UpsellsDeclined,
			Error:           errorMsg,
		})
	}
}

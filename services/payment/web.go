package payment

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
		logger:  mylog.New("payment"),
		service: newService(sessionStore, gateway, engine, publisher, nower, orderPrefix),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	err := s.service.CreateTopics(c)
	if err != nil {
		return err
	}

	router.HandleFunc("/api/checkout", s.checkoutPage()).Methods("POST")
	router.HandleFunc("/api/payment/{sessionUID}", s.resumePage()).Methods("PUT")
	router.HandleFunc("/api/payment/{sessionUID}/card", s.cardUpdatePage()).Methods("PUT")

	return nil
}

// outcomeResponse tells the UI where the funnel stands: a machine-readable
// error code, never gateway or CRM internals.
type outcomeResponse struct {
	SessionUID  string
	Status      funnelapi.SessionStatus
	CurrentStep string
	ErrorCode   string
}

func (s *webService) checkoutPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		submission, err := funnelapi.NewCheckoutFromRequest(r)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		sess, err := s.service.checkout(c, submission)
		s.writeOutcome(c, w, errorWriter, sess, err)
	}
}

func (s *webService) resumePage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		sessionUID := mux.Vars(r)["sessionUID"]

		// the token is optional here: a session that already has a vault
		// resumes without one
		submission, err := funnelapi.NewCardUpdateFromRequest(r)
		if err != nil {
			errorWriter.WriteError(c, w, 2, err)
			return
		}

		sess, err := s.service.resume(c, sessionUID, submission.PaymentToken)
		s.writeOutcome(c, w, errorWriter, sess, err)
	}
}

func (s *webService) cardUpdatePage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		sessionUID := mux.Vars(r)["sessionUID"]

		submission, err := funnelapi.NewCardUpdateFromRequest(r)
		if err != nil {
			errorWriter.WriteError(c, w, 3, err)
			return
		}

		sess, err := s.service.updateCard(c, sessionUID, submission.PaymentToken)
		s.writeOutcome(c, w, errorWriter, sess, err)
	}
}

func (s *webService) writeOutcome(c context.Context, w http.ResponseWriter, errorWriter myhttp.ResponseWriter,
	sess funnelapi.Session, err error) {
	if err != nil && sess.UID == "" {
		errorWriter.WriteError(c, w, 4, err)
		return
	}

	httpStatus := http.StatusOK
	if err != nil {
		httpStatus = http.StatusUnprocessableEntity
	}

	errorWriter.Write(c, w, httpStatus, outcomeResponse{
		SessionUID:  sess.UID,
		Status:      sess.Status,
		CurrentStep: sess.CurrentStep,
		ErrorCode:   sess.LastErrorCode,
	})
}

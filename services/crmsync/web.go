package crmsync

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/funnelbackend/lib/mycontext"
	"github.com/MarcGrol/funnelbackend/lib/myhttp"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/lib/mypublisher"
	"github.com/MarcGrol/funnelbackend/lib/mypubsub"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myworkflow"
	"github.com/MarcGrol/funnelbackend/services/paymentevents"
)

type webService struct {
	logger  mylog.Logger
	service *service
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewWebService(crm CRMClient, engine *myworkflow.Engine, publisher mypublisher.Publisher,
	subscriber mypubsub.PubSub, nower mytime.Nower) *webService {
	return &webService{
		logger:  mylog.New("crmsync"),
		service: newService(crm, engine, publisher, subscriber, nower),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	// Listen for completed payments and upsells
	router.HandleFunc("/api/crmsync/event", s.handleEventEnvelope()).Methods("POST")

	err := s.service.Subscribe(c)
	if err != nil {
		return err
	}

	return nil
}

func (s *webService) handleEventEnvelope() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		err := paymentevents.DispatchEvent(c, r.Body, s.service)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{
			Message: "Successfully processed event",
		})
	}
}

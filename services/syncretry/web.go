package syncretry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/funnelbackend/lib/mycontext"
	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/myhttp"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/lib/mypublisher"
	"github.com/MarcGrol/funnelbackend/lib/mypubsub"
	"github.com/MarcGrol/funnelbackend/lib/myqueue"
	"github.com/MarcGrol/funnelbackend/lib/mystore"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myworkflow"
	"github.com/MarcGrol/funnelbackend/services/syncevents"
)

type webService struct {
	logger  mylog.Logger
	service *service
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewWebService(retryStore mystore.Store[RetryRecord], queuer myqueue.TaskQueuer, publisher mypublisher.Publisher,
	subscriber mypubsub.PubSub, engine *myworkflow.Engine, nower mytime.Nower) *webService {
	return &webService{
		logger:  mylog.New("syncretry"),
		service: newService(retryStore, queuer, publisher, subscriber, engine, nower),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	// Listen for failed and completed syncs
	router.HandleFunc("/api/syncretry/event", s.handleEventEnvelope()).Methods("POST")

	// Triggered by the task queue when the backoff has passed
	router.HandleFunc(taskWebhookPath, s.handleRetryTask()).Methods("POST", "PUT")

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

		err := syncevents.DispatchEvent(c, r.Body, s.service)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{
			Message: "Successfully processed event",
		})
	}
}

func (s *webService) handleRetryTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		event := syncevents.SyncFailed{}
		err := json.NewDecoder(r.Body).Decode(&event)
		if err != nil {
			errorWriter.WriteError(c, w, 2, myerrors.NewInvalidInputError(fmt.Errorf("error parsing retry task: %s", err)))
			return
		}

		err = s.service.reEmitOriginal(c, event)
		if err != nil {
			errorWriter.WriteError(c, w, 3, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{
			Message: "Successfully re-driven original event",
		})
	}
}

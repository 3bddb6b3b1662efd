package syncretry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/MarcGrol/funnelbackend/lib/myevents"
	"github.com/MarcGrol/funnelbackend/lib/mypublisher"
	"github.com/MarcGrol/funnelbackend/lib/mypubsub"
	"github.com/MarcGrol/funnelbackend/lib/myqueue"
	"github.com/MarcGrol/funnelbackend/lib/mystore"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myworkflow"
	"github.com/MarcGrol/funnelbackend/services/paymentevents"
	"github.com/MarcGrol/funnelbackend/services/syncevents"
)

var (
	originalEvent = paymentevents.PaymentSucceeded{
		SessionUID:     "123",
		TransactionUID: "txn_1",
		VaultUID:       "vault_1",
		AmountInCents:  29400,
		Currency:       "EUR",
	}

	syncFailed = func() syncevents.SyncFailed {
		payload, _ := json.Marshal(originalEvent)
		return syncevents.SyncFailed{
			SessionUID:           "123",
			Service:              "crm",
			Type:                 syncevents.SyncTypeOrder,
			OriginalEventType:    originalEvent.GetEventTypeName(),
			OriginalEventPayload: string(payload),
			Error:                "crm rejected order of session 123",
			Retryable:            true,
		}
	}()
)

func TestSyncRetryService(t *testing.T) {

	t.Run("Retryable failure schedules one delayed re-drive", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, router, retryStore, queuer, _ := setup(t, ctrl)

		// given
		queuer.EXPECT().Enqueue(gomock.Any(), gomock.AssignableToTypeOf(myqueue.Task{})).DoAndReturn(
			func(c context.Context, task myqueue.Task) error {
				assert.Equal(t, taskWebhookPath, task.WebhookURLPath)
				assert.Equal(t, 30*time.Second, task.Delay)

				delivered := syncevents.SyncFailed{}
				assert.NoError(t, json.Unmarshal(task.Payload, &delivered))
				assert.Equal(t, syncFailed, delivered)
				return nil
			})

		// when
		response := deliverEvent(t, router, syncFailed)

		// then
		assert.Equal(t, 200, response.Code)

		record, found, err := retryStore.Get(c, "retry-123-order")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.False(t, record.Resolved)
		assert.Equal(t, originalEvent.GetEventTypeName(), record.OriginalEventType)
	})

	t.Run("Second failure never triggers a third attempt", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup: the queuer has no expectations, another enqueue fails the test
		c, router, retryStore, _, _ := setup(t, ctrl)

		// given: the single re-drive was already spent
		err := retryStore.Put(c, "retry-123-order", RetryRecord{
			UID:        "retry-123-order",
			SessionUID: "123",
			Type:       syncevents.SyncTypeOrder,
		})
		assert.NoError(t, err)

		// when
		response := deliverEvent(t, router, syncFailed)

		// then: acked, escalated, not rescheduled
		assert.Equal(t, 200, response.Code)
	})

	t.Run("Non-retryable failure is escalated immediately", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, router, retryStore, _, _ := setup(t, ctrl)

		// given
		event := syncFailed
		event.Retryable = false

		// when
		response := deliverEvent(t, router, event)

		// then
		assert.Equal(t, 200, response.Code)

		_, found, err := retryStore.Get(c, "retry-123-order")
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Completed sync resolves the retry record", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, router, retryStore, _, _ := setup(t, ctrl)

		// given
		err := retryStore.Put(c, "retry-123-order", RetryRecord{
			UID:        "retry-123-order",
			SessionUID: "123",
			Type:       syncevents.SyncTypeOrder,
		})
		assert.NoError(t, err)

		// when
		response := deliverEvent(t, router, syncevents.SyncCompleted{
			SessionUID:  "123",
			Type:        syncevents.SyncTypeOrder,
			CRMOrderUID: "crm_order_1",
		})

		// then: a much later failure gets a fresh re-drive again
		assert.Equal(t, 200, response.Code)

		record, found, err := retryStore.Get(c, "retry-123-order")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.True(t, record.Resolved)
	})

	t.Run("Retry task re-emits the original event", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, _, publisher := setup(t, ctrl)

		// given
		publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, originalEvent).Return(nil)

		// when
		payload, err := json.Marshal(syncFailed)
		assert.NoError(t, err)
		request, err := http.NewRequest(http.MethodPost, taskWebhookPath, bytes.NewReader(payload))
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
	})
}

func setup(t *testing.T, ctrl *gomock.Controller) (context.Context, *mux.Router, mystore.Store[RetryRecord], *myqueue.MockTaskQueuer, *mypublisher.MockPublisher) {
	c := context.TODO()

	retryStore, _, err := mystore.New[RetryRecord](c)
	assert.NoError(t, err)

	queuer := myqueue.NewMockTaskQueuer(ctrl)
	publisher := mypublisher.NewMockPublisher(ctrl)
	subscriber := mypubsub.NewMockPubSub(ctrl)

	nower := mytime.NewMockNower(ctrl)
	nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

	engine, _, err := myworkflow.NewEngine(c, nower, myworkflow.Spec{
		Name:           WorkflowName,
		MaxAttempts:    1,
		MaxConcurrency: 5,
	})
	assert.NoError(t, err)

	sut := NewWebService(retryStore, queuer, publisher, subscriber, engine, nower)
	router := mux.NewRouter()

	subscriber.EXPECT().CreateTopic(gomock.Any(), syncevents.TopicName).Return(nil)
	subscriber.EXPECT().Subscribe(gomock.Any(), syncevents.TopicName, "http://localhost:8080/api/syncretry/event").Return(nil)

	err = sut.RegisterEndpoints(c, router)
	assert.NoError(t, err)

	return c, router, retryStore, queuer, publisher
}

func deliverEvent(t *testing.T, router *mux.Router, event myevents.Event) *httptest.ResponseRecorder {
	payload, err := json.Marshal(event)
	assert.NoError(t, err)

	envelope, err := json.Marshal(myevents.EventEnvelope{
		UID:           "evt_1",
		Topic:         syncevents.TopicName,
		AggregateUID:  event.GetAggregateName(),
		EventTypeName: event.GetEventTypeName(),
		EventPayload:  string(payload),
	})
	assert.NoError(t, err)

	pushRequest, err := json.Marshal(myevents.PushRequest{
		Message: myevents.PushMessage{
			Data: envelope,
		},
	})
	assert.NoError(t, err)

	request, err := http.NewRequest(http.MethodPost, "/api/syncretry/event", bytes.NewReader(pushRequest))
	assert.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")

	response := httptest.NewRecorder()
	router.ServeHTTP(response, request)
	return response
}

package crmsync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/MarcGrol/funnelbackend/lib/myevents"
	"github.com/MarcGrol/funnelbackend/lib/mypublisher"
	"github.com/MarcGrol/funnelbackend/lib/mypubsub"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myworkflow"
	"github.com/MarcGrol/funnelbackend/services/funnelapi"
	"github.com/MarcGrol/funnelbackend/services/paymentevents"
	"github.com/MarcGrol/funnelbackend/services/syncevents"
)

var (
	paymentSucceeded = paymentevents.PaymentSucceeded{
		SessionUID:     "123",
		TransactionUID: "txn_1",
		VaultUID:       "vault_1",
		OrderReference: "TEST-123-1",
		AmountInCents:  29400,
		Currency:       "EUR",
		Customer: funnelapi.Customer{
			Email:     "marc@home.nl",
			FirstName: "Marc",
			LastName:  "Grol",
		},
		Products: []funnelapi.Product{
			{UID: "prod_111", Name: "Course", UnitPriceInCents: 29400, Currency: "EUR", Quantity: 1},
		},
		CouponCode: "SAVE10",
	}

	upsellCompleted = paymentevents.UpsellCompleted{
		SessionUID:     "123",
		TransactionUID: "txn_2",
		ProductUID:     "prod_222",
		ProductName:    "Masterclass",
		AmountInCents:  19700,
		Currency:       "EUR",
		UpsellStep:     1,
		OrderReference: "TEST-123-U1-1",
		Customer:       funnelapi.Customer{Email: "marc@home.nl", FirstName: "Marc", LastName: "Grol"},
	}
)

func TestCRMSyncService(t *testing.T) {

	t.Run("Completed payment is synced as customer order", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		router, crm, publisher := setup(t, ctrl)

		// given
		crm.EXPECT().UpsertCustomer(gomock.Any(), CRMCustomer{
			Email:     "marc@home.nl",
			FirstName: "Marc",
			LastName:  "Grol",
		}).Return(CustomerResult{Success: true, CustomerUID: "crm_cust_1"}, nil)
		crm.EXPECT().CreateOrder(gomock.Any(), CRMOrder{
			CustomerUID:    "crm_cust_1",
			Email:          "marc@home.nl",
			OrderReference: "TEST-123-1",
			ProductUID:     "prod_111",
			ProductName:    "Course",
			AmountInCents:  29400,
			Currency:       "EUR",
			CouponCode:     "SAVE10",
			TransactionUID: "txn_1",
		}).Return(OrderResult{Success: true, OrderUID: "crm_order_1", OrderNumber: "1001"}, nil)
		publisher.EXPECT().Publish(gomock.Any(), syncevents.TopicName, syncevents.SyncCompleted{
			SessionUID:  "123",
			Type:        syncevents.SyncTypeOrder,
			CRMOrderUID: "crm_order_1",
			OrderNumber: "1001",
		}).Return(nil)

		// when
		response := deliverEvent(t, router, paymentSucceeded)

		// then
		assert.Equal(t, 200, response.Code)
	})

	t.Run("Customer upsert failure falls back to a guest order", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		router, crm, publisher := setup(t, ctrl)

		// given
		crm.EXPECT().UpsertCustomer(gomock.Any(), gomock.Any()).Return(CustomerResult{
			Success: false,
			Error:   "crm validation error",
		}, nil)
		crm.EXPECT().CreateOrder(gomock.Any(), gomock.AssignableToTypeOf(CRMOrder{})).DoAndReturn(
			func(c context.Context, order CRMOrder) (OrderResult, error) {
				assert.Empty(t, order.CustomerUID)
				return OrderResult{Success: true, OrderUID: "crm_order_1", OrderNumber: "1001"}, nil
			})
		publisher.EXPECT().Publish(gomock.Any(), syncevents.TopicName, gomock.AssignableToTypeOf(syncevents.SyncCompleted{})).Return(nil)

		// when
		response := deliverEvent(t, router, paymentSucceeded)

		// then
		assert.Equal(t, 200, response.Code)
	})

	t.Run("Order rejection emits a retryable sync-failed event", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		router, crm, publisher := setup(t, ctrl)

		originalPayload, err := json.Marshal(paymentSucceeded)
		assert.NoError(t, err)

		// given
		crm.EXPECT().UpsertCustomer(gomock.Any(), gomock.Any()).Return(CustomerResult{Success: true, CustomerUID: "crm_cust_1"}, nil)
		crm.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).Return(OrderResult{
			Success: false,
			Error:   "crm is overloaded",
		}, nil)
		publisher.EXPECT().Publish(gomock.Any(), syncevents.TopicName, gomock.AssignableToTypeOf(syncevents.SyncFailed{})).DoAndReturn(
			func(c context.Context, topic string, event myevents.Event) error {
				failed := event.(syncevents.SyncFailed)
				assert.Equal(t, "123", failed.SessionUID)
				assert.Equal(t, syncevents.SyncTypeOrder, failed.Type)
				assert.Equal(t, paymentSucceeded.GetEventTypeName(), failed.OriginalEventType)
				assert.JSONEq(t, string(originalPayload), failed.OriginalEventPayload)
				assert.True(t, failed.Retryable)
				return nil
			})

		// when: the delivery is acked, the dead-letter path owns the retry
		response := deliverEvent(t, router, paymentSucceeded)

		// then
		assert.Equal(t, 200, response.Code)
	})

	t.Run("Completed upsell is synced as its own order", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		router, crm, publisher := setup(t, ctrl)

		// given
		crm.EXPECT().UpsertCustomer(gomock.Any(), gomock.Any()).Return(CustomerResult{Success: true, CustomerUID: "crm_cust_1"}, nil)
		crm.EXPECT().CreateOrder(gomock.Any(), CRMOrder{
			CustomerUID:    "crm_cust_1",
			Email:          "marc@home.nl",
			OrderReference: "TEST-123-U1-1",
			ProductUID:     "prod_222",
			ProductName:    "Masterclass",
			AmountInCents:  19700,
			Currency:       "EUR",
			TransactionUID: "txn_2",
		}).Return(OrderResult{Success: true, OrderUID: "crm_order_2", OrderNumber: "1002"}, nil)
		publisher.EXPECT().Publish(gomock.Any(), syncevents.TopicName, syncevents.SyncCompleted{
			SessionUID:  "123",
			Type:        syncevents.SyncTypeUpsellOrder,
			CRMOrderUID: "crm_order_2",
			OrderNumber: "1002",
		}).Return(nil)

		// when
		response := deliverEvent(t, router, upsellCompleted)

		// then
		assert.Equal(t, 200, response.Code)
	})
}

func setup(t *testing.T, ctrl *gomock.Controller) (*mux.Router, *MockCRMClient, *mypublisher.MockPublisher) {
	c := context.TODO()

	crm := NewMockCRMClient(ctrl)
	publisher := mypublisher.NewMockPublisher(ctrl)
	subscriber := mypubsub.NewMockPubSub(ctrl)

	nower := mytime.NewMockNower(ctrl)
	nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

	engine, _, err := myworkflow.NewEngine(c, nower, myworkflow.Spec{
		Name:           WorkflowName,
		MaxAttempts:    1,
		MaxConcurrency: 20,
	})
	assert.NoError(t, err)

	sut := NewWebService(crm, engine, publisher, subscriber, nower)
	router := mux.NewRouter()

	subscriber.EXPECT().CreateTopic(gomock.Any(), paymentevents.TopicName).Return(nil)
	subscriber.EXPECT().CreateTopic(gomock.Any(), syncevents.TopicName).Return(nil)
	subscriber.EXPECT().Subscribe(gomock.Any(), paymentevents.TopicName, "http://localhost:8080/api/crmsync/event").Return(nil)

	err = sut.RegisterEndpoints(c, router)
	assert.NoError(t, err)

	return router, crm, publisher
}

func deliverEvent(t *testing.T, router *mux.Router, event myevents.Event) *httptest.ResponseRecorder {
	payload, err := json.Marshal(event)
	assert.NoError(t, err)

	envelope, err := json.Marshal(myevents.EventEnvelope{
		UID:           "evt_1",
		Topic:         paymentevents.TopicName,
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

	request, err := http.NewRequest(http.MethodPost, "/api/crmsync/event", bytes.NewReader(pushRequest))
	assert.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")

	response := httptest.NewRecorder()
	router.ServeHTTP(response, request)
	return response
}

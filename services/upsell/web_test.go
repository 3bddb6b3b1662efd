package upsell

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/MarcGrol/funnelbackend/lib/mypublisher"
	"github.com/MarcGrol/funnelbackend/lib/mystore"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myuuid"
	"github.com/MarcGrol/funnelbackend/lib/myworkflow"
	"github.com/MarcGrol/funnelbackend/services/funnelapi"
	"github.com/MarcGrol/funnelbackend/services/gatewayapi"
	"github.com/MarcGrol/funnelbackend/services/paymentevents"
	"github.com/MarcGrol/funnelbackend/services/session"
)

var (
	upsellForm = strings.Join([]string{
		"vaultUid=vault_1",
		"productUid=prod_222",
		"productName=Masterclass",
		"amountInCents=19700",
		"currency=EUR",
		"upsellStep=1",
	}, "&")

	completedSession = funnelapi.Session{
		UID:            "123",
		Status:         funnelapi.SessionStatusCompleted,
		CurrentStep:    funnelapi.UpsellStepName(1),
		Customer:       funnelapi.Customer{Email: "marc@home.nl", FirstName: "Marc", LastName: "Grol"},
		Products:       []funnelapi.Product{{UID: "prod_111", UnitPriceInCents: 29400, Currency: "EUR", Quantity: 1}},
		VaultUID:       "vault_1",
		TransactionUID: "txn_1",
	}
)

func TestUpsellService(t *testing.T) {

	t.Run("One-click upsell succeeds against the existing vault", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, router, sessionStore, gateway, publisher := setup(t, ctrl)

		orderReference := gatewayapi.ComposeUpsellOrderReference("TEST", "123", 1, mytime.ExampleTime)

		// given
		givenSession(c, t, sessionStore, completedSession)
		publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, paymentevents.UpsellAccepted{
			SessionUID:    "123",
			VaultUID:      "vault_1",
			ProductUID:    "prod_222",
			AmountInCents: 19700,
			UpsellStep:    1,
		}).Return(nil)
		gateway.EXPECT().Charge(gomock.Any(), gatewayapi.ChargeRequest{
			VaultUID:       "vault_1",
			AmountInCents:  19700,
			Currency:       "EUR",
			OrderReference: orderReference,
			Email:          "marc@home.nl",
			Description:    "Upsell Masterclass for order of session 123",
		}).Return(gatewayapi.ChargeResult{Success: true, TransactionUID: "txn_2"}, nil)
		publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, paymentevents.UpsellCompleted{
			SessionUID:     "123",
			TransactionUID: "txn_2",
			ProductUID:     "prod_222",
			ProductName:    "Masterclass",
			AmountInCents:  19700,
			Currency:       "EUR",
			UpsellStep:     1,
			OrderReference: orderReference,
			Customer:       completedSession.Customer,
		}).Return(nil)

		// when
		response := doRequest(router, "/api/upsell/123", upsellForm)

		// then
		assert.Equal(t, 200, response.Code)

		sess, _, err := sessionStore.Get(c, "123")
		assert.NoError(t, err)
		assert.Equal(t, []string{"prod_222"}, sess.UpsellsAccepted)
		assert.Equal(t, funnelapi.UpsellStepName(2), sess.CurrentStep)
		assert.Equal(t, "txn_2", sess.TransactionUID)
	})

	t.Run("Completion event survives a failed first publish attempt", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, router, sessionStore, gateway, publisher := setup(t, ctrl)

		orderReference := gatewayapi.ComposeUpsellOrderReference("TEST", "123", 1, mytime.ExampleTime)

		// given: the outbox hiccups on the first completion publish
		givenSession(c, t, sessionStore, completedSession)
		publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, gomock.AssignableToTypeOf(paymentevents.UpsellAccepted{})).Return(nil)
		gateway.EXPECT().Charge(gomock.Any(), gomock.Any()).
			Return(gatewayapi.ChargeResult{Success: true, TransactionUID: "txn_2"}, nil).Times(1)

		completion := paymentevents.UpsellCompleted{
			SessionUID:     "123",
			TransactionUID: "txn_2",
			ProductUID:     "prod_222",
			ProductName:    "Masterclass",
			AmountInCents:  19700,
			Currency:       "EUR",
			UpsellStep:     1,
			OrderReference: orderReference,
			Customer:       completedSession.Customer,
		}
		gomock.InOrder(
			publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, completion).Return(fmt.Errorf("pubsub down")),
			publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, completion).Return(nil),
		)

		// when
		response := doRequest(router, "/api/upsell/123", upsellForm)

		// then: charged once, recorded once, and the event still went out
		assert.Equal(t, 200, response.Code)

		sess, _, err := sessionStore.Get(c, "123")
		assert.NoError(t, err)
		assert.Equal(t, []string{"prod_222"}, sess.UpsellsAccepted)
		assert.Equal(t, funnelapi.UpsellStepName(2), sess.CurrentStep)
	})

	t.Run("Vault mismatch fails hard without a charge", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup: the gateway mock has no expectations, a charge fails the test
		c, router, sessionStore, _, publisher := setup(t, ctrl)

		// given
		givenSession(c, t, sessionStore, completedSession)
		publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, gomock.AssignableToTypeOf(paymentevents.UpsellAccepted{})).Return(nil)

		// when
		form := strings.Replace(upsellForm, "vaultUid=vault_1", "vaultUid=vault_other", 1)
		response := doRequest(router, "/api/upsell/123", form)

		// then
		assert.Equal(t, 422, response.Code)
		assert.Contains(t, response.Body.String(), "Invalid session or missing vault")

		sess, _, err := sessionStore.Get(c, "123")
		assert.NoError(t, err)
		assert.Empty(t, sess.UpsellsAccepted)
		assert.Empty(t, sess.UpsellsDeclined)
		assert.Equal(t, funnelapi.UpsellStepName(1), sess.CurrentStep)
	})

	t.Run("Missing vault fails hard without a charge", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, router, sessionStore, _, publisher := setup(t, ctrl)

		// given: the initial payment never resolved for this session
		sess := completedSession
		sess.VaultUID = ""
		sess.Status = funnelapi.SessionStatusProcessing
		givenSession(c, t, sessionStore, sess)
		publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, gomock.AssignableToTypeOf(paymentevents.UpsellAccepted{})).Return(nil)

		// when
		response := doRequest(router, "/api/upsell/123", upsellForm)

		// then
		assert.Equal(t, 422, response.Code)
		assert.Contains(t, response.Body.String(), "Invalid session or missing vault")
	})

	t.Run("Declined upsell is recorded and does not advance the funnel", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, router, sessionStore, gateway, publisher := setup(t, ctrl)

		// given
		givenSession(c, t, sessionStore, completedSession)
		publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, gomock.AssignableToTypeOf(paymentevents.UpsellAccepted{})).Return(nil)
		gateway.EXPECT().Charge(gomock.Any(), gomock.Any()).Return(gatewayapi.ChargeResult{
			Success:   false,
			Error:     "card has insufficient funds",
			ErrorCode: gatewayapi.ErrorCodeInsufficientFunds,
		}, nil)
		publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, paymentevents.UpsellPaymentFailed{
			SessionUID:    "123",
			ProductUID:    "prod_222",
			AmountInCents: 19700,
			UpsellStep:    1,
			Error:         "card has insufficient funds",
		}).Return(nil)

		// when
		response := doRequest(router, "/api/upsell/123", upsellForm)

		// then
		assert.Equal(t, 422, response.Code)

		sess, _, err := sessionStore.Get(c, "123")
		assert.NoError(t, err)
		assert.Equal(t, []string{"prod_222"}, sess.UpsellsDeclined)
		assert.Empty(t, sess.UpsellsAccepted)
		assert.Equal(t, funnelapi.UpsellStepName(1), sess.CurrentStep)
		assert.Equal(t, funnelapi.SessionStatusCompleted, sess.Status)
		assert.Equal(t, "txn_1", sess.TransactionUID)
	})

	t.Run("Repeat of an already-decided step is a no-op success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup: no gateway expectations, a second charge fails the test
		c, router, sessionStore, _, publisher := setup(t, ctrl)

		// given
		sess := completedSession
		sess.UpsellsAccepted = []string{"prod_222"}
		sess.CurrentStep = funnelapi.UpsellStepName(2)
		givenSession(c, t, sessionStore, sess)
		publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, gomock.AssignableToTypeOf(paymentevents.UpsellAccepted{})).Return(nil)

		// when
		response := doRequest(router, "/api/upsell/123", upsellForm)

		// then
		assert.Equal(t, 200, response.Code)

		stored, _, err := sessionStore.Get(c, "123")
		assert.NoError(t, err)
		assert.Equal(t, []string{"prod_222"}, stored.UpsellsAccepted)
		assert.Equal(t, funnelapi.UpsellStepName(2), stored.CurrentStep)
	})

	t.Run("Duplicate upsell charge is recorded without billing again", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, router, sessionStore, gateway, publisher := setup(t, ctrl)

		// given
		givenSession(c, t, sessionStore, completedSession)
		publisher.EXPECT().Publish(gomock.Any(), paymentevents.TopicName, gomock.AssignableToTypeOf(paymentevents.UpsellAccepted{})).Return(nil)
		gateway.EXPECT().Charge(gomock.Any(), gomock.Any()).Return(gatewayapi.ChargeResult{
			Success:   false,
			ErrorCode: gatewayapi.ErrorCodeDuplicate,
		}, nil)

		// when
		response := doRequest(router, "/api/upsell/123", upsellForm)

		// then: accepted on the strength of the earlier charge, no
		// upsell.completed emitted
		assert.Equal(t, 200, response.Code)

		sess, _, err := sessionStore.Get(c, "123")
		assert.NoError(t, err)
		assert.Equal(t, []string{"prod_222"}, sess.UpsellsAccepted)
		assert.Equal(t, funnelapi.UpsellStepName(2), sess.CurrentStep)
	})
}

func setup(t *testing.T, ctrl *gomock.Controller) (context.Context, *mux.Router, mystore.Store[funnelapi.Session], *gatewayapi.MockGateway, *mypublisher.MockPublisher) {
	c := context.TODO()

	sessionStorer, _, err := mystore.New[funnelapi.Session](c)
	assert.NoError(t, err)

	uuider := myuuid.NewMockUUIDer(ctrl)
	nower := mytime.NewMockNower(ctrl)
	nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

	gateway := gatewayapi.NewMockGateway(ctrl)
	publisher := mypublisher.NewMockPublisher(ctrl)

	engine, _, err := myworkflow.NewEngine(c, nower, myworkflow.Spec{
		Name:           WorkflowName,
		MaxAttempts:    3,
		MaxConcurrency: 30,
	})
	assert.NoError(t, err)

	sut := NewWebService(session.NewSessionStore(sessionStorer, nower, uuider), gateway, engine, publisher, nower, "TEST")
	router := mux.NewRouter()

	publisher.EXPECT().CreateTopic(gomock.Any(), paymentevents.TopicName).Return(nil)
	err = sut.RegisterEndpoints(c, router)
	assert.NoError(t, err)

	return c, router, sessionStorer, gateway, publisher
}

func doRequest(router *mux.Router, url string, body string) *httptest.ResponseRecorder {
	request, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	response := httptest.NewRecorder()
	router.ServeHTTP(response, request)
	return response
}

func givenSession(c context.Context, t *testing.T, store mystore.Store[funnelapi.Session], sess funnelapi.Session) {
	err := store.Put(c, sess.UID, sess)
	assert.NoError(t, err)
}

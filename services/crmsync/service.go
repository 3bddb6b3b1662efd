package crmsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/myevents"
	"github.com/MarcGrol/funnelbackend/lib/myhttp"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/lib/mypublisher"
	"github.com/MarcGrol/funnelbackend/lib/mypubsub"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myworkflow"
	"github.com/MarcGrol/funnelbackend/services/paymentevents"
	"github.com/MarcGrol/funnelbackend/services/syncevents"
)

const (
	// WorkflowName identifies the CRM order sync workflow at the engine.
	// One attempt per run: a failed sync goes to the dead-letter path
	// instead of being retried in-line against an ailing CRM.
	WorkflowName = "crm-sync"

	stepUpsertCustomer = "upsert_customer"
	stepCreateOrder    = "create_order"
	stepFanOut         = "fan_out"

	serviceName = "crm"
)

type service struct {
	crm        CRMClient
	engine     *myworkflow.Engine
	publisher  mypublisher.Publisher
	subscriber mypubsub.PubSub
	nower      mytime.Nower
	logger     mylog.Logger
}

// Use dependency injection to isolate the infrastructure and ease testing
func newService(crm CRMClient, engine *myworkflow.Engine, publisher mypublisher.Publisher,
	subscriber mypubsub.PubSub, nower mytime.Nower) *service {
	return &service{
		crm:        crm,
		engine:     engine,
		publisher:  publisher,
		subscriber: subscriber,
		nower:      nower,
		logger:     mylog.New("crmsync"),
	}
}

func (s *service) Subscribe(c context.Context) error {
	for _, topic := range []string{paymentevents.TopicName, syncevents.TopicName} {
		err := s.subscriber.CreateTopic(c, topic)
		if err != nil {
			return fmt.Errorf("error creating topic %s: %s", topic, err)
		}
	}

	err := s.subscriber.Subscribe(c, paymentevents.TopicName, myhttp.GuessHostnameWithScheme()+"/api/crmsync/event")
	if err != nil {
		return fmt.Errorf("error subscribing to topic %s: %s", paymentevents.TopicName, err)
	}

	return nil
}

func (s *service) OnPaymentSucceeded(c context.Context, topic string, event paymentevents.PaymentSucceeded) error {
	customer, order := TransformCheckoutData(event)
	return s.syncOrder(c, syncevents.SyncTypeOrder, event.SessionUID, customer, order, event)
}

func (s *service) OnUpsellCompleted(c context.Context, topic string, event paymentevents.UpsellCompleted) error {
	customer, order := TransformUpsellData(event)
	return s.syncOrder(c, syncevents.SyncTypeUpsellOrder, event.SessionUID, customer, order, event)
}

func (s *service) OnPaymentFailed(c context.Context, topic string, event paymentevents.PaymentFailed) error {
	// observability only: nothing to sync for a failed payment
	s.logger.Log(c, event.SessionUID, mylog.SeverityWarn, "Payment of session %s failed with code %s on attempt %d",
		event.SessionUID, event.ErrorCode, event.Attempt)
	return nil
}

func (s *service) OnUpsellPaymentFailed(c context.Context, topic string, event paymentevents.UpsellPaymentFailed) error {
	s.logger.Log(c, event.SessionUID, mylog.SeverityWarn, "Upsell %d of session %s failed: %s",
		event.UpsellStep, event.SessionUID, event.Error)
	return nil
}

// syncOrder delivers one order to the CRM. A failure is acked to the caller
// and reported as a sync-failed event instead: the dead-letter handler owns
// the single re-drive, not the message transport.
func (s *service) syncOrder(c context.Context, syncType syncevents.SyncType, sessionUID string,
	customer CRMCustomer, order CRMOrder, originalEvent myevents.Event) error {

	var orderResult OrderResult

	runUID := fmt.Sprintf("%s-%s-%s-%d", WorkflowName, syncType, sessionUID, s.nower.Now().UnixNano())
	workflowErr := s.engine.Execute(c, WorkflowName, runUID, []myworkflow.Step{
		{Name: stepUpsertCustomer, Do: func(c context.Context) (string, error) {
			result, err := s.crm.UpsertCustomer(c, customer)
			if err != nil || !result.Success {
				// non-fatal: the order proceeds as a guest order
				s.logger.Log(c, sessionUID, mylog.SeverityWarn, "Customer upsert for session %s failed (%s %s) -> guest order",
					sessionUID, result.Error, errString(err))
				return "guest", nil
			}
			order.CustomerUID = result.CustomerUID
			return result.CustomerUID, nil
		}},
		{Name: stepCreateOrder, Do: func(c context.Context) (string, error) {
			result, err := s.crm.CreateOrder(c, order)
			if err != nil {
				return "", err
			}
			if !result.Success {
				return "", myerrors.NewUnavailableError(fmt.Errorf("crm rejected order of session %s: %s", sessionUID, result.Error))
			}
			orderResult = result
			return result.OrderUID, nil
		}},
		{Name: stepFanOut, Do: func(c context.Context) (string, error) {
			s.fanOutConfirmation(c, syncType, sessionUID, orderResult)
			return orderResult.OrderUID, nil
		}},
	})
	if workflowErr == nil {
		return nil
	}

	payload, err := json.Marshal(originalEvent)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error marshalling original event for session %s: %s", sessionUID, err))
	}

	err = s.publisher.Publish(c, syncevents.TopicName, syncevents.SyncFailed{
		SessionUID:           sessionUID,
		Service:              serviceName,
		Type:                 syncType,
		OriginalEventType:    originalEvent.GetEventTypeName(),
		OriginalEventPayload: string(payload),
		Error:                workflowErr.Error(),
		Retryable:            myerrors.IsRetryable(workflowErr),
	})
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error publishing sync failure of session %s: %s", sessionUID, err))
	}

	s.logger.Log(c, sessionUID, mylog.SeverityWarn, "Sync of %s for session %s failed: %s", syncType, sessionUID, workflowErr)

	return nil
}

// fanOutConfirmation sends the best-effort side effects of a synced order:
// none of these may fail the sync, the CRM order already exists.
func (s *service) fanOutConfirmation(c context.Context, syncType syncevents.SyncType, sessionUID string, orderResult OrderResult) {
	err := s.publisher.Publish(c, syncevents.TopicName, syncevents.SyncCompleted{
		SessionUID:  sessionUID,
		Type:        syncType,
		CRMOrderUID: orderResult.OrderUID,
		OrderNumber: orderResult.OrderNumber,
	})
	if err != nil {
		s.logger.Log(c, sessionUID, mylog.SeverityError, "Error publishing sync completion of session %s: %s", sessionUID, err)
	}

	// confirmation mail and analytics are delivered downstream of this event;
	// nothing to roll back here
	s.logger.Log(c, sessionUID, mylog.SeverityInfo, "Order %s (%s) of session %s synced to crm",
		orderResult.OrderUID, orderResult.OrderNumber, sessionUID)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

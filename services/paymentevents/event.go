package paymentevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/myevents"
)

type PaymentEventService interface {
	Subscribe(c context.Context) error
	OnPaymentSucceeded(c context.Context, topic string, event PaymentSucceeded) error
	OnPaymentFailed(c context.Context, topic string, event PaymentFailed) error
	OnUpsellCompleted(c context.Context, topic string, event UpsellCompleted) error
	OnUpsellPaymentFailed(c context.Context, topic string, event UpsellPaymentFailed) error
}

func DispatchEvent(c context.Context, reader io.Reader, service PaymentEventService) error {
	envelope, err := myevents.ParseEventEnvelope(reader)
	if err != nil {
		return myerrors.NewInvalidInputError(err)
	}

	switch envelope.EventTypeName {
	case paymentSucceededName:
		{
			event := PaymentSucceeded{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnPaymentSucceeded(c, envelope.Topic, event)
		}
	case paymentFailedName:
		{
			event := PaymentFailed{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnPaymentFailed(c, envelope.Topic, event)
		}
	case upsellCompletedName:
		{
			event := UpsellCompleted{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnUpsellCompleted(c, envelope.Topic, event)
		}
	case upsellPaymentFailedName:
		{
			event := UpsellPaymentFailed{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnUpsellPaymentFailed(c, envelope.Topic, event)
		}
	default:
		return myerrors.NewNotImplementedError(fmt.Errorf("event %s", envelope.EventTypeName))
	}
}

// ReconstructEvent turns a stored event-type-name + payload back into a typed
// event, so the dead-letter retry handler can re-emit the exact original.
func ReconstructEvent(eventTypeName string, payload string) (myevents.Event, error) {
	switch eventTypeName {
	case paymentSucceededName:
		event := PaymentSucceeded{}
		err := json.Unmarshal([]byte(payload), &event)
		if err != nil {
			return nil, myerrors.NewInvalidInputError(err)
		}
		return event, nil
	case upsellCompletedName:
		event := UpsellCompleted{}
		err := json.Unmarshal([]byte(payload), &event)
		if err != nil {
			return nil, myerrors.NewInvalidInputError(err)
		}
		return event, nil
	default:
		return nil, myerrors.NewNotImplementedError(fmt.Errorf("event %s cannot be re-driven", eventTypeName))
	}
}

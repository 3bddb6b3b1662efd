package syncevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/myevents"
)

type SyncEventService interface {
	Subscribe(c context.Context) error
	OnSyncFailed(c context.Context, topic string, event SyncFailed) error
	OnSyncCompleted(c context.Context, topic string, event SyncCompleted) error
}

func DispatchEvent(c context.Context, reader io.Reader, service SyncEventService) error {
	envelope, err := myevents.ParseEventEnvelope(reader)
	if err != nil {
		return myerrors.NewInvalidInputError(err)
	}

	switch envelope.EventTypeName {
	case syncFailedName:
		{
			event := SyncFailed{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnSyncFailed(c, envelope.Topic, event)
		}
	case syncCompletedName:
		{
			event := SyncCompleted{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnSyncCompleted(c, envelope.Topic, event)
		}
	default:
		return myerrors.NewNotImplementedError(fmt.Errorf("event %s", envelope.EventTypeName))
	}
}

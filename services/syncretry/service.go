package syncretry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/myhttp"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/lib/mypublisher"
	"github.com/MarcGrol/funnelbackend/lib/mypubsub"
	"github.com/MarcGrol/funnelbackend/lib/myqueue"
	"github.com/MarcGrol/funnelbackend/lib/mystore"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myworkflow"
	"github.com/MarcGrol/funnelbackend/services/paymentevents"
	"github.com/MarcGrol/funnelbackend/services/syncevents"
)

const (
	// WorkflowName identifies the dead-letter re-drive at the engine. The low
	// concurrency ceiling protects the CRM while it is recovering.
	WorkflowName = "crm-sync-retry"

	stepReEmitOriginal = "re_emit_original"

	taskWebhookPath = "/api/syncretry/task"

	// backoff before the single automatic re-drive
	retryDelay = 30 * time.Second
)

// RetryRecord is the durable bound on retry amplification: one record per
// failed sync, and an unresolved record means the single automatic re-drive
// was already spent.
type RetryRecord struct {
	UID                  string
	SessionUID           string
	Type                 syncevents.SyncType
	OriginalEventType    string
	OriginalEventPayload string `datastore:",noindex"`
	Error                string `datastore:",noindex"`
	CreatedAt            time.Time
	Resolved             bool
}

type service struct {
	retryStore mystore.Store[RetryRecord]
	queuer     myqueue.TaskQueuer
	publisher  mypublisher.Publisher
	subscriber mypubsub.PubSub
	engine     *myworkflow.Engine
	nower      mytime.Nower
	logger     mylog.Logger
}

// Use dependency injection to isolate the infrastructure and ease testing
func newService(retryStore mystore.Store[RetryRecord], queuer myqueue.TaskQueuer, publisher mypublisher.Publisher,
	subscriber mypubsub.PubSub, engine *myworkflow.Engine, nower mytime.Nower) *service {
	return &service{
		retryStore: retryStore,
		queuer:     queuer,
		publisher:  publisher,
		subscriber: subscriber,
		engine:     engine,
		nower:      nower,
		logger:     mylog.New("syncretry"),
	}
}

func (s *service) Subscribe(c context.Context) error {
	err := s.subscriber.CreateTopic(c, syncevents.TopicName)
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", syncevents.TopicName, err)
	}

	err = s.subscriber.Subscribe(c, syncevents.TopicName, myhttp.GuessHostnameWithScheme()+"/api/syncretry/event")
	if err != nil {
		return fmt.Errorf("error subscribing to topic %s: %s", syncevents.TopicName, err)
	}

	return nil
}

// OnSyncFailed schedules the single delayed re-drive of a failed sync. A
// second failure for the same session+type finds the unresolved record and is
// escalated instead of retried again.
func (s *service) OnSyncFailed(c context.Context, topic string, event syncevents.SyncFailed) error {
	if !event.Retryable {
		s.escalate(c, event.SessionUID, fmt.Sprintf("non-retryable sync failure of %s: %s", event.Type, event.Error))
		return nil
	}

	recordUID := composeRecordUID(event.SessionUID, event.Type)

	retrySpent := false
	err := s.retryStore.RunInTransaction(c, func(c context.Context) error {
		existing, found, err := s.retryStore.Get(c, recordUID)
		if err != nil {
			return myerrors.NewUnavailableError(fmt.Errorf("error fetching retry record %s: %s", recordUID, err))
		}
		if found && !existing.Resolved {
			retrySpent = true
			return nil
		}

		return s.retryStore.Put(c, recordUID, RetryRecord{
			UID:                  recordUID,
			SessionUID:           event.SessionUID,
			Type:                 event.Type,
			OriginalEventType:    event.OriginalEventType,
			OriginalEventPayload: event.OriginalEventPayload,
			Error:                event.Error,
			CreatedAt:            s.nower.Now(),
		})
	})
	if err != nil {
		return err
	}

	if retrySpent {
		s.escalate(c, event.SessionUID, fmt.Sprintf("sync of %s failed again after its re-drive: %s", event.Type, event.Error))
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error marshalling sync failure of session %s: %s", event.SessionUID, err))
	}

	// the delay lives in the task queue: waiting must not occupy a worker
	err = s.queuer.Enqueue(c, myqueue.Task{
		UID:            fmt.Sprintf("%s-%d", recordUID, s.nower.Now().UnixNano()),
		WebhookURLPath: taskWebhookPath,
		Payload:        payload,
		Delay:          retryDelay,
	})
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error scheduling re-drive for session %s: %s", event.SessionUID, err))
	}

	s.logger.Log(c, event.SessionUID, mylog.SeverityInfo, "Scheduled re-drive of %s sync for session %s in %s",
		event.Type, event.SessionUID, retryDelay)

	return nil
}

// OnSyncCompleted closes the book on a session+type: a later, unrelated
// failure gets a fresh re-drive again.
func (s *service) OnSyncCompleted(c context.Context, topic string, event syncevents.SyncCompleted) error {
	recordUID := composeRecordUID(event.SessionUID, event.Type)

	return s.retryStore.RunInTransaction(c, func(c context.Context) error {
		record, found, err := s.retryStore.Get(c, recordUID)
		if err != nil {
			return myerrors.NewUnavailableError(fmt.Errorf("error fetching retry record %s: %s", recordUID, err))
		}
		if !found || record.Resolved {
			return nil
		}

		record.Resolved = true
		return s.retryStore.Put(c, recordUID, record)
	})
}

// reEmitOriginal is the delayed task: publish the original trigger event so
// the normal sync path runs exactly once more.
func (s *service) reEmitOriginal(c context.Context, event syncevents.SyncFailed) error {
	runUID := fmt.Sprintf("%s-%s-%d", WorkflowName, composeRecordUID(event.SessionUID, event.Type), s.nower.Now().UnixNano())

	return s.engine.Execute(c, WorkflowName, runUID, []myworkflow.Step{
		{Name: stepReEmitOriginal, Do: func(c context.Context) (string, error) {
			original, err := paymentevents.ReconstructEvent(event.OriginalEventType, event.OriginalEventPayload)
			if err != nil {
				return "", err
			}

			err = s.publisher.Publish(c, paymentevents.TopicName, original)
			if err != nil {
				return "", myerrors.NewInternalError(fmt.Errorf("error re-emitting %s for session %s: %s",
					event.OriginalEventType, event.SessionUID, err))
			}

			s.logger.Log(c, event.SessionUID, mylog.SeverityInfo, "Re-emitted %s for session %s",
				event.OriginalEventType, event.SessionUID)

			return event.OriginalEventType, nil
		}},
	})
}

// escalate surfaces a sync that automation gave up on. The capture sink is
// fire-and-forget: it must never alter control flow.
func (s *service) escalate(c context.Context, sessionUID string, msg string) {
	s.logger.Log(c, sessionUID, mylog.SeverityError, "MANUAL INTERVENTION required for session %s: %s", sessionUID, msg)
}

func composeRecordUID(sessionUID string, syncType syncevents.SyncType) string {
	return fmt.Sprintf("retry-%s-%s", sessionUID, syncType)
}

package upsell

import (
	"context"
	"fmt"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/lib/mypublisher"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myworkflow"
	"github.com/MarcGrol/funnelbackend/services/funnelapi"
	"github.com/MarcGrol/funnelbackend/services/gatewayapi"
	"github.com/MarcGrol/funnelbackend/services/paymentevents"
	"github.com/MarcGrol/funnelbackend/services/session"
)

const (
	// WorkflowName identifies the one-click upsell workflow at the engine.
	WorkflowName = "upsell"

	stepValidateVault     = "validate_vault"
	stepChargeUpsell      = "charge_upsell"
	stepRecordOutcome     = "record_outcome"
	stepPublishCompletion = "publish_completion"

	// charge step outputs that mean no completion event is owed by this run
	outcomeAlreadyDecided = "already-decided"
	outcomeDuplicate      = "duplicate"
)

// ErrVaultMismatch is what the caller sees when the presented vault does not
// belong to the session. This must never be retried.
var ErrVaultMismatch = fmt.Errorf("Invalid session or missing vault")

type service struct {
	sessionStore session.SessionStore
	gateway      gatewayapi.Gateway
	engine       *myworkflow.Engine
	publisher    mypublisher.Publisher
	nower        mytime.Nower
	orderPrefix  string
	logger       mylog.Logger
}

// Use dependency injection to isolate the infrastructure and ease testing
func newService(sessionStore session.SessionStore, gateway gatewayapi.Gateway, engine *myworkflow.Engine,
	publisher mypublisher.Publisher, nower mytime.Nower, orderPrefix string) *service {
	return &service{
		sessionStore: sessionStore,
		gateway:      gateway,
		engine:       engine,
		publisher:    publisher,
		nower:        nower,
		orderPrefix:  orderPrefix,
		logger:       mylog.New("upsell"),
	}
}

func (s *service) CreateTopics(c context.Context) error {
	err := s.publisher.CreateTopic(c, paymentevents.TopicName)
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", paymentevents.TopicName, err)
	}
	return nil
}

// oneClickCharge drives the upsell workflow for one offered product. A repeat
// submission of an already-decided product is a no-op success: the funnel UI
// may resubmit a step after a reload.
func (s *service) oneClickCharge(c context.Context, sessionUID string, submission funnelapi.UpsellSubmission) (funnelapi.Session, error) {
	if submission.ProductUID == "" {
		return funnelapi.Session{}, myerrors.NewInvalidInputError(fmt.Errorf("missing product uid"))
	}
	if submission.AmountInCents <= 0 {
		return funnelapi.Session{}, myerrors.NewInvalidInputError(fmt.Errorf("invalid amount"))
	}
	if submission.UpsellStep <= 0 {
		return funnelapi.Session{}, myerrors.NewInvalidInputError(fmt.Errorf("invalid upsell step"))
	}

	err := s.publisher.Publish(c, paymentevents.TopicName, paymentevents.UpsellAccepted{
		SessionUID:    sessionUID,
		VaultUID:      submission.VaultUID,
		ProductUID:    submission.ProductUID,
		AmountInCents: submission.AmountInCents,
		UpsellStep:    submission.UpsellStep,
	})
	if err != nil {
		return funnelapi.Session{}, myerrors.NewInternalError(fmt.Errorf("error publishing upsell acceptance: %s", err))
	}

	runUID := fmt.Sprintf("upsell-%s-%d", sessionUID, submission.UpsellStep)
	workflowErr := s.engine.Execute(c, WorkflowName, runUID, []myworkflow.Step{
		{Name: stepValidateVault, Do: s.validateVaultStep(sessionUID, submission)},
		{Name: stepChargeUpsell, Do: s.chargeUpsellStep(sessionUID, submission)},
		{Name: stepRecordOutcome, Do: s.recordOutcomeStep(sessionUID, submission)},
		{Name: stepPublishCompletion, Do: s.publishCompletionStep(sessionUID, submission)},
	})

	sess, found, err := s.sessionStore.GetSession(c, sessionUID)
	if err == nil && !found {
		err = myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
	}
	if err != nil {
		return funnelapi.Session{}, err
	}

	return sess, workflowErr
}

func (s *service) validateVaultStep(sessionUID string, submission funnelapi.UpsellSubmission) func(c context.Context) (string, error) {
	return func(c context.Context) (string, error) {
		sess, found, err := s.sessionStore.GetSession(c, sessionUID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
		}

		// the recorded vault is the proof that the initial payment resolved:
		// a missing or mismatching vault is a hard failure
		if sess.VaultUID == "" || sess.VaultUID != submission.VaultUID {
			s.logger.Log(c, sessionUID, mylog.SeverityWarn, "Vault mismatch on upsell for session %s", sessionUID)
			return "", myerrors.NewInvalidInputError(ErrVaultMismatch)
		}

		return sess.VaultUID, nil
	}
}

func (s *service) chargeUpsellStep(sessionUID string, submission funnelapi.UpsellSubmission) func(c context.Context) (string, error) {
	return func(c context.Context) (string, error) {
		sess, found, err := s.sessionStore.GetSession(c, sessionUID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
		}

		if sess.HasDecidedUpsell(submission.ProductUID) {
			s.logger.Log(c, sessionUID, mylog.SeverityInfo, "Upsell %s of session %s already decided -> skip charge",
				submission.ProductUID, sessionUID)
			return outcomeAlreadyDecided, nil
		}

		orderReference := gatewayapi.ComposeUpsellOrderReference(s.orderPrefix, sessionUID, submission.UpsellStep, s.nower.Now())

		result, err := s.gateway.Charge(c, gatewayapi.ChargeRequest{
			VaultUID:       sess.VaultUID,
			AmountInCents:  submission.AmountInCents,
			Currency:       firstNonEmpty(submission.Currency, sess.Currency()),
			OrderReference: orderReference,
			Email:          sess.Customer.Email,
			Description:    fmt.Sprintf("Upsell %s for order of session %s", submission.ProductName, sessionUID),
		})
		if err != nil {
			return "", err
		}

		if result.IsDuplicate() {
			// this upsell was already charged by an earlier attempt: record
			// the acceptance, do not bill again
			_, err = s.sessionStore.UpdateSession(c, sessionUID, session.SessionUpdate{
				AppendUpsellAccepted: submission.ProductUID,
				CurrentStep:          nextStep(submission.UpsellStep),
			})
			if err != nil {
				return "", err
			}
			return outcomeDuplicate, nil
		}

		if !result.Success {
			// a declined upsell does not fail the session: the initial order
			// stands, only this offer is recorded as declined
			_, err = s.sessionStore.UpdateSession(c, sessionUID, session.SessionUpdate{
				AppendUpsellDeclined: submission.ProductUID,
			})
			if err != nil {
				return "", err
			}

			err = s.publisher.Publish(c, paymentevents.TopicName, paymentevents.UpsellPaymentFailed{
				SessionUID:    sessionUID,
				ProductUID:    submission.ProductUID,
				AmountInCents: submission.AmountInCents,
				UpsellStep:    submission.UpsellStep,
				Error:         result.Error,
			})
			if err != nil {
				return "", myerrors.NewInternalError(fmt.Errorf("error publishing upsell failure: %s", err))
			}

			return "", myerrors.NewInvalidInputError(fmt.Errorf("upsell charge for session %s declined: %s (%s)",
				sessionUID, result.Error, result.ErrorCode))
		}

		_, err = s.sessionStore.UpdateSession(c, sessionUID, session.SessionUpdate{
			TransactionUID: &result.TransactionUID,
			AddMetadata: []funnelapi.Meta{
				{Key: upsellOrderReferenceKey(submission.UpsellStep), Value: orderReference},
			},
		})
		if err != nil {
			return "", err
		}

		return result.TransactionUID, nil
	}
}

// chargeDecidedElsewhere tells whether the charge step concluded that this
// run owes the session no acceptance record and no completion event.
func chargeDecidedElsewhere(c context.Context) (string, bool) {
	output, _ := myworkflow.StepOutput(c, stepChargeUpsell)
	return output, output == outcomeAlreadyDecided || output == outcomeDuplicate
}

func (s *service) recordOutcomeStep(sessionUID string, submission funnelapi.UpsellSubmission) func(c context.Context) (string, error) {
	return func(c context.Context) (string, error) {
		if output, decided := chargeDecidedElsewhere(c); decided {
			return output, nil
		}

		sess, found, err := s.sessionStore.GetSession(c, sessionUID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
		}

		if sess.HasDecidedUpsell(submission.ProductUID) {
			// a crashed earlier run got this far: the record exists, the
			// completion event is owed by the next step regardless
			return outcomeAlreadyDecided, nil
		}

		sess, err = s.sessionStore.UpdateSession(c, sessionUID, session.SessionUpdate{
			AppendUpsellAccepted: submission.ProductUID,
			CurrentStep:          nextStep(submission.UpsellStep),
		})
		if err != nil {
			return "", err
		}

		return sess.TransactionUID, nil
	}
}

func (s *service) publishCompletionStep(sessionUID string, submission funnelapi.UpsellSubmission) func(c context.Context) (string, error) {
	return func(c context.Context) (string, error) {
		if output, decided := chargeDecidedElsewhere(c); decided {
			// the run that decided this step also emitted the event
			return output, nil
		}

		sess, found, err := s.sessionStore.GetSession(c, sessionUID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
		}

		err = s.publisher.Publish(c, paymentevents.TopicName, paymentevents.UpsellCompleted{
			SessionUID:     sessionUID,
			TransactionUID: sess.TransactionUID,
			ProductUID:     submission.ProductUID,
			ProductName:    submission.ProductName,
			AmountInCents:  submission.AmountInCents,
			Currency:       firstNonEmpty(submission.Currency, sess.Currency()),
			UpsellStep:     submission.UpsellStep,
			OrderReference: sess.MetaValue(upsellOrderReferenceKey(submission.UpsellStep)),
			Customer:       sess.Customer,
		})
		if err != nil {
			return "", myerrors.NewInternalError(fmt.Errorf("error publishing upsell completion: %s", err))
		}

		s.logger.Log(c, sessionUID, mylog.SeverityInfo, "Upsell %d of session %s completed with transaction %s",
			submission.UpsellStep, sessionUID, sess.TransactionUID)

		return sess.TransactionUID, nil
	}
}

func nextStep(currentUpsellStep int) *string {
	next := funnelapi.UpsellStepName(currentUpsellStep + 1)
	return &next
}

func upsellOrderReferenceKey(upsellStep int) string {
	return fmt.Sprintf("upsellOrderReference-%d", upsellStep)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package payment

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
	// WorkflowName identifies the initial payment workflow at the engine.
	WorkflowName = "payment"

	stepValidateSession = "validate_session"
	stepCreateVault     = "create_vault"
	stepPersistVault    = "persist_vault"
	stepChargeInitial   = "charge_initial"
	stepFinalizeSuccess = "finalize_success"

	metaKeyOrderReference = "orderReference"

	vaultErrorCode = "VAULT_ERROR"
)

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
		logger:       mylog.New("payment"),
	}
}

func (s *service) CreateTopics(c context.Context) error {
	err := s.publisher.CreateTopic(c, paymentevents.TopicName)
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", paymentevents.TopicName, err)
	}
	return nil
}

// checkout creates the session and drives the payment workflow to an outcome.
func (s *service) checkout(c context.Context, submission funnelapi.CheckoutSubmission) (funnelapi.Session, error) {
	if submission.PaymentToken == "" {
		return funnelapi.Session{}, myerrors.NewInvalidInputError(fmt.Errorf("missing payment token"))
	}
	if len(submission.Products) == 0 {
		return funnelapi.Session{}, myerrors.NewInvalidInputError(fmt.Errorf("missing products"))
	}
	if submission.Customer.Email == "" {
		return funnelapi.Session{}, myerrors.NewInvalidInputError(fmt.Errorf("missing customer email"))
	}

	sess, err := s.sessionStore.CreateSession(c, funnelapi.Session{
		Customer:   submission.Customer,
		Products:   submission.Products,
		CouponCode: submission.CouponCode,
	})
	if err != nil {
		return funnelapi.Session{}, err
	}

	err = s.publisher.Publish(c, paymentevents.TopicName, paymentevents.PaymentAttempted{
		SessionUID:    sess.UID,
		PaymentToken:  submission.PaymentToken,
		AmountInCents: sess.TotalAmountInCents(),
		Currency:      sess.Currency(),
		Customer:      sess.Customer,
		Products:      sess.Products,
		CouponCode:    sess.CouponCode,
	})
	if err != nil {
		return funnelapi.Session{}, myerrors.NewInternalError(fmt.Errorf("error publishing payment attempt: %s", err))
	}

	return s.executePaymentWorkflow(c, paymentRunUID(sess.UID), sess.UID, submission.PaymentToken)
}

// resume re-drives the payment workflow of an existing session, e.g. after a
// UI double-click or a crashed run. Steps that already took effect are skipped
// based on persisted session state, not on trust in the caller.
func (s *service) resume(c context.Context, sessionUID string, oneTimeToken string) (funnelapi.Session, error) {
	return s.executePaymentWorkflow(c, paymentRunUID(sessionUID), sessionUID, oneTimeToken)
}

// updateCard handles recovery after a genuine decline: store a fresh card on
// the existing vault and retry the pending charge once.
func (s *service) updateCard(c context.Context, sessionUID string, oneTimeToken string) (funnelapi.Session, error) {
	if oneTimeToken == "" {
		return funnelapi.Session{}, myerrors.NewInvalidInputError(fmt.Errorf("missing payment token"))
	}

	sess, found, err := s.sessionStore.GetSession(c, sessionUID)
	if err != nil {
		return funnelapi.Session{}, err
	}
	if !found {
		return funnelapi.Session{}, myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
	}
	if sess.VaultUID == "" {
		return funnelapi.Session{}, myerrors.NewInvalidInputError(fmt.Errorf("session %s has no vault to update", sessionUID))
	}

	result, err := s.gateway.UpdateVault(c, sess.VaultUID, gatewayapi.VaultRequest{
		SessionUID:   sessionUID,
		OneTimeToken: oneTimeToken,
		Email:        sess.Customer.Email,
		FullName:     sess.Customer.FullName(),
		Currency:     sess.Currency(),
	})
	if err != nil {
		return funnelapi.Session{}, err
	}
	if !result.Success {
		return funnelapi.Session{}, myerrors.NewInvalidInputError(fmt.Errorf("new card was not accepted: %s", result.Error))
	}

	sess, err = s.sessionStore.ReopenSession(c, sessionUID)
	if err != nil {
		return funnelapi.Session{}, err
	}

	// A fresh run uid: the failed run has no attempts left, this is a new,
	// deliberate retry with exactly one shot at the charge.
	runUID := fmt.Sprintf("%s-cardupdate-%d", paymentRunUID(sessionUID), s.nower.Now().UnixNano())

	return s.executePaymentWorkflow(c, runUID, sessionUID, "")
}

func (s *service) executePaymentWorkflow(c context.Context, runUID string, sessionUID string, oneTimeToken string) (funnelapi.Session, error) {
	workflowErr := s.engine.Execute(c, WorkflowName, runUID, []myworkflow.Step{
		{Name: stepValidateSession, Do: s.validateSessionStep(sessionUID)},
		{Name: stepCreateVault, Do: s.createVaultStep(sessionUID, oneTimeToken)},
		{Name: stepPersistVault, Do: s.persistVaultStep(sessionUID)},
		{Name: stepChargeInitial, Do: s.chargeInitialStep(sessionUID)},
		{Name: stepFinalizeSuccess, Do: s.finalizeSuccessStep(sessionUID)},
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

func (s *service) validateSessionStep(sessionUID string) func(c context.Context) (string, error) {
	return func(c context.Context) (string, error) {
		sess, found, err := s.sessionStore.GetSession(c, sessionUID)
		if err != nil {
			return "", err
		}
		if !found {
			// terminal: retrying will not make the session appear
			return "", myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
		}

		if sess.Status == funnelapi.SessionStatusPending {
			_, err = s.sessionStore.UpdateSessionStatus(c, sessionUID, funnelapi.SessionStatusProcessing)
			if err != nil {
				return "", err
			}
		}

		return string(sess.Status), nil
	}
}

func (s *service) createVaultStep(sessionUID string, oneTimeToken string) func(c context.Context) (string, error) {
	return func(c context.Context) (string, error) {
		sess, found, err := s.sessionStore.GetSession(c, sessionUID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
		}

		if sess.VaultUID != "" {
			// at most one vault per session
			s.logger.Log(c, sessionUID, mylog.SeverityInfo, "Session %s already has a vault -> skip creation", sessionUID)
			return sess.VaultUID, nil
		}

		if oneTimeToken == "" {
			return "", myerrors.NewInvalidInputError(fmt.Errorf("session %s has no vault and no token was provided", sessionUID))
		}

		result, err := s.gateway.CreateVault(c, gatewayapi.VaultRequest{
			SessionUID:   sessionUID,
			OneTimeToken: oneTimeToken,
			Email:        sess.Customer.Email,
			FullName:     sess.Customer.FullName(),
			Currency:     sess.Currency(),
		})
		if err != nil {
			// infrastructure trouble: the engine decides about a retry.
			// The token might be consumed, so a retry finding no vault
			// will fail terminally on the empty-token guard of a re-drive.
			return "", err
		}
		if !result.Success {
			// the token is single-use: no retry with the same token
			return "", s.failSession(c, sessionUID, result.Error, firstNonEmpty(result.ErrorCode, vaultErrorCode),
				myworkflow.AttemptFromContext(c))
		}

		// the vault uid is cached with the run: persistence is a separate
		// step, so a failing persist never sends the consumed token to the
		// gateway a second time
		return result.VaultUID, nil
	}
}

func (s *service) persistVaultStep(sessionUID string) func(c context.Context) (string, error) {
	return func(c context.Context) (string, error) {
		sess, found, err := s.sessionStore.GetSession(c, sessionUID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
		}

		if sess.VaultUID != "" {
			return sess.VaultUID, nil
		}

		vaultUID, _ := myworkflow.StepOutput(c, stepCreateVault)
		if vaultUID == "" {
			return "", myerrors.NewInternalError(fmt.Errorf("no vault available for session %s", sessionUID))
		}

		_, err = s.sessionStore.UpdateSession(c, sessionUID, session.SessionUpdate{
			VaultUID: &vaultUID,
		})
		if err != nil {
			return "", err
		}

		return vaultUID, nil
	}
}

func (s *service) chargeInitialStep(sessionUID string) func(c context.Context) (string, error) {
	return func(c context.Context) (string, error) {
		sess, found, err := s.sessionStore.GetSession(c, sessionUID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
		}

		if sess.TransactionUID != "" {
			// the charge already happened: never issue a second one
			s.logger.Log(c, sessionUID, mylog.SeverityInfo, "Session %s already has transaction %s -> skip charge",
				sessionUID, sess.TransactionUID)
			return sess.TransactionUID, nil
		}

		orderReference := gatewayapi.ComposeOrderReference(s.orderPrefix, sessionUID, s.nower.Now())

		result, err := s.gateway.Charge(c, gatewayapi.ChargeRequest{
			VaultUID:       sess.VaultUID,
			AmountInCents:  sess.TotalAmountInCents(),
			Currency:       sess.Currency(),
			OrderReference: orderReference,
			Email:          sess.Customer.Email,
			Description:    fmt.Sprintf("Order %s", orderReference),
		})
		if err != nil {
			return "", err
		}

		if result.IsDuplicate() {
			// the gateway says this card+amount was already charged for
			// this session: treat the prior charge as authoritative and
			// move the shopper on instead of billing twice
			return "", s.redirectAfterDuplicate(c, sessionUID)
		}

		if !result.Success {
			// genuine decline: the UI can offer the card-update path
			return "", s.failSession(c, sessionUID, result.Error, result.ErrorCode, myworkflow.AttemptFromContext(c))
		}

		_, err = s.sessionStore.UpdateSession(c, sessionUID, session.SessionUpdate{
			TransactionUID: &result.TransactionUID,
			AddMetadata: []funnelapi.Meta{
				{Key: metaKeyOrderReference, Value: orderReference},
			},
		})
		if err != nil {
			return "", err
		}

		return result.TransactionUID, nil
	}
}

func (s *service) finalizeSuccessStep(sessionUID string) func(c context.Context) (string, error) {
	return func(c context.Context) (string, error) {
		sess, found, err := s.sessionStore.GetSession(c, sessionUID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
		}

		if sess.LastErrorCode == gatewayapi.ErrorCodeDuplicate {
			// the prior charge is authoritative: that run emitted the
			// success event, this one stays silent
			return "duplicate-redirect", nil
		}

		completed := funnelapi.SessionStatusCompleted
		nextStep := funnelapi.UpsellStepName(1)
		sess, err = s.sessionStore.UpdateSession(c, sessionUID, session.SessionUpdate{
			Status:      &completed,
			CurrentStep: &nextStep,
		})
		if err != nil {
			return "", err
		}

		err = s.publisher.Publish(c, paymentevents.TopicName, paymentevents.PaymentSucceeded{
			SessionUID:     sessionUID,
			TransactionUID: sess.TransactionUID,
			VaultUID:       sess.VaultUID,
			OrderReference: sess.MetaValue(metaKeyOrderReference),
			AmountInCents:  sess.TotalAmountInCents(),
			Currency:       sess.Currency(),
			Customer:       sess.Customer,
			Products:       sess.Products,
			CouponCode:     sess.CouponCode,
		})
		if err != nil {
			return "", myerrors.NewInternalError(fmt.Errorf("error publishing payment success: %s", err))
		}

		s.logger.Log(c, sessionUID, mylog.SeverityInfo, "Payment for session %s completed with transaction %s",
			sessionUID, sess.TransactionUID)

		return sess.TransactionUID, nil
	}
}

// redirectAfterDuplicate completes the session on the strength of the prior
// charge and parks the shopper at the first upsell. No payment.succeeded is
// emitted: the run that recorded the original charge already did that.
func (s *service) redirectAfterDuplicate(c context.Context, sessionUID string) error {
	completed := funnelapi.SessionStatusCompleted
	nextStep := funnelapi.UpsellStepName(1)
	errorCode := gatewayapi.ErrorCodeDuplicate
	_, err := s.sessionStore.UpdateSession(c, sessionUID, session.SessionUpdate{
		Status:        &completed,
		CurrentStep:   &nextStep,
		LastErrorCode: &errorCode,
	})
	if err != nil {
		return err
	}

	s.logger.Log(c, sessionUID, mylog.SeverityWarn, "Charge for session %s was a duplicate -> redirecting to %s",
		sessionUID, nextStep)

	return nil
}

func (s *service) failSession(c context.Context, sessionUID string, errorMsg string, errorCode string, attempt int) error {
	failed := funnelapi.SessionStatusFailed
	_, err := s.sessionStore.UpdateSession(c, sessionUID, session.SessionUpdate{
		Status:        &failed,
		LastErrorCode: &errorCode,
	})
	if err != nil {
		return err
	}

	sess, _, err := s.sessionStore.GetSession(c, sessionUID)
	if err != nil {
		return err
	}

	err = s.publisher.Publish(c, paymentevents.TopicName, paymentevents.PaymentFailed{
		SessionUID:    sessionUID,
		Error:         errorMsg,
		ErrorCode:     errorCode,
		AmountInCents: sess.TotalAmountInCents(),
		Attempt:       attempt,
	})
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error publishing payment failure: %s", err))
	}

	return myerrors.NewInvalidInputError(fmt.Errorf("payment for session %s failed: %s (%s)", sessionUID, errorMsg, errorCode))
}

func paymentRunUID(sessionUID string) string {
	return fmt.Sprintf("payment-%s", sessionUID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

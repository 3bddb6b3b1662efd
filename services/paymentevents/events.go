package paymentevents

import (
	"github.com/MarcGrol/funnelbackend/services/funnelapi"
)

const (
	TopicName = "payment"

	paymentAttemptedName    = TopicName + ".attempted"
	paymentSucceededName    = TopicName + ".succeeded"
	paymentFailedName       = TopicName + ".failed"
	upsellAcceptedName      = "upsell.accepted"
	upsellCompletedName     = "upsell.completed"
	upsellPaymentFailedName = "upsell.payment.failed"
)

// PaymentAttempted records that a checkout submission reached the payment
// workflow. The one-time token is carried here and nowhere else.
type PaymentAttempted struct {
	SessionUID    string
	PaymentToken  string
	AmountInCents int64
	Currency      string
	Customer      funnelapi.Customer
	Products      []funnelapi.Product
	CouponCode    string
}

func (e PaymentAttempted) GetEventTypeName() string {
	return paymentAttemptedName
}

func (e PaymentAttempted) GetAggregateName() string {
	return e.SessionUID
}

// PaymentSucceeded triggers the CRM order sync. It carries everything the
// sync needs so that it can run independently of the payment workflow.
type PaymentSucceeded struct {
	SessionUID     string
	TransactionUID string
	VaultUID       string
	OrderReference string
	AmountInCents  int64
	Currency       string
	Customer       funnelapi.Customer
	Products       []funnelapi.Product
	CouponCode     string
}

func (e PaymentSucceeded) GetEventTypeName() string {
	return paymentSucceededName
}

func (e PaymentSucceeded) GetAggregateName() string {
	return e.SessionUID
}

type PaymentFailed struct {
	SessionUID    string
	Error         string
	ErrorCode     string
	AmountInCents int64
	Attempt       int
}

func (e PaymentFailed) GetEventTypeName() string {
	return paymentFailedName
}

func (e PaymentFailed) GetAggregateName() string {
	return e.SessionUID
}

// UpsellAccepted records that the shopper clicked a one-click upsell offer.
type UpsellAccepted struct {
	SessionUID    string
	VaultUID      string
	ProductUID    string
	AmountInCents int64
	UpsellStep    int
}

func (e UpsellAccepted) GetEventTypeName() string {
	return upsellAcceptedName
}

func (e UpsellAccepted) GetAggregateName() string {
	return e.SessionUID
}

// UpsellCompleted triggers its own CRM order sync for the upsell order.
type UpsellCompleted struct {
	SessionUID     string
	TransactionUID string
	ProductUID     string
	ProductName    string
	AmountInCents  int64
	Currency       string
	UpsellStep     int
	OrderReference string
	Customer       funnelapi.Customer
}

func (e UpsellCompleted) GetEventTypeName() string {
	return upsellCompletedName
}

func (e UpsellCompleted) GetAggregateName() string {
	return e.SessionUID
}

type UpsellPaymentFailed struct {
	SessionUID    string
	ProductUID    string
	AmountInCents int64
	UpsellStep    int
	Error         string
}

func (e UpsellPaymentFailed) GetEventTypeName() string {
	return upsellPaymentFailedName
}

func (e UpsellPaymentFailed) GetAggregateName() string {
	return e.SessionUID
}

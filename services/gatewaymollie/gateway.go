package gatewaymollie

import (
	"context"
	"fmt"

	"github.com/VictorAvelar/mollie-api-go/v3/mollie"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/services/gatewayapi"
)

// gateway maps the vault concept onto a Mollie customer with a card mandate:
// the one-time card token is consumed by a "first" payment that establishes
// the mandate, follow-up charges are "recurring" payments on the customer.
type gateway struct {
	client *mollie.Client
	logger mylog.Logger
}

func New(apiKey string) (gatewayapi.Gateway, error) {
	config := mollie.NewAPITestingConfig(true)

	client, err := mollie.NewClient(nil, config)
	if err != nil {
		return nil, myerrors.NewInternalError(fmt.Errorf("error creating mollie client: %s", err))
	}
	client.WithAuthenticationValue(apiKey)

	return &gateway{
		client: client,
		logger: mylog.New("gatewaymollie"),
	}, nil
}

func (g *gateway) CreateVault(c context.Context, req gatewayapi.VaultRequest) (gatewayapi.VaultResult, error) {
	_, cust, err := g.client.Customers.Create(c, mollie.Customer{
		Name:  req.FullName,
		Email: req.Email,
	})
	if err != nil {
		return gatewayapi.VaultResult{}, myerrors.NewUnavailableError(fmt.Errorf("error creating mollie customer: %s", err))
	}

	payment, err := g.establishMandate(c, cust.ID, req)
	if err != nil {
		return gatewayapi.VaultResult{}, err
	}
	if isFailedStatus(payment.Status) {
		g.logger.Log(c, req.SessionUID, mylog.SeverityInfo, "Mollie refused card for session %s: status %s", req.SessionUID, payment.Status)
		return gatewayapi.VaultResult{
			Success:   false,
			Error:     fmt.Sprintf("mandate payment ended in status %s", payment.Status),
			ErrorCode: gatewayapi.ErrorCodeInvalidToken,
		}, nil
	}

	return gatewayapi.VaultResult{
		Success:  true,
		VaultUID: cust.ID,
	}, nil
}

func (g *gateway) UpdateVault(c context.Context, vaultUID string, req gatewayapi.VaultRequest) (gatewayapi.VaultResult, error) {
	// A fresh mandate on the same customer supersedes the old card. The
	// customer id, and so the vault uid, stays the same.
	payment, err := g.establishMandate(c, vaultUID, req)
	if err != nil {
		return gatewayapi.VaultResult{}, err
	}
	if isFailedStatus(payment.Status) {
		return gatewayapi.VaultResult{
			Success:   false,
			Error:     fmt.Sprintf("mandate payment ended in status %s", payment.Status),
			ErrorCode: gatewayapi.ErrorCodeInvalidToken,
		}, nil
	}

	return gatewayapi.VaultResult{
		Success:  true,
		VaultUID: vaultUID,
	}, nil
}

func (g *gateway) Charge(c context.Context, req gatewayapi.ChargeRequest) (gatewayapi.ChargeResult, error) {
	_, payment, err := g.client.Payments.Create(c, mollie.Payment{
		CustomerID:   req.VaultUID,
		SequenceType: mollie.RecurringSequence,
		Description:  req.Description,
		BillingEmail: req.Email,
		Amount: &mollie.Amount{
			Currency: req.Currency,
			Value:    centsToDecimal(req.AmountInCents),
		},
		Metadata: map[string]string{
			"orderReference": req.OrderReference,
		},
	}, nil)
	if err != nil {
		return gatewayapi.ChargeResult{}, myerrors.NewUnavailableError(fmt.Errorf("error creating mollie payment: %s", err))
	}

	if isFailedStatus(payment.Status) {
		g.logger.Log(c, req.OrderReference, mylog.SeverityInfo, "Mollie refused charge %s: status %s", req.OrderReference, payment.Status)
		return gatewayapi.ChargeResult{
			Success:   false,
			Error:     fmt.Sprintf("payment ended in status %s", payment.Status),
			ErrorCode: payment.Status,
		}, nil
	}

	return gatewayapi.ChargeResult{
		Success:        true,
		TransactionUID: payment.ID,
	}, nil
}

func (g *gateway) establishMandate(c context.Context, customerID string, req gatewayapi.VaultRequest) (mollie.Payment, error) {
	_, payment, err := g.client.Payments.Create(c, mollie.Payment{
		CustomerID:   customerID,
		CardToken:    req.OneTimeToken,
		SequenceType: mollie.FirstSequence,
		Description:  fmt.Sprintf("Card verification for session %s", req.SessionUID),
		BillingEmail: req.Email,
		Amount: &mollie.Amount{
			Currency: req.Currency,
			Value:    "0.00",
		},
	}, nil)
	if err != nil {
		return mollie.Payment{}, myerrors.NewUnavailableError(fmt.Errorf("error creating mollie mandate payment: %s", err))
	}

	return *payment, nil
}

func isFailedStatus(status string) bool {
	switch status {
	case "failed", "canceled", "expired":
		return true
	}
	return false
}

func centsToDecimal(amountInCents int64) string {
	return fmt.Sprintf("%.2f", float64(amountInCents)/100.0)
}

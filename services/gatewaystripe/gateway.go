package gatewaystripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/charge"
	"github.com/stripe/stripe-go/v74/customer"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/services/gatewayapi"
)

// gateway maps the vault concept onto a Stripe customer: the one-time token
// becomes the customer's stored card, charges reference the customer.
type gateway struct {
	logger mylog.Logger
}

func New(apiKey string) gatewayapi.Gateway {
	stripe.Key = apiKey
	return &gateway{
		logger: mylog.New("gatewaystripe"),
	}
}

func (g *gateway) CreateVault(c context.Context, req gatewayapi.VaultRequest) (gatewayapi.VaultResult, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{
			Context: c,
		},
		Email:       stripe.String(req.Email),
		Name:        stripe.String(req.FullName),
		Description: stripe.String(fmt.Sprintf("funnel session %s", req.SessionUID)),
		Source:      stripe.String(req.OneTimeToken),
	}

	cust, err := customer.New(params)
	if err != nil {
		return classifyVaultError(err)
	}

	g.logger.Log(c, req.SessionUID, mylog.SeverityInfo, "Created stripe customer %s for session %s", cust.ID, req.SessionUID)

	return gatewayapi.VaultResult{
		Success:  true,
		VaultUID: cust.ID,
	}, nil
}

func (g *gateway) UpdateVault(c context.Context, vaultUID string, req gatewayapi.VaultRequest) (gatewayapi.VaultResult, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{
			Context: c,
		},
		Source: stripe.String(req.OneTimeToken),
	}

	cust, err := customer.Update(vaultUID, params)
	if err != nil {
		return classifyVaultError(err)
	}

	g.logger.Log(c, vaultUID, mylog.SeverityInfo, "Updated card behind stripe customer %s", cust.ID)

	return gatewayapi.VaultResult{
		Success:  true,
		VaultUID: cust.ID,
	}, nil
}

func (g *gateway) Charge(c context.Context, req gatewayapi.ChargeRequest) (gatewayapi.ChargeResult, error) {
	params := &stripe.ChargeParams{
		Params: stripe.Params{
			Context:        c,
			IdempotencyKey: stripe.String(req.OrderReference),
		},
		Amount:      stripe.Int64(req.AmountInCents),
		Currency:    stripe.String(req.Currency),
		Customer:    stripe.String(req.VaultUID),
		Description: stripe.String(req.Description),
	}
	params.AddMetadata("order_reference", req.OrderReference)

	ch, err := charge.New(params)
	if err != nil {
		return classifyChargeError(err)
	}

	g.logger.Log(c, req.OrderReference, mylog.SeverityInfo, "Charged %d %s on stripe customer %s -> %s",
		req.AmountInCents, req.Currency, req.VaultUID, ch.ID)

	return gatewayapi.ChargeResult{
		Success:        true,
		TransactionUID: ch.ID,
	}, nil
}

// classifyChargeError keeps declines as values: only infrastructure trouble
// becomes a Go error.
func classifyChargeError(err error) (gatewayapi.ChargeResult, error) {
	stripeErr, ok := err.(*stripe.Error)
	if !ok {
		return gatewayapi.ChargeResult{}, myerrors.NewUnavailableError(fmt.Errorf("error reaching stripe: %s", err))
	}

	if stripeErr.Type == stripe.ErrorTypeCard || stripeErr.Type == stripe.ErrorTypeInvalidRequest {
		return gatewayapi.ChargeResult{
			Success:   false,
			Error:     stripeErr.Msg,
			ErrorCode: declineCode(stripeErr),
		}, nil
	}

	return gatewayapi.ChargeResult{}, myerrors.NewUnavailableError(fmt.Errorf("stripe error: %s", stripeErr.Msg))
}

func classifyVaultError(err error) (gatewayapi.VaultResult, error) {
	stripeErr, ok := err.(*stripe.Error)
	if !ok {
		return gatewayapi.VaultResult{}, myerrors.NewUnavailableError(fmt.Errorf("error reaching stripe: %s", err))
	}

	if stripeErr.Type == stripe.ErrorTypeCard || stripeErr.Type == stripe.ErrorTypeInvalidRequest {
		return gatewayapi.VaultResult{
			Success:   false,
			Error:     stripeErr.Msg,
			ErrorCode: declineCode(stripeErr),
		}, nil
	}

	return gatewayapi.VaultResult{}, myerrors.NewUnavailableError(fmt.Errorf("stripe error: %s", stripeErr.Msg))
}

func declineCode(stripeErr *stripe.Error) string {
	if stripeErr.DeclineCode != "" {
		return string(stripeErr.DeclineCode)
	}
	return string(stripeErr.Code)
}

package gatewayadyen

import (
	"context"
	"fmt"
	"strings"

	"github.com/adyen/adyen-go-api-library/v6/src/adyen"
	"github.com/adyen/adyen-go-api-library/v6/src/checkout"
	"github.com/adyen/adyen-go-api-library/v6/src/common"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/services/gatewayapi"
)

const (
	resultCodeAuthorised = "Authorised"
)

type gateway struct {
	client          *adyen.APIClient
	merchantAccount string
	logger          mylog.Logger
}

// New returns a gateway that stores cards under an Adyen shopper-reference and
// charges them as unscheduled card-on-file payments.
func New(apiKey string, merchantAccount string, environment string) (gatewayapi.Gateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing ADYEN_API_KEY")
	}
	if merchantAccount == "" {
		return nil, fmt.Errorf("missing ADYEN_MERCHANT_ACCOUNT")
	}
	return &gateway{
		client: adyen.NewClient(&common.Config{
			ApiKey:      apiKey,
			Environment: common.Environment(strings.ToUpper(environment)),
			Debug:       false,
		}),
		merchantAccount: merchantAccount,
		logger:          mylog.New("gatewayadyen"),
	}, nil
}

func (g *gateway) CreateVault(c context.Context, req gatewayapi.VaultRequest) (gatewayapi.VaultResult, error) {
	shopperReference := shopperReferenceForSession(req.SessionUID)

	resp, _, err := g.client.Checkout.Payments(&checkout.PaymentRequest{
		Amount: checkout.Amount{
			Currency: req.Currency,
			Value:    0,
		},
		MerchantAccount: g.merchantAccount,
		Reference:       fmt.Sprintf("vault-%s", req.SessionUID),
		ShopperEmail:    req.Email,
		PaymentMethod: map[string]interface{}{
			"type":         "scheme",
			"paymentToken": req.OneTimeToken,
		},
		ShopperReference:         shopperReference,
		ShopperInteraction:       "Ecommerce",
		RecurringProcessingModel: "UnscheduledCardOnFile",
		StorePaymentMethod:       true,
	}, c)
	if err != nil {
		return gatewayapi.VaultResult{}, myerrors.NewUnavailableError(fmt.Errorf("error storing card with adyen: %s", err))
	}

	if resp.ResultCode == nil || resp.ResultCode.String() != resultCodeAuthorised {
		g.logger.Log(c, req.SessionUID, mylog.SeverityInfo, "Adyen refused to store card for session %s: %s", req.SessionUID, resp.RefusalReason)
		return gatewayapi.VaultResult{
			Success:   false,
			Error:     resp.RefusalReason,
			ErrorCode: classifyRefusal(resp.RefusalReason),
		}, nil
	}

	return gatewayapi.VaultResult{
		Success:  true,
		VaultUID: shopperReference,
	}, nil
}

func (g *gateway) UpdateVault(c context.Context, vaultUID string, req gatewayapi.VaultRequest) (gatewayapi.VaultResult, error) {
	// Storing a new card under the same shopper-reference replaces the one used
	// for subsequent card-on-file charges. The vault uid does not change.
	resp, _, err := g.client.Checkout.Payments(&checkout.PaymentRequest{
		Amount: checkout.Amount{
			Currency: req.Currency,
			Value:    0,
		},
		MerchantAccount: g.merchantAccount,
		Reference:       fmt.Sprintf("vault-update-%s", req.SessionUID),
		ShopperEmail:    req.Email,
		PaymentMethod: map[string]interface{}{
			"type":         "scheme",
			"paymentToken": req.OneTimeToken,
		},
		ShopperReference:         vaultUID,
		ShopperInteraction:       "Ecommerce",
		RecurringProcessingModel: "UnscheduledCardOnFile",
		StorePaymentMethod:       true,
	}, c)
	if err != nil {
		return gatewayapi.VaultResult{}, myerrors.NewUnavailableError(fmt.Errorf("error replacing card with adyen: %s", err))
	}

	if resp.ResultCode == nil || resp.ResultCode.String() != resultCodeAuthorised {
		return gatewayapi.VaultResult{
			Success:   false,
			Error:     resp.RefusalReason,
			ErrorCode: classifyRefusal(resp.RefusalReason),
		}, nil
	}

	return gatewayapi.VaultResult{
		Success:  true,
		VaultUID: vaultUID,
	}, nil
}

func (g *gateway) Charge(c context.Context, req gatewayapi.ChargeRequest) (gatewayapi.ChargeResult, error) {
	resp, _, err := g.client.Checkout.Payments(&checkout.PaymentRequest{
		Amount: checkout.Amount{
			Currency: req.Currency,
			Value:    req.AmountInCents,
		},
		MerchantAccount: g.merchantAccount,
		Reference:       req.OrderReference,
		PaymentMethod: map[string]interface{}{
			"type":                  "scheme",
			"storedPaymentMethodId": "LATEST",
		},
		ShopperReference:         req.VaultUID,
		ShopperInteraction:       "ContAuth",
		RecurringProcessingModel: "UnscheduledCardOnFile",
	}, c)
	if err != nil {
		return gatewayapi.ChargeResult{}, myerrors.NewUnavailableError(fmt.Errorf("error charging stored card with adyen: %s", err))
	}

	if resp.ResultCode == nil || resp.ResultCode.String() != resultCodeAuthorised {
		g.logger.Log(c, req.OrderReference, mylog.SeverityInfo, "Adyen refused charge %s: %s", req.OrderReference, resp.RefusalReason)
		return gatewayapi.ChargeResult{
			Success:   false,
			Error:     resp.RefusalReason,
			ErrorCode: classifyRefusal(resp.RefusalReason),
		}, nil
	}

	return gatewayapi.ChargeResult{
		Success:        true,
		TransactionUID: resp.PspReference,
	}, nil
}

func classifyRefusal(refusalReason string) string {
	reason := strings.ToLower(refusalReason)
	switch {
	case strings.Contains(reason, "duplicate"):
		return gatewayapi.ErrorCodeDuplicate
	case strings.Contains(reason, "not enough balance"), strings.Contains(reason, "insufficient"):
		return gatewayapi.ErrorCodeInsufficientFunds
	case strings.Contains(reason, "expired"):
		return gatewayapi.ErrorCodeExpiredCard
	case strings.Contains(reason, "invalid"):
		return gatewayapi.ErrorCodeInvalidToken
	default:
		return strings.ReplaceAll(reason, " ", "_")
	}
}

func shopperReferenceForSession(sessionUID string) string {
	return fmt.Sprintf("shopper-%s", sessionUID)
}

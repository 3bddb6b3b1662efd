package funnelapi

import (
	"fmt"
	"net/http"
	"net/url"

	formcodec "github.com/go-playground/form/v4"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
)

// CheckoutSubmission is what the checkout UI posts when the shopper submits
// the initial order: customer and product data plus the one-time token that
// the tokenization widget produced. Raw card data never reaches this backend.
type CheckoutSubmission struct {
	PaymentToken string    `form:"paymentToken"`
	CouponCode   string    `form:"couponCode"`
	Customer     Customer  `form:"customer"`
	Products     []Product `form:"products"`
}

// UpsellSubmission is the one-click post-purchase offer acceptance: no card
// data, just a reference to the vault that the initial payment created.
type UpsellSubmission struct {
	VaultUID      string `form:"vaultUid"`
	ProductUID    string `form:"productUid"`
	ProductName   string `form:"productName"`
	AmountInCents int64  `form:"amountInCents"`
	Currency      string `form:"currency"`
	UpsellStep    int    `form:"upsellStep"`
}

// CardUpdateSubmission carries a fresh one-time token after a genuine decline.
type CardUpdateSubmission struct {
	PaymentToken string `form:"paymentToken"`
}

func NewCheckoutFromRequest(r *http.Request) (CheckoutSubmission, error) {
	err := r.ParseForm()
	if err != nil {
		return CheckoutSubmission{}, myerrors.NewInvalidInputError(err)
	}
	return NewCheckoutFromValues(r.Form)
}

func NewCheckoutFromValues(values url.Values) (CheckoutSubmission, error) {
	submission := CheckoutSubmission{}
	err := formcodec.NewDecoder().Decode(&submission, values)
	if err != nil {
		return submission, fmt.Errorf("error decoding form: %s", err)
	}

	return submission, nil
}

func NewUpsellFromRequest(r *http.Request) (UpsellSubmission, error) {
	err := r.ParseForm()
	if err != nil {
		return UpsellSubmission{}, myerrors.NewInvalidInputError(err)
	}

	submission := UpsellSubmission{}
	err = formcodec.NewDecoder().Decode(&submission, r.Form)
	if err != nil {
		return submission, myerrors.NewInvalidInputError(fmt.Errorf("error decoding form: %s", err))
	}

	return submission, nil
}

func NewCardUpdateFromRequest(r *http.Request) (CardUpdateSubmission, error) {
	err := r.ParseForm()
	if err != nil {
		return CardUpdateSubmission{}, myerrors.NewInvalidInputError(err)
	}

	submission := CardUpdateSubmission{}
	err = formcodec.NewDecoder().Decode(&submission, r.Form)
	if err != nil {
		return submission, myerrors.NewInvalidInputError(fmt.Errorf("error decoding form: %s", err))
	}

	return submission, nil
}

package crmsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/myhttpclient"
)

const (
	crmResultSuccess = "SUCCESS"
)

// CRMCustomer is the customer shape the CRM expects on its upsert endpoint.
type CRMCustomer struct {
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
	Street      string
	City        string
	PostalCode  string
	State       string
	Country     string
}

// CRMOrder is the order shape the CRM expects on its create endpoint.
type CRMOrder struct {
	CustomerUID    string // empty means guest order
	Email          string
	OrderReference string
	ProductUID     string
	ProductName    string
	AmountInCents  int64
	Currency       string
	CouponCode     string
	TransactionUID string
}

type CustomerResult struct {
	Success     bool
	CustomerUID string
	Error       string
}

type OrderResult struct {
	Success     bool
	OrderUID    string
	OrderNumber string
	Error       string
}

//go:generate mockgen -source=client.go -package crmsync -destination client_mock.go CRMClient
type CRMClient interface {
	UpsertCustomer(c context.Context, customer CRMCustomer) (CustomerResult, error)
	CreateOrder(c context.Context, order CRMOrder) (OrderResult, error)
}

// crmClient talks to the CRM's form-encoded endpoints. A transport failure is
// a Go error; a rejected request is a Success=false result.
type crmClient struct {
	sender  myhttpclient.HTTPSender
	baseURL string
	apiKey  string
}

func NewCRMClient(sender myhttpclient.HTTPSender, baseURL string, apiKey string) CRMClient {
	return &crmClient{
		sender:  sender,
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// crmResponse is what the CRM returns on both endpoints.
type crmResponse struct {
	Result      string `json:"result"`
	Message     string `json:"message"`
	CustomerID  string `json:"customer_id"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

func (cc *crmClient) UpsertCustomer(c context.Context, customer CRMCustomer) (CustomerResult, error) {
	values := url.Values{}
	values.Set("api_key", cc.apiKey)
	values.Set("email", customer.Email)
	values.Set("first_name", customer.FirstName)
	values.Set("last_name", customer.LastName)
	values.Set("phone", customer.PhoneNumber)
	values.Set("street", customer.Street)
	values.Set("city", customer.City)
	values.Set("postal_code", customer.PostalCode)
	values.Set("state", customer.State)
	values.Set("country", customer.Country)

	resp, err := cc.call(c, "/api/customer/upsert", values)
	if err != nil {
		return CustomerResult{}, err
	}
	if resp.Result != crmResultSuccess {
		return CustomerResult{
			Success: false,
			Error:   resp.Message,
		}, nil
	}

	return CustomerResult{
		Success:     true,
		CustomerUID: resp.CustomerID,
	}, nil
}

func (cc *crmClient) CreateOrder(c context.Context, order CRMOrder) (OrderResult, error) {
	values := url.Values{}
	values.Set("api_key", cc.apiKey)
	values.Set("customer_id", order.CustomerUID)
	values.Set("email", order.Email)
	values.Set("order_reference", order.OrderReference)
	values.Set("product_id", order.ProductUID)
	values.Set("product_name", order.ProductName)
	values.Set("amount_in_cents", strconv.FormatInt(order.AmountInCents, 10))
	values.Set("currency", order.Currency)
	values.Set("coupon_code", order.CouponCode)
	values.Set("transaction_id", order.TransactionUID)

	resp, err := cc.call(c, "/api/order/create", values)
	if err != nil {
		return OrderResult{}, err
	}
	if resp.Result != crmResultSuccess {
		return OrderResult{
			Success: false,
			Error:   resp.Message,
		}, nil
	}

	return OrderResult{
		Success:     true,
		OrderUID:    resp.OrderID,
		OrderNumber: resp.OrderNumber,
	}, nil
}

func (cc *crmClient) call(c context.Context, path string, values url.Values) (crmResponse, error) {
	httpStatus, body, err := cc.sender.SendForm(c, http.MethodPost, cc.baseURL+path, values)
	if err != nil {
		return crmResponse{}, myerrors.NewUnavailableError(fmt.Errorf("error calling crm %s: %s", path, err))
	}
	if httpStatus != http.StatusOK {
		return crmResponse{}, myerrors.NewUnavailableError(fmt.Errorf("crm %s returned http status %d", path, httpStatus))
	}

	resp := crmResponse{}
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return crmResponse{}, myerrors.NewInternalError(fmt.Errorf("error parsing crm response of %s: %s", path, err))
	}

	return resp, nil
}

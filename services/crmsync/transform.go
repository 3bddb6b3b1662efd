package crmsync

import (
	"strings"

	"github.com/MarcGrol/funnelbackend/services/paymentevents"
)

// TransformCheckoutData maps a completed initial payment onto the CRM's
// customer + order shapes. Pure mapping, no side effects.
func TransformCheckoutData(event paymentevents.PaymentSucceeded) (CRMCustomer, CRMOrder) {
	productUIDs := []string{}
	productNames := []string{}
	for _, p := range event.Products {
		productUIDs = append(productUIDs, p.UID)
		productNames = append(productNames, p.Name)
	}

	return toCRMCustomer(event), CRMOrder{
		Email:          event.Customer.Email,
		OrderReference: event.OrderReference,
		ProductUID:     strings.Join(productUIDs, ","),
		ProductName:    strings.Join(productNames, ","),
		AmountInCents:  event.AmountInCents,
		Currency:       event.Currency,
		CouponCode:     event.CouponCode,
		TransactionUID: event.TransactionUID,
	}
}

// TransformUpsellData maps a completed upsell charge onto its own CRM order.
func TransformUpsellData(event paymentevents.UpsellCompleted) (CRMCustomer, CRMOrder) {
	return CRMCustomer{
			Email:       event.Customer.Email,
			FirstName:   event.Customer.FirstName,
			LastName:    event.Customer.LastName,
			PhoneNumber: event.Customer.PhoneNumber,
			Street:      joinAddress(event.Customer.Address.Street, event.Customer.Address.HouseNumber),
			City:        event.Customer.Address.City,
			PostalCode:  event.Customer.Address.PostalCode,
			State:       event.Customer.Address.State,
			Country:     event.Customer.Address.Country,
		}, CRMOrder{
			Email:          event.Customer.Email,
			OrderReference: event.OrderReference,
			ProductUID:     event.ProductUID,
			ProductName:    event.ProductName,
			AmountInCents:  event.AmountInCents,
			Currency:       event.Currency,
			TransactionUID: event.TransactionUID,
		}
}

func toCRMCustomer(event paymentevents.PaymentSucceeded) CRMCustomer {
	return CRMCustomer{
		Email:       event.Customer.Email,
		FirstName:   event.Customer.FirstName,
		LastName:    event.Customer.LastName,
		PhoneNumber: event.Customer.PhoneNumber,
		Street:      joinAddress(event.Customer.Address.Street, event.Customer.Address.HouseNumber),
		City:        event.Customer.Address.City,
		PostalCode:  event.Customer.Address.PostalCode,
		State:       event.Customer.Address.State,
		Country:     event.Customer.Address.Country,
	}
}

func joinAddress(street string, houseNumber string) string {
	return strings.TrimSpace(street + " " + houseNumber)
}

package provider

import (
	"context"
	"net/http"
	"net/url"
)

// Customer is the provider's customer record.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	TaxID   string `json:"cpfCnpj"`
	Email   string `json:"email"`
	Deleted bool   `json:"deleted"`
}

// CustomerInput creates a provider customer.
type CustomerInput struct {
	Name  string `json:"name"`
	TaxID string `json:"cpfCnpj"`
	Email string `json:"email,omitempty"`
}

type customerList struct {
	Data []Customer `json:"data"`
}

// FindCustomerByTaxID searches customers by tax id and returns the first
// match, or nil when none exists.
func (c *Client) FindCustomerByTaxID(ctx context.Context, taxID string) (*Customer, error) {
	query := url.Values{"cpfCnpj": {taxID}}
	var list customerList
	if err := c.do(ctx, http.MethodGet, "/customers", query, nil, &list); err != nil {
		return nil, err
	}
	for i := range list.Data {
		if !list.Data[i].Deleted {
			return &list.Data[i], nil
		}
	}
	return nil, nil
}

// CreateCustomer registers a new customer with the provider.
func (c *Client) CreateCustomer(ctx context.Context, in CustomerInput) (*Customer, error) {
	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/customers", nil, in, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

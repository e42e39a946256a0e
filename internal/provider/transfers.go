package provider

import (
	"context"
	"net/http"

	"github.com/solara-erp/solara-erp/internal/shared"
)

// Pix key types accepted by the transfer endpoint.
const (
	PixKeyCPF   = "CPF"
	PixKeyCNPJ  = "CNPJ"
	PixKeyEmail = "EMAIL"
	PixKeyPhone = "PHONE"
	PixKeyEVP   = "EVP"
)

// TransferInput requests a payout to a pix key.
type TransferInput struct {
	Value       float64 `json:"value"`
	PixKey      string  `json:"pixAddressKey"`
	PixKeyType  string  `json:"pixAddressKeyType"`
	Description string  `json:"description,omitempty"`
}

// Transfer is the provider's payout record.
type Transfer struct {
	ID         string  `json:"id"`
	Authorized bool    `json:"authorized"`
	Value      float64 `json:"value"`
	Status     string  `json:"status"`
}

// CreateTransfer executes a payout. An unauthorized transfer is surfaced as a
// provider error so callers never record a transfer id that will not clear.
func (c *Client) CreateTransfer(ctx context.Context, in TransferInput) (*Transfer, error) {
	var transfer Transfer
	if err := c.do(ctx, http.MethodPost, "/transfers", nil, in, &transfer); err != nil {
		return nil, err
	}
	if !transfer.Authorized {
		return nil, shared.Providerf("transfer was not authorized by the billing provider")
	}
	return &transfer, nil
}

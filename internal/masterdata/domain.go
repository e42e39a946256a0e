package masterdata

import (
	"time"

	"github.com/solara-erp/solara-erp/internal/shared"
)

// Subscriber is the end customer who pays energy invoices. The provider
// customer id is cached after the first charge so repeated charge attempts
// never create duplicate customers.
type Subscriber struct {
	ID                 int64
	Name               string
	TaxID              string
	Email              string
	ProviderCustomerID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ConsumerUnit is a billed utility connection point owned by a subscriber,
// optionally allocated to a plant.
type ConsumerUnit struct {
	ID           int64
	SubscriberID int64
	PlantID      int64
	UtilityCode  string
	CreatedAt    time.Time
}

// Plant is a power-generation asset. Its cost fields and fee percent are
// defaults copied into a new closing for the period; edits to the plant never
// touch existing closings.
type Plant struct {
	ID                   int64
	Name                 string
	AvailabilityCost     float64
	MaintenanceCost      float64
	LeaseCost            float64
	ManagementFeePercent float64
	PixKey               string
	PixKeyType           string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PlantService is a recurring bundled service contracted for a plant.
type PlantService struct {
	ID          int64
	PlantID     int64
	Name        string
	MonthlyCost float64
}

// ServiceCostTotal sums the monthly cost of bundled services.
func ServiceCostTotal(services []PlantService) float64 {
	var total float64
	for _, s := range services {
		total += s.MonthlyCost
	}
	return shared.Round2(total)
}

// HasPayoutKey reports whether the plant can receive transfers.
func (p *Plant) HasPayoutKey() bool {
	return p != nil && p.PixKey != ""
}

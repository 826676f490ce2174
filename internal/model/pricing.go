package model

import "fmt"

// PriceEntry is one row of the price table.
type PriceEntry struct {
	ServiceType ServiceType `db:"service_type" json:"serviceType" binding:"required,servicetype"`
	PetSize     PetSize     `db:"pet_size" json:"petSize" binding:"required,petsize"`
	Amount      float64     `db:"amount" json:"amount" binding:"gt=0"`
}

type PriceKey struct {
	ServiceType ServiceType
	PetSize     PetSize
}

// PriceTable maps (service, size) to a price. Treat values as immutable once
// published; replace the whole table instead of mutating it.
type PriceTable map[PriceKey]float64

func NewPriceTable(entries []PriceEntry) PriceTable {
	t := make(PriceTable, len(entries))
	for _, e := range entries {
		t[PriceKey{ServiceType: e.ServiceType, PetSize: e.PetSize}] = e.Amount
	}
	return t
}

func (t PriceTable) Entries() []PriceEntry {
	entries := make([]PriceEntry, 0, len(t))
	for _, st := range []ServiceType{ServiceBath, ServiceBathAndCut} {
		for _, size := range []PetSize{PetSizeSmall, PetSizeMedium, PetSizeLarge} {
			if amount, ok := t[PriceKey{ServiceType: st, PetSize: size}]; ok {
				entries = append(entries, PriceEntry{ServiceType: st, PetSize: size, Amount: amount})
			}
		}
	}
	return entries
}

// NormalizePriceEntries canonicalizes the aliases in entries and rejects duplicates.
func NormalizePriceEntries(entries []PriceEntry) ([]PriceEntry, error) {
	seen := make(map[PriceKey]bool, len(entries))
	out := make([]PriceEntry, 0, len(entries))
	for _, e := range entries {
		st, err := ParseServiceType(string(e.ServiceType))
		if err != nil {
			return nil, err
		}
		size, err := ParsePetSize(string(e.PetSize))
		if err != nil {
			return nil, err
		}
		if e.Amount <= 0 {
			return nil, fmt.Errorf("price for %s/%s must be positive", st, size)
		}
		key := PriceKey{ServiceType: st, PetSize: size}
		if seen[key] {
			return nil, fmt.Errorf("duplicate price for %s/%s", st, size)
		}
		seen[key] = true
		out = append(out, PriceEntry{ServiceType: st, PetSize: size, Amount: e.Amount})
	}
	return out, nil
}

// DefaultPrices is the table seeded by the initial migration, in ARS.
func DefaultPrices() PriceTable {
	return PriceTable{
		{ServiceBath, PetSizeSmall}:        2500,
		{ServiceBath, PetSizeMedium}:       3000,
		{ServiceBath, PetSizeLarge}:        3500,
		{ServiceBathAndCut, PetSizeSmall}:  3500,
		{ServiceBathAndCut, PetSizeMedium}: 4000,
		{ServiceBathAndCut, PetSizeLarge}:  4500,
	}
}

const Currency = "ARS"

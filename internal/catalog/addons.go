package catalog

import (
	"sort"
	"strings"

	"chefbook/internal/domain"
	"chefbook/internal/models"
)

// DefaultAddOns is the add-on price list used when configuration provides none.
var DefaultAddOns = map[models.ServiceType]map[string]int64{
	models.ServiceBirthday: {
		"cake":       800,
		"decoration": 1500,
		"dessert":    600,
	},
	models.ServiceMarriage: {
		"decoration":   5000,
		"live_counter": 3000,
		"dessert":      1200,
	},
	models.ServiceDaily: {
		"groceries": 500,
		"cleanup":   300,
	},
}

// AddOns resolves add-on names to priced add-ons per service type.
type AddOns struct {
	prices map[models.ServiceType]map[string]int64
}

// NewAddOns builds a catalog from prices. Nil prices use DefaultAddOns.
func NewAddOns(prices map[models.ServiceType]map[string]int64) *AddOns {
	if len(prices) == 0 {
		prices = DefaultAddOns
	}
	normalized := make(map[models.ServiceType]map[string]int64, len(prices))
	for st, items := range prices {
		m := make(map[string]int64, len(items))
		for name, price := range items {
			m[strings.ToLower(strings.TrimSpace(name))] = price
		}
		normalized[st] = m
	}
	return &AddOns{prices: normalized}
}

// Resolve returns the priced add-ons in request order. Unknown or duplicate
// names are rejected.
func (a *AddOns) Resolve(serviceType models.ServiceType, names []string) ([]models.AddOn, error) {
	offered := a.prices[serviceType]
	seen := make(map[string]bool, len(names))
	out := make([]models.AddOn, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		price, ok := offered[name]
		if !ok {
			return nil, domain.NewValidationError("add_ons", "unknown add-on %q for %s", raw, serviceType)
		}
		if seen[name] {
			return nil, domain.NewValidationError("add_ons", "add-on %q requested twice", raw)
		}
		seen[name] = true
		out = append(out, models.AddOn{Name: name, Price: price})
	}
	return out, nil
}

// List returns the add-ons offered for serviceType sorted by name.
func (a *AddOns) List(serviceType models.ServiceType) []models.AddOn {
	items := a.prices[serviceType]
	out := make([]models.AddOn, 0, len(items))
	for name, price := range items {
		out = append(out, models.AddOn{Name: name, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

package domain

// Product is a catalog entry returned by product search.
type Product struct {
	ID        string  `json:"id" mapstructure:"id"`
	Name      string  `json:"name" mapstructure:"name"`
	UnitPrice float64 `json:"unit_price" mapstructure:"unit_price"`
	Unit      string  `json:"unit,omitempty" mapstructure:"unit"`
	Category  string  `json:"category,omitempty" mapstructure:"category"`
}

// ProductMatch is a product offered for selection, tied to the checklist
// category that produced it and that category's default quantity.
type ProductMatch struct {
	Product  Product `json:"product" mapstructure:"product"`
	Category string  `json:"category" mapstructure:"category"`
	Quantity float64 `json:"quantity" mapstructure:"quantity"`
}

// ProductSelection picks one pending product, optionally overriding its quantity.
type ProductSelection struct {
	ProductID string  `json:"product_id" mapstructure:"product_id"`
	Quantity  float64 `json:"quantity,omitempty" mapstructure:"quantity"`
}

// LineItem is a priced row of the quote.
type LineItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  float64 `json:"quantity"`
	Unit      string  `json:"unit,omitempty"`
}

// LineItemFromMatch converts an offered product into a quote row.
func LineItemFromMatch(m ProductMatch, quantity float64) LineItem {
	if quantity <= 0 {
		quantity = m.Quantity
	}
	if quantity <= 0 {
		quantity = 1
	}
	return LineItem{
		ProductID: m.Product.ID,
		Name:      m.Product.Name,
		UnitPrice: m.Product.UnitPrice,
		Quantity:  quantity,
		Unit:      m.Product.Unit,
	}
}

// MergeReplace merges additions into items by product id. On conflict the
// addition's quantity replaces the existing one. Used when confirming a
// product selection, where the user states the final quantity.
func MergeReplace(items, additions []LineItem) []LineItem {
	return merge(items, additions, func(_, added float64) float64 { return added })
}

// MergeSum merges additions into items by product id. On conflict the
// quantities are summed. Used by "add more" from the review step.
func MergeSum(items, additions []LineItem) []LineItem {
	return merge(items, additions, func(existing, added float64) float64 { return existing + added })
}

func merge(items, additions []LineItem, combine func(existing, added float64) float64) []LineItem {
	out := append([]LineItem(nil), items...)
	for _, add := range additions {
		found := false
		for i := range out {
			if out[i].ProductID == add.ProductID {
				out[i].Quantity = combine(out[i].Quantity, add.Quantity)
				out[i].UnitPrice = add.UnitPrice
				found = true
				break
			}
		}
		if !found {
			out = append(out, add)
		}
	}
	return out
}

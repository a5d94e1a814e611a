package domain

// QuoteSummary is the priced view of a context. It is always derived, never stored.
type QuoteSummary struct {
	Items             []LineItem `json:"items"`
	MaterialsSubtotal float64    `json:"materials_subtotal"`
	MarkupPercent     float64    `json:"markup_percent"`
	MarkupAmount      float64    `json:"markup_amount"`
	LaborHours        float64    `json:"labor_hours"`
	LaborRate         float64    `json:"labor_rate"`
	LaborTotal        float64    `json:"labor_total"`
	Total             float64    `json:"total"`
}

// Summarize prices the context. Markup applies to materials only:
//
//	total = materials*(1+markup/100) + hours*rate
func Summarize(c *Context, s Settings) QuoteSummary {
	if c == nil {
		c = NewContext()
	}
	sum := QuoteSummary{Items: append([]LineItem(nil), c.Items...)}
	for _, it := range c.Items {
		sum.MaterialsSubtotal += it.UnitPrice * it.Quantity
	}

	if c.MarkupPercent != nil {
		sum.MarkupPercent = *c.MarkupPercent
	}
	sum.MarkupAmount = sum.MaterialsSubtotal * sum.MarkupPercent / 100

	if c.LaborHours != nil {
		sum.LaborHours = *c.LaborHours
	}
	sum.LaborRate = s.DefaultLaborRate
	if c.LaborRate != nil {
		sum.LaborRate = *c.LaborRate
	}
	sum.LaborTotal = sum.LaborHours * sum.LaborRate

	sum.Total = sum.MaterialsSubtotal*(1+sum.MarkupPercent/100) + sum.LaborTotal
	return sum
}

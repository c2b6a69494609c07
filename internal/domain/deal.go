package domain

// LineItem is one product line on an opportunity.
type LineItem struct {
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
}

// Deal holds the CRM data needed to draft and send a statement of work.
type Deal struct {
	OpportunityID string     `json:"opportunity_id"`
	Name          string     `json:"name"`
	AccountName   string     `json:"account_name"`
	Amount        float64    `json:"amount"`
	Stage         string     `json:"stage"`
	ContactName   string     `json:"contact_name"`
	ContactEmail  string     `json:"contact_email"`
	LineItems     []LineItem `json:"line_items"`
}

// OpportunitySummary is the listing shape for open opportunities.
type OpportunitySummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	AccountName string  `json:"account_name"`
	Amount      float64 `json:"amount"`
	Stage       string  `json:"stage"`
	CloseDate   string  `json:"close_date"`
}

package payment

import "strings"

// DefaultPlan is the plan of accounts without a paid subscription.
const DefaultPlan = "free"

// Plan is one entry of the pricing catalogue.
type Plan struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       string   `json:"price"`
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

// Billable reports whether the plan can be paid for with a one-off intent.
func (p Plan) Billable() bool { return p.Amount > 0 }

var catalogue = []Plan{
	{
		ID:          "free",
		Name:        "Free",
		Price:       "$0",
		Currency:    "usd",
		Description: "Preview chat workflows and secure account basics.",
		Features:    []string{"Single creator seat", "Chat workspace preview", "Community help center"},
	},
	{
		ID:          "basic",
		Name:        "Basic",
		Price:       "$12",
		Amount:      1200,
		Currency:    "usd",
		Description: "Start collaborating with guided onboarding.",
		Features:    []string{"Up to 3 teammates", "Project space templates", "Email support"},
	},
	{
		ID:          "pro",
		Name:        "Pro",
		Price:       "$29",
		Amount:      2900,
		Currency:    "usd",
		Description: "Scale private workflows with premium support.",
		Features:    []string{"Unlimited projects", "Priority workspace routing", "Dedicated success partner"},
	},
	{
		ID:          "elite",
		Name:        "Elite",
		Price:       "$99",
		Amount:      9900,
		Currency:    "usd",
		Description: "Tailored concierge intelligence for executive teams.",
		Features:    []string{"Custom governance", "Compliance-ready exports", "Strategic concierge access"},
	},
}

// Plans returns the catalogue in display order.
func Plans() []Plan {
	out := make([]Plan, len(catalogue))
	copy(out, catalogue)
	return out
}

// LookupPlan finds a plan by id, case-insensitively.
func LookupPlan(id string) (Plan, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range catalogue {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// CheckoutPlan returns the plan shown on the checkout page, pro by default.
func CheckoutPlan(id string) Plan {
	if p, ok := LookupPlan(id); ok {
		return p
	}
	p, _ := LookupPlan("pro")
	return p
}

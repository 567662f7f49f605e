package categorize

import "strings"

type merchantRule struct {
	category string
	keywords []string
}

var merchantRules = []merchantRule{
	{"income", []string{"payroll", "salary", "direct dep", "refund"}},
	{"housing", []string{"apartment", "rent", "mortgage", "realty"}},
	{"utilities", []string{"utilities", "electric", "water", "comcast", "verizon", "at&t"}},
	{"groceries", []string{"whole foods", "trader joe", "safeway", "kroger", "market", "grocery", "aldi"}},
	{"dining", []string{"coffee", "cafe", "restaurant", "chipotle", "mcdonald", "pizza", "starbucks", "bar & grill"}},
	{"transport", []string{"uber", "lyft", "shell", "chevron", "exxon", "parking", "transit", "metro"}},
	{"entertainment", []string{"netflix", "spotify", "hulu", "cinema", "steam"}},
	{"shopping", []string{"amazon", "target", "walmart", "costco", "best buy"}},
	{"health", []string{"pharmacy", "cvs", "walgreens", "clinic", "dental"}},
	{"travel", []string{"airlines", "airbnb", "hotel", "marriott", "expedia"}},
	{"fees", []string{"fee", "interest charge", "overdraft"}},
}

// classifyMerchant maps a merchant name to a category by keyword. The first
// matching rule wins; unknown merchants are "other".
func classifyMerchant(merchant string) string {
	name := strings.ToLower(merchant)
	for _, rule := range merchantRules {
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				return rule.category
			}
		}
	}
	return "other"
}

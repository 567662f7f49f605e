package intent

import (
	"strings"
	"unicode"
)

// Label is a spending sub-workflow intent.
type Label string

const (
	SpendingAnalysis Label = "spending_analysis"
	BudgetPlanning   Label = "budget_planning"
	Optimization     Label = "optimization"
	TransactionQuery Label = "transaction_query"
	General          Label = "general"
)

// Labels lists every valid intent.
var Labels = []Label{SpendingAnalysis, BudgetPlanning, Optimization, TransactionQuery, General}

// Parse validates a raw label.
func Parse(raw string) (Label, bool) {
	normalized := Label(strings.ToLower(strings.TrimSpace(raw)))
	for _, label := range Labels {
		if label == normalized {
			return label, true
		}
	}
	return "", false
}

type bucket struct {
	label    Label
	keywords []string
}

// keywordBuckets is checked in order; the first bucket with a hit wins.
var keywordBuckets = []bucket{
	{Optimization, []string{
		"save money", "saving", "cut back", "cut down", "reduce", "lower my", "optimize", "optimise",
		"cheaper", "spend less", "waste", "wasting", "unnecessary", "subscriptions to cancel", "trim",
	}},
	{SpendingAnalysis, []string{
		"analyze", "analyse", "analysis", "breakdown", "break down", "where does my money", "where did my money",
		"spending pattern", "spending habits", "how much do i spend", "how much did i spend", "trend", "overview",
	}},
	{BudgetPlanning, []string{
		"budget", "plan", "planning", "allocate", "allowance", "monthly limit", "50 30 20", "set aside",
	}},
	{TransactionQuery, []string{
		"transaction", "transactions", "purchase", "purchases", "charge", "charges", "payment", "payments",
		"show me", "list", "last month", "last week", "yesterday", "receipt", "paid",
	}},
}

// Classify maps text to an intent using the ordered keyword table,
// defaulting to General. Keywords match whole words only.
func Classify(text string) Label {
	normalized := normalize(text)
	if strings.TrimSpace(normalized) == "" {
		return General
	}

	for _, b := range keywordBuckets {
		for _, word := range b.keywords {
			if strings.Contains(normalized, " "+word+" ") {
				return b.label
			}
		}
	}
	return General
}

// normalize lowercases text, turns punctuation into spaces and pads it so
// every word is space delimited.
func normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return " " + strings.Join(strings.Fields(mapped), " ") + " "
}

package ai

import (
	"fmt"
	"strings"
)

// Agent names used as prompt keys and message tags.
const (
	AgentRouter           = "router"
	AgentSmalltalk        = "smalltalk"
	AgentInvestment       = "investment"
	AgentOnboarding       = "onboarding"
	AgentSpendingAnalysis = "spending_analysis"
	AgentBudgetPlanning   = "budget_planning"
	AgentOptimization     = "optimization"
	AgentTransactionQuery = "transaction_query"
	AgentGeneral          = "spending_general"
	AgentIntent           = "intent_classifier"
	AgentCategorizer      = "categorizer"
)

// PromptTemplate is the static part of an agent's system prompt.
type PromptTemplate struct {
	SystemPrompt string
	Rules        []string
}

// PromptManager renders system prompts per agent.
type PromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPromptManager returns a manager loaded with the built-in templates.
func NewPromptManager() *PromptManager {
	pm := &PromptManager{templates: make(map[string]*PromptTemplate)}
	pm.loadDefaultTemplates()
	return pm
}

// Template returns the template registered for agent.
func (pm *PromptManager) Template(agent string) (*PromptTemplate, error) {
	template, ok := pm.templates[agent]
	if !ok {
		return nil, fmt.Errorf("prompt template not found for agent: %s", agent)
	}
	return template, nil
}

// BuildSystemPrompt combines the agent template with the user's profile
// context and any turn-specific sections.
func (pm *PromptManager) BuildSystemPrompt(agent, profileContext string, sections ...string) string {
	var b strings.Builder

	template, err := pm.Template(agent)
	if err != nil {
		b.WriteString("You are a helpful personal finance assistant.")
	} else {
		b.WriteString(template.SystemPrompt)
		if len(template.Rules) > 0 {
			b.WriteString("\n\nRules:\n- ")
			b.WriteString(strings.Join(template.Rules, "\n- "))
		}
	}

	if ctx := strings.TrimSpace(profileContext); ctx != "" {
		b.WriteString("\n\nUser context:\n")
		b.WriteString(ctx)
	}
	for _, section := range sections {
		if section = strings.TrimSpace(section); section != "" {
			b.WriteString("\n\n")
			b.WriteString(section)
		}
	}
	return b.String()
}

func (pm *PromptManager) loadDefaultTemplates() {
	pm.templates[AgentRouter] = &PromptTemplate{
		SystemPrompt: "You route messages for a personal finance assistant. Answer with exactly one label: SMALLTALK, SPENDING, INVESTMENT or ONBOARDING.",
		Rules: []string{
			"ONBOARDING when the profile is incomplete.",
			"ONBOARDING when the message shares personal, demographic or goal information, even if the profile is complete.",
			"SPENDING for spending, budgets, bills or transactions, only with a complete profile.",
			"INVESTMENT for investing, stocks, funds or retirement accounts, only with a complete profile.",
			"SMALLTALK for everything else.",
		},
	}
	pm.templates[AgentSmalltalk] = &PromptTemplate{
		SystemPrompt: "You are a warm personal finance assistant making brief small talk. Keep replies to two sentences and steer gently toward how you can help with money.",
	}
	pm.templates[AgentInvestment] = &PromptTemplate{
		SystemPrompt: "You are a personal finance assistant. Investment guidance is not available yet.",
		Rules: []string{
			"Do not recommend specific securities.",
			"Explain general principles briefly and say that detailed investment help is coming soon.",
		},
	}
	pm.templates[AgentOnboarding] = &PromptTemplate{
		SystemPrompt: "You are onboarding a new user of a personal finance assistant. Extract any of the profile fields the user disclosed and write a friendly reply that asks for one or two of the missing fields.",
		Rules: []string{
			"Only fill a field when the user stated it; use null otherwise.",
			"Newer statements replace older ones, for example after a life change.",
			"The reply field is mandatory.",
		},
	}
	pm.templates[AgentSpendingAnalysis] = &PromptTemplate{
		SystemPrompt: "You analyse the user's spending. Use the category totals provided and point out the largest categories and notable patterns.",
	}
	pm.templates[AgentBudgetPlanning] = &PromptTemplate{
		SystemPrompt: "You help the user plan a monthly budget grounded in their profile and recent spending.",
	}
	pm.templates[AgentOptimization] = &PromptTemplate{
		SystemPrompt: "You find concrete ways for the user to reduce spending or save more, ranked by expected impact.",
	}
	pm.templates[AgentGeneral] = &PromptTemplate{
		SystemPrompt: "You answer general money-management questions concisely.",
	}
	pm.templates[AgentTransactionQuery] = &PromptTemplate{
		SystemPrompt: "Translate the user's question about their transactions into a search filter.",
		Rules: []string{
			"Dates use YYYY-MM-DD.",
			"Amounts are positive numbers; spending is matched by magnitude.",
			"sort is one of date_desc, date_asc, amount_desc, amount_asc.",
			"Set understood to false when the question is not a transaction lookup.",
		},
	}
	pm.templates[AgentIntent] = &PromptTemplate{
		SystemPrompt: "Classify the user's spending-related message into one intent.",
		Rules: []string{
			"optimization: saving money, cutting costs, reducing spending.",
			"spending_analysis: understanding where money goes.",
			"budget_planning: creating or adjusting a budget.",
			"transaction_query: looking up specific transactions.",
			"general: anything else.",
		},
	}
	pm.templates[AgentCategorizer] = &PromptTemplate{
		SystemPrompt: "Categorize one bank transaction. Use broad categories such as groceries, dining, transport, housing, utilities, shopping, entertainment, health, travel, income, transfer, fees, other.",
	}
}

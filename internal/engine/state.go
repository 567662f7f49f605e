package engine

import (
	"errors"
	"strings"
	"time"

	analysis "github.com/zhouzirui/finpilot/backend/internal/analysis/intent"
	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/internal/model/profile"
	"github.com/zhouzirui/finpilot/backend/internal/model/transaction"
)

var (
	ErrSessionRequired     = errors.New("session id is required")
	ErrUserRequired        = errors.New("user id is required")
	ErrMessageRequired     = errors.New("message is required")
	ErrSessionUserMismatch = errors.New("session belongs to another user")
)

// Route is the top-level routing decision of a turn.
type Route string

const (
	RouteSmalltalk  Route = "SMALLTALK"
	RouteSpending   Route = "SPENDING"
	RouteInvestment Route = "INVESTMENT"
	RouteOnboarding Route = "ONBOARDING"
)

// Routes lists the valid routes.
var Routes = []Route{RouteSmalltalk, RouteSpending, RouteInvestment, RouteOnboarding}

// ParseRoute normalizes case and whitespace and validates the label.
func ParseRoute(raw string) (Route, bool) {
	label := Route(strings.ToUpper(strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `."'`))))
	for _, r := range Routes {
		if r == label {
			return r, true
		}
	}
	return RouteSmalltalk, false
}

// Turn kinds.
const (
	KindMessage       = "message"
	KindAccountLinked = "account_linked"
)

// AgentSystem tags replies produced by the engine itself.
const AgentSystem = "system"

// TurnInput is one inbound event for a session.
type TurnInput struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
}

// IsAccountLinked reports whether the turn is the linked-account notification.
func (in TurnInput) IsAccountLinked() bool {
	return in.Kind == KindAccountLinked
}

// Reply is the outcome of a turn. Error is set when the turn failed or its
// state could not be saved.
type Reply struct {
	Text    string   `json:"text"`
	Agent   string   `json:"agent"`
	Route   Route    `json:"route,omitempty"`
	Notices []string `json:"notices,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Onboarding steps.
const (
	StepWelcome  = "welcome"
	StepContinue = "continue"
)

// OnboardingState lives for one turn inside the onboarding sub-workflow.
type OnboardingState struct {
	CurrentStep   string
	CollectedData profile.Fields
	NeedsPersist  bool
	Complete      bool
	Profile       *profile.Profile
	ModelClaim    *bool
}

// UserContext is the read-only snapshot taken when spending starts.
type UserContext struct {
	ProfileContext  string
	ProfileComplete bool
	AccountIDs      []string
	CategoryTotals  []transaction.CategoryTotal
}

// SpendingState lives for one turn inside the spending sub-workflow.
type SpendingState struct {
	UserID         string
	DetectedIntent analysis.Label
	HasResult      bool
	FetchAttempts  int
	Snapshot       UserContext
}

// TurnState flows through every node of the graph. Session is the working
// copy of the persisted state; the rest is private to the turn.
type TurnState struct {
	Input   TurnInput
	Session *chat.Session
	Now     time.Time

	Route      Route
	ReplyText  string
	ReplyAgent string
	Notices    []string

	Onboarding OnboardingState
	Spending   SpendingState
}

func newTurnState(in TurnInput, session *chat.Session, now time.Time) *TurnState {
	return &TurnState{Input: in, Session: session, Now: now}
}

// say sets the reply. An earlier reply of the same turn becomes a notice.
func (s *TurnState) say(agent, text string) {
	if s.ReplyText != "" {
		s.Notices = append(s.Notices, s.ReplyText)
	}
	s.ReplyText = strings.TrimSpace(text)
	s.ReplyAgent = agent
}

func (s *TurnState) reply() Reply {
	return Reply{
		Text:    s.ReplyText,
		Agent:   s.ReplyAgent,
		Route:   s.Route,
		Notices: append([]string(nil), s.Notices...),
	}
}

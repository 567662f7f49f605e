package engine

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
)

// Parent graph nodes.
const (
	nodeRefreshContext = "refresh_context"
	nodeRoute          = "route"
	nodeSmalltalk      = "smalltalk"
	nodeInvestment     = "investment"
	nodeSpending       = "spending"
	nodeOnboarding     = "onboarding"
)

// Onboarding nodes.
const (
	nodeOnboardingEntry    = "entry"
	nodeAckAccountLinked   = "ack_account_linked"
	nodeReadProfile        = "read_profile"
	nodeExtract            = "extract"
	nodeRemember           = "remember"
	nodePersist            = "persist"
	nodeEvaluateCompletion = "evaluate_completion"
	nodePropagate          = "propagate"
)

// Spending nodes.
const (
	nodeInitialize       = "initialize"
	nodeClassifyIntent   = "classify_intent"
	nodeSpendingAnalysis = "spending_analysis"
	nodeBudgetPlanning   = "budget_planning"
	nodeOptimization     = "optimization"
	nodeGeneral          = "general"
	nodeTransactionQuery = "transaction_query"
	nodeFetchAndProcess  = "fetch_and_process"
)

type turnGraph = compose.Graph[*TurnState, *TurnState]

type nodeFunc = func(context.Context, *TurnState) (*TurnState, error)

func addNodes(g *turnGraph, nodes map[string]nodeFunc) error {
	for key, fn := range nodes {
		if err := g.AddLambdaNode(key, compose.InvokableLambda(fn)); err != nil {
			return fmt.Errorf("add node %s: %w", key, err)
		}
	}
	return nil
}

func addEdges(g *turnGraph, edges [][2]string) error {
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", e[0], e[1], err)
		}
	}
	return nil
}

func (w *workflow) onboardingGraph() (*turnGraph, error) {
	g := compose.NewGraph[*TurnState, *TurnState]()

	err := addNodes(g, map[string]nodeFunc{
		nodeOnboardingEntry:    w.onboardingEntry,
		nodeAckAccountLinked:   w.ackAccountLinked,
		nodeReadProfile:        w.readProfile,
		nodeExtract:            w.extract,
		nodeRemember:           w.remember,
		nodePersist:            w.persist,
		nodeEvaluateCompletion: w.evaluateCompletion,
		nodePropagate:          w.propagate,
	})
	if err != nil {
		return nil, err
	}

	err = addEdges(g, [][2]string{
		{compose.START, nodeOnboardingEntry},
		{nodeAckAccountLinked, compose.END},
		{nodeReadProfile, nodeExtract},
		{nodeExtract, nodeRemember},
		{nodeRemember, nodePersist},
		{nodePersist, nodeEvaluateCompletion},
		{nodePropagate, compose.END},
	})
	if err != nil {
		return nil, err
	}

	if err := g.AddBranch(nodeOnboardingEntry, compose.NewGraphBranch(w.branchOnboardingEntry, map[string]bool{
		nodeAckAccountLinked: true,
		nodeReadProfile:      true,
	})); err != nil {
		return nil, fmt.Errorf("add onboarding entry branch: %w", err)
	}
	if err := g.AddBranch(nodeEvaluateCompletion, compose.NewGraphBranch(w.branchOnCompletion, map[string]bool{
		nodePropagate: true,
		compose.END:   true,
	})); err != nil {
		return nil, fmt.Errorf("add completion branch: %w", err)
	}
	return g, nil
}

func (w *workflow) spendingGraph() (*turnGraph, error) {
	g := compose.NewGraph[*TurnState, *TurnState]()

	nodes := map[string]nodeFunc{
		nodeInitialize:       w.initializeSpending,
		nodeClassifyIntent:   w.classifyIntent,
		nodeTransactionQuery: w.transactionQuery,
		nodeFetchAndProcess:  w.fetchAndProcess,
	}
	for node, agent := range spendingAgents {
		nodes[node] = w.spendingResponder(agent)
	}
	if err := addNodes(g, nodes); err != nil {
		return nil, err
	}

	edges := [][2]string{
		{compose.START, nodeInitialize},
		{nodeInitialize, nodeClassifyIntent},
		{nodeFetchAndProcess, nodeTransactionQuery},
	}
	for node := range spendingAgents {
		edges = append(edges, [2]string{node, compose.END})
	}
	if err := addEdges(g, edges); err != nil {
		return nil, err
	}

	intentTargets := map[string]bool{nodeTransactionQuery: true}
	for node := range spendingAgents {
		intentTargets[node] = true
	}
	if err := g.AddBranch(nodeClassifyIntent, compose.NewGraphBranch(w.branchOnIntent, intentTargets)); err != nil {
		return nil, fmt.Errorf("add intent branch: %w", err)
	}
	if err := g.AddBranch(nodeTransactionQuery, compose.NewGraphBranch(w.branchOnQueryResult, map[string]bool{
		nodeFetchAndProcess: true,
		compose.END:         true,
	})); err != nil {
		return nil, fmt.Errorf("add query loop branch: %w", err)
	}
	return g, nil
}

// compileGraph assembles the parent graph with both sub-workflows as nested
// graph nodes. The query and fetch cycle needs the default pregel trigger
// mode.
func (w *workflow) compileGraph(ctx context.Context) (compose.Runnable[*TurnState, *TurnState], error) {
	onboarding, err := w.onboardingGraph()
	if err != nil {
		return nil, fmt.Errorf("build onboarding graph: %w", err)
	}
	spending, err := w.spendingGraph()
	if err != nil {
		return nil, fmt.Errorf("build spending graph: %w", err)
	}

	g := compose.NewGraph[*TurnState, *TurnState]()
	if err := addNodes(g, map[string]nodeFunc{
		nodeRefreshContext: w.refreshContext,
		nodeRoute:          w.route,
		nodeSmalltalk:      w.smalltalk,
		nodeInvestment:     w.investment,
	}); err != nil {
		return nil, err
	}
	if err := g.AddGraphNode(nodeOnboarding, onboarding, compose.WithGraphCompileOptions(compose.WithGraphName("onboarding"))); err != nil {
		return nil, fmt.Errorf("add onboarding sub-graph: %w", err)
	}
	if err := g.AddGraphNode(nodeSpending, spending, compose.WithGraphCompileOptions(compose.WithGraphName("spending"))); err != nil {
		return nil, fmt.Errorf("add spending sub-graph: %w", err)
	}

	if err := addEdges(g, [][2]string{
		{compose.START, nodeRefreshContext},
		{nodeRefreshContext, nodeRoute},
		{nodeSmalltalk, compose.END},
		{nodeInvestment, compose.END},
		{nodeSpending, compose.END},
		{nodeOnboarding, compose.END},
	}); err != nil {
		return nil, err
	}
	if err := g.AddBranch(nodeRoute, compose.NewGraphBranch(w.branchOnRoute, map[string]bool{
		nodeSmalltalk:  true,
		nodeInvestment: true,
		nodeSpending:   true,
		nodeOnboarding: true,
	})); err != nil {
		return nil, fmt.Errorf("add route branch: %w", err)
	}

	runnable, err := g.Compile(ctx,
		compose.WithGraphName("finpilot_turn"),
		compose.WithMaxRunSteps(maxRunSteps(w.cfg.FetchMaxAttempts)),
	)
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return runnable, nil
}

// maxRunSteps bounds one turn: the parent path plus the longest spending path,
// which visits query and fetch once per attempt.
func maxRunSteps(fetchAttempts int) int {
	return 10 + 2*fetchAttempts + 4
}

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kubernaut-bdi/agent/pkg/types"
)

// FactSummary is the compact view of recent facts the Interpreter and
// Analyzer prompts are built from (spec §4.7: "belief summary + last N
// facts, N<=50").
type FactSummary struct {
	Beliefs []string
	Facts   []string
}

func clampFacts(facts []string) []string {
	const maxFacts = 50
	if len(facts) > maxFacts {
		return facts[len(facts)-maxFacts:]
	}
	return facts
}

// Hypothesis is the Interpreter agent's structured output.
type Hypothesis struct {
	Hypothesis       string   `json:"hypothesis"`
	Severity         string   `json:"severity"`
	Goal             string   `json:"goal"`
	SuggestedActions []string `json:"suggested_actions"`
}

// Interpreter has no tools; it turns a belief summary into a hypothesis
// and goal proposition (spec §4.7).
type Interpreter struct {
	provider Provider
}

func NewInterpreter(provider Provider) *Interpreter {
	return &Interpreter{provider: provider}
}

const interpreterSystemPrompt = `You are an incident-response interpreter. Given a summary of current beliefs and recent facts, respond with ONLY a JSON object of the shape:
{"hypothesis": string, "severity": "info"|"low"|"medium"|"high"|"critical", "goal": string, "suggested_actions": [string, ...]}
No prose, no markdown fences.`

func (a *Interpreter) Interpret(ctx context.Context, summary FactSummary) (Hypothesis, error) {
	prompt := fmt.Sprintf("Beliefs:\n%s\n\nRecent facts:\n%s",
		strings.Join(summary.Beliefs, "\n"), strings.Join(clampFacts(summary.Facts), "\n"))

	raw, err := a.provider.Complete(ctx, interpreterSystemPrompt, prompt)
	if err != nil {
		return Hypothesis{}, fmt.Errorf("interpreter: %w", err)
	}

	result := gjson.Parse(extractJSON(raw))
	h := Hypothesis{
		Hypothesis: result.Get("hypothesis").String(),
		Severity:   result.Get("severity").String(),
		Goal:       result.Get("goal").String(),
	}
	for _, a := range result.Get("suggested_actions").Array() {
		h.SuggestedActions = append(h.SuggestedActions, a.String())
	}
	if h.Goal == "" {
		return Hypothesis{}, fmt.Errorf("interpreter: response had no usable goal proposition: %s", raw)
	}
	return h, nil
}

// Analysis is the Analyzer agent's structured output.
type Analysis struct {
	RootCause         string   `json:"root_cause"`
	Confidence        float64  `json:"confidence"`
	Evidence          []string `json:"evidence"`
	RecommendedAction string   `json:"recommended_action"`
	Reasoning         string   `json:"reasoning"`
}

// ObserveToolRunner executes a single named Observe-effect tool and
// returns its textual result, for the Analyzer's tool-use loop. Only
// actions of Effect Observe may be registered here (spec §4.7: "has
// Observe-effect tools only").
type ObserveToolRunner interface {
	RunObserveTool(ctx context.Context, name string, target string) (string, error)
}

// Analyzer is the only agent the LLM may use tools with autonomously
// (spec §4.7). It runs a bounded request/observe loop: the model either
// asks for one more tool call or emits its final Analysis JSON.
type Analyzer struct {
	provider Provider
	tools    *types.Registry
	runner   ObserveToolRunner
}

func NewAnalyzer(provider Provider, tools *types.Registry, runner ObserveToolRunner) *Analyzer {
	return &Analyzer{provider: provider, tools: tools, runner: runner}
}

const analyzerSystemPromptTemplate = `You are an incident-response analyzer with access to read-only diagnostic tools: %s.
To call a tool, respond with ONLY {"tool_call": {"name": string, "target": string}}.
When you have enough evidence, respond with ONLY the final JSON:
{"root_cause": string, "confidence": number between 0 and 1, "evidence": [string, ...], "recommended_action": string, "reasoning": string}
Never include both a tool_call and a final answer in the same response. No prose, no markdown fences.`

const maxAnalyzerToolCalls = 5

func (a *Analyzer) Analyze(ctx context.Context, summary FactSummary, target string) (Analysis, error) {
	var observeNames []string
	for _, action := range a.tools.All() {
		if action.Effect == types.Observe {
			observeNames = append(observeNames, action.Name)
		}
	}
	systemPrompt := fmt.Sprintf(analyzerSystemPromptTemplate, strings.Join(observeNames, ", "))

	transcript := fmt.Sprintf("Beliefs:\n%s\n\nRecent facts:\n%s",
		strings.Join(summary.Beliefs, "\n"), strings.Join(clampFacts(summary.Facts), "\n"))

	for i := 0; i < maxAnalyzerToolCalls; i++ {
		raw, err := a.provider.Complete(ctx, systemPrompt, transcript)
		if err != nil {
			return Analysis{}, fmt.Errorf("analyzer: %w", err)
		}
		result := gjson.Parse(extractJSON(raw))

		if call := result.Get("tool_call"); call.Exists() {
			name := call.Get("name").String()
			target := call.Get("target").String()
			if !a.tools.Has(name) {
				transcript += fmt.Sprintf("\n\ntool_call %q rejected: not a registered tool\n", name)
				continue
			}
			if action, _ := a.tools.Get(name); action.Effect != types.Observe {
				transcript += fmt.Sprintf("\n\ntool_call %q rejected: not an Observe-effect tool\n", name)
				continue
			}
			observation, err := a.runner.RunObserveTool(ctx, name, target)
			if err != nil {
				observation = fmt.Sprintf("tool error: %s", err.Error())
			}
			transcript += fmt.Sprintf("\n\ntool_call %s(%s) result:\n%s\n", name, target, observation)
			continue
		}

		analysis := Analysis{
			RootCause:         result.Get("root_cause").String(),
			Confidence:        result.Get("confidence").Float(),
			RecommendedAction: result.Get("recommended_action").String(),
			Reasoning:         result.Get("reasoning").String(),
		}
		for _, e := range result.Get("evidence").Array() {
			analysis.Evidence = append(analysis.Evidence, e.String())
		}
		if analysis.RootCause == "" {
			return Analysis{}, fmt.Errorf("analyzer: response had no usable root_cause: %s", raw)
		}
		return analysis, nil
	}

	return Analysis{}, fmt.Errorf("analyzer: exceeded %d tool calls without a final answer", maxAnalyzerToolCalls)
}

// Proposer has no tools; it proposes an ordered action-name sequence
// the planner then validates or falls back on (spec §4.7).
type Proposer struct {
	provider Provider
}

func NewProposer(provider Provider) *Proposer {
	return &Proposer{provider: provider}
}

const proposerSystemPrompt = `You are an incident-remediation planner. Given a goal and the set of available action names, respond with ONLY a JSON array of action names in the order they should run, e.g. ["get_pod_logs", "restart_deployment"]. No prose, no markdown fences.`

func (p *Proposer) Propose(ctx context.Context, goal string, availableActions []string) ([]string, error) {
	prompt := fmt.Sprintf("Goal: %s\nAvailable actions: %s", goal, strings.Join(availableActions, ", "))
	raw, err := p.provider.Complete(ctx, proposerSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("proposer: %w", err)
	}
	result := gjson.Parse(extractJSON(raw))
	if !result.IsArray() {
		return nil, fmt.Errorf("proposer: response was not a JSON array: %s", raw)
	}
	var names []string
	for _, v := range result.Array() {
		names = append(names, v.String())
	}
	return names, nil
}

// extractJSON tolerates a model wrapping its JSON in markdown code
// fences or leading/trailing prose, taking the substring between the
// first '{' or '[' and the matching last '}' or ']'.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return raw
	}
	open, close := raw[start], byte('}')
	if open == '[' {
		close = ']'
	}
	end := strings.LastIndexByte(raw, close)
	if end < start {
		return raw
	}
	return raw[start : end+1]
}

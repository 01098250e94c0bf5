package reasoning

import (
	"context"
	"encoding/json"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deep-research/internal/model"
)

// Tool names served by an MCP reasoning server.
const (
	ToolPlan               = "plan"
	ToolGenerateHypotheses = "generate_hypotheses"
	ToolTestHypothesis     = "test_hypothesis"
	ToolSynthesize         = "synthesize"
)

const clientVersion = "0.1.0"

// PlanArgs is the input of the plan tool.
type PlanArgs struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
}

// HypothesesArgs is the input of the generate_hypotheses tool.
type HypothesesArgs struct {
	Context  string           `json:"context"`
	Evidence []model.Evidence `json:"evidence,omitempty"`
}

// TestArgs is the input of the test_hypothesis tool.
type TestArgs struct {
	Hypothesis Hypothesis       `json:"hypothesis"`
	Evidence   []model.Evidence `json:"evidence,omitempty"`
}

// SynthesizeArgs is the input of the synthesize tool.
type SynthesizeArgs struct {
	Results []TestResult `json:"results,omitempty"`
	Query   string       `json:"query,omitempty"`
}

// ToolUsage is the optional usage a server reports with each result.
type ToolUsage struct {
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost,omitempty"`
}

// PlanOutput is the output of the plan tool.
type PlanOutput struct {
	Plan  Plan      `json:"plan"`
	Usage ToolUsage `json:"usage"`
}

// HypothesesOutput is the output of the generate_hypotheses tool.
type HypothesesOutput struct {
	Hypotheses []Hypothesis `json:"hypotheses"`
	Usage      ToolUsage    `json:"usage"`
}

// TestOutput is the output of the test_hypothesis tool.
type TestOutput struct {
	Result TestResult `json:"result"`
	Usage  ToolUsage  `json:"usage"`
}

// SynthesizeOutput is the output of the synthesize tool.
type SynthesizeOutput struct {
	Synthesis Synthesis `json:"synthesis"`
	Usage     ToolUsage `json:"usage"`
}

func (u ToolUsage) usage() Usage {
	return Usage{Tokens: u.Tokens, Cost: u.Cost, Priced: u.Cost > 0}
}

// MCPService reasons through a long-lived MCP client session. The SDK
// correlates requests with responses, so calls may overlap.
type MCPService struct {
	session *mcp.ClientSession
}

var _ Service = (*MCPService)(nil)

// StartMCPService launches command as a subprocess speaking MCP on stdio.
func StartMCPService(ctx context.Context, command string, args ...string) (*MCPService, error) {
	if command == "" {
		return nil, eris.New("reasoning: mcp command is required")
	}
	svc, err := ConnectMCPService(ctx, &mcp.CommandTransport{Command: exec.Command(command, args...)})
	if err != nil {
		return nil, eris.Wrapf(err, "reasoning: start %s", command)
	}
	return svc, nil
}

// ConnectMCPService opens a session over transport.
func ConnectMCPService(ctx context.Context, transport mcp.Transport) (*MCPService, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "deep-research", Version: clientVersion}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, eris.Wrap(err, "reasoning: mcp connect")
	}
	return &MCPService{session: session}, nil
}

// Plan implements Service.
func (s *MCPService) Plan(ctx context.Context, query, planContext string) (*Plan, Usage, error) {
	var out PlanOutput
	ok, err := s.callTool(ctx, ToolPlan, PlanArgs{Query: query, Context: planContext}, &out)
	if err != nil {
		return nil, Usage{}, err
	}
	if !ok {
		zap.L().Warn("reasoning: malformed mcp plan, using fallback", zap.String("query", query))
		return FallbackPlan(query), out.Usage.usage(), nil
	}
	return normalizePlan(&out.Plan, query), out.Usage.usage(), nil
}

// GenerateHypotheses implements Service.
func (s *MCPService) GenerateHypotheses(ctx context.Context, researchContext string, evidence []model.Evidence) ([]Hypothesis, Usage, error) {
	var out HypothesesOutput
	ok, err := s.callTool(ctx, ToolGenerateHypotheses, HypothesesArgs{Context: researchContext, Evidence: evidence}, &out)
	if err != nil {
		return nil, Usage{}, err
	}
	if !ok {
		return nil, out.Usage.usage(), nil
	}
	return normalizeHypotheses(out.Hypotheses), out.Usage.usage(), nil
}

// TestHypothesis implements Service.
func (s *MCPService) TestHypothesis(ctx context.Context, h Hypothesis, evidence []model.Evidence) (*TestResult, Usage, error) {
	var out TestOutput
	ok, err := s.callTool(ctx, ToolTestHypothesis, TestArgs{Hypothesis: h, Evidence: evidence}, &out)
	if err != nil {
		return nil, Usage{}, err
	}
	if !ok {
		return fallbackTest(h, len(evidence)), out.Usage.usage(), nil
	}
	return normalizeTest(&out.Result, h, len(evidence)), out.Usage.usage(), nil
}

// Synthesize implements Service.
func (s *MCPService) Synthesize(ctx context.Context, results []TestResult, query string) (*Synthesis, Usage, error) {
	var out SynthesizeOutput
	ok, err := s.callTool(ctx, ToolSynthesize, SynthesizeArgs{Results: results, Query: query}, &out)
	if err != nil {
		return nil, Usage{}, err
	}
	if !ok {
		return FallbackSynthesis(results), out.Usage.usage(), nil
	}
	return normalizeSynthesis(&out.Synthesis, results), out.Usage.usage(), nil
}

// Close ends the session and stops the subprocess.
func (s *MCPService) Close() error {
	return eris.Wrap(s.session.Close(), "reasoning: close mcp session")
}

// callTool invokes name and decodes its result into out. Transport failures
// and tool errors are returned; a result that cannot be decoded reports
// ok=false so callers fall back.
func (s *MCPService) callTool(ctx context.Context, name string, args, out any) (bool, error) {
	res, err := s.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return false, eris.Wrapf(err, "reasoning: call %s", name)
	}
	if res.IsError {
		return false, eris.Errorf("reasoning: tool %s failed: %s", name, resultText(res))
	}

	if res.StructuredContent != nil {
		data, err := json.Marshal(res.StructuredContent)
		if err == nil && json.Unmarshal(data, out) == nil {
			return true, nil
		}
	}
	return decodeJSON(resultText(res), out), nil
}

func resultText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

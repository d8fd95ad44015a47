package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	auditdomain "merchant-voice-auth/internal/audit/domain"
)

const decisionQuery = "data.voiceauth.routing.decision"

// DefaultRegoPolicy routes on the score thresholds 70 and 40. An unknown phone always registers.
const DefaultRegoPolicy = `package voiceauth.routing

direct_threshold := 70
challenge_threshold := 40

default decision := "ESCALATE"

decision := "REGISTER" if {
	not input.merchant_found
}

decision := "DIRECT" if {
	input.merchant_found
	input.score >= direct_threshold
}

decision := "CHALLENGE" if {
	input.merchant_found
	input.score >= challenge_threshold
	input.score < direct_threshold
}
`

// OPAEvaluator routes decisions through a Rego policy.
type OPAEvaluator struct {
	query    rego.PreparedEvalQuery
	fallback func(score int) auditdomain.Decision
}

// NewOPAEvaluator compiles modules (DefaultRegoPolicy when none are given) and prepares the
// decision query. fallback is used when evaluation fails or yields no valid decision.
func NewOPAEvaluator(ctx context.Context, fallback func(score int) auditdomain.Decision, modules ...string) (*OPAEvaluator, error) {
	if len(modules) == 0 {
		modules = []string{DefaultRegoPolicy}
	}
	compiled := make(map[string]string, len(modules))
	for i, m := range modules {
		compiled[fmt.Sprintf("policy_%d.rego", i)] = m
	}
	compiler, err := ast.CompileModules(compiled)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	q, err := rego.New(rego.Query(decisionQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare decision query: %w", err)
	}
	return &OPAEvaluator{query: q, fallback: fallback}, nil
}

// Route evaluates the policy. On any evaluation problem it returns the fallback decision and the error.
func (e *OPAEvaluator) Route(ctx context.Context, in Input) (auditdomain.Decision, error) {
	if !in.MerchantFound {
		return auditdomain.DecisionRegister, nil
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return e.fallback(in.Score), fmt.Errorf("eval decision policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return e.fallback(in.Score), fmt.Errorf("decision policy returned no result")
	}
	s, ok := rs[0].Expressions[0].Value.(string)
	d := auditdomain.Decision(s)
	if !ok || !d.Valid() {
		return e.fallback(in.Score), fmt.Errorf("decision policy returned %v", rs[0].Expressions[0].Value)
	}
	return d, nil
}

// HealthCheck evaluates the prepared query against a fixed input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(Input{MerchantFound: true, Score: 50})))
	if err != nil {
		return fmt.Errorf("eval decision policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

func buildInput(in Input) map[string]any {
	reasons := make([]string, len(in.Reasons))
	for i, r := range in.Reasons {
		reasons[i] = string(r)
	}
	return map[string]any{
		"merchant_found": in.MerchantFound,
		"score":          in.Score,
		"reason_codes":   reasons,
	}
}

package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const policyPackage = "passkey_gate.authz"

// DefaultPolicy admits only admins to ceremonies. The admin API additionally needs a verified MFA session.
const DefaultPolicy = `package passkey_gate.authz

default allow_ceremony := false

default allow_admin_api := false

allow_ceremony if {
	input.caller.id != ""
	input.caller.role == "admin"
}

allow_admin_api if {
	allow_ceremony
	input.mfa.verified
}

deny_reason := "role" if not allow_ceremony

deny_reason := "mfa" if {
	allow_ceremony
	not input.mfa.verified
}
`

// OPAEvaluator evaluates the authorization policy using OPA Rego. Queries are prepared once at construction.
type OPAEvaluator struct {
	queries map[Action]rego.PreparedEvalQuery
	reason  rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy, or DefaultPolicy when policy is empty, and prepares its queries.
// The policy must define allow_ceremony and allow_admin_api in package passkey_gate.authz.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"authz.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	prepare := func(rule string) (rego.PreparedEvalQuery, error) {
		q, err := rego.New(
			rego.Query("data."+policyPackage+"."+rule),
			rego.Compiler(compiler),
		).PrepareForEval(ctx)
		if err != nil {
			return rego.PreparedEvalQuery{}, fmt.Errorf("prepare %s: %w", rule, err)
		}
		return q, nil
	}
	e := &OPAEvaluator{queries: make(map[Action]rego.PreparedEvalQuery, 2)}
	if e.queries[ActionCeremony], err = prepare("allow_ceremony"); err != nil {
		return nil, err
	}
	if e.queries[ActionAdminAPI], err = prepare("allow_admin_api"); err != nil {
		return nil, err
	}
	if e.reason, err = prepare("deny_reason"); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadPolicy reads a rego file. An empty path returns "" so the default policy is used.
func LoadPolicy(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy %s: %w", path, err)
	}
	return string(b), nil
}

// Authorize evaluates the rule for in.Action. Unknown actions, undefined results and non-boolean results deny.
func (e *OPAEvaluator) Authorize(ctx context.Context, in Input) (Decision, error) {
	q, ok := e.queries[in.Action]
	if !ok {
		return Decision{Reason: "unknown-action"}, fmt.Errorf("policy: unknown action %q", in.Action)
	}
	input := buildInput(in)
	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{Reason: "evaluation-error"}, fmt.Errorf("policy: eval: %w", err)
	}
	if v, ok := firstValue(rs).(bool); ok && v {
		return Decision{Allow: true}, nil
	}
	reason := "denied"
	if rrs, err := e.reason.Eval(ctx, rego.EvalInput(input)); err == nil {
		if s, ok := firstValue(rrs).(string); ok && s != "" {
			reason = s
		}
	}
	return Decision{Reason: reason}, nil
}

// HealthCheck evaluates the prepared policy against a fixed admin input and expects an allow.
// Does not touch the database. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	d, err := e.Authorize(ctx, Input{Caller: healthCheckCaller, Action: ActionCeremony})
	if err != nil {
		return err
	}
	if !d.Allow {
		return fmt.Errorf("policy denied health check input: %s", d.Reason)
	}
	return nil
}

func firstValue(rs rego.ResultSet) interface{} {
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil
	}
	return rs[0].Expressions[0].Value
}

func buildInput(in Input) map[string]interface{} {
	return map[string]interface{}{
		"action": string(in.Action),
		"caller": map[string]interface{}{
			"id":    in.Caller.ID,
			"email": in.Caller.Email,
			"role":  string(in.Caller.Role),
		},
		"mfa": map[string]interface{}{
			"verified": in.MFAVerified,
		},
	}
}

// Package authz decides which member-record fields a role may change,
// evaluated as an OPA Rego policy.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	memberdomain "member-portal/internal/member/domain"
)

// ErrNoPermittedFields is returned when every requested field was rejected.
var ErrNoPermittedFields = errors.New("no permitted fields in request")

const fieldPolicyQuery = "data.portal.fields.allowed"

// defaultFieldPolicy encodes the role→field tables. The board allow-list is
// a strict superset of the member list; the deny-list is subtracted for
// every role, so no self-service role can ever write banking details.
const defaultFieldPolicy = `package portal.fields

member_allowed := {
	"Telefon", "Mobile", "E-Mail",
	"Strasse", "PLZ", "Ort", "Adresszusatz",
	"zustellung-email", "zustellung-post",
}

board_allowed := member_allowed | {
	"Vorname", "Name", "Funktion", "Status",
	"Eintritt", "Geburtsdatum", "Bemerkungen",
}

denied := {"IBAN", "Versand-Email"}

allowed := member_allowed - denied if input.role == "member"

allowed := board_allowed - denied if input.role == "board"
`

// Authorizer evaluates the field policy. The policy is compiled once at
// construction; evaluation is pure computation.
type Authorizer struct {
	compiler *ast.Compiler
}

// NewAuthorizer compiles the given Rego policy, or the built-in default
// when policy is empty. The policy must define data.portal.fields.allowed.
func NewAuthorizer(policy string) (*Authorizer, error) {
	if policy == "" {
		policy = defaultFieldPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"fields.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("authz: compile field policy: %w", err)
	}
	return &Authorizer{compiler: compiler}, nil
}

// AllowList returns the set of fields the given role may change. Unknown
// roles get an empty set.
func (a *Authorizer) AllowList(ctx context.Context, role memberdomain.Role) (map[string]bool, error) {
	q := rego.New(
		rego.Query(fieldPolicyQuery),
		rego.Compiler(a.compiler),
		rego.Input(map[string]interface{}{"role": string(role)}),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("authz: eval field policy: %w", err)
	}
	allowed := make(map[string]bool)
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return allowed, nil
	}
	items, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("authz: field policy returned %T, want set of strings", rs[0].Expressions[0].Value)
	}
	for _, it := range items {
		if s, ok := it.(string); ok {
			allowed[s] = true
		}
	}
	return allowed, nil
}

// Filter partitions the requested changes into accepted and rejected per
// the role's allow-list. Returns ErrNoPermittedFields (with the rejected
// set) when nothing survives.
func (a *Authorizer) Filter(ctx context.Context, role memberdomain.Role, changes map[string]string) (accepted, rejected map[string]string, err error) {
	allowed, err := a.AllowList(ctx, role)
	if err != nil {
		return nil, nil, err
	}
	accepted = make(map[string]string)
	rejected = make(map[string]string)
	for field, value := range changes {
		if allowed[field] {
			accepted[field] = value
		} else {
			rejected[field] = value
		}
	}
	if len(accepted) == 0 {
		return nil, rejected, ErrNoPermittedFields
	}
	return accepted, rejected, nil
}

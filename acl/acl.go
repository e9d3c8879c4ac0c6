// Package acl implements the ordered glob-rule access control list
// consulted by the executor before every call.
package acl

import (
	"path"
	"sort"

	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/execctx"
)

// Effect is the decision a rule or the default policy renders.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Conditions narrow when a rule applies beyond the caller/target glob
// match.
type Conditions struct {
	IdentityTypes []string `yaml:"identity_types,omitempty"`
	Roles         []string `yaml:"roles,omitempty"`
	MaxCallDepth  *int     `yaml:"max_call_depth,omitempty"`
}

// Rule is one ordered ACL entry.
type Rule struct {
	Callers    []string   `yaml:"callers"`
	Targets    []string   `yaml:"targets"`
	Effect     Effect     `yaml:"effect"`
	Conditions Conditions `yaml:"conditions,omitempty"`
}

// ACL is the ordered rule list plus the default effect applied when no
// rule matches.
type ACL struct {
	Rules         []Rule
	DefaultEffect Effect
}

// New builds an ACL; defaultEffect falls back to deny if empty.
func New(rules []Rule, defaultEffect Effect) *ACL {
	if defaultEffect == "" {
		defaultEffect = EffectDeny
	}
	return &ACL{Rules: rules, DefaultEffect: defaultEffect}
}

// Check evaluates moduleID against caller/identity per §4.7 step 5: scan
// rules in order, first rule whose callers glob matches the caller AND
// targets glob matches moduleID AND whose conditions all match decides.
// No match falls back to the default effect.
func (a *ACL) Check(moduleID string, ctx *execctx.Context) error {
	caller := ctx.CallerOrExternal()
	var identity *execctx.Identity
	if ctx != nil {
		identity = ctx.Identity
	}
	depth := 0
	if ctx != nil {
		depth = len(ctx.CallChain)
	}

	for _, rule := range a.Rules {
		if !anyGlobMatch(rule.Callers, caller) {
			continue
		}
		if !anyGlobMatch(rule.Targets, moduleID) {
			continue
		}
		if !conditionsMatch(rule.Conditions, identity, depth) {
			continue
		}
		if rule.Effect == EffectDeny {
			return apcerrors.ACLDenied(caller, moduleID)
		}
		return nil
	}

	if a.DefaultEffect == EffectDeny {
		return apcerrors.ACLDenied(caller, moduleID)
	}
	return nil
}

func anyGlobMatch(patterns []string, value string) bool {
	for _, p := range patterns {
		if globMatch(p, value) {
			return true
		}
	}
	return false
}

// globMatch supports '*' (any run of characters) and '?' (single
// character) against a dotted module id, treating '.' like any other
// character rather than a path separator — apcore.* matches
// apcore.foo.bar.
func globMatch(pattern, value string) bool {
	ok, err := path.Match(toPathGlob(pattern), toPathGlob(value))
	if err != nil {
		return false
	}
	return ok
}

// toPathGlob escapes nothing; module ids never contain '/', so '.' can
// safely stand in unescaped — path.Match treats '*' as matching any
// sequence including '.' since it isn't a separator in this string.
func toPathGlob(s string) string { return s }

func conditionsMatch(c Conditions, identity *execctx.Identity, callDepth int) bool {
	if len(c.IdentityTypes) > 0 {
		if identity == nil {
			return false
		}
		if !contains(c.IdentityTypes, identity.Type) {
			return false
		}
	}
	if len(c.Roles) > 0 {
		if identity == nil {
			return false
		}
		matched := false
		for _, role := range c.Roles {
			if identity.HasRole(role) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if c.MaxCallDepth != nil && callDepth > *c.MaxCallDepth {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// SortByTargetSpecificity is a convenience for loaders that want
// deterministic ordering when rules arrive unordered from multiple
// files; ACL evaluation itself never reorders rules, since first-match
// order is a configuration authoring concern, not an ACL invariant.
func SortByTargetSpecificity(rules []Rule) []Rule {
	out := append([]Rule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		return specificity(out[i].Targets) > specificity(out[j].Targets)
	})
	return out
}

func specificity(patterns []string) int {
	best := 0
	for _, p := range patterns {
		n := len(p)
		for _, c := range p {
			if c == '*' || c == '?' {
				n--
			}
		}
		if n > best {
			best = n
		}
	}
	return best
}

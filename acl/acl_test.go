package acl_test

import (
	"testing"

	"github.com/artpar/apcore/acl"
	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/execctx"
)

func TestCheck_FirstMatchWins(t *testing.T) {
	a := acl.New([]acl.Rule{
		{Callers: []string{"*"}, Targets: []string{"math.*"}, Effect: acl.EffectAllow},
		{Callers: []string{"*"}, Targets: []string{"*"}, Effect: acl.EffectDeny},
	}, acl.EffectDeny)

	ctx := execctx.Root(nil)
	if err := a.Check("math.add", ctx); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if err := a.Check("text.concat", ctx); !apcerrors.Is(err, apcerrors.KindACLDenied) {
		t.Fatalf("expected ACLDenied, got %v", err)
	}
}

func TestCheck_NoMatchUsesDefault(t *testing.T) {
	a := acl.New(nil, acl.EffectAllow)
	if err := a.Check("anything", execctx.Root(nil)); err != nil {
		t.Fatalf("expected default allow, got %v", err)
	}

	denyAll := acl.New(nil, acl.EffectDeny)
	if err := denyAll.Check("anything", execctx.Root(nil)); !apcerrors.Is(err, apcerrors.KindACLDenied) {
		t.Fatalf("expected default deny, got %v", err)
	}
}

func TestCheck_RoleCondition(t *testing.T) {
	a := acl.New([]acl.Rule{
		{Callers: []string{"*"}, Targets: []string{"admin.*"}, Effect: acl.EffectAllow, Conditions: acl.Conditions{Roles: []string{"admin"}}},
	}, acl.EffectDeny)

	ctx := execctx.Root(nil)
	ctx.Identity = &execctx.Identity{Roles: []string{"viewer"}}
	if err := a.Check("admin.purge", ctx); !apcerrors.Is(err, apcerrors.KindACLDenied) {
		t.Fatalf("expected deny for missing role, got %v", err)
	}

	ctx.Identity = &execctx.Identity{Roles: []string{"admin"}}
	if err := a.Check("admin.purge", ctx); err != nil {
		t.Fatalf("expected allow for admin role, got %v", err)
	}
}

func TestCheck_MaxCallDepthCondition(t *testing.T) {
	depth := 1
	a := acl.New([]acl.Rule{
		{Callers: []string{"*"}, Targets: []string{"deep.*"}, Effect: acl.EffectAllow, Conditions: acl.Conditions{MaxCallDepth: &depth}},
	}, acl.EffectDeny)

	shallow := execctx.Root(nil)
	if err := a.Check("deep.call", shallow); err != nil {
		t.Fatalf("expected allow at depth 0, got %v", err)
	}

	deep := shallow.Child("a").Child("b")
	if err := a.Check("deep.call", deep); !apcerrors.Is(err, apcerrors.KindACLDenied) {
		t.Fatalf("expected deny past max call depth, got %v", err)
	}
}

func TestGlobMatch_Wildcards(t *testing.T) {
	a := acl.New([]acl.Rule{
		{Callers: []string{"svc.?"}, Targets: []string{"*"}, Effect: acl.EffectAllow},
	}, acl.EffectDeny)

	ctx := execctx.Root(nil)
	ctx.CallerID = "svc.a"
	if err := a.Check("anything", ctx); err != nil {
		t.Fatalf("expected ? wildcard to match single char, got %v", err)
	}
}

package harness

import (
	"context"
	"fmt"

	"github.com/satchelwiki/satchel/internal/recipe"
)

// checkAssertions validates the final store state against the scenario's
// assertion list.
func (r *runner) checkAssertions(ctx context.Context) error {
	resolver := recipe.NewResolver(r.store)
	for i, a := range r.scenario.Assertions {
		var err error
		switch a.Type {
		case AssertResolved:
			err = r.assertResolved(ctx, resolver, a)
		case AssertAbsent:
			err = r.assertAbsent(ctx, resolver, a)
		case AssertRevisionCount:
			err = r.assertRevisionCount(ctx, a)
		case AssertDeltaCount:
			err = r.assertDeltaCount(ctx, resolver, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			return fmt.Errorf("assertions[%d] (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

func (r *runner) assertResolved(ctx context.Context, resolver *recipe.Resolver, a Assertion) error {
	rev, err := resolver.ResolveOne(ctx, a.Recipe, a.Title)
	if err != nil {
		return err
	}
	if rev == nil {
		return fmt.Errorf("%s does not resolve in recipe %s", a.Title, a.Recipe)
	}
	if a.Bag != "" && rev.Bag != a.Bag {
		return fmt.Errorf("%s resolved from bag %s, expected %s", a.Title, rev.Bag, a.Bag)
	}
	if a.Text != "" && rev.Fields["text"] != a.Text {
		return fmt.Errorf("%s resolved with text %q, expected %q", a.Title, rev.Fields["text"], a.Text)
	}
	return nil
}

func (r *runner) assertAbsent(ctx context.Context, resolver *recipe.Resolver, a Assertion) error {
	rev, err := resolver.ResolveOne(ctx, a.Recipe, a.Title)
	if err != nil {
		return err
	}
	if rev != nil {
		return fmt.Errorf("%s unexpectedly resolves in recipe %s (bag %s, revision %d)",
			a.Title, a.Recipe, rev.Bag, rev.ID)
	}
	return nil
}

func (r *runner) assertRevisionCount(ctx context.Context, a Assertion) error {
	revs, err := r.store.ChangesSince(ctx, []string{a.Bag}, 0, true)
	if err != nil {
		return err
	}
	if len(revs) != a.Count {
		return fmt.Errorf("bag %s holds %d revisions, expected %d", a.Bag, len(revs), a.Count)
	}
	return nil
}

func (r *runner) assertDeltaCount(ctx context.Context, resolver *recipe.Resolver, a Assertion) error {
	revs, err := resolver.ChangesSince(ctx, a.Recipe, a.Cursor, a.IncludeDeleted)
	if err != nil {
		return err
	}
	if len(revs) != a.Count {
		return fmt.Errorf("delta over recipe %s from cursor %d returned %d revisions, expected %d",
			a.Recipe, a.Cursor, len(revs), a.Count)
	}
	return nil
}

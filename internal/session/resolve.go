package session

import (
	"fmt"
	"slices"

	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/errors"
	"github.com/zhubert/weft/internal/logger"
)

// ResolveOperation returns the repository at the current operation. If
// concurrent writers left several operation heads, heads that are ancestors
// of another head are removed from the head set and the remaining ones are
// merged into an unpublished operation.
func ResolveOperation(store engine.Store, user engine.Signature) (*engine.ReadonlyRepo, error) {
	const op = errors.Op("session.ResolveOperation")
	fail := func(err error) error {
		return errors.E(op, errors.KindIO, "cannot open workspace", err)
	}

	heads, err := store.OpHeads()
	if err != nil {
		return nil, fail(err)
	}
	if len(heads) == 0 {
		return nil, fail(fmt.Errorf("no operation heads"))
	}
	slices.Sort(heads)

	heads, err = pruneAncestorHeads(store, heads)
	if err != nil {
		return nil, fail(err)
	}
	repo, err := engine.LoadRepoAt(store, heads[0])
	if err != nil {
		return nil, fail(err)
	}
	if len(heads) == 1 {
		return repo, nil
	}

	log := logger.ComponentLogger("Session")
	log.Info("merging concurrent operations", "heads", len(heads))
	tx := repo.StartTransaction(user)
	for _, id := range heads[1:] {
		other, err := store.ReadOperation(id)
		if err != nil {
			return nil, fail(err)
		}
		if err := tx.Repo().MergeOperation(other); err != nil {
			return nil, fail(fmt.Errorf("merge operation %s: %w", id.Short(), err))
		}
		if _, err := tx.Repo().RebaseDescendants(); err != nil {
			return nil, fail(err)
		}
	}
	merged, err := tx.WriteUnpublished("resolve concurrent operations")
	if err != nil {
		return nil, fail(err)
	}
	return merged, nil
}

// pruneAncestorHeads drops heads that another head descends from, removing
// them from the store's head set as it goes.
func pruneAncestorHeads(store engine.Store, heads []engine.OperationID) ([]engine.OperationID, error) {
	kept := slices.Clone(heads)
	for _, h := range heads {
		for _, other := range kept {
			if other == h {
				continue
			}
			isAncestor, err := engine.IsOpAncestor(store, h, other)
			if err != nil {
				return nil, err
			}
			if !isAncestor {
				continue
			}
			if err := store.UpdateOpHeads([]engine.OperationID{h}, other); err != nil {
				return nil, err
			}
			kept = slices.DeleteFunc(kept, func(id engine.OperationID) bool { return id == h })
			break
		}
	}
	return kept, nil
}

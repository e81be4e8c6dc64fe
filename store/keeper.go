package store

import (
	"fmt"
	"log/slog"

	"tonic"
)

// Keeper exposes one shared Tree as the process-wide "store" service. The
// first bind creates the tree and, when the setup parameter "archive"
// names a sqlite file, restores the last snapshot from it. Later binds
// resolve to the same instance; the access parameter "as" tags the
// accessor in the debug log.
type Keeper struct {
	*tonic.Tonic
	tree    *Tree
	archive *Archive
	log     *slog.Logger
}

// Tree returns the shared tree.
func (k *Keeper) Tree() *Tree { return k.tree }

// KeeperClass is the "store" service. The event op "checkpoint" snapshots
// the tree to the archive; the final snapshot runs when the creator's
// finish cascades in.
var KeeperClass = &tonic.Class{
	Name:    "keeper",
	Service: "store",
	Setup:   []string{"archive"},
	Access:  []string{"as"},
	New: func(t *tonic.Tonic) tonic.Registrant {
		return &Keeper{
			Tonic: t,
			tree:  NewTree(),
			log:   slog.With("component", "store"),
		}
	},
	OnStart:    keeperStart,
	OnFinished: keeperFinished,
	OnAccess:   keeperAccess,
	Ops: []tonic.Op{
		{Name: "checkpoint", Category: tonic.Event, Do: keeperCheckpoint},
	},
}

func keeperStart(r tonic.Registrant, _ any) error {
	k := r.(*Keeper)
	path, ok := k.Params().String("archive")
	if !ok || path == "" {
		return nil
	}
	a, err := OpenArchive(path)
	if err != nil {
		return fmt.Errorf("open store archive: %w", err)
	}
	k.archive = a
	if err := a.Restore(k.tree); err != nil {
		return fmt.Errorf("restore store archive: %w", err)
	}
	k.log.Debug("store archive restored", "path", path)
	return nil
}

func keeperAccess(svc, ctx tonic.Registrant, access tonic.Params) error {
	k := svc.(*Keeper)
	var accessor tonic.ID
	if ctx != nil {
		accessor = ctx.Core().ID()
	}
	as, _ := access.String("as")
	k.log.Debug("store accessed", "essence", k.ID(), "accessor", accessor, "as", as)
	return nil
}

func keeperCheckpoint(r tonic.Registrant, _ any) error {
	k := r.(*Keeper)
	if k.archive == nil {
		return nil
	}
	if err := k.archive.Snapshot(k.tree); err != nil {
		return fmt.Errorf("checkpoint store: %w", err)
	}
	k.log.Debug("store checkpointed")
	return nil
}

func keeperFinished(r tonic.Registrant, _ any) error {
	k := r.(*Keeper)
	if k.archive == nil {
		return nil
	}
	err := k.archive.Snapshot(k.tree)
	if cerr := k.archive.Close(); err == nil {
		err = cerr
	}
	k.archive = nil
	if err != nil {
		return fmt.Errorf("final store checkpoint: %w", err)
	}
	return nil
}

package syncer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kpkab/nested-ad-group-to-flat-db-group/account"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/config"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/directory"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/logging"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/workingset"
)

var coordLog = logging.NewLogger("coordinator")

// Coordinator orchestrates one full sync pass: clear the working set, resolve
// and persist every configured target, then reconcile each persisted group
// against the destination account. Strictly sequential; a second instance
// racing on the same working-set directory corrupts both runs.
type Coordinator struct {
	dir        *directory.Client
	acct       *account.Client
	store      *workingset.Store
	resolver   *Resolver
	reconciler *Reconciler
	accountID  string
	dryRun     bool
}

func NewCoordinator(dir *directory.Client, acct *account.Client, store *workingset.Store, accountID string, dryRun bool) *Coordinator {
	return &Coordinator{
		dir:        dir,
		acct:       acct,
		store:      store,
		resolver:   NewResolver(dir),
		reconciler: NewReconciler(acct, store),
		accountID:  accountID,
		dryRun:     dryRun,
	}
}

// Run executes a full sync pass for the given target document.
//
// Resolution failures abandon the failing target and continue with the next;
// files already written for an abandoned target stay in place. A users target
// missing from the directory aborts the whole run with ErrTargetNotFound.
func (c *Coordinator) Run(targets *config.Targets) error {
	runID := uuid.NewString()
	coordLog.Info("Starting sync run %s (dry-run: %v)", runID, c.dryRun)

	if targets.Empty() {
		coordLog.Warn("Target document names nothing to sync")
		return nil
	}

	// Stale files from a prior run must not leak into this reconciliation.
	// Cleanup trouble is logged but does not abort the run.
	if err := c.store.Clear(); err != nil {
		coordLog.Error("Working set cleanup failed: %v", err)
	}

	if len(targets.GroupIDs) > 0 {
		coordLog.Info("Syncing group_ids: %s", strings.Join(targets.GroupIDs, ", "))
		for _, groupID := range targets.GroupIDs {
			if err := c.syncGroupTarget(groupID); err != nil {
				coordLog.Error("Abandoning group %s: %v", groupID, err)
			}
		}
	}

	if len(targets.GroupNames) > 0 {
		coordLog.Info("Syncing group_names: %s", strings.Join(targets.GroupNames, ", "))
		for _, name := range targets.GroupNames {
			groupID, err := c.resolver.ResolveGroupName(name)
			if err != nil {
				coordLog.Error("Abandoning group name %q: %v", name, err)
				continue
			}
			coordLog.Info("Group name %q resolved to group id %s", name, groupID)
			if err := c.syncGroupTarget(groupID); err != nil {
				coordLog.Error("Abandoning group %s: %v", groupID, err)
			}
		}
	}

	if len(targets.Users) > 0 {
		coordLog.Info("Creating users directly: %s", strings.Join(targets.Users, ", "))
		for _, name := range targets.Users {
			if err := c.createDirectUser(name); err != nil {
				return err
			}
		}
	}

	if unknown := c.store.UnknownFiles(); len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnexpectedWorkingSet, strings.Join(unknown, ", "))
	}

	if c.dryRun {
		coordLog.Info("Dry run: skipping account reconciliation for %d group(s)", len(c.store.GroupIDs()))
		return nil
	}

	for _, groupID := range c.store.GroupIDs() {
		grp, err := c.dir.Group(groupID)
		if err != nil {
			coordLog.Error("Failed to fetch display name for group %s, skipping reconciliation: %v", groupID, err)
			continue
		}
		coordLog.Info("Reconciling group %s (%s) against account", grp.DisplayName, groupID)
		if err := c.reconciler.ReconcileGroup(groupID, grp.DisplayName); err != nil {
			if errors.Is(err, workingset.ErrMalformed) {
				coordLog.Error("Working set for group %s is malformed: %v", groupID, err)
			} else {
				coordLog.Error("Reconciliation of group %s stopped early: %v", groupID, err)
			}
			continue
		}
	}

	coordLog.Info("Sync run %s finished", runID)
	return nil
}

// syncGroupTarget resolves one target group and persists its partitions.
func (c *Coordinator) syncGroupTarget(groupID string) error {
	coordLog.Info("################################################################")
	coordLog.Info("Now working on group id %s", groupID)
	coordLog.Info("Working set files: %s, %s, %s",
		c.store.FileName(groupID, workingset.KindGroups),
		c.store.FileName(groupID, workingset.KindUsers),
		c.store.FileName(groupID, workingset.KindServicePrincipals))
	coordLog.Info("################################################################")

	set, err := c.resolver.Resolve(groupID)
	if err != nil {
		return err
	}

	if err := c.store.PersistGroups(groupID, set.SubGroups); err != nil {
		return err
	}
	if err := c.store.PersistUsers(groupID, set.Users); err != nil {
		return err
	}

	sps, err := c.resolver.DiscoverServicePrincipals(c.accountID, set.SubGroups)
	if err != nil {
		// Files persisted above stay in place; there is no rollback for an
		// abandoned target.
		return err
	}
	if err := c.store.PersistServicePrincipals(groupID, sps); err != nil {
		return err
	}

	coordLog.Info("Group %s resolved: %d sub-group(s), %d user(s), %d service principal(s)",
		groupID, len(set.SubGroups), len(set.Users), len(sps))
	return nil
}

// createDirectUser validates a raw user display name against the directory
// and creates it in the account when absent. No group attachment. A name the
// directory does not know aborts the run.
func (c *Coordinator) createDirectUser(name string) error {
	coordLog.Info("Validating that user %q exists in the directory", name)

	matches, err := c.dir.UsersByDisplayName(name)
	if err != nil {
		return fmt.Errorf("failed to validate user %q: %w", name, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("user %q: %w", name, ErrTargetNotFound)
	}

	displayName := matches[0].DisplayName
	coordLog.Info("User %q is valid in the directory, checking the account", name)

	_, err = c.acct.FindUserByDisplayName(displayName)
	if err == nil {
		coordLog.Info("User %s already exists in account, no action taken", displayName)
		return nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return fmt.Errorf("failed to check user %q in account: %w", displayName, err)
	}

	if c.dryRun {
		coordLog.Info("Dry run: would create user %s in account", displayName)
		return nil
	}

	created, err := c.acct.CreateUser(account.User{
		DisplayName: displayName,
		UserName:    displayName,
		Active:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to create user %q in account: %w", displayName, err)
	}
	coordLog.Info("User %s created in account (id %s)", created.DisplayName, created.ID)
	return nil
}

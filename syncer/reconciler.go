package syncer

import (
	"errors"
	"fmt"

	"github.com/kpkab/nested-ad-group-to-flat-db-group/account"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/logging"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/workingset"
)

var reconcilerLog = logging.NewLogger("reconciler")

// Reconciler applies one target group's working set to the destination
// account: ensures the group exists, creates missing identities, and appends
// each to the group's membership roster.
type Reconciler struct {
	acct  *account.Client
	store *workingset.Store
}

func NewReconciler(acct *account.Client, store *workingset.Store) *Reconciler {
	return &Reconciler{acct: acct, store: store}
}

// ReconcileGroup syncs the pending users and service principals recorded for
// groupID into the destination group named displayName. A group with neither
// a users nor a service-principals file is a terminal success with no action.
//
// Identity lookup and creation failures abort the remaining records of the
// current file; members already added in this run are not rolled back.
func (r *Reconciler) ReconcileGroup(groupID, displayName string) error {
	hasUsers := r.store.Has(groupID, workingset.KindUsers)
	hasSPs := r.store.Has(groupID, workingset.KindServicePrincipals)

	if !hasUsers && !hasSPs {
		reconcilerLog.Info("Group %s has no pending members, nothing to reconcile", displayName)
		return nil
	}

	grp, err := r.ensureGroup(displayName)
	if err != nil {
		return err
	}

	// The roster accumulates across both files so the final update always
	// carries the complete membership.
	members := append([]account.Member{}, grp.Members...)

	if hasUsers {
		members, err = r.reconcileUsers(groupID, grp, members)
		if err != nil {
			return fmt.Errorf("failed to reconcile users of group %s: %w", displayName, err)
		}
	}
	if hasSPs {
		_, err = r.reconcileServicePrincipals(groupID, grp, members)
		if err != nil {
			return fmt.Errorf("failed to reconcile service principals of group %s: %w", displayName, err)
		}
	}

	return nil
}

// ensureGroup returns the destination group with its current roster, creating
// it empty when no group carries the display name. Idempotent on display
// name: a second call finds the group created by the first.
func (r *Reconciler) ensureGroup(displayName string) (*account.Group, error) {
	grp, err := r.acct.FindGroupByDisplayName(displayName)
	if err == nil {
		reconcilerLog.Info("Group %s already exists in account (id %s, %d member(s))", displayName, grp.ID, len(grp.Members))
		return grp, nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return nil, fmt.Errorf("failed to check group %s in account: %w", displayName, err)
	}

	reconcilerLog.Info("Group %s not present in account, creating it", displayName)
	created, err := r.acct.CreateGroup(displayName)
	if err != nil {
		return nil, fmt.Errorf("failed to create group %s in account: %w", displayName, err)
	}
	return created, nil
}

func (r *Reconciler) reconcileUsers(groupID string, grp *account.Group, members []account.Member) ([]account.Member, error) {
	recs, err := r.store.LoadUsers(groupID)
	if err != nil {
		return members, err
	}

	for _, rec := range recs {
		existing, err := r.acct.FindUserByDisplayName(rec.DisplayName)
		var id string
		switch {
		case err == nil:
			reconcilerLog.Info("User %s already exists in account, adding to group without creating", rec.DisplayName)
			id = existing.ID
		case errors.Is(err, account.ErrNotFound):
			reconcilerLog.Info("User %s does not exist in account, creating", rec.DisplayName)
			created, err := r.acct.CreateUser(account.User{
				DisplayName: rec.DisplayName,
				UserName:    rec.DisplayName,
				Active:      true,
			})
			if err != nil {
				return members, err
			}
			id = created.ID
		default:
			return members, err
		}

		members = append(members, account.Member{Display: rec.DisplayName, Value: id})
		if err := r.publishMembers(grp, members); err != nil {
			return members, err
		}
		reconcilerLog.Info("User %s added to group %s", rec.DisplayName, grp.DisplayName)
	}

	return members, nil
}

func (r *Reconciler) reconcileServicePrincipals(groupID string, grp *account.Group, members []account.Member) ([]account.Member, error) {
	recs, err := r.store.LoadServicePrincipals(groupID)
	if err != nil {
		return members, err
	}

	for _, rec := range recs {
		existing, err := r.acct.FindServicePrincipalByDisplayName(rec.DisplayName)
		var id string
		switch {
		case err == nil:
			reconcilerLog.Info("Service principal %s already exists in account, adding to group without creating", rec.DisplayName)
			id = existing.ID
		case errors.Is(err, account.ErrNotFound):
			reconcilerLog.Info("Service principal %s does not exist in account, creating", rec.DisplayName)
			created, err := r.acct.CreateServicePrincipal(account.ServicePrincipal{
				DisplayName:   rec.DisplayName,
				ApplicationID: rec.ApplicationID,
				Active:        true,
			})
			if err != nil {
				return members, err
			}
			id = created.ID
		default:
			return members, err
		}

		members = append(members, account.Member{Display: rec.DisplayName, Value: id})
		if err := r.publishMembers(grp, members); err != nil {
			return members, err
		}
		reconcilerLog.Info("Service principal %s added to group %s", rec.DisplayName, grp.DisplayName)
	}

	return members, nil
}

// publishMembers republishes the full accumulated roster after every single
// addition rather than batching at the end. A crash mid-file then leaves the
// group holding every member added so far; nothing is lost to an unflushed
// batch.
func (r *Reconciler) publishMembers(grp *account.Group, members []account.Member) error {
	if _, err := r.acct.ReplaceGroupMembers(grp.ID, grp.DisplayName, members); err != nil {
		return fmt.Errorf("failed to update membership of group %s: %w", grp.DisplayName, err)
	}
	return nil
}

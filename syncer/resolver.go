package syncer

import (
	"fmt"

	"github.com/kpkab/nested-ad-group-to-flat-db-group/directory"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/logging"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/workingset"
)

var resolverLog = logging.NewLogger("resolver")

// MembershipSet is the resolved transitive closure of one target group,
// partitioned by member kind. SubGroups always starts with the originating
// group's own record. Service principals are not part of this partition; they
// are discovered per sub-group in a second pass.
type MembershipSet struct {
	GroupID   string
	SubGroups []workingset.GroupRecord
	Users     []workingset.UserRecord
}

// Resolver turns a target group identifier into its partitioned transitive
// membership using the directory service.
type Resolver struct {
	dir *directory.Client
}

func NewResolver(dir *directory.Client) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve fetches the server-side transitive closure of the target group and
// partitions it by kind. Each transitive member lands in exactly one
// partition, determined solely by its kind discriminator.
func (r *Resolver) Resolve(groupID string) (*MembershipSet, error) {
	members, err := r.dir.TransitiveMembers(groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve transitive members of %s: %w", groupID, err)
	}
	resolverLog.Info("Group %s has %d transitive member(s)", groupID, len(members))

	orig, err := r.dir.Group(groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group %s: %w", groupID, err)
	}

	set := &MembershipSet{
		GroupID: groupID,
		// The originating group leads the sub-group list: the top-level group
		// itself may hold service principals that the discovery pass must see.
		SubGroups: []workingset.GroupRecord{{DisplayName: orig.DisplayName}},
	}

	for _, m := range members {
		switch m.Kind {
		case directory.KindGroup:
			set.SubGroups = append(set.SubGroups, workingset.GroupRecord{DisplayName: m.DisplayName})
		case directory.KindUser:
			set.Users = append(set.Users, workingset.UserRecord{
				UserPrincipalName: m.UserPrincipalName,
				GivenName:         m.GivenName,
				FamilyName:        m.Surname,
				DisplayName:       m.DisplayName,
			})
		case directory.KindServicePrincipal:
			// Transitive-member responses do not reliably carry full
			// service-principal detail at arbitrary depth. Service principals
			// are picked up by DiscoverServicePrincipals, which re-queries
			// each sub-group's direct members.
			resolverLog.Debug("Skipping transitive service principal %s, discovery pass will pick it up", m.DisplayName)
		default:
			resolverLog.Warn("Transitive member %s of group %s has unknown kind, skipping", m.ID, groupID)
		}
	}

	return set, nil
}

// ResolveGroupName maps a group display name to its identifier via a
// prefix-match query, taking the first match. Returns ErrGroupNameNotFound
// when nothing matches.
func (r *Resolver) ResolveGroupName(name string) (string, error) {
	groups, err := r.dir.GroupsByNamePrefix(name)
	if err != nil {
		return "", fmt.Errorf("failed to look up group name %q: %w", name, err)
	}
	if len(groups) == 0 {
		return "", fmt.Errorf("group %q: %w", name, ErrGroupNameNotFound)
	}
	if len(groups) > 1 {
		resolverLog.Warn("Group name %q matched %d groups, using the first (%s)", name, len(groups), groups[0].ID)
	}
	return groups[0].ID, nil
}

// DiscoverServicePrincipals walks each resolved sub-group by display name and
// collects the service principals among its direct members. Sub-groups with
// no members, or names that cannot be resolved, are logged and skipped; they
// never fail the target.
func (r *Resolver) DiscoverServicePrincipals(accountID string, subGroups []workingset.GroupRecord) ([]workingset.ServicePrincipalRecord, error) {
	var sps []workingset.ServicePrincipalRecord

	for _, sub := range subGroups {
		resolverLog.Info("Scanning group %s for service principals", sub.DisplayName)

		matches, err := r.dir.GroupsByName(sub.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("failed to look up sub-group %q: %w", sub.DisplayName, err)
		}
		if len(matches) == 0 {
			resolverLog.Warn("Sub-group %q not found by name, skipping", sub.DisplayName)
			continue
		}
		if len(matches) > 1 {
			// Ambiguous display names resolve to the first match. Known
			// limitation: the directory does not enforce unique group names.
			resolverLog.Warn("Sub-group name %q is ambiguous (%d matches), using the first", sub.DisplayName, len(matches))
		}

		members, err := r.dir.GroupMembers(matches[0].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch members of sub-group %q: %w", sub.DisplayName, err)
		}
		if len(members) == 0 {
			resolverLog.Info("Group %s has no direct members", sub.DisplayName)
			continue
		}

		for _, m := range members {
			if m.Kind != directory.KindServicePrincipal {
				resolverLog.Debug("Member %s of group %s is not a service principal", m.DisplayName, sub.DisplayName)
				continue
			}
			resolverLog.Info("Group %s contains service principal %s", sub.DisplayName, m.DisplayName)
			sps = append(sps, workingset.ServicePrincipalRecord{
				AccountID:     accountID,
				ID:            m.ID,
				DisplayName:   m.DisplayName,
				ApplicationID: servicePrincipalAppID(m),
				Active:        true,
			})
		}
	}

	return sps, nil
}

// servicePrincipalAppID prefers the application identifier; direct-member
// payloads carry it at this depth, but fall back to the object id when the
// field is absent.
func servicePrincipalAppID(m directory.Member) string {
	if m.AppID != "" {
		return m.AppID
	}
	return m.ID
}

package syncer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpkab/nested-ad-group-to-flat-db-group/config"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/workingset"
)

func newTestCoordinator(t *testing.T, fd *fakeDirectory, fa *fakeAccount, dryRun bool) (*Coordinator, *workingset.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := workingset.NewStore(root)
	require.NoError(t, err)
	return NewCoordinator(fd.client(), fa.client(), store, "acct-1", dryRun), store, root
}

func TestRun_EndToEnd(t *testing.T) {
	fd := newFakeDirectory(t)
	fd.addGroup("g1", "Top Group")
	fd.addGroup("g2", "Nested Group")
	fd.transitive["g1"] = []map[string]interface{}{
		graphGroup("g2", "Nested Group"),
		graphUser("u1", "User One", "user.one@example.com"),
	}
	fa := newFakeAccount(t)

	coord, store, _ := newTestCoordinator(t, fd, fa, false)
	require.NoError(t, coord.Run(&config.Targets{GroupIDs: []string{"g1"}}))

	// Working set: the originating group plus its nested sub-group, one user,
	// and no service-principal file.
	groups, err := store.LoadGroups("g1")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Top Group", groups[0].DisplayName)

	users, err := store.LoadUsers("g1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "User One", users[0].DisplayName)
	assert.False(t, store.Has("g1", workingset.KindServicePrincipals))

	// Destination: group created under the originating group's name, holding
	// the one resolved user.
	grp := fa.groupByName("Top Group")
	require.NotNil(t, grp)
	require.Len(t, grp.Members, 1)
	assert.Equal(t, "User One", grp.Members[0].Display)
	assert.Equal(t, 1, fa.userCreates)
	assert.Equal(t, 1, fa.memberPuts)
}

func TestRun_ServicePrincipalsFromSubGroups(t *testing.T) {
	fd := newFakeDirectory(t)
	fd.addGroup("g1", "Top Group")
	fd.addGroup("g2", "Nested Group")
	fd.transitive["g1"] = []map[string]interface{}{
		graphGroup("g2", "Nested Group"),
	}
	fd.members["g2"] = []map[string]interface{}{
		graphSP("sp1", "App One", "app-1"),
	}
	fa := newFakeAccount(t)

	coord, store, _ := newTestCoordinator(t, fd, fa, false)
	require.NoError(t, coord.Run(&config.Targets{GroupIDs: []string{"g1"}}))

	sps, err := store.LoadServicePrincipals("g1")
	require.NoError(t, err)
	require.Len(t, sps, 1)
	assert.Equal(t, "acct-1", sps[0].AccountID)
	assert.Equal(t, "app-1", sps[0].ApplicationID)

	assert.Equal(t, 1, fa.spCreates)
	grp := fa.groupByName("Top Group")
	require.NotNil(t, grp)
	require.Len(t, grp.Members, 1)
	assert.Equal(t, "App One", grp.Members[0].Display)
}

func TestRun_GroupNameTargets(t *testing.T) {
	fd := newFakeDirectory(t)
	fd.addGroup("g1", "Data Engineers")
	fd.transitive["g1"] = []map[string]interface{}{
		graphUser("u1", "User One", "user.one@example.com"),
	}
	fa := newFakeAccount(t)

	coord, store, _ := newTestCoordinator(t, fd, fa, false)
	// The second name matches nothing: that target is skipped, not fatal.
	err := coord.Run(&config.Targets{GroupNames: []string{"Data Eng", "Platform"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"g1"}, store.GroupIDs())
	require.NotNil(t, fa.groupByName("Data Engineers"))
}

func TestRun_UnknownDirectoryUserAbortsRun(t *testing.T) {
	fd := newFakeDirectory(t)
	fa := newFakeAccount(t)

	coord, _, _ := newTestCoordinator(t, fd, fa, false)
	err := coord.Run(&config.Targets{Users: []string{"Ghost User"}})
	require.ErrorIs(t, err, ErrTargetNotFound)
	assert.Zero(t, fa.requests, "account is never touched for an unknown user")
}

func TestRun_DirectUser(t *testing.T) {
	fd := newFakeDirectory(t)
	fd.users = []map[string]interface{}{
		graphUser("u1", "User One", "user.one@example.com"),
	}
	fa := newFakeAccount(t)

	coord, _, _ := newTestCoordinator(t, fd, fa, false)
	require.NoError(t, coord.Run(&config.Targets{Users: []string{"User One"}}))
	assert.Equal(t, 1, fa.userCreates)
	assert.Zero(t, fa.groupCreates, "direct users get no group attachment")

	// A second run finds the user in the account and takes no action.
	require.NoError(t, coord.Run(&config.Targets{Users: []string{"User One"}}))
	assert.Equal(t, 1, fa.userCreates)
}

func TestRun_ClearsStaleWorkingSet(t *testing.T) {
	fd := newFakeDirectory(t)
	fd.addGroup("g1", "Top Group")
	fd.transitive["g1"] = []map[string]interface{}{
		graphUser("u1", "User One", "user.one@example.com"),
	}
	fa := newFakeAccount(t)

	coord, store, root := newTestCoordinator(t, fd, fa, false)

	// Leftovers from an aborted earlier run.
	stale := filepath.Join(root, "g9_tmp_users.txt")
	require.NoError(t, os.WriteFile(stale, []byte(`{"displayName":"Stale User"}`+"\n"), 0644))

	require.NoError(t, coord.Run(&config.Targets{GroupIDs: []string{"g1"}}))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale file must not survive the run")
	assert.Equal(t, []string{"g1"}, store.GroupIDs())
	assert.Nil(t, fa.groupByName("Stale Group"))
}

func TestRun_ResolutionFailureAbandonsTargetOnly(t *testing.T) {
	fd := newFakeDirectory(t)
	// gBad is never registered: its group fetch 404s after the transitive call.
	fd.transitive["gBad"] = []map[string]interface{}{}
	fd.addGroup("g1", "Top Group")
	fd.transitive["g1"] = []map[string]interface{}{
		graphUser("u1", "User One", "user.one@example.com"),
	}
	fa := newFakeAccount(t)

	coord, _, _ := newTestCoordinator(t, fd, fa, false)
	require.NoError(t, coord.Run(&config.Targets{GroupIDs: []string{"gBad", "g1"}}))

	// The healthy target still syncs.
	require.NotNil(t, fa.groupByName("Top Group"))
	assert.Equal(t, 1, fa.userCreates)
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	fd := newFakeDirectory(t)
	fd.addGroup("g1", "Top Group")
	fd.transitive["g1"] = []map[string]interface{}{
		graphUser("u1", "User One", "user.one@example.com"),
	}
	fa := newFakeAccount(t)

	coord, store, _ := newTestCoordinator(t, fd, fa, true)
	require.NoError(t, coord.Run(&config.Targets{GroupIDs: []string{"g1"}}))

	// Resolution and persistence still happen so the working set can be
	// inspected, but the account never sees a request.
	users, err := store.LoadUsers("g1")
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Zero(t, fa.requests)
}

func TestRun_EmptyTargets(t *testing.T) {
	fd := newFakeDirectory(t)
	fa := newFakeAccount(t)

	coord, _, root := newTestCoordinator(t, fd, fa, false)

	// An empty document is a no-op: not even the working set is cleared.
	stale := filepath.Join(root, "g9_tmp_users.txt")
	require.NoError(t, os.WriteFile(stale, []byte(`{"displayName":"Stale User"}`+"\n"), 0644))

	require.NoError(t, coord.Run(&config.Targets{}))
	_, err := os.Stat(stale)
	assert.NoError(t, err)
	assert.Zero(t, fa.requests)
}

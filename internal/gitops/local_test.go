package gitops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitcollab/core/internal/classerr"
	helpers "github.com/gitcollab/core/internal/testutil/testutils"
)

// seedRepo creates a repository with one committed file on master and
// returns its path.
func seedRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o600))
	require.NoError(t, Add(dir, []string{"."}))
	_, err := Commit(dir, CommitOptions{
		Message:     "initial commit",
		AuthorName:  "tester",
		AuthorEmail: "tester@example.com",
	})
	require.NoError(t, err)
	return dir
}

func TestInitAddCommitStatus(t *testing.T) {
	dir := seedRepo(t)

	st, err := Status(dir)
	require.NoError(t, err)
	assert.True(t, st.Clean)
	assert.Equal(t, "master", st.Branch)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o600))
	st, err = Status(dir)
	require.NoError(t, err)
	assert.False(t, st.Clean)
	require.Len(t, st.Files, 1)
	assert.Equal(t, "new.txt", st.Files[0].Path)
}

func TestBranchCheckoutTag(t *testing.T) {
	dir := seedRepo(t)

	require.NoError(t, Branch(dir, "feature/x"))
	require.NoError(t, Checkout(dir, "feature/x", false))

	st, err := Status(dir)
	require.NoError(t, err)
	assert.Equal(t, "feature/x", st.Branch)

	branches, err := ListBranches(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"feature/x", "master"}, branches)

	require.NoError(t, Tag(dir, "v1", TagOptions{}))
	require.NoError(t, Tag(dir, "v1.1", TagOptions{
		Message: "annotated", TaggerName: "tester", TaggerEmail: "t@example.com",
	}))

	err = Branch(dir, "x..y")
	require.Error(t, err)
	assert.True(t, classerr.HasCategory(err, classerr.CategoryProtocol))
}

func TestRemoteAddSetRemove(t *testing.T) {
	dir := seedRepo(t)

	require.NoError(t, RemoteAdd(dir, "origin", "https://github.com/example/repo.git"))

	err := RemoteAdd(dir, "origin", "https://github.com/example/other.git")
	require.Error(t, err)
	assert.True(t, classerr.HasCategory(err, classerr.CategoryProtocol))

	require.NoError(t, RemoteSet(dir, "origin", "https://github.com/example/two.git"))
	require.NoError(t, RemoteRemove(dir, "origin"))

	err = RemoteRemove(dir, "origin")
	require.Error(t, err)
	assert.True(t, classerr.HasCategory(err, classerr.CategoryProtocol))
}

func TestWorktreeAddListRemove(t *testing.T) {
	dir := seedRepo(t)
	require.NoError(t, Branch(dir, "wt-branch"))

	dest := filepath.Join(t.TempDir(), "linked")
	require.NoError(t, WorktreeAdd(dir, dest, "wt-branch"))

	// The linked checkout materializes the committed tree.
	_, err := os.Stat(filepath.Join(dest, "README.md"))
	require.NoError(t, err)

	list, err := WorktreeList(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Main)
	assert.Equal(t, "linked", list[1].Name)
	assert.Equal(t, "wt-branch", list[1].Branch)

	require.NoError(t, WorktreeRemove(dir, "linked"))
	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))

	err = WorktreeRemove(dir, "linked")
	require.Error(t, err)
	assert.True(t, classerr.HasCategory(err, classerr.CategoryProtocol))
}

func TestCloneLocalAndFetch(t *testing.T) {
	src := seedRepo(t)
	dest := filepath.Join(t.TempDir(), "clone")

	var phases []string
	err := CloneBlocking(t.Context(), src, dest, Options{
		OnProgress: func(p Progress) { phases = append(phases, p.Phase) },
	})
	require.NoError(t, err)

	st, err := Status(dest)
	require.NoError(t, err)
	assert.True(t, st.Clean)

	// A second fetch against an unchanged source is a no-op, not an error.
	require.NoError(t, FetchBlocking(t.Context(), "", dest, Options{}))
}

func TestStatusSeesExternallyCreatedCommits(t *testing.T) {
	_, w, dir := helpers.SetupTestGitRepo(t)
	helpers.CommitFile(t, w, dir, "a.txt", "one\n")

	st, err := Status(dir)
	require.NoError(t, err)
	assert.True(t, st.Clean)
	assert.Equal(t, "master", st.Branch)

	branches, err := ListBranches(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"master"}, branches)
}

func TestCloneMissingSourceClassified(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "clone")
	err := CloneBlocking(t.Context(), filepath.Join(t.TempDir(), "nope"), dest, Options{})
	require.Error(t, err)
	te, ok := classerr.AsClassified(err)
	require.True(t, ok)
	assert.NotEmpty(t, te.Category())
}

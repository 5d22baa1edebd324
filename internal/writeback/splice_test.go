package writeback

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const descriptorLine = `<property name="hibernate.dialect" value="org.hibernate.dialect.H2Dialect"/>`

func tempFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "splice-test-*")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func leftovers(t *testing.T, path string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*"))
	require.NoError(t, err)
	return matches
}

func TestSplice_ReplaceMiddle(t *testing.T) {
	path := tempFile(t, descriptorLine)
	start := len(`<property name="hibernate.dialect" value="`)
	end := start + len("org.hibernate.dialect.H2Dialect")

	require.NoError(t, Splice(path, start, end, []byte("org.hibernate.dialect.PostgreSQL95Dialect")))

	got, _ := os.ReadFile(path)
	assert.Equal(t, `<property name="hibernate.dialect" value="org.hibernate.dialect.PostgreSQL95Dialect"/>`, string(got))
	assert.Empty(t, leftovers(t, path))
}

func TestSplice_EmptyContent(t *testing.T) {
	path := tempFile(t, "AAA\nBBB\nCCC\n")
	require.NoError(t, Splice(path, 4, 8, []byte{}))

	got, _ := os.ReadFile(path)
	assert.Equal(t, "AAA\nCCC\n", string(got))
}

func TestSplice_InvalidRange(t *testing.T) {
	path := tempFile(t, "short")
	assert.Error(t, Splice(path, 0, 100, []byte("x")), "end beyond file length")
	assert.Error(t, Splice(path, 3, 1, []byte("x")), "start after end")
	assert.Error(t, Splice(path, -1, 1, []byte("x")), "negative start")

	got, _ := os.ReadFile(path)
	assert.Equal(t, "short", string(got))
}

func TestSplice_PreservesPermissions(t *testing.T) {
	path := tempFile(t, "content")
	require.NoError(t, os.Chmod(path, 0o600))

	require.NoError(t, Splice(path, 0, 7, []byte("new")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSplice_NonexistentFile(t *testing.T) {
	assert.Error(t, Splice(filepath.Join(t.TempDir(), "nope.xml"), 0, 5, []byte("x")))
}

func TestWriteFile_NewFileGetsPerm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postgresql.jar")
	require.NoError(t, WriteFile(path, []byte("jar"), 0o640))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestStream_FailureLeavesOriginal(t *testing.T) {
	path := tempFile(t, "original")
	boom := errors.New("boom")

	err := Stream(path, 0o644, func(w io.Writer) error {
		_, _ = io.WriteString(w, "half")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, _ := os.ReadFile(path)
	assert.Equal(t, "original", string(got))
	assert.Empty(t, leftovers(t, path))
}

package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name   string
	body   string
	method uint16
}

// writeArchive builds a zip at dir/name from entries, in order.
func writeArchive(t *testing.T, dir, name string, entries ...entry) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for _, e := range entries {
		method := e.method
		if method == 0 && e.body != "" {
			method = zip.Deflate
		}
		dst, err := w.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		require.NoError(t, err)
		_, err = io.WriteString(dst, e.body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return p
}

type snapshot struct {
	method uint16
	sum    string
}

// readArchive returns the ordered member names and per-member method and hash.
func readArchive(t *testing.T, p string) ([]string, map[string]snapshot) {
	t.Helper()
	r, err := zip.OpenReader(p)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var names []string
	members := make(map[string]snapshot)
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		sum := sha256.Sum256(data)
		names = append(names, f.Name)
		members[f.Name] = snapshot{method: f.Method, sum: hex.EncodeToString(sum[:])}
	}
	return names, members
}

func readMember(t *testing.T, p, member string) string {
	t.Helper()
	s, err := Extract(p, member)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	return string(data)
}

const persistenceMember = "WEB-INF/classes/META-INF/persistence.xml"

func TestLocate_FirstMatchInListingOrder(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "c.war", entry{name: persistenceMember, body: "<c/>"})
	writeArchive(t, root, "a.war", entry{name: "index.html", body: "hi"})
	writeArchive(t, root, "b.war", entry{name: persistenceMember, body: "<b/>"})

	got, err := Locate(root, persistenceMember)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "b.war"), got)
}

func TestLocate_AbsentIsNotAnError(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "app.war", entry{name: "index.html", body: "hi"})

	got, err := Locate(root, persistenceMember)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLocate_EmptyAndMissingRoot(t *testing.T) {
	got, err := Locate(t.TempDir(), persistenceMember)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Locate(filepath.Join(t.TempDir(), "nope"), persistenceMember)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLocate_SkipsUnreadableCandidates(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.war"), []byte("not a zip"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "b.war"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "gone.war"), filepath.Join(root, "c.war")))
	writeArchive(t, root, "d.war", entry{name: persistenceMember, body: "<d/>"})

	got, err := Locate(root, persistenceMember)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "d.war"), got)
}

func TestLocateMatching_CustomPattern(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "app.war", entry{name: persistenceMember, body: "<w/>"})
	writeArchive(t, root, "app.jar", entry{name: persistenceMember, body: "<j/>"})

	got, err := LocateMatching(root, "*.jar", persistenceMember)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "app.jar"), got)
}

func TestLocate_RootWithGlobMetacharacters(t *testing.T) {
	root := filepath.Join(t.TempDir(), "build [1]*")
	require.NoError(t, os.Mkdir(root, 0o755))
	writeArchive(t, root, "app.war", entry{name: persistenceMember, body: "<w/>"})

	got, err := Locate(root, persistenceMember)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "app.war"), got)
}

func TestCandidates(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "b.war", entry{name: "index.html", body: "hi"})
	writeArchive(t, root, "a.war", entry{name: "index.html", body: "hi"})
	writeArchive(t, root, "lib.jar", entry{name: "index.html", body: "hi"})
	require.NoError(t, os.Mkdir(filepath.Join(root, "exploded.war"), 0o755))

	got, err := Candidates(root, DefaultPattern)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.war"), filepath.Join(root, "b.war")}, got)

	_, err = Candidates(root, "[")
	assert.ErrorIs(t, err, filepath.ErrBadPattern)
}

func TestExtract_PreservesRelativePath(t *testing.T) {
	p := writeArchive(t, t.TempDir(), "app.war",
		entry{name: "WEB-INF/"},
		entry{name: "a/b.xml", body: "<b/>"},
	)

	s, err := Extract(p, "a/b.xml")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, filepath.Join(s.Dir(), "a", "b.xml"), s.Path())
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "<b/>", string(data))

	fi, err := s.FS().Stat("a/b.xml")
	require.NoError(t, err)
	assert.Equal(t, int64(4), fi.Size())
}

func TestExtract_UniqueScratchDirs(t *testing.T) {
	p := writeArchive(t, t.TempDir(), "app.war", entry{name: "a/b.xml", body: "<b/>"})

	s1, err := Extract(p, "a/b.xml")
	require.NoError(t, err)
	defer func() { _ = s1.Close() }()
	s2, err := Extract(p, "a/b.xml")
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	assert.NotEqual(t, s1.Dir(), s2.Dir())
}

func TestExtract_MissingArchiveOrMember(t *testing.T) {
	dir := t.TempDir()
	_, err := Extract(filepath.Join(dir, "nope.war"), "a/b.xml")
	assert.ErrorIs(t, err, ErrExtraction)

	p := writeArchive(t, dir, "app.war", entry{name: "index.html", body: "hi"})
	_, err = Extract(p, "a/b.xml")
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestExtract_RejectsEscapingMember(t *testing.T) {
	p := writeArchive(t, t.TempDir(), "app.war", entry{name: "index.html", body: "hi"})
	for _, member := range []string{"../etc/passwd", "/abs.xml", "", `a\b.xml`} {
		_, err := Extract(p, member)
		assert.ErrorIs(t, err, ErrPrecondition, member)
	}
}

func TestScratch_CloseIsIdempotent(t *testing.T) {
	p := writeArchive(t, t.TempDir(), "app.war", entry{name: "a/b.xml", body: "<b/>"})
	s, err := Extract(p, "a/b.xml")
	require.NoError(t, err)
	dir := s.Dir()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestInject_Preconditions(t *testing.T) {
	dir := t.TempDir()
	p := writeArchive(t, dir, "app.war", entry{name: "a/b.xml", body: "<b/>"})

	err := Inject(p, filepath.Join(dir, "missing"), "a/b.xml")
	require.ErrorIs(t, err, ErrPrecondition)
	assert.Contains(t, err.Error(), "not a directory")

	scratch := t.TempDir()
	err = Inject(p, scratch, "a/b.xml")
	require.ErrorIs(t, err, ErrPrecondition)
	assert.Contains(t, err.Error(), "not a regular file")

	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "a", "b.xml"), 0o755))
	err = Inject(p, scratch, "a/b.xml")
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestInject_MissingArchive(t *testing.T) {
	scratch := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "a", "b.xml"), []byte("x"), 0o644))

	err := Inject("does-not-exist.war", scratch, "a/b.xml")
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestInject_RoundTripIsByteIdentical(t *testing.T) {
	p := writeArchive(t, t.TempDir(), "app.war",
		entry{name: "index.html", body: "<html/>"},
		entry{name: persistenceMember, body: "<persistence>\n  <x/>\n</persistence>\n"},
	)
	_, before := readArchive(t, p)

	s, err := Extract(p, persistenceMember)
	require.NoError(t, err)
	require.NoError(t, Inject(p, s.Dir(), persistenceMember))
	require.NoError(t, s.Close())

	_, after := readArchive(t, p)
	assert.Equal(t, before, after)
}

func TestInject_ReplacesOnlyTheMember(t *testing.T) {
	dir := t.TempDir()
	p := writeArchive(t, dir, "app.war",
		entry{name: "META-INF/MANIFEST.MF", body: "Manifest-Version: 1.0\n", method: zip.Store},
		entry{name: "a/"},
		entry{name: "a/b.xml", body: `<property name="hibernate.dialect" value="org.hibernate.dialect.H2Dialect"/>`},
		entry{name: "WEB-INF/lib/dep.jar", body: "jar-bytes-jar-bytes-jar-bytes"},
	)
	require.NoError(t, os.Chmod(p, 0o640))
	namesBefore, before := readArchive(t, p)

	s, err := Extract(p, "a/b.xml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`<property name="hibernate.dialect" value="org.hibernate.dialect.PostgreSQL95Dialect"/>`), 0o644))
	require.NoError(t, Inject(p, s.Dir(), "a/b.xml"))
	require.NoError(t, s.Close())

	namesAfter, after := readArchive(t, p)
	assert.Equal(t, namesBefore, namesAfter)
	for _, name := range []string{"META-INF/MANIFEST.MF", "a/", "WEB-INF/lib/dep.jar"} {
		assert.Equal(t, before[name], after[name], name)
	}
	assert.NotEqual(t, before["a/b.xml"].sum, after["a/b.xml"].sum)
	assert.Equal(t, before["a/b.xml"].method, after["a/b.xml"].method)
	assert.Contains(t, readMember(t, p, "a/b.xml"), "PostgreSQL95Dialect")

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	leftovers, err := filepath.Glob(filepath.Join(dir, ".app.war.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestInject_FailureLeavesArchiveUntouched(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "app.war")
	require.NoError(t, os.WriteFile(p, []byte("corrupt"), 0o644))

	scratch := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "a", "b.xml"), []byte("x"), 0o644))

	require.Error(t, Inject(p, scratch, "a/b.xml"))
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "corrupt", string(data))
}

func TestPatch_CleansScratchOnEveryPath(t *testing.T) {
	p := writeArchive(t, t.TempDir(), "app.war", entry{name: "a/b.xml", body: "old"})

	var dirs []string
	changed, err := Patch(p, "a/b.xml", func(s *Scratch) (bool, error) {
		dirs = append(dirs, s.Dir())
		return true, os.WriteFile(s.Path(), []byte("new"), 0o644)
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "new", readMember(t, p, "a/b.xml"))

	changed, err = Patch(p, "a/b.xml", func(s *Scratch) (bool, error) {
		dirs = append(dirs, s.Dir())
		return false, assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, changed)

	changed, err = Patch(p, "a/b.xml", func(s *Scratch) (bool, error) {
		dirs = append(dirs, s.Dir())
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, changed)

	require.Len(t, dirs, 3)
	for _, d := range dirs {
		_, err := os.Stat(d)
		assert.True(t, os.IsNotExist(err), d)
	}
}

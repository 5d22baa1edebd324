package archive

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/klauspost/compress/zip"

	"github.com/agentic-research/wildfly-postgresql/internal/writeback"
)

const scratchPattern = "wildfly-postgresql-*"

// Scratch is a process-unique directory holding one extracted member at its
// archive-relative path.
type Scratch struct {
	dir    string
	member string
	fs     billy.Filesystem
}

// Dir returns the scratch root.
func (s *Scratch) Dir() string { return s.dir }

// Member returns the archive-relative member path.
func (s *Scratch) Member() string { return s.member }

// Path returns the on-disk location of the extracted member.
func (s *Scratch) Path() string {
	return filepath.Join(s.dir, filepath.FromSlash(s.member))
}

// FS exposes the scratch directory as a billy filesystem rooted at Dir.
func (s *Scratch) FS() billy.Filesystem { return s.fs }

// Close removes the scratch directory. Safe to call more than once.
func (s *Scratch) Close() error {
	if s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir = ""
	return err
}

// Extract copies member out of archive into a fresh scratch directory.
func Extract(archive, member string) (*Scratch, error) {
	member, err := cleanMember(member)
	if err != nil {
		return nil, err
	}

	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrExtraction, archive, err)
	}
	defer func() { _ = r.Close() }()

	f := findMember(&r.Reader, member)
	if f == nil {
		return nil, fmt.Errorf("%w: %s not found in %s", ErrExtraction, member, archive)
	}
	if f.FileInfo().IsDir() {
		return nil, fmt.Errorf("%w: %s in %s is a directory", ErrExtraction, member, archive)
	}

	dir, err := os.MkdirTemp("", scratchPattern)
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	s := &Scratch{dir: dir, member: member, fs: osfs.New(dir)}

	if err := s.write(f); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %s from %s: %v", ErrExtraction, member, archive, err)
	}
	return s, nil
}

func (s *Scratch) write(f *zip.File) error {
	if err := s.fs.MkdirAll(path.Dir(s.member), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := s.fs.Create(s.member)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

// Inject replaces member inside archive with scratchDir/member. Every other
// entry is copied with its original compressed bytes. The new archive is
// written beside the original and renamed over it only once complete.
func Inject(archive, scratchDir, member string) error {
	member, err := cleanMember(member)
	if err != nil {
		return err
	}

	info, err := os.Stat(scratchDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: scratch dir %s is not a directory", ErrPrecondition, scratchDir)
	}
	replacement := filepath.Join(scratchDir, filepath.FromSlash(member))
	info, err = os.Stat(replacement)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrPrecondition, replacement)
	}

	// Resolve only existing archives; a relative path to nothing resolves to nothing.
	if _, err := os.Stat(archive); err != nil {
		return fmt.Errorf("%w: archive %s does not exist", ErrPrecondition, archive)
	}
	abs, err := filepath.Abs(archive)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrPrecondition, archive, err)
	}

	return rewrite(abs, member, replacement)
}

func rewrite(archive, member, replacement string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open %s: %w", archive, err)
	}
	defer func() { _ = r.Close() }()

	return writeback.Stream(archive, 0o644, func(out io.Writer) error {
		w := zip.NewWriter(out)
		replaced := false
		for _, f := range r.File {
			if f.Name != member {
				if err := w.Copy(f); err != nil {
					return fmt.Errorf("copy %s: %w", f.Name, err)
				}
				continue
			}
			if err := writeMember(w, memberHeader(f), replacement); err != nil {
				return err
			}
			replaced = true
		}
		if !replaced {
			if err := writeMember(w, &zip.FileHeader{Name: member, Method: zip.Deflate, Modified: time.Now()}, replacement); err != nil {
				return err
			}
		}
		if r.Comment != "" {
			if err := w.SetComment(r.Comment); err != nil {
				return err
			}
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("finalize archive: %w", err)
		}
		return nil
	})
}

// memberHeader keeps the replaced entry's name, method and attributes; sizes
// and checksums are recomputed by the writer.
func memberHeader(f *zip.File) *zip.FileHeader {
	return &zip.FileHeader{
		Name:           f.Name,
		Comment:        f.Comment,
		Method:         f.Method,
		Modified:       time.Now(),
		CreatorVersion: f.CreatorVersion,
		ExternalAttrs:  f.ExternalAttrs,
	}
}

func writeMember(w *zip.Writer, hdr *zip.FileHeader, replacement string) error {
	src, err := os.Open(replacement)
	if err != nil {
		return fmt.Errorf("open replacement: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := w.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create %s: %w", hdr.Name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write %s: %w", hdr.Name, err)
	}
	return nil
}

// Patch extracts member, hands the scratch copy to mutate and injects the
// result. The scratch directory is removed whatever the outcome. When mutate
// reports no change the archive is left as is.
func Patch(archive, member string, mutate func(s *Scratch) (bool, error)) (changed bool, err error) {
	s, err := Extract(archive, member)
	if err != nil {
		return false, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("remove scratch dir: %w", cerr)
		}
	}()

	changed, err = mutate(s)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	if err := Inject(archive, s.Dir(), s.Member()); err != nil {
		return false, err
	}
	return true, nil
}

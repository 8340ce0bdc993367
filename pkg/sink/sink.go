// Package sink persists finished chunks as zipped XML under a deterministic
// path and reports whether a chunk has already been written.
//
// Layout:
//
//	{root}/{job}/{YYYYMMDD}/{kind}-{id}-chunk{N}.zip
//
// The presence of the .zip file is the only signal that a chunk is done.
// Writes go through an .xml intermediate and a .zip.tmp file that is renamed
// into place, so an interrupted write never leaves a file at the final path.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/mpapi-go/mpapi/pkg/logging"
	"github.com/mpapi-go/mpapi/pkg/record"
)

const dateLayout = "20060102"

// Sink writes chunk documents below a root directory.
type Sink struct {
	root   string
	now    func() time.Time
	logger zerolog.Logger
}

// New returns a sink rooted at root. An empty root means the current directory.
func New(root string) *Sink {
	if root == "" {
		root = "."
	}
	return &Sink{
		root:   root,
		now:    time.Now,
		logger: logging.NewLogger("sink"),
	}
}

// WithClock replaces the clock used for the date directory.
func (s *Sink) WithClock(now func() time.Time) *Sink {
	s.now = now
	return s
}

// Root returns the root directory.
func (s *Sink) Root() string {
	return s.root
}

// Path returns the output location of chunk n of the seed (kind, id) in job.
func (s *Sink) Path(job, kind string, id int64, chunk int) (string, error) {
	if job == "" {
		return "", &PersistenceError{Op: "path", Err: ErrNoJobName}
	}
	name := fmt.Sprintf("%s-%d-chunk%d.zip", kind, id, chunk)
	return filepath.Join(s.root, job, s.now().Format(dateLayout), name), nil
}

// Exists reports whether completed output is present at path.
func (s *Sink) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Save cleans and validates doc, then writes it zipped to path. path must
// end in ".zip"; the archive holds a single entry named after the .xml
// intermediate.
func (s *Sink) Save(doc *record.Document, path string) error {
	if filepath.Ext(path) != ".zip" {
		return &PersistenceError{Op: "path", Path: path, Err: fmt.Errorf("output must end in .zip")}
	}

	doc.Clean()
	if err := doc.Validate(); err != nil {
		return &PersistenceError{Op: "validate", Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}

	xmlPath := path[:len(path)-len(".zip")] + ".xml"
	if err := s.writeXML(doc, xmlPath); err != nil {
		return err
	}
	defer os.Remove(xmlPath)

	tmp := path + ".tmp"
	if err := s.zipFile(xmlPath, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &PersistenceError{Op: "rename", Path: path, Err: err}
	}

	s.logger.Debug().
		Str("path", path).
		Int("items", doc.Len()).
		Msg("Chunk saved")
	return nil
}

func (s *Sink) writeXML(doc *record.Document, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	if _, err := doc.WriteTo(f); err != nil {
		f.Close()
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func (s *Sink) zipFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return &PersistenceError{Op: "zip", Path: src, Err: err}
	}

	out, err := os.Create(dst)
	if err != nil {
		return &PersistenceError{Op: "zip", Path: dst, Err: err}
	}

	zw := zip.NewWriter(out)
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     filepath.Base(src),
		Method:   zip.Deflate,
		Modified: s.now(),
	})
	if err == nil {
		_, err = w.Write(data)
	}
	if err == nil {
		err = zw.Close()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &PersistenceError{Op: "zip", Path: dst, Err: err}
	}
	return nil
}

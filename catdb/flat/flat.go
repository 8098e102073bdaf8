package flat

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

const (
	SessionsDir       = "sessions"
	RecordingFileName = "recording.ndjson.gz"
	FusedFileName     = "fused.geojson.gz"
)

// Flat is a directory of session files under the data root.
type Flat struct {
	path string
}

func NewFlatWithRoot(root string) *Flat {
	root = filepath.Clean(root)
	if !filepath.IsAbs(root) {
		root, _ = filepath.Abs(root)
	}
	return &Flat{path: root}
}

func (f *Flat) ForSession(name string) *Flat {
	return f.Joining(SessionsDir, name)
}

func (f *Flat) Joining(paths ...string) *Flat {
	return &Flat{path: filepath.Join(append([]string{f.path}, paths...)...)}
}

func (f *Flat) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

func (f *Flat) Path() string {
	return f.path
}

func (f *Flat) Create(name string) (*Writer, error) {
	return Create(filepath.Join(f.path, name))
}

func (f *Flat) Open(name string) (*Reader, error) {
	return Open(filepath.Join(f.path, name))
}

func isGZ(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

// Writer appends lines to a file, gzipped when the name ends in .gz.
// An exclusive lock is held on the file until Close.
type Writer struct {
	f   *os.File
	gzw *gzip.Writer
	buf *bufio.Writer
}

// Create opens path for appending, making parent directories as needed.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0770); err != nil {
		return nil, err
	}
	fi, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0660)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(fi.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		fi.Close()
		return nil, err
	}
	w := &Writer{f: fi}
	var out io.Writer = fi
	if isGZ(path) {
		w.gzw, _ = gzip.NewWriterLevel(fi, gzip.BestCompression)
		out = w.gzw
	}
	w.buf = bufio.NewWriter(out)
	return w, nil
}

// WriteLine writes b followed by a newline.
func (w *Writer) WriteLine(b []byte) error {
	if _, err := w.buf.Write(b); err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

func (w *Writer) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *Writer) Path() string {
	return w.f.Name()
}

func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.gzw != nil {
		if err := w.gzw.Close(); err != nil {
			return err
		}
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	_ = syscall.Flock(int(w.f.Fd()), syscall.LOCK_UN)
	return w.f.Close()
}

// Reader reads a plain or gzipped file under a shared lock.
type Reader struct {
	f      *os.File
	gzr    *gzip.Reader
	closed bool
}

func Open(path string) (*Reader, error) {
	fi, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(fi.Fd()), syscall.LOCK_SH); err != nil {
		fi.Close()
		return nil, err
	}
	r := &Reader{f: fi}
	if isGZ(path) {
		r.gzr, err = gzip.NewReader(fi)
		if err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.gzr != nil {
		return r.gzr.Read(p)
	}
	return r.f.Read(p)
}

func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.gzr != nil {
		if err := r.gzr.Close(); err != nil {
			return err
		}
	}
	_ = syscall.Flock(int(r.f.Fd()), syscall.LOCK_UN)
	return r.f.Close()
}

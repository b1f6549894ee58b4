// Package cache stores parsed headers on disk so unchanged headers can be
// regenerated without reparsing.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/phobologic/reflgen/internal/codec"
	"github.com/phobologic/reflgen/internal/model"
)

// Version is the blob format version. Bump it when the blob or codec layout
// changes.
const Version uint16 = 2

var magic = []byte("RFLG")

// ErrNotBlob is returned by Decode for data without the cache header.
var ErrNotBlob = errors.New("not a cache blob")

// Store is a directory of encoded headers.
type Store struct {
	dir string
}

// Open returns a store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating cache dir %s", dir)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Key identifies a header parsed with a given set of flags.
func Key(path string, flags []string) string {
	sum := sha256.New()
	sum.Write([]byte(path))
	for _, f := range flags {
		sum.Write([]byte{0})
		sum.Write([]byte(f))
	}
	return hex.EncodeToString(sum.Sum(nil))
}

func (s *Store) blobPath(path string, flags []string) string {
	return filepath.Join(s.dir, Key(path, flags)+".rflg")
}

// Load returns the cached header for path, or false when there is no usable
// entry. Entries older than any file the header was parsed from, entries
// naming a file that no longer exists, and corrupt entries are misses.
func (s *Store) Load(path string, flags []string) (*model.Header, bool, error) {
	blob := s.blobPath(path, flags)
	blobInfo, err := os.Stat(blob)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "stat %s", blob)
	}
	srcInfo, err := os.Stat(path)
	if err != nil {
		return nil, false, errors.Wrapf(err, "stat %s", path)
	}
	if blobInfo.ModTime().Before(srcInfo.ModTime()) {
		return nil, false, nil
	}

	data, err := os.ReadFile(blob)
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %s", blob)
	}
	h, err := Decode(data)
	if err != nil {
		return nil, false, nil
	}
	if h.Path != path {
		return nil, false, nil
	}
	for _, f := range h.Files {
		info, err := os.Stat(f)
		if err != nil || info.ModTime().After(blobInfo.ModTime()) {
			return nil, false, nil
		}
	}
	return h, true, nil
}

// Save stores h. Invalid headers are not cached.
func (s *Store) Save(h *model.Header, flags []string) error {
	if !h.IsValid() {
		return nil
	}
	body, err := codec.Marshal(h)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(magic)
	_ = binary.Write(&buf, binary.LittleEndian, Version)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(h.Files)))
	for _, f := range h.Files {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(f)))
		buf.WriteString(f)
	}
	buf.Write(body)

	blob := s.blobPath(h.Path, flags)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating cache temp file")
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "writing %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "closing %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), blob); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "renaming to %s", blob)
	}
	return nil
}

// Decode reads a header from the contents of a cache blob.
func Decode(data []byte) (*model.Header, error) {
	if len(data) < len(magic)+2 || !bytes.Equal(data[:len(magic)], magic) {
		return nil, ErrNotBlob
	}
	if v := binary.LittleEndian.Uint16(data[len(magic):]); v != Version {
		return nil, errors.Newf("cache version %d, want %d", v, Version)
	}
	r := bytes.NewReader(data[len(magic)+2:])
	files, err := readFiles(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading file list")
	}
	var h model.Header
	if err := codec.Unmarshal(data[len(data)-r.Len():], &h); err != nil {
		return nil, err
	}
	h.Files = files
	return &h, nil
}

func readFiles(r *bytes.Reader) ([]string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if int64(n) > int64(r.Len())/4 {
		return nil, errors.Newf("file count %d exceeds blob size", n)
	}
	files := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		if int64(size) > int64(r.Len()) {
			return nil, errors.Newf("file name length %d exceeds blob size", size)
		}
		name := make([]byte, size)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		files = append(files, string(name))
	}
	return files, nil
}

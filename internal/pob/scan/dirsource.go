package scan

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "image/jpeg"
	_ "image/png"
)

// DirSource treats a drop folder as a video source: each PNG or JPEG file
// placed in the directory becomes one frame, consumed oldest name first and
// deleted after a successful read.  Useful where no camera hardware is
// attached (kiosks fed by a capture sidecar, tests, demos).
type DirSource struct {
	dir string
}

func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("frame dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("frame dir: %s is not a directory", dir)
	}
	return &DirSource{dir: dir}, nil
}

// AcquireFrame returns the next dropped frame, or (nil, nil) when the
// folder is empty.  Undecodable files are deleted and skipped so one bad
// drop cannot wedge the loop.
func (s *DirSource) AcquireFrame() (image.Image, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(s.dir, name)
		img, err := decodeImageFile(path)
		_ = os.Remove(path)
		if err != nil {
			continue
		}
		return img, nil
	}
	return nil, nil
}

func (s *DirSource) Release() {}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

package procmgr

import (
	"bufio"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"

	db "libos/debug"
	"libos/serr"
)

// IMAGE_MAGIC starts the first line of a program image; the rest of the
// line names the registered program the image runs.
const IMAGE_MAGIC = "#!libos "

// Loader resolves a program path to the entry point of its image.
type Loader interface {
	Load(pn string) (Entry, error)
}

// ImageLoader keeps program images as files on an afero file system and
// maps the program named in an image to a registered entry point.
type ImageLoader struct {
	sync.RWMutex
	fs       afero.Fs
	programs map[string]Entry
}

func NewImageLoader(fs afero.Fs) *ImageLoader {
	return &ImageLoader{
		fs:       fs,
		programs: make(map[string]Entry),
	}
}

func (ld *ImageLoader) Fs() afero.Fs {
	return ld.fs
}

// Register makes program available to images that name it.
func (ld *ImageLoader) Register(program string, e Entry) {
	ld.Lock()
	defer ld.Unlock()
	ld.programs[program] = e
}

// Install writes an image at pn that runs program.
func (ld *ImageLoader) Install(pn, program string) error {
	if err := ld.fs.MkdirAll(path.Dir(pn), 0755); err != nil {
		return serr.NewErrWrap(serr.TErrError, pn, err)
	}
	if err := afero.WriteFile(ld.fs, pn, []byte(IMAGE_MAGIC+program+"\n"), 0755); err != nil {
		return serr.NewErrWrap(serr.TErrError, pn, err)
	}
	db.DPrintf(db.LOADER, "Install %v: %v", pn, program)
	return nil
}

// RegisterProgram registers e as program and installs an image for it
// at pn.
func (ld *ImageLoader) RegisterProgram(pn, program string, e Entry) error {
	ld.Register(program, e)
	return ld.Install(pn, program)
}

func (ld *ImageLoader) Load(pn string) (Entry, error) {
	f, err := ld.fs.Open(pn)
	if err != nil {
		db.DPrintf(db.LOADER, "Load %v: %v", pn, err)
		return nil, serr.NewErrWrap(serr.TErrNotfound, pn, err)
	}
	defer f.Close()
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return nil, serr.NewErrWrap(serr.TErrInval, pn, err)
	}
	if !strings.HasPrefix(line, IMAGE_MAGIC) {
		return nil, serr.NewErr(serr.TErrInval, fmt.Sprintf("%v: bad image", pn))
	}
	program := strings.TrimSpace(strings.TrimPrefix(line, IMAGE_MAGIC))
	ld.RLock()
	defer ld.RUnlock()
	e, ok := ld.programs[program]
	if !ok {
		return nil, serr.NewErr(serr.TErrNotfound, fmt.Sprintf("%v: program %q", pn, program))
	}
	return e, nil
}

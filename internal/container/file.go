// Package container implements the on-disk sectioned assembly format (spec
// §4.1, §6) and the loader that turns a parsed image into the in-memory
// typesys structures internal/rt executes. The binary codec and the core
// type catalog are the two places spec §1 explicitly treats as external
// collaborators ("consumed via a loader interface that yields the
// in-memory assembly structures"); this package is that loader.
//
// Large assembly images are memory-mapped rather than read fully into a
// []byte, the way saferwall-pe maps a PE image before parsing its section
// table (saferwall-pe's file.go) — see DESIGN.md.
package container

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/lumenrt/corevm/internal/bitio"
	"github.com/lumenrt/corevm/internal/rterr"
)

var magic = [2]byte{'P', 'L'}

// sectionInfo is one entry of the section table: byte offset and length
// within the file.
type sectionInfo struct {
	Offset uint64
	Length uint64
}

// Image is a parsed assembly file: the section table plus a byte view over
// the whole image, either memory-mapped (Open) or supplied directly
// (OpenBytes, for callers that already hold the bytes).
type Image struct {
	data []byte
	sections []sectionInfo

	file *os.File
	mapped mmap.MMap
}

// Open memory-maps path and parses its section header.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	img, err := parseHeader(m)
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}
	img.file = f
	img.mapped = m
	return img, nil
}

// OpenBytes parses an already-in-memory image without mapping a file.
func OpenBytes(data []byte) (*Image, error) {
	return parseHeader(data)
}

// Close releases the memory mapping, if this Image owns one.
func (img *Image) Close() error {
	var err error
	if img.mapped != nil {
		err = img.mapped.Unmap()
	}
	if img.file != nil {
		if cerr := img.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func parseHeader(data []byte) (*Image, error) {
	c := bitio.NewCursor(data)
	m, err := c.Bytes(2)
	if err != nil {
		return nil, rterr.ErrWrongFormat
	}
	if m[0] != magic[0] || m[1] != magic[1] {
		return nil, rterr.ErrWrongFormat
	}
	if _, err := c.U16(); err != nil { // version; this loader accepts any
		return nil, rterr.ErrWrongFileSize
	}
	count, err := c.U32()
	if err != nil {
		return nil, rterr.ErrWrongFileSize
	}
	sections := make([]sectionInfo, count)
	for i := range sections {
		off, err := c.U64()
		if err != nil {
			return nil, rterr.ErrWrongFileSize
		}
		length, err := c.U64()
		if err != nil {
			return nil, rterr.ErrWrongFileSize
		}
		sections[i] = sectionInfo{Offset: off, Length: length}
	}
	for _, s := range sections {
		if s.Offset+s.Length > uint64(len(data)) {
			return nil, rterr.ErrWrongFileSize
		}
	}
	return &Image{data: data, sections: sections}, nil
}

// NumSections reports how many sections the image declares.
func (img *Image) NumSections() int { return len(img.sections) }

// Section returns the raw bytes of section id, or UnknownSection.
func (img *Image) Section(id uint32) ([]byte, error) {
	if int(id) >= len(img.sections) {
		return nil, rterr.UnknownSection{ID: id}
	}
	s := img.sections[id]
	return img.data[s.Offset : s.Offset+s.Length], nil
}

// stringSectionID is section 0's reserved role.
const stringSectionID = 0

// standard (non-string) section ids the core loader reads.
const (
	SectionExtraHeader = 1
	SectionCustomAttributes = 2
	SectionTypeRefs = 3
	SectionTypeSpecs = 4
	SectionMethodSpecs = 5
	SectionTypeDefs = 6
)

// StringTable reads the whole string section into a slice addressed by
// byte offset -> decoded string, used by Loader to intern StringRefs as
// Assembly strings in one pass.
type StringTable struct {
	data []byte
}

// Strings parses the image's string section.
func (img *Image) Strings() (*StringTable, error) {
	data, err := img.Section(stringSectionID)
	if err != nil {
		return nil, err
	}
	return &StringTable{data: data}, nil
}

// At decodes the length-prefixed utf-8 string starting at byte offset ref.
func (t *StringTable) At(ref uint32) (string, error) {
	if int(ref) >= len(t.data) {
		return "", rterr.UnknownStringRef{Ref: ref}
	}
	c := bitio.NewCursor(t.data[ref:])
	return c.String()
}

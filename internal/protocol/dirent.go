package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	nameOffset    = 9 // size u32, date u16, time u16, attr u8
	nameFieldSize = 13
)

// DirEntrySize is the length of an encoded directory entry record.
const DirEntrySize = nameOffset + nameFieldSize

var (
	ErrBadEntryLength = errors.New("bad directory entry length")
	ErrBadEntryName   = errors.New("bad directory entry name")
	ErrBadEntryField  = errors.New("directory entry field out of range")
)

// Attributes is the FAT attribute byte reported by the device. Only the low
// five bits are meaningful.
type Attributes uint8

const (
	AttrReadOnly Attributes = 1 << iota
	AttrHidden
	AttrSystem
	AttrArchive
	AttrDirectory
)

const attrMask = AttrReadOnly | AttrHidden | AttrSystem | AttrArchive | AttrDirectory

const attrLetters = "rhsad"

// String renders the attributes as five characters in bit order, using the
// letter for a set bit and '-' otherwise, e.g. "r---d".
func (a Attributes) String() string {
	var b [len(attrLetters)]byte
	for i := range attrLetters {
		if a&(1<<i) != 0 {
			b[i] = attrLetters[i]
		} else {
			b[i] = '-'
		}
	}
	return string(b[:])
}

// DirEntry is one decoded directory entry record.
//
// Wire layout (little-endian):
//
//	size u32 | date u16 | time u16 | attr u8 | name [13]byte
//
// date: bits 9-15 year-1980, bits 5-8 month, bits 0-4 day.
// time: bits 11-15 hour, bits 5-10 minute, bits 0-4 seconds/2.
type DirEntry struct {
	Size   uint32
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
	Attr   Attributes
	Name   string
}

// IsDir reports whether the directory attribute is set.
func (e DirEntry) IsDir() bool { return e.Attr&AttrDirectory != 0 }

// String prints the entry the way the host tool always has:
//
//	1024 2021-6-15 14:30:0 r---d NAME.TXT
func (e DirEntry) String() string {
	return fmt.Sprintf("%d %d-%d-%d %d:%d:%d %s %s",
		e.Size, e.Year, e.Month, e.Day, e.Hour, e.Minute, e.Second, e.Attr, e.Name)
}

// DecodeDirEntry parses a DirEntrySize-byte record. ok is false when the record has an
// empty name, which the device uses as an end-of-directory marker.
func DecodeDirEntry(b []byte) (e DirEntry, ok bool, err error) {
	if len(b) != DirEntrySize {
		return DirEntry{}, false, fmt.Errorf("%w: %d", ErrBadEntryLength, len(b))
	}

	name := b[nameOffset:DirEntrySize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	for _, c := range name {
		if c > 0x7f {
			return DirEntry{}, false, ErrBadEntryName
		}
	}
	if len(name) == 0 {
		return DirEntry{}, false, nil
	}

	date := binary.LittleEndian.Uint16(b[4:6])
	tm := binary.LittleEndian.Uint16(b[6:8])

	e = DirEntry{
		Size:   binary.LittleEndian.Uint32(b[0:4]),
		Year:   int(date>>9&0x7f) + 1980,
		Month:  int(date >> 5 & 0x0f),
		Day:    int(date & 0x1f),
		Hour:   int(tm >> 11 & 0x1f),
		Minute: int(tm >> 5 & 0x3f),
		Second: int(tm&0x1f) * 2,
		Attr:   Attributes(b[8]) & attrMask,
		Name:   string(name),
	}
	return e, true, nil
}

// EncodeDirEntry is the inverse of DecodeDirEntry. Fields that cannot be
// represented in the packed date/time words are rejected.
func EncodeDirEntry(e DirEntry) ([DirEntrySize]byte, error) {
	var b [DirEntrySize]byte

	switch {
	case e.Year < 1980 || e.Year > 2107,
		e.Month < 1 || e.Month > 12,
		e.Day < 1 || e.Day > 31,
		e.Hour < 0 || e.Hour > 23,
		e.Minute < 0 || e.Minute > 59,
		e.Second < 0 || e.Second > 58 || e.Second%2 != 0:
		return b, ErrBadEntryField
	}
	if e.Attr&^attrMask != 0 {
		return b, ErrBadEntryField
	}
	if len(e.Name) > nameFieldSize || strings.ContainsRune(e.Name, 0) {
		return b, ErrBadEntryName
	}
	for i := 0; i < len(e.Name); i++ {
		if e.Name[i] > 0x7f {
			return b, ErrBadEntryName
		}
	}

	date := uint16(e.Year-1980)<<9 | uint16(e.Month)<<5 | uint16(e.Day)
	tm := uint16(e.Hour)<<11 | uint16(e.Minute)<<5 | uint16(e.Second/2)

	binary.LittleEndian.PutUint32(b[0:4], e.Size)
	binary.LittleEndian.PutUint16(b[4:6], date)
	binary.LittleEndian.PutUint16(b[6:8], tm)
	b[8] = byte(e.Attr)
	copy(b[nameOffset:], e.Name)
	return b, nil
}

// InfoFrame wraps an encoded entry in an OpFileInfo frame.
func InfoFrame(rec [DirEntrySize]byte) []byte {
	return Encode(OpFileInfo, rec[:])
}

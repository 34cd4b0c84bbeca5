package fat

import (
	"fmt"
)

// Code identifies one failure rule of the BPB parser or the volume engine.
type Code int

// FAT error codes
const (
	CodeIO Code = iota + 1
	CodeInvalidJmp
	CodeInvalidBytesPerSec
	CodeInvalidSecPerClus
	CodeInvalidClusSz
	CodeInvalidSignature
	CodeUnsupportedFATType
	CodeInvalidRsvdSecCnt
	CodeInvalidNumFat
	CodeInvalidRootEntCnt
	CodeInvalidTotSec
	CodeInvalidFatSz
	CodeInvalidRootClus
	CodeFileNotFound
	CodeInsufficientSlackSpace
	CodeNoFreeClusterChain
	CodeUnsupportedFeature
	CodeInvalidCluster
	CodeCorruptChain
)

// Kind groups codes by how a caller is expected to react.
type Kind int

// Error kinds
const (
	KindIO Kind = iota + 1
	KindValidation
	KindUnsupported
	KindNotFound
	KindCapacity
	KindInvalidAddress
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindValidation:
		return "validation"
	case KindUnsupported:
		return "unsupported"
	case KindNotFound:
		return "not-found"
	case KindCapacity:
		return "capacity"
	case KindInvalidAddress:
		return "invalid-address"
	case KindCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Kind returns the error kind of the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeIO:
		return KindIO
	case CodeUnsupportedFATType, CodeUnsupportedFeature:
		return KindUnsupported
	case CodeFileNotFound:
		return KindNotFound
	case CodeInsufficientSlackSpace, CodeNoFreeClusterChain:
		return KindCapacity
	case CodeInvalidCluster:
		return KindInvalidAddress
	case CodeCorruptChain:
		return KindCorrupt
	default:
		return KindValidation
	}
}

// Error is the single error type of the package. Value carries the
// offending field or cluster value, Detail a preformatted rendering of it
// where a number does not fit, Free and Needed the byte counts of
// CodeInsufficientSlackSpace.
type Error struct {
	Code   Code
	Value  uint64
	Detail string
	Free   uint64
	Needed uint64
	Err    error
}

// Sentinels for errors.Is; matching compares only the Code.
var (
	ErrIO                     = &Error{Code: CodeIO}
	ErrInvalidJmp             = &Error{Code: CodeInvalidJmp}
	ErrInvalidBytesPerSec     = &Error{Code: CodeInvalidBytesPerSec}
	ErrInvalidSecPerClus      = &Error{Code: CodeInvalidSecPerClus}
	ErrInvalidClusSz          = &Error{Code: CodeInvalidClusSz}
	ErrInvalidSignature       = &Error{Code: CodeInvalidSignature}
	ErrUnsupportedFATType     = &Error{Code: CodeUnsupportedFATType}
	ErrInvalidRsvdSecCnt      = &Error{Code: CodeInvalidRsvdSecCnt}
	ErrInvalidNumFat          = &Error{Code: CodeInvalidNumFat}
	ErrInvalidRootEntCnt      = &Error{Code: CodeInvalidRootEntCnt}
	ErrInvalidTotSec          = &Error{Code: CodeInvalidTotSec}
	ErrInvalidFatSz           = &Error{Code: CodeInvalidFatSz}
	ErrInvalidRootClus        = &Error{Code: CodeInvalidRootClus}
	ErrFileNotFound           = &Error{Code: CodeFileNotFound}
	ErrInsufficientSlackSpace = &Error{Code: CodeInsufficientSlackSpace}
	ErrNoFreeClusterChain     = &Error{Code: CodeNoFreeClusterChain}
	ErrUnsupportedFeature     = &Error{Code: CodeUnsupportedFeature}
	ErrInvalidCluster         = &Error{Code: CodeInvalidCluster}
	ErrCorruptChain           = &Error{Code: CodeCorruptChain}
)

func (e *Error) Error() string {
	switch e.Code {
	case CodeIO:
		if e.Err != nil {
			return fmt.Sprintf("I/O error: %v", e.Err)
		}
		return "I/O error"
	case CodeInvalidJmp:
		return fmt.Sprintf("invalid jump instruction %s", e.Detail)
	case CodeInvalidBytesPerSec:
		return fmt.Sprintf("invalid count of bytes per sector: %d (legal values: 512, 1024, 2048, 4096)", e.Value)
	case CodeInvalidSecPerClus:
		return fmt.Sprintf("invalid number of sectors per cluster: %d (legal values: 1, 2, 4, 8, 16, 32, 64, 128)", e.Value)
	case CodeInvalidClusSz:
		return fmt.Sprintf("invalid cluster size: %d bytes (maximum 32768)", e.Value)
	case CodeInvalidSignature:
		return fmt.Sprintf("invalid BPB signature %s, expected 0x55AA", e.Detail)
	case CodeUnsupportedFATType:
		return fmt.Sprintf("unsupported FAT type: %s", e.Detail)
	case CodeInvalidRsvdSecCnt:
		return fmt.Sprintf("invalid count of reserved sectors: %d", e.Value)
	case CodeInvalidNumFat:
		return fmt.Sprintf("invalid number of FATs: %d", e.Value)
	case CodeInvalidRootEntCnt:
		return fmt.Sprintf("invalid root entry count: %d (must be 0 on FAT32)", e.Value)
	case CodeInvalidTotSec:
		return fmt.Sprintf("invalid total sector count %d: %s", e.Value, e.Detail)
	case CodeInvalidFatSz:
		return fmt.Sprintf("invalid FAT size %d: %s", e.Value, e.Detail)
	case CodeInvalidRootClus:
		return fmt.Sprintf("invalid root directory cluster: %d (must be at least 2)", e.Value)
	case CodeFileNotFound:
		if e.Detail != "" {
			return fmt.Sprintf("file not found: %s", e.Detail)
		}
		return "file not found"
	case CodeInsufficientSlackSpace:
		return fmt.Sprintf("insufficient slack space: %d free bytes for storing %d bytes", e.Free, e.Needed)
	case CodeNoFreeClusterChain:
		return fmt.Sprintf("no chain of %d free clusters found", e.Value)
	case CodeUnsupportedFeature:
		return fmt.Sprintf("unsupported feature: %s", e.Detail)
	case CodeInvalidCluster:
		return fmt.Sprintf("invalid cluster number %d", e.Value)
	case CodeCorruptChain:
		return fmt.Sprintf("corrupt cluster chain: %s (FAT value 0x%X)", e.Detail, e.Value)
	default:
		return fmt.Sprintf("fat error %d", int(e.Code))
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Kind returns the error kind.
func (e *Error) Kind() Kind { return e.Code.Kind() }

func ioError(err error) error {
	return &Error{Code: CodeIO, Err: err}
}

func invalidCluster(c uint32) error {
	return &Error{Code: CodeInvalidCluster, Value: uint64(c)}
}

func corruptChain(v uint32, format string, args ...any) error {
	return &Error{Code: CodeCorruptChain, Value: uint64(v), Detail: fmt.Sprintf(format, args...)}
}

func insufficientSlack(free, needed uint64) error {
	return &Error{Code: CodeInsufficientSlackSpace, Free: free, Needed: needed}
}

func unsupportedFeature(format string, args ...any) error {
	return &Error{Code: CodeUnsupportedFeature, Detail: fmt.Sprintf(format, args...)}
}

func unsupportedType(t Type, op string) error {
	return &Error{Code: CodeUnsupportedFATType, Detail: fmt.Sprintf("%s is not supported on %s volumes", op, t)}
}

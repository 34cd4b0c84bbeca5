package mbr

import (
	"fmt"
)

// Code identifies one MBR failure rule.
type Code int

// MBR error codes
const (
	CodeIO Code = iota + 1
	CodePartitionTableNotSorted
	CodeOverlappingPartitions
	CodeInvalidSignature
)

func (c Code) String() string {
	switch c {
	case CodeIO:
		return "I/O error"
	case CodePartitionTableNotSorted:
		return "partition table is not sorted"
	case CodeOverlappingPartitions:
		return "some partitions are overlapping"
	case CodeInvalidSignature:
		return "invalid boot signature"
	default:
		return fmt.Sprintf("mbr error %d", int(c))
	}
}

// Error is returned by Parse and Read. Signature is set for
// CodeInvalidSignature; Err is set for CodeIO.
type Error struct {
	Code      Code
	Signature uint16
	Err       error
}

// Sentinels for errors.Is; matching compares only the Code.
var (
	ErrIO                      = &Error{Code: CodeIO}
	ErrPartitionTableNotSorted = &Error{Code: CodePartitionTableNotSorted}
	ErrOverlappingPartitions   = &Error{Code: CodeOverlappingPartitions}
	ErrInvalidSignature        = &Error{Code: CodeInvalidSignature}
)

func (e *Error) Error() string {
	switch e.Code {
	case CodeInvalidSignature:
		return fmt.Sprintf("%s: 0x%04X", e.Code, e.Signature)
	case CodeIO:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Code, e.Err)
		}
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func ioError(err error) error {
	return &Error{Code: CodeIO, Err: err}
}

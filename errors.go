package datadic

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInsufficientData means a key or value ended before a field did.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMissingUnpackInfo means a value can't be recovered from its key
	// image alone.
	ErrMissingUnpackInfo = errors.New("missing unpack info")

	ErrInvalidKeyPartMap = errors.New("key part map must select a prefix of key parts")
	ErrValueType         = errors.New("value does not match column type")
	ErrValueRange        = errors.New("value out of range for column")
	ErrTableNotFound     = errors.New("table not found")
	ErrTableExists       = errors.New("table already exists")
	ErrNoPrimaryKey      = errors.New("table has no primary key")
	ErrUnknownColumn     = errors.New("unknown column")
	ErrUnknownCollation  = errors.New("unknown collation")
	ErrNotLoaded         = errors.New("dictionary is not loaded")
	ErrIndexNumbers      = errors.New("index numbers exhausted")

	// ErrIndexNumber means an index number is reserved or already taken.
	ErrIndexNumber = errors.New("invalid index number")
)

// DataError reports stored bytes that do not match their expected encoding.
// It always means corruption (or a bug), never a normal outcome.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}

// TableError attaches table, index and column context to another error.
type TableError struct {
	Table  string
	Index  string
	Column string
	Msg    string
	Err    error
}

func tableErrf(table, index, column string, err error, format string, args ...any) error {
	return &TableError{table, index, column, fmt.Sprintf(format, args...), err}
}

func (e *TableError) Unwrap() error {
	return e.Err
}

func (e *TableError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Table)
	if e.Index != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Index)
	}
	if e.Column != "" {
		buf.WriteByte('(')
		buf.WriteString(e.Column)
		buf.WriteByte(')')
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// IsDecodeError reports whether err means stored data is malformed, as
// opposed to a caller mistake or a store failure.
func IsDecodeError(err error) bool {
	var de *DataError
	return errors.As(err, &de) || errors.Is(err, ErrInsufficientData)
}

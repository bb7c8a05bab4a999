package media

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// UnsupportedTypeError reports a file whose MIME type is not allowed
// for the declared attachment kind.
type UnsupportedTypeError struct {
	Name string
	Type string
	Kind Kind
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported %s type %q for %s", e.Kind, e.Type, e.Name)
}

// FileTooLargeError reports a file above its kind's size ceiling.
type FileTooLargeError struct {
	Name  string
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("%s is %s, limit is %s",
		e.Name, humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
}

// ProcessingError reports a decode or encode failure while optimizing.
// The optimizer never retries; callers may send the original instead.
type ProcessingError struct {
	Name string
	Op   string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

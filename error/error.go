package error

import "github.com/pkg/errors"

// calloutFailed defines an interface for errors to implement when an external
// callout exited unsuccessfully.
type calloutFailed interface {
	CalloutFailed() (bool, int)
}

// IsCalloutFailed checks if the given error, or any error it wraps, is due to
// a failed callout. The second returned value is the exit code of the
// callout.
func IsCalloutFailed(err error) (bool, int) {
	var e calloutFailed
	if errors.As(err, &e) {
		return e.CalloutFailed()
	}
	return false, 0
}

// unsupportedType defines an interface for errors to implement when a value
// of an unsupported type is encountered.
type unsupportedType interface {
	UnsupportedType() (bool, string)
}

// IsUnsupportedType checks if the given error, or any error it wraps, is due
// to an unsupported value type. The second returned value is the name of the
// offending type.
func IsUnsupportedType(err error) (bool, string) {
	var e unsupportedType
	if errors.As(err, &e) {
		return e.UnsupportedType()
	}
	return false, ""
}

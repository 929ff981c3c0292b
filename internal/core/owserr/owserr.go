// Package owserr implements OWS 1.1 exception reports for the SOS bindings.
package owserr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	OperationNotSupported Code = "OperationNotSupported"
	MissingParameterValue Code = "MissingParameterValue"
	InvalidParameterValue Code = "InvalidParameterValue"
	OptionNotSupported    Code = "OptionNotSupported"
	NoApplicableCode      Code = "NoApplicableCode"
)

// HTTPStatus maps an exception code to the status used on the response.
func (c Code) HTTPStatus() int {
	switch c {
	case OperationNotSupported:
		return http.StatusNotImplemented
	case NoApplicableCode:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Exception is a single OWS exception. Locator carries the parameter name.
type Exception struct {
	Code    Code
	Locator string
	Value   string
	Message string
	cause   error
}

func (e *Exception) Error() string {
	if e.Locator == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Locator, e.Message)
}

func (e *Exception) Unwrap() error { return e.cause }

// InvalidParameterValueError builds an InvalidParameterValue exception for
// param. The message is formatted from format and args.
func InvalidParameterValueError(param, value, format string, args ...any) *Exception {
	return &Exception{
		Code:    InvalidParameterValue,
		Locator: param,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	}
}

// InvalidParameterValueCause is InvalidParameterValueError with a wrapped cause.
func InvalidParameterValueCause(param, value string, cause error) *Exception {
	e := InvalidParameterValueError(param, value,
		"The value '%s' of the parameter '%s' is invalid: %v", value, param, cause)
	e.cause = cause
	return e
}

func MissingParameterValueError(param string) *Exception {
	return &Exception{
		Code:    MissingParameterValue,
		Locator: param,
		Message: fmt.Sprintf("The value for the parameter '%s' is missing in the request!", param),
	}
}

func OperationNotSupportedError(op string) *Exception {
	return &Exception{
		Code:    OperationNotSupported,
		Locator: op,
		Value:   op,
		Message: fmt.Sprintf("The requested operation '%s' is not supported by this service!", op),
	}
}

func ParameterNotSupportedError(param string) *Exception {
	return &Exception{
		Code:    InvalidParameterValue,
		Locator: param,
		Message: fmt.Sprintf("The parameter '%s' is not supported by this service!", param),
	}
}

func NoApplicableCodeError(err error) *Exception {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Exception{Code: NoApplicableCode, Message: msg, cause: err}
}

// Composite collects exceptions across all parameters of a request so the
// client sees every malformed parameter in one report.
type Composite struct {
	list []*Exception
}

// Add appends err. Nested composites are flattened, non-OWS errors become
// NoApplicableCode, nil is ignored.
func (c *Composite) Add(err error) {
	if err == nil {
		return
	}
	var nested *Composite
	if errors.As(err, &nested) {
		if nested != c {
			c.list = append(c.list, nested.list...)
		}
		return
	}
	var ex *Exception
	if errors.As(err, &ex) {
		c.list = append(c.list, ex)
		return
	}
	c.list = append(c.list, NoApplicableCodeError(err))
}

func (c *Composite) Len() int { return len(c.list) }

func (c *Composite) Exceptions() []*Exception {
	out := make([]*Exception, len(c.list))
	copy(out, c.list)
	return out
}

// Err returns nil when nothing was collected.
func (c *Composite) Err() error {
	if c == nil || len(c.list) == 0 {
		return nil
	}
	return c
}

func (c *Composite) Error() string {
	switch len(c.list) {
	case 0:
		return "no exceptions"
	case 1:
		return c.list[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", c.list[0].Error(), len(c.list)-1)
}

func (c *Composite) Unwrap() []error {
	out := make([]error, 0, len(c.list))
	for _, e := range c.list {
		out = append(out, e)
	}
	return out
}

// Flatten turns any error into the list of exceptions reported to the client.
func Flatten(err error) []*Exception {
	if err == nil {
		return nil
	}
	var c Composite
	c.Add(err)
	return c.Exceptions()
}

// Status is the HTTP status of the first exception in err.
func Status(err error) int {
	list := Flatten(err)
	if len(list) == 0 {
		return http.StatusOK
	}
	return list[0].Code.HTTPStatus()
}

// HasCode reports whether err carries an exception with code c.
func HasCode(err error, c Code) bool {
	for _, e := range Flatten(err) {
		if e.Code == c {
			return true
		}
	}
	return false
}

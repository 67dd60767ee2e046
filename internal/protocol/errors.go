package protocol

import (
	"fmt"
	"strings"
)

// unrecognizedMarker is the text a server includes in an error message when
// it does not recognise the verb of a request.
const unrecognizedMarker = "unknown command"

// Error is an error reported by the server in response to a request. The
// connection remains usable after an Error.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Unrecognized reports whether the server rejected the request because it
// did not recognise the verb.
//
// NOTE: The wire format only carries a message string, so this is the one
// place the message is inspected to classify the error.
func (e *Error) Unrecognized() bool {
	return strings.Contains(e.Message, unrecognizedMarker)
}

// UnknownCommandError builds the error a server returns for an unrecognised
// verb.
func UnknownCommandError(verb string) *Error {
	return &Error{Message: fmt.Sprintf("%s: %s", unrecognizedMarker, verb)}
}

// Package protocol implements the line-delimited JSON codec spoken between
// the shell and a warden server.
//
// A request is a JSON array of strings terminated by a newline. A reply is a
// single JSON object on its own line, either
//
//	{"type":"object","payload":<any>}
//
// or
//
//	{"type":"error","payload":"<message>"}
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	ReplyTypeObject = "object"
	ReplyTypeError  = "error"
)

var (
	// ErrEmptyRequest is returned when a request carries no tokens.
	ErrEmptyRequest = errors.New("empty request")

	// ErrMalformedRequest is returned when a request line is not a JSON array
	// of strings. The line has been consumed and the stream is still usable.
	ErrMalformedRequest = errors.New("malformed request")
)

// Reply is a single response from the server.
type Reply struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ObjectReply wraps a successful result.
func ObjectReply(payload any) Reply {
	return Reply{Type: ReplyTypeObject, Payload: payload}
}

// ErrorReply wraps an error message.
func ErrorReply(message string) Reply {
	return Reply{Type: ReplyTypeError, Payload: message}
}

// WriteRequest encodes tokens as a single request line.
func WriteRequest(w io.Writer, tokens []string) error {
	if len(tokens) == 0 {
		return ErrEmptyRequest
	}

	return writeLine(w, tokens)
}

// ReadRequest decodes the next request line.
func ReadRequest(r *bufio.Reader) ([]string, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}

	var tokens []string
	if err := json.Unmarshal(line, &tokens); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	if len(tokens) == 0 {
		return nil, ErrEmptyRequest
	}

	return tokens, nil
}

// WriteReply encodes reply as a single line.
func WriteReply(w io.Writer, reply Reply) error {
	return writeLine(w, reply)
}

// ReadReply decodes the next reply line. An error reply is returned as an
// *Error; any other error means the stream can no longer be trusted.
//
// Numbers in the payload are decoded as json.Number so that they render
// exactly as the server sent them.
func ReadReply(r *bufio.Reader) (any, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var reply Reply
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}

	switch reply.Type {
	case ReplyTypeObject:
		return reply.Payload, nil
	case ReplyTypeError:
		return nil, &Error{Message: fmt.Sprint(reply.Payload)}
	default:
		return nil, fmt.Errorf("decode reply: unexpected type %q", reply.Type)
	}
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	data = append(data, '\n')

	if _, err := w.Write(data); err != nil {
		return err
	}

	return nil
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		// A final line without a terminating newline is still a complete
		// message if the peer closed the connection after writing it.
		if errors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) > 0 {
			return line, nil
		}

		return nil, err
	}

	return line, nil
}

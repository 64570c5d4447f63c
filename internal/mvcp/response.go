/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mvcp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a reply stream cannot be parsed.
var ErrMalformed = errors.New("mvcp: malformed response")

const emptyResponse = "500 Empty Response\r\n\r\n"

// Response is an ordered list of text lines. Line 0 is the header
// "<code> <message>"; the rest is payload.
type Response struct {
	lines []string
	open  bool
}

// NewResponse returns an empty response with no header.
func NewResponse() *Response {
	return &Response{}
}

// NewStatusResponse returns a response holding only a header for code with
// its default message.
func NewStatusResponse(code int) *Response {
	r := NewResponse()
	r.SetCode(code)
	return r
}

// SetError installs the header line. Later calls replace earlier ones.
func (r *Response) SetError(code int, message string) {
	header := fmt.Sprintf("%d %s", code, message)
	if len(r.lines) == 0 {
		r.lines = append(r.lines, header)
		return
	}
	r.lines[0] = header
}

// SetCode installs the header using the default message for code.
func (r *Response) SetCode(code int) {
	r.SetError(code, Message(code))
}

// Code returns the numeric header code or -1 when there is none.
func (r *Response) Code() int {
	if r == nil || len(r.lines) == 0 {
		return -1
	}
	field, _, _ := strings.Cut(r.lines[0], " ")
	code, err := strconv.Atoi(field)
	if err != nil {
		return -1
	}
	return code
}

// Message returns the header text after the code.
func (r *Response) Message() string {
	if r == nil || len(r.lines) == 0 {
		return ""
	}
	_, msg, _ := strings.Cut(r.lines[0], " ")
	return msg
}

// Write appends text. Each '\n' closes the current line; text after the
// last '\n' stays open and is extended by the next Write. Carriage returns
// are dropped.
func (r *Response) Write(text string) {
	for len(text) > 0 {
		chunk := text
		i := strings.IndexByte(text, '\n')
		if i >= 0 {
			chunk, text = text[:i], text[i+1:]
		} else {
			text = ""
		}
		chunk = strings.ReplaceAll(chunk, "\r", "")
		if r.open && len(r.lines) > 0 {
			r.lines[len(r.lines)-1] += chunk
		} else {
			r.lines = append(r.lines, chunk)
		}
		r.open = i < 0
	}
}

// Printf formats according to format and appends the result with Write.
func (r *Response) Printf(format string, args ...any) {
	r.Write(fmt.Sprintf(format, args...))
}

// Count returns the number of lines including the header.
func (r *Response) Count() int {
	if r == nil {
		return 0
	}
	return len(r.lines)
}

// Line returns line i or "" when out of range.
func (r *Response) Line(i int) string {
	if r == nil || i < 0 || i >= len(r.lines) {
		return ""
	}
	return r.lines[i]
}

// Lines returns a copy of every line including the header.
func (r *Response) Lines() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Payload returns every line after the header.
func (r *Response) Payload() []string {
	if r.Count() < 2 {
		return nil
	}
	return r.Lines()[1:]
}

// Finalize settles the framing code: an empty response becomes a server
// error and a plain success is upgraded to 202 or 201 depending on how
// many lines it carries.
func (r *Response) Finalize() {
	switch n := len(r.lines); {
	case n == 0:
		r.SetError(CodeServerError, "Unknown error")
	case r.Code() == CodeOK && n > 2:
		r.SetCode(CodeOKMulti)
	case r.Code() == CodeOK && n > 1:
		r.SetCode(CodeOKSingle)
	}
}

// Encode finalizes r and renders its wire form.
func (r *Response) Encode() string {
	if r == nil {
		return emptyResponse
	}
	r.Finalize()
	code := r.Code()
	if code < 0 {
		return emptyResponse
	}

	var b strings.Builder
	last := len(r.lines) - 1
	for i, line := range r.lines {
		if line == "" && i != last {
			line = " "
		}
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	if (code == CodeOKMulti || code == CodeServerError) && r.lines[last] != "" {
		b.WriteString("\r\n")
	}
	return b.String()
}

// WriteTo writes the encoded response to w.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.Encode())
	return int64(n), err
}

// Greeting is the banner sent on every new connection.
const Greeting = "100 VTR Ready\r\n\r\n"

// ReadLine reads one '\n' terminated line and strips the terminator along
// with any carriage return.
func ReadLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.ReplaceAll(strings.TrimSuffix(line, "\n"), "\r", ""), nil
}

// ReadResponse parses one reply from br. Multi-line replies (201, 500 and
// the 100 greeting) end at the first empty line, 202 carries exactly one
// payload line and every other code is a bare header.
func ReadResponse(br *bufio.Reader) (*Response, error) {
	r := NewResponse()
	for {
		line, err := ReadLine(br)
		if err != nil {
			if len(r.lines) > 0 && errors.Is(err, io.EOF) {
				return r, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if len(r.lines) == 0 {
			if line == "" {
				continue
			}
			r.lines = append(r.lines, line)
			if r.Code() < 0 {
				return nil, fmt.Errorf("%w: header %q", ErrMalformed, line)
			}
		} else {
			r.lines = append(r.lines, line)
		}

		switch code := r.Code(); code {
		case CodeGreeting, CodeOKMulti, CodeServerError:
			if len(r.lines) > 1 && line == "" {
				return r, nil
			}
		case CodeOKSingle:
			if len(r.lines) >= 2 {
				return r, nil
			}
		default:
			return r, nil
		}
	}
}

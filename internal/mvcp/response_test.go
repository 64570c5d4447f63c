/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mvcp

import (
	"bufio"
	"reflect"
	"strings"
	"testing"
)

func TestResponseWriteSplitsLines(t *testing.T) {
	r := NewStatusResponse(CodeOK)
	r.Printf("U%d\n\n", 0)

	want := []string{"200 OK", "U0", ""}
	if got := r.Lines(); !reflect.DeepEqual(got, want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
}

func TestResponseWriteContinuesOpenLine(t *testing.T) {
	r := NewStatusResponse(CodeOK)
	r.Write("/media")
	r.Write("/clips\r\n")
	r.Write("next")

	want := []string{"200 OK", "/media/clips", "next"}
	if got := r.Lines(); !reflect.DeepEqual(got, want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
}

func TestSetErrorLastWriteWins(t *testing.T) {
	r := NewStatusResponse(CodeUnknownCommand)
	r.Printf("payload\n")
	r.SetCode(CodeOK)
	r.SetError(CodeBadFile, "Failed to load XML")

	if r.Code() != CodeBadFile {
		t.Fatalf("code = %d, want %d", r.Code(), CodeBadFile)
	}
	if r.Message() != "Failed to load XML" {
		t.Fatalf("message = %q", r.Message())
	}
	if r.Line(1) != "payload" {
		t.Fatalf("payload lost: %q", r.Lines())
	}
}

func TestEncodeFraming(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Response
		want  string
	}{
		{
			name:  "nil response",
			build: func() *Response { return nil },
			want:  "500 Empty Response\r\n\r\n",
		},
		{
			name:  "no lines",
			build: NewResponse,
			want:  "500 Unknown error\r\n\r\n",
		},
		{
			name:  "plain success",
			build: func() *Response { return NewStatusResponse(CodeOK) },
			want:  "200 OK\r\n",
		},
		{
			name: "single payload line upgrades to 202",
			build: func() *Response {
				r := NewStatusResponse(CodeOK)
				r.Printf("value\n")
				return r
			},
			want: "202 OK\r\nvalue\r\n",
		},
		{
			name: "multi line upgrades to 201",
			build: func() *Response {
				r := NewStatusResponse(CodeOK)
				r.Printf("1\n0 \"a.mp4\" 0 99 100 100 25.00\n\n")
				return r
			},
			want: "201 OK\r\n1\r\n0 \"a.mp4\" 0 99 100 100 25.00\r\n\r\n",
		},
		{
			name: "201 without trailing blank gets one",
			build: func() *Response {
				r := NewStatusResponse(CodeOKMulti)
				r.Printf("a\nb")
				return r
			},
			want: "201 OK\r\na\r\nb\r\n\r\n",
		},
		{
			name: "inner blank line sent as space",
			build: func() *Response {
				r := NewStatusResponse(CodeOKMulti)
				r.Printf("a\n\nb\n\n")
				return r
			},
			want: "201 OK\r\na\r\n \r\nb\r\n\r\n",
		},
		{
			name:  "error header only",
			build: func() *Response { return NewStatusResponse(CodeServerError) },
			want:  "500 Server Error\r\n\r\n",
		},
		{
			name:  "client error",
			build: func() *Response { return NewStatusResponse(CodeUnknownCommand) },
			want:  "400 Unknown command\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.build().Encode(); got != tt.want {
				t.Fatalf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadResponse(t *testing.T) {
	tests := []struct {
		name  string
		wire  string
		code  int
		lines int
	}{
		{"greeting", Greeting, CodeGreeting, 2},
		{"plain", "200 OK\r\n", CodeOK, 1},
		{"single", "202 OK\r\nvalue\r\n", CodeOKSingle, 2},
		{"multi", "201 OK\r\nU0\r\n\r\n", CodeOKMulti, 3},
		{"multi with spacer", "201 OK\r\na\r\n \r\nb\r\n\r\n", CodeOKMulti, 5},
		{"error", "500 Server Error\r\nno more units can be created\r\n\r\n", CodeServerError, 3},
		{"bare error", "403 Unit not found\r\n", CodeInvalidUnit, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := bufio.NewReader(strings.NewReader(tt.wire + "200 OK\r\n"))
			r, err := ReadResponse(br)
			if err != nil {
				t.Fatalf("ReadResponse: %v", err)
			}
			if r.Code() != tt.code {
				t.Fatalf("code = %d, want %d", r.Code(), tt.code)
			}
			if r.Count() != tt.lines {
				t.Fatalf("count = %d (%q), want %d", r.Count(), r.Lines(), tt.lines)
			}
			next, err := ReadResponse(br)
			if err != nil || next.Code() != CodeOK {
				t.Fatalf("stream not aligned after read: %v %v", next, err)
			}
		})
	}
}

func TestEncodeReadRoundTrip(t *testing.T) {
	r := NewStatusResponse(CodeOK)
	r.Printf("3\n0 \"a\" 0 1 2 2 25.00\n1 \"b\" 0 1 2 2 25.00\n\n")
	wire := r.Encode()

	back, err := ReadResponse(bufio.NewReader(strings.NewReader(wire)))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if back.Encode() != wire {
		t.Fatalf("re-encoded %q, want %q", back.Encode(), wire)
	}
}

func TestReadResponseRejectsGarbageHeader(t *testing.T) {
	if _, err := ReadResponse(bufio.NewReader(strings.NewReader("hello\r\n"))); err == nil {
		t.Fatal("expected malformed header error")
	}
}

func TestNormalize(t *testing.T) {
	for _, code := range []int{CodeOK, CodeOKMulti, CodeOKSingle} {
		if Normalize(code) != CodeOK {
			t.Errorf("Normalize(%d) = %d", code, Normalize(code))
		}
	}
	if Normalize(CodeBadFile) != CodeBadFile {
		t.Error("Normalize changed an error code")
	}
	if !IsError(CodeBadFile) || IsError(CodeOKSingle) {
		t.Error("IsError misclassified")
	}
}

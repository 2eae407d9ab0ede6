package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestFramingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := &Message{
		JSONRPC: "2.0",
		ID:      json.RawMessage("7"),
		Method:  "workspace/executeCommand",
		Params:  json.RawMessage(`{"command":"pytea.analyzeFile"}`),
	}
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "Content-Length: ") {
		t.Fatalf("missing framing header: %q", buf.String())
	}

	got, err := ReadMessage(bufio.NewReader(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if got.Method != msg.Method || string(got.ID) != "7" {
		t.Fatalf("round trip produced %+v", got)
	}
	if !got.IsRequest() {
		t.Fatal("request with id not recognized as request")
	}
}

func TestReadSkipsUnknownHeaders(t *testing.T) {
	raw := "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\n" +
		"Content-Length: 2\r\n\r\n{}"
	payload, err := Read(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != "{}" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestReadMissingContentLength(t *testing.T) {
	raw := "Content-Type: application/json\r\n\r\n{}"
	if _, err := Read(bufio.NewReader(strings.NewReader(raw))); err == nil {
		t.Fatal("expected an error for a frame without Content-Length")
	}
}

func TestReadInvalidContentLength(t *testing.T) {
	raw := "Content-Length: many\r\n\r\n{}"
	if _, err := Read(bufio.NewReader(strings.NewReader(raw))); err == nil {
		t.Fatal("expected an error for a malformed Content-Length")
	}
}

func TestNotificationIsNotRequest(t *testing.T) {
	msg := &Message{JSONRPC: "2.0", Method: "initialized"}
	if msg.IsRequest() {
		t.Fatal("notification without id treated as request")
	}
}

package codec

import (
	"bytes"
	"encoding/json"
	"testing"

	"temctl/message"
)

func sampleRequest() *message.Request {
	return &message.Request{
		Operation: "setStageXY",
		Args:      []json.RawMessage{json.RawMessage("100.5"), json.RawMessage("-20")},
		Kwargs:    map[string]json.RawMessage{"wait": json.RawMessage("false")},
	}
}

func checkRequest(t *testing.T, got, want *message.Request) {
	t.Helper()
	if got.Operation != want.Operation {
		t.Errorf("Operation mismatch: got %s, want %s", got.Operation, want.Operation)
	}
	if len(got.Args) != len(want.Args) {
		t.Fatalf("Args length mismatch: got %d, want %d", len(got.Args), len(want.Args))
	}
	for i := range want.Args {
		if !bytes.Equal(got.Args[i], want.Args[i]) {
			t.Errorf("Args[%d] mismatch: got %s, want %s", i, got.Args[i], want.Args[i])
		}
	}
	if len(got.Kwargs) != len(want.Kwargs) {
		t.Fatalf("Kwargs length mismatch: got %d, want %d", len(got.Kwargs), len(want.Kwargs))
	}
	for name, v := range want.Kwargs {
		if !bytes.Equal(got.Kwargs[name], v) {
			t.Errorf("Kwargs[%s] mismatch: got %s, want %s", name, got.Kwargs[name], v)
		}
	}
}

func TestJSONCodec(t *testing.T) {
	jsonCodec := &JSONCodec{}

	original := sampleRequest()
	data, err := jsonCodec.Encode(original)
	if err != nil {
		t.Fatalf("JSONCodec Encode failed: %v", err)
	}

	var decoded message.Request
	if err := jsonCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("JSONCodec Decode failed: %v", err)
	}
	checkRequest(t, &decoded, original)
}

func TestJSONCodecResponseIsPair(t *testing.T) {
	jsonCodec := &JSONCodec{}

	resp, err := message.OK([]float64{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatal(err)
	}
	data, err := jsonCodec.Encode(resp)
	if err != nil {
		t.Fatalf("JSONCodec Encode failed: %v", err)
	}
	if string(data) != "[200,[1,2,3,4,5]]" {
		t.Fatalf("unexpected wire form %s", data)
	}

	var decoded message.Response
	if err := jsonCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("JSONCodec Decode failed: %v", err)
	}
	if decoded.Status != message.StatusOK || string(decoded.Payload) != "[1,2,3,4,5]" {
		t.Errorf("got %d %s", decoded.Status, decoded.Payload)
	}
}

func TestJSONCodecControl(t *testing.T) {
	jsonCodec := &JSONCodec{}

	data, err := jsonCodec.Encode(message.ControlKill)
	if err != nil {
		t.Fatal(err)
	}
	var s string
	if err := jsonCodec.Decode(data, &s); err != nil {
		t.Fatal(err)
	}
	if s != message.ControlKill {
		t.Errorf("got %q, want %q", s, message.ControlKill)
	}
}

func TestJSONCodecRejectsTrailingData(t *testing.T) {
	jsonCodec := &JSONCodec{}

	var s string
	if err := jsonCodec.Decode([]byte(`"close" "kill"`), &s); err == nil {
		t.Fatal("expect an error for two values in one body")
	}
	if err := jsonCodec.Decode([]byte("\"close\"\n"), &s); err != nil {
		t.Fatalf("trailing whitespace must be accepted: %v", err)
	}
	var req message.Request
	if err := jsonCodec.Decode([]byte(`{"operation":"getBrightness"`), &req); err == nil {
		t.Fatal("expect an error for a truncated object")
	}
}

func TestBinaryCodec(t *testing.T) {
	binaryCodec := &BinaryCodec{}

	original := sampleRequest()
	data, err := binaryCodec.Encode(original)
	if err != nil {
		t.Fatalf("BinaryCodec Encode failed: %v", err)
	}

	var decoded message.Request
	if err := binaryCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("BinaryCodec Decode failed: %v", err)
	}
	checkRequest(t, &decoded, original)
}

func TestBinaryCodecNoArgs(t *testing.T) {
	binaryCodec := &BinaryCodec{}

	data, err := binaryCodec.Encode(&message.Request{Operation: "getBrightness"})
	if err != nil {
		t.Fatal(err)
	}
	var decoded message.Request
	if err := binaryCodec.Decode(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Operation != "getBrightness" || len(decoded.Args) != 0 || decoded.Kwargs != nil {
		t.Errorf("unexpected request %+v", decoded)
	}
}

func TestBinaryCodecResponse(t *testing.T) {
	binaryCodec := &BinaryCodec{}

	original := &message.Response{
		Status:  message.StatusError,
		Payload: json.RawMessage(`{"kind":"ValueError","message":"bad"}`),
	}

	data, err := binaryCodec.Encode(original)
	if err != nil {
		t.Fatal(err)
	}
	var decoded message.Response
	if err := binaryCodec.Decode(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Status != message.StatusError {
		t.Errorf("Status mismatch: got %d", decoded.Status)
	}
	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("Payload mismatch: got %s", decoded.Payload)
	}
}

func TestBinaryCodecTruncated(t *testing.T) {
	binaryCodec := &BinaryCodec{}

	data, err := binaryCodec.Encode(sampleRequest())
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 1, 5, len(data) - 1} {
		var decoded message.Request
		if err := binaryCodec.Decode(data[:n], &decoded); err == nil {
			t.Errorf("expected error decoding %d of %d bytes", n, len(data))
		}
	}

	var decoded message.Request
	if err := binaryCodec.Decode(append(data, 0), &decoded); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func TestBinaryCodecUnsupported(t *testing.T) {
	binaryCodec := &BinaryCodec{}
	if _, err := binaryCodec.Encode(42); err == nil {
		t.Error("expected error encoding an int")
	}
	var n int
	if err := binaryCodec.Decode([]byte{1}, &n); err == nil {
		t.Error("expected error decoding into an int")
	}
}

func TestParseType(t *testing.T) {
	for name, want := range map[string]CodecType{"json": CodecTypeJSON, "binary": CodecTypeBinary} {
		got, err := ParseType(name)
		if err != nil || got != want {
			t.Errorf("ParseType(%q) = %v, %v", name, got, err)
		}
		if GetCodec(got).Type() != want {
			t.Errorf("GetCodec(%v) returned the wrong codec", got)
		}
	}
	if _, err := ParseType("protobuf"); err == nil {
		t.Error("expected error for unknown codec")
	}
}

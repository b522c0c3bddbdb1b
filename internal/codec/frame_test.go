package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	ops := []Op{OpHandshake, OpFrame, OpClose, OpPing, OpPong}
	payloads := [][]byte{
		[]byte(`{"v":1,"client_id":"999"}`),
		[]byte(`{}`),
		nil,
		[]byte("x"),
	}

	for _, op := range ops {
		for _, p := range payloads {
			encoded := Encode(op, p)
			gotOp, gotPayload, err := ReadFrame(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("ReadFrame(%v, %q): %v", op, p, err)
			}
			if gotOp != op {
				t.Errorf("op = %v, want %v", gotOp, op)
			}
			if !bytes.Equal(gotPayload, p) && !(len(gotPayload) == 0 && len(p) == 0) {
				t.Errorf("payload = %q, want %q", gotPayload, p)
			}
		}
	}
}

func TestUnknownOpDecodesLenient(t *testing.T) {
	encoded := Encode(Op(99), []byte("hi"))
	op, payload, err := ReadFrame(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if op != Op(99) {
		t.Errorf("op = %v, want 99 (lenient decode)", op)
	}
	if string(payload) != "hi" {
		t.Errorf("payload = %q", payload)
	}
}

func TestEmptyInputIsEOF(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF for a clean zero-byte read", err)
	}
}

func TestTruncatedHeaderMidwayIsShortRead(t *testing.T) {
	encoded := Encode(OpFrame, []byte("hello"))
	_, _, err := ReadFrame(bytes.NewReader(encoded[:4]))
	if !errors.Is(err, ErrShortRead) {
		t.Errorf("err = %v, want ErrShortRead", err)
	}
}

func TestTruncatedPayloadIsShortRead(t *testing.T) {
	encoded := Encode(OpFrame, []byte("hello world"))
	_, _, err := ReadFrame(bytes.NewReader(encoded[:headerSize+3]))
	if !errors.Is(err, ErrShortRead) {
		t.Errorf("err = %v, want ErrShortRead", err)
	}
}

func TestEncodeNeverFails(t *testing.T) {
	big := make([]byte, 1<<20)
	out := Encode(OpFrame, big)
	if len(out) != headerSize+len(big) {
		t.Errorf("len(out) = %d, want %d", len(out), headerSize+len(big))
	}
}

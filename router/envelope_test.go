package router

import "testing"

func TestEnvelopeRoundTrip(t *testing.T) {
	env := &Envelope{
		Version: EnvelopeVersion, ID: "abc123", Source: "Mcaller", Target: "Vcallee",
		WitNamespace: "wasi", WitPackage: "keyvalue", WitInterface: "atomic",
		Function: "increment", LinkName: "default", Payload: []byte("hello"),
		HostWitness: "Nhost", Signature: []byte{1, 2, 3},
	}
	wire, err := env.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Envelope
	if _, err := got.UnmarshalMsg(wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != env.ID || got.Target != env.Target || string(got.Payload) != "hello" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestSubjectShape(t *testing.T) {
	env := &Envelope{Target: "Vcallee", LinkName: "default", WitPackage: "keyvalue", WitInterface: "atomic"}
	got := Subject("wasmbus", "default", env)
	want := "wasmbus.default.rpc.Vcallee.default.keyvalue.atomic"
	if got != want {
		t.Fatalf("subject = %q, want %q", got, want)
	}
}

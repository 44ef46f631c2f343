// Package router implements the Invocation Router (spec.md §4.6): resolve
// a link, authorize it, build a wire envelope, chunk oversized payloads out
// to the chunk store, publish on the bus, and verify the response.
package router

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/latticerun/hostcore/cmn"
)

// EnvelopeVersion is bumped whenever a field is added or reordered in a way
// that breaks wire compatibility.
const EnvelopeVersion = 1

// Envelope is the MessagePack-encoded invocation wire record (spec.md
// §4.6). MarshalMsg/UnmarshalMsg are hand-rolled against the tinylib/msgp
// runtime helpers rather than generated, since this struct's shape is
// fixed and small enough that generation would add a build step for no
// benefit.
type Envelope struct {
	Version      uint8
	ID           string // nuid
	Source       string // calling component id
	Target       string // target provider/component id
	WitNamespace string
	WitPackage   string
	WitInterface string
	Function     string
	LinkName     string
	Payload      []byte // inline payload; empty when PayloadHandle is set
	PayloadHandle string // chunk store key, set when Payload exceeds the inline threshold
	Trace        []byte // propagated trace context, opaque to the router
	HostWitness  string // originating host id, for audit
	Signature    []byte // ed25519 signature over the rest of the envelope
}

const envFieldCount = 14

func (e *Envelope) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, envFieldCount)
	b = msgp.AppendString(b, "version")
	b = msgp.AppendUint8(b, e.Version)
	b = msgp.AppendString(b, "id")
	b = msgp.AppendString(b, e.ID)
	b = msgp.AppendString(b, "source")
	b = msgp.AppendString(b, e.Source)
	b = msgp.AppendString(b, "target")
	b = msgp.AppendString(b, e.Target)
	b = msgp.AppendString(b, "wit_namespace")
	b = msgp.AppendString(b, e.WitNamespace)
	b = msgp.AppendString(b, "wit_package")
	b = msgp.AppendString(b, e.WitPackage)
	b = msgp.AppendString(b, "wit_interface")
	b = msgp.AppendString(b, e.WitInterface)
	b = msgp.AppendString(b, "function")
	b = msgp.AppendString(b, e.Function)
	b = msgp.AppendString(b, "link_name")
	b = msgp.AppendString(b, e.LinkName)
	b = msgp.AppendString(b, "payload")
	b = msgp.AppendBytes(b, e.Payload)
	b = msgp.AppendString(b, "payload_handle")
	b = msgp.AppendString(b, e.PayloadHandle)
	b = msgp.AppendString(b, "trace")
	b = msgp.AppendBytes(b, e.Trace)
	b = msgp.AppendString(b, "host_witness")
	b = msgp.AppendString(b, e.HostWitness)
	b = msgp.AppendString(b, "signature")
	b = msgp.AppendBytes(b, e.Signature)
	return b, nil
}

func (e *Envelope) UnmarshalMsg(bts []byte) ([]byte, error) {
	n, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, cmn.NewKindErr(cmn.ErrInvalidClaims, "envelope: read map header", err)
	}
	for i := uint32(0); i < n; i++ {
		var field string
		field, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, cmn.NewKindErr(cmn.ErrInvalidClaims, "envelope: read field name", err)
		}
		switch field {
		case "version":
			e.Version, bts, err = msgp.ReadUint8Bytes(bts)
		case "id":
			e.ID, bts, err = msgp.ReadStringBytes(bts)
		case "source":
			e.Source, bts, err = msgp.ReadStringBytes(bts)
		case "target":
			e.Target, bts, err = msgp.ReadStringBytes(bts)
		case "wit_namespace":
			e.WitNamespace, bts, err = msgp.ReadStringBytes(bts)
		case "wit_package":
			e.WitPackage, bts, err = msgp.ReadStringBytes(bts)
		case "wit_interface":
			e.WitInterface, bts, err = msgp.ReadStringBytes(bts)
		case "function":
			e.Function, bts, err = msgp.ReadStringBytes(bts)
		case "link_name":
			e.LinkName, bts, err = msgp.ReadStringBytes(bts)
		case "payload":
			e.Payload, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "payload_handle":
			e.PayloadHandle, bts, err = msgp.ReadStringBytes(bts)
		case "trace":
			e.Trace, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "host_witness":
			e.HostWitness, bts, err = msgp.ReadStringBytes(bts)
		case "signature":
			e.Signature, bts, err = msgp.ReadBytesBytes(bts, nil)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, cmn.NewKindErr(cmn.ErrInvalidClaims, "envelope: decode field "+field, err)
		}
	}
	return bts, nil
}

// Subject builds the deterministic bus subject spec.md §4.6 names:
// "<prefix>.<lattice>.rpc.<target-id>.<link-name>.<wit-package>.<wit-interface>".
func Subject(prefix, lattice string, e *Envelope) string {
	return prefix + "." + lattice + ".rpc." + e.Target + "." + e.LinkName + "." + e.WitPackage + "." + e.WitInterface
}

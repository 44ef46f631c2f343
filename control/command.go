// Package control implements the Control Plane (spec.md §4.7): command
// dispatch over the full component/provider/link/config/host taxonomy,
// per-entity ordering via sharding, signed commands, and the graceful
// shutdown sequence.
package control

import (
	"encoding/json"

	"github.com/latticerun/hostcore/cmn"
)

// Command is the JSON control-plane envelope (spec.md §4.6 note: "control
// plane command/event bodies stay JSON"). EntityID determines which shard
// processes the command, preserving per-entity ordering.
type Command struct {
	Action     string          `json:"action"`
	EntityID   string          `json:"entity_id"`
	Value      json.RawMessage `json:"value"`
	ClaimsJWT  string          `json:"claims,omitempty"` // signs Action+EntityID+Value
	ReplySubject string        `json:"reply_subject,omitempty"`
}

// Reply is the response a command handler produces.
type Reply struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Kind  cmn.ErrKind `json:"kind,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

func errReply(err error) Reply {
	kind, _ := cmn.KindOf(err)
	return Reply{OK: false, Error: err.Error(), Kind: kind}
}

func okReply(v interface{}) Reply {
	return Reply{OK: true, Value: v}
}

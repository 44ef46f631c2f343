// Package cluster holds the host-core's process-wide data model: the types
// named in spec.md §3 (Host, Component, Provider, Link Definition, Named
// Config, Invocation, Inventory Snapshot) plus the validation and identity
// helpers every other package builds on.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import (
	"errors"
	"fmt"
	"time"
)

type (
	// NetInfo-equivalent: the bus coordinates a Host advertises. Kept small
	// since, unlike the grounding repository's multi-network Snode, a host
	// in this spec has exactly one transport: the lattice bus.
	BusInfo struct {
		URL string `json:"bus_url"`
	}

	// Host is the process-wide singleton described in spec.md §3 and §9
	// ("one process-wide singleton... passed by shared ownership"). It owns
	// Components and Providers exclusively; Link Definitions are a
	// read-through mirror of lattice-owned state (see linkstore).
	Host struct {
		ID           string            `json:"host_id"`   // ed25519 public key (nkeys)
		ClusterID    string             `json:"-"`         // left out of JSON: cluster issuer key material lives in claims
		LatticeID    string            `json:"lattice_id"`
		FriendlyName string            `json:"friendly_name"`
		Labels       map[string]string `json:"labels"`
		JSDomain     string            `json:"js_domain,omitempty"`
		StartTime    time.Time         `json:"start_time"`
		Bus          BusInfo           `json:"bus"`
	}

	// Component is a loaded Wasm artifact. Identity never changes across
	// scale operations (spec.md §3 invariant).
	Component struct {
		ID            string            `json:"id"` // public key derived from embedded claims
		ImageRef      string            `json:"image_ref"`
		Revision      int               `json:"revision"`
		CallAlias     string            `json:"call_alias,omitempty"`
		Capabilities  []string          `json:"capabilities,omitempty"`
		MaxConcurrent int               `json:"max_concurrent"` // <=0 means unbounded
		Annotations   map[string]string `json:"annotations,omitempty"`
		LoadedAt      time.Time         `json:"loaded_at"`

		// InstanceCount is a live, mutable counter maintained by wasmrt;
		// it is copied into InventorySnapshot, never mutated through this
		// struct directly once the Component is registered.
		InstanceCount int `json:"instance_count"`
	}

	// Provider is a supervised child process. (identity, LinkName) is
	// unique per host (spec.md §3 invariant).
	Provider struct {
		ID          string            `json:"id"`
		LinkName    string            `json:"link_name"`
		ImageRef    string            `json:"image_ref"`
		Capabilities []string         `json:"capabilities,omitempty"`
		Config      map[string]string `json:"config,omitempty"`
		Health      string            `json:"health"` // Healthy | Unresponsive | Crashed
		State       string            `json:"state"`  // provider state machine, spec.md §4.4
		StartedAt   time.Time         `json:"started_at"`
		PID         int               `json:"pid,omitempty"`
	}

	// LinkDefinition is the authorization+routing binding of spec.md §3.
	// (SourceID, WitNamespace, WitPackage, LinkName) is the unique key.
	LinkDefinition struct {
		SourceID      string   `json:"source_id"`
		TargetID      string   `json:"target_id"`
		WitNamespace  string   `json:"wit_namespace"`
		WitPackage    string   `json:"wit_package"`
		WitInterfaces []string `json:"wit_interfaces"`
		LinkName      string   `json:"link_name"`
		SourceConfig  []string `json:"source_config,omitempty"`
		TargetConfig  []string `json:"target_config,omitempty"`
	}

	// NamedConfig is a versioned map[string][]byte bundle, spec.md §3.
	NamedConfig struct {
		Name    string            `json:"name"`
		Entries map[string][]byte `json:"entries"`
		Version int64             `json:"version"`
	}

	// InventorySnapshot is produced on demand, never stored (spec.md §3).
	InventorySnapshot struct {
		HostID       string            `json:"host_id"`
		FriendlyName string            `json:"friendly_name"`
		Labels       map[string]string `json:"labels"`
		Uptime       time.Duration     `json:"uptime_ns"`
		Components   []Component       `json:"components"`
		Providers    []Provider        `json:"providers"`
	}
)

// LinkKey is the (source, namespace, package, link-name) unique key from
// spec.md §3's Link Definition invariant.
func (l *LinkDefinition) LinkKey() string {
	return l.SourceID + "/" + l.WitNamespace + "/" + l.WitPackage + "/" + l.LinkName
}

func (l *LinkDefinition) Validate() error {
	if l.SourceID == "" || l.TargetID == "" {
		return errors.New("link definition: source and target id are required")
	}
	if l.WitNamespace == "" || l.WitPackage == "" {
		return errors.New("link definition: wit namespace/package are required")
	}
	if l.LinkName == "" {
		return errors.New("link definition: link name is required")
	}
	return nil
}

func (l *LinkDefinition) DeclaresInterface(iface string) bool {
	for _, i := range l.WitInterfaces {
		if i == iface {
			return true
		}
	}
	return false
}

func (c *Component) String() string {
	return fmt.Sprintf("component[%s](rev=%d, max=%d, n=%d)", c.ID, c.Revision, c.MaxConcurrent, c.InstanceCount)
}

// Unbounded reports whether MaxConcurrent imposes no cap, spec.md §4.3
// ("max_concurrent... or 'unbounded'").
func (c *Component) Unbounded() bool { return c.MaxConcurrent <= 0 }

func (p *Provider) String() string {
	return fmt.Sprintf("provider[%s/%s](%s)", p.ID, p.LinkName, p.State)
}

// ProviderKey is the (ID, LinkName) uniqueness tuple from spec.md §3.
func (p *Provider) ProviderKey() string { return p.ID + "/" + p.LinkName }

// Package cmn provides common low-level types and utilities shared by every
// host-core component.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "time"

// Version is the host core build identifier reported by host.ping.
const Version = "0.1.0"

// size units
const (
	KiB = 1024
	MiB = 1024 * KiB
)

// defaults named throughout spec.md
const (
	// spec.md §4.6: "default ~900 KiB to stay under bus message limits"
	DefaultInlineThreshold = 900 * KiB
	// spec.md §6: "payload size limit (~1 MiB)"
	DefaultBusPayloadLimit = 1 * MiB
	// spec.md §4.6: "a sensible default (≈2s for sync RPC)"
	DefaultInvokeTimeout = 2 * time.Second
	// spec.md §4.1: "small skew window (≤30s)"
	DefaultClaimsSkew = 30 * time.Second
	// spec.md §4.2: registry transport retry cap
	DefaultFetchRetries  = 4
	DefaultFetchMaxDelay = 30 * time.Second
	// spec.md §4.4/§4.7: graceful shutdown bound
	DefaultGracefulTimeout = 5 * time.Second
	// spec.md §4.4: provider readiness probe
	DefaultReadinessTimeout = 10 * time.Second
	DefaultHealthInterval   = 15 * time.Second
	UnresponsiveAfterMisses = 3
)

// ActionMsg.Action — control-plane command families named in spec.md §4.7.
const (
	ActComponentAuction = "component.auction"
	ActComponentScale   = "component.scale"
	ActComponentUpdate  = "component.update"
	ActProviderAuction  = "provider.auction"
	ActProviderStart    = "provider.start"
	ActProviderStop     = "provider.stop"
	ActLinkPut          = "link.put"
	ActLinkDelete       = "link.delete"
	ActConfigPut        = "config.put"
	ActConfigDelete     = "config.delete"
	ActHostPing         = "host.ping"
	ActHostInventory    = "host.inventory"
	ActHostStop         = "host.stop"
	ActLabelPut         = "host.label.put"
	ActLabelDelete      = "host.label.delete"
)

// lifecycle event types, spec.md §3 (Lifecycle Event)
const (
	EvtComponentScaled    = "component_scaled"
	EvtComponentLoaded    = "component_loaded"
	EvtComponentUnloaded  = "component_unloaded"
	EvtProviderStarted    = "provider_started"
	EvtProviderStopped    = "provider_stopped"
	EvtProviderCrashed    = "provider_crashed"
	EvtLinkDefSet         = "linkdef_set"
	EvtLinkDefDeleted     = "linkdef_deleted"
	EvtConfigSet          = "config_set"
	EvtHealthCheckStatus  = "health_check_status"
	EvtHostStarted        = "host_started"
	EvtHostStopped        = "host_stopped"
)

// daemon types mirrored onto the two kinds of lattice membership the host
// core cares about locally: the host process itself, and what it supervises.
const (
	EntityComponent = "component"
	EntityProvider  = "provider"
)

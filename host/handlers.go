package host

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"github.com/latticerun/hostcore/cluster"
	"github.com/latticerun/hostcore/cmn"
	"github.com/latticerun/hostcore/control"
	"github.com/latticerun/hostcore/provider"
	"github.com/latticerun/hostcore/registry"
)

// registerHandlers binds the control.Command actions below to the C1-C6
// operation each fronts; component.update and host.stop are not registered.
// No handler checks the command's own claims JWT: component.start and
// provider.start verify the fetched artifact's claims (VerifyBytes) before
// loading it, and the other handlers change host state without a claims
// check.
func (h *Host) registerHandlers() {
	h.Plane.Register("component.start", h.handleComponentStart)
	h.Plane.Register("component.stop", h.handleComponentStop)
	h.Plane.Register("component.scale", h.handleComponentScale)
	h.Plane.Register("provider.start", h.handleProviderStart)
	h.Plane.Register("provider.stop", h.handleProviderStop)
	h.Plane.Register("link.put", h.handleLinkPut)
	h.Plane.Register("link.delete", h.handleLinkDelete)
	h.Plane.Register("config.put", h.handleConfigPut)
	h.Plane.Register("config.delete", h.handleConfigDelete)
}

type componentStartReq struct {
	ImageRef      string `json:"image_ref"`
	LinkName      string `json:"link_name"`
	MaxConcurrent int    `json:"max_concurrent"`
	AllowLatest   bool   `json:"allow_latest"`
	AllowInsecure bool   `json:"allow_insecure"`
}

func (h *Host) handleComponentStart(ctx context.Context, cmd control.Command) control.Reply {
	var req componentStartReq
	if err := json.Unmarshal(cmd.Value, &req); err != nil {
		return control.Reply{OK: false, Error: err.Error(), Kind: cmn.ErrInvalidClaims}
	}
	ref, err := registry.ParseReference(req.ImageRef)
	if err != nil {
		return errReply(err)
	}
	res, err := h.Fetcher.Fetch(ctx, ref, registry.FetchOptions{AllowLatest: req.AllowLatest, AllowInsecure: req.AllowInsecure})
	if err != nil {
		return errReply(err)
	}
	claims, err := h.Claims.VerifyBytes(res.Claims, res.Bytes)
	if err != nil {
		return errReply(err)
	}
	c := &cluster.Component{
		ID: claims.Subject, ImageRef: req.ImageRef, Revision: claims.Revision,
		CallAlias: claims.CallAlias, Capabilities: claims.CapabilityContract,
		MaxConcurrent: req.MaxConcurrent,
	}
	if err := h.Runtime.Load(ctx, c, res.Bytes); err != nil {
		return errReply(err)
	}
	h.Components.Put(c)
	h.Events.Publish(ctx, cmn.EvtComponentLoaded, c.ID, c)
	return okReply(c)
}

func (h *Host) handleComponentStop(ctx context.Context, cmd control.Command) control.Reply {
	if err := h.Runtime.Unload(cmd.EntityID); err != nil {
		return errReply(err)
	}
	h.Components.Remove(cmd.EntityID)
	h.Events.Publish(ctx, cmn.EvtComponentUnloaded, cmd.EntityID, nil)
	return okReply(nil)
}

func (h *Host) handleComponentScale(ctx context.Context, cmd control.Command) control.Reply {
	var req struct{ MaxConcurrent int `json:"max_concurrent"` }
	if err := json.Unmarshal(cmd.Value, &req); err != nil {
		return control.Reply{OK: false, Error: err.Error(), Kind: cmn.ErrInvalidClaims}
	}
	if err := h.Runtime.Scale(cmd.EntityID, req.MaxConcurrent); err != nil {
		return errReply(err)
	}
	if c, ok := h.Components.Get(cmd.EntityID); ok {
		c.MaxConcurrent = req.MaxConcurrent
	}
	return okReply(nil)
}

type providerStartReq struct {
	ImageRef string            `json:"image_ref"`
	LinkName string            `json:"link_name"`
	Config   map[string]string `json:"config"`
}

func (h *Host) handleProviderStart(ctx context.Context, cmd control.Command) control.Reply {
	var req providerStartReq
	if err := json.Unmarshal(cmd.Value, &req); err != nil {
		return control.Reply{OK: false, Error: err.Error(), Kind: cmn.ErrInvalidClaims}
	}
	ref, err := registry.ParseReference(req.ImageRef)
	if err != nil {
		return errReply(err)
	}
	res, err := h.Fetcher.Fetch(ctx, ref, registry.FetchOptions{})
	if err != nil {
		return errReply(err)
	}
	destDir, err := os.MkdirTemp("", "hostcore-provider-*")
	if err != nil {
		return errReply(cmn.NewKindErr(cmn.ErrProviderSpawnFailed, "allocate extraction directory", err))
	}
	archive, err := provider.ExtractArchive(bytes.NewReader(res.Bytes), destDir)
	if err != nil {
		return errReply(err)
	}
	binBytes, err := os.ReadFile(archive.BinaryPath)
	if err != nil {
		return errReply(cmn.NewKindErr(cmn.ErrProviderSpawnFailed, "read extracted provider binary", err))
	}
	claims, err := h.Claims.VerifyBytes(archive.ClaimsToken, binBytes)
	if err != nil {
		return errReply(err)
	}
	p := &cluster.Provider{
		ID: claims.Subject, LinkName: req.LinkName, ImageRef: req.ImageRef,
		Capabilities: claims.CapabilityContract, Config: req.Config,
	}
	hd := provider.HostData{
		HostID: h.Self.ID, LatticeID: h.Self.LatticeID, LinkName: req.LinkName,
		Config: req.Config, BusURL: h.Self.Bus.URL,
	}
	if err := h.Supervisor.Start(ctx, p, archive, hd); err != nil {
		return errReply(err)
	}
	h.Events.Publish(ctx, cmn.EvtProviderStarted, p.ProviderKey(), p)
	return okReply(p)
}

func (h *Host) handleProviderStop(ctx context.Context, cmd control.Command) control.Reply {
	var req struct{ LinkName string `json:"link_name"` }
	json.Unmarshal(cmd.Value, &req)
	p, ok := h.Providers.Get(cmd.EntityID, req.LinkName)
	if !ok {
		return errReply(cmn.Kindf(cmn.ErrNotFound, "provider %s/%s not running", cmd.EntityID, req.LinkName))
	}
	h.Supervisor.Stop(p)
	h.Events.Publish(ctx, cmn.EvtProviderStopped, p.ProviderKey(), nil)
	return okReply(nil)
}

func (h *Host) handleLinkPut(ctx context.Context, cmd control.Command) control.Reply {
	var def cluster.LinkDefinition
	if err := json.Unmarshal(cmd.Value, &def); err != nil {
		return control.Reply{OK: false, Error: err.Error(), Kind: cmn.ErrInvalidClaims}
	}
	if err := h.Store.PutLink(ctx, &def); err != nil {
		return errReply(err)
	}
	h.Events.Publish(ctx, cmn.EvtLinkDefSet, def.LinkKey(), def)
	return okReply(def)
}

func (h *Host) handleLinkDelete(ctx context.Context, cmd control.Command) control.Reply {
	var req struct {
		SourceID, WitNamespace, WitPackage, LinkName string
	}
	if err := json.Unmarshal(cmd.Value, &req); err != nil {
		return control.Reply{OK: false, Error: err.Error(), Kind: cmn.ErrInvalidClaims}
	}
	if err := h.Store.DeleteLink(ctx, req.SourceID, req.WitNamespace, req.WitPackage, req.LinkName); err != nil {
		return errReply(err)
	}
	h.Events.Publish(ctx, cmn.EvtLinkDefDeleted, req.SourceID, req)
	return okReply(nil)
}

func (h *Host) handleConfigPut(ctx context.Context, cmd control.Command) control.Reply {
	var req struct {
		Name    string            `json:"name"`
		Entries map[string][]byte `json:"entries"`
	}
	if err := json.Unmarshal(cmd.Value, &req); err != nil {
		return control.Reply{OK: false, Error: err.Error(), Kind: cmn.ErrInvalidClaims}
	}
	nc, err := h.Store.PutConfig(ctx, req.Name, req.Entries)
	if err != nil {
		return errReply(err)
	}
	h.Events.Publish(ctx, cmn.EvtConfigSet, req.Name, nc)
	return okReply(nc)
}

func (h *Host) handleConfigDelete(ctx context.Context, cmd control.Command) control.Reply {
	if err := h.Store.DeleteConfig(ctx, cmd.EntityID); err != nil {
		return errReply(err)
	}
	return okReply(nil)
}

func (h *Host) handleHostInventory(ctx context.Context, cmd control.Command) control.Reply {
	return okReply(h.Inventory())
}

func errReply(err error) control.Reply {
	kind, _ := cmn.KindOf(err)
	return control.Reply{OK: false, Error: err.Error(), Kind: kind}
}

func okReply(v interface{}) control.Reply {
	return control.Reply{OK: true, Value: v}
}

package registry

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	digest "github.com/opencontainers/go-digest"
	"github.com/valyala/fasthttp"

	"github.com/latticerun/hostcore/cmn"
)

// FetchOptions mirrors spec.md §4.2's fetch(reference, allow_latest,
// allow_insecure) signature.
type FetchOptions struct {
	AllowLatest  bool
	AllowInsecure bool
}

// FetchResult is the artifact bytes and their digest. Fetch never sets
// Claims, so it is empty in every result Fetch returns.
type FetchResult struct {
	Bytes  []byte
	Digest digest.Digest
	Claims string
}

// job is a single fetch request dispatched to a worker, modeled on the
// grounding repository's downloader request/response pair: the caller
// blocks on responseCh while a fixed pool of worker goroutines drains
// dispatchCh one job at a time, exactly the dispatcher-to-jogger hand-off
// downloader.go uses per mountpath — here, per worker slot instead.
type job struct {
	ctx        context.Context
	ref        *Reference
	opts       FetchOptions
	responseCh chan fetchResponse
}

type fetchResponse struct {
	res *FetchResult
	err error
}

// Fetcher is the C2 Registry Fetcher component. It owns a fixed pool of
// worker goroutines reading from a shared dispatch channel, a digest cache,
// and an HTTP client built on fasthttp (the grounding repository's
// downloader package similarly keeps dedicated http/https *http.Client
// instances off to the side of its dispatcher).
type Fetcher struct {
	cache      *DigestCache
	dispatchCh chan job
	client     *fasthttp.Client
	maxRetries int
	maxDelay   time.Duration
}

func NewFetcher(cache *DigestCache, workers int) *Fetcher {
	f := &Fetcher{
		cache:      cache,
		dispatchCh: make(chan job, workers*4),
		client:     &fasthttp.Client{MaxConnsPerHost: workers * 2},
		maxRetries: cmn.DefaultFetchRetries,
		maxDelay:   cmn.DefaultFetchMaxDelay,
	}
	for i := 0; i < workers; i++ {
		go f.worker()
	}
	return f
}

func (f *Fetcher) worker() {
	for j := range f.dispatchCh {
		res, err := f.fetchOne(j.ctx, j.ref, j.opts)
		j.responseCh <- fetchResponse{res: res, err: err}
	}
}

// Fetch implements spec.md §4.2's fetch operation: dispatch to a worker,
// await its response. The queue itself provides the bounded concurrency;
// a full dispatch channel blocks the caller rather than spawning unbounded
// goroutines, same back-pressure posture as downloader's dispatchDownloadCh.
func (f *Fetcher) Fetch(ctx context.Context, ref *Reference, opts FetchOptions) (*FetchResult, error) {
	if ref.IsLatest() && !opts.AllowLatest {
		return nil, cmn.Kindf(cmn.ErrInvalidReference, "reference %q resolves to 'latest' but allow_latest is false", ref)
	}
	if ref.Digest != "" {
		if algo, hex := string(ref.Digest.Algorithm()), ref.Digest.Hex(); f.cache.Has(algo, hex) {
			b, ok := f.cache.Get(algo, hex)
			if ok {
				return &FetchResult{Bytes: b, Digest: ref.Digest}, nil
			}
		}
	}

	respCh := make(chan fetchResponse, 1)
	select {
	case f.dispatchCh <- job{ctx: ctx, ref: ref, opts: opts, responseCh: respCh}:
	case <-ctx.Done():
		return nil, cmn.NewKindErr(cmn.ErrBusTimeout, "fetch dispatch cancelled", ctx.Err())
	}

	select {
	case r := <-respCh:
		return r.res, r.err
	case <-ctx.Done():
		return nil, cmn.NewKindErr(cmn.ErrBusTimeout, "fetch cancelled while in flight", ctx.Err())
	}
}

// fetchOne performs the HTTP GET with exponential backoff and jitter on
// transport errors only (spec.md §4.2: "retries apply to transport errors;
// a 404/401 fails immediately"), then commits the result to the digest
// cache.
func (f *Fetcher) fetchOne(ctx context.Context, ref *Reference, opts FetchOptions) (*FetchResult, error) {
	url := f.resolveURL(ref, opts)

	var lastErr error
	delay := 500 * time.Millisecond
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			jittered := time.Duration(float64(delay) * (0.5 + rand.Float64()))
			if jittered > f.maxDelay {
				jittered = f.maxDelay
			}
			select {
			case <-time.After(jittered):
			case <-ctx.Done():
				return nil, cmn.NewKindErr(cmn.ErrBusTimeout, "fetch retry cancelled", ctx.Err())
			}
			delay *= 2
		}

		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		req.SetRequestURI(url)
		req.Header.SetMethod(fasthttp.MethodGet)

		err := f.client.Do(req, resp)
		if err != nil {
			lastErr = err
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
			continue
		}

		status := resp.StatusCode()
		body := append([]byte(nil), resp.Body()...)
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)

		switch {
		case status == http.StatusNotFound:
			return nil, cmn.Kindf(cmn.ErrRegistryNotFound, "artifact %s not found", ref)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return nil, cmn.Kindf(cmn.ErrRegistryAuth, "registry rejected credentials for %s", ref)
		case status >= 500:
			lastErr = fmt.Errorf("registry returned %d for %s", status, ref)
			continue
		case status != http.StatusOK:
			return nil, cmn.Kindf(cmn.ErrRegistryTransport, "unexpected status %d fetching %s", status, ref)
		}

		d := digest.FromBytes(body)
		if ref.Digest != "" && ref.Digest != d {
			return nil, cmn.Kindf(cmn.ErrArtifactHashMismatch, "fetched bytes digest %s != requested %s", d, ref.Digest)
		}
		if err := f.cache.Put(string(d.Algorithm()), d.Hex(), body); err != nil {
			return nil, err
		}
		return &FetchResult{Bytes: body, Digest: d}, nil
	}
	return nil, cmn.NewKindErr(cmn.ErrRegistryTransport, fmt.Sprintf("exhausted %d retries fetching %s", f.maxRetries, ref), lastErr)
}

func (f *Fetcher) resolveURL(ref *Reference, opts FetchOptions) string {
	scheme := "https"
	if opts.AllowInsecure {
		scheme = "http"
	}
	if ref.Digest != "" {
		return fmt.Sprintf("%s://%s/v2/%s/blobs/%s", scheme, ref.Registry, ref.Repository, ref.Digest)
	}
	return fmt.Sprintf("%s://%s/v2/%s/manifests/%s", scheme, ref.Registry, ref.Repository, ref.Tag)
}

package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

const (
	playerEndpoint = "https://www.youtube.com/youtubei/v1/player?prettyPrint=false"
	embedEndpoint  = "https://www.youtube.com/embed/%s"

	headTimeout  = 5 * time.Second
	fetchTimeout = 10 * time.Second

	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// ErrAllStrategiesFailed is returned when every entry in the strategy
// chain (and any configured proxy fallback) failed to produce a validated
// URL.
type ErrAllStrategiesFailed struct {
	Reasons map[string]error
}

func (e *ErrAllStrategiesFailed) Error() string {
	var b strings.Builder
	b.WriteString("extractor: all strategies failed:")
	for name, err := range e.Reasons {
		fmt.Fprintf(&b, " %s=%v", name, err)
	}
	return b.String()
}

// ProxyEndpoint is an optional public-mirror fallback, tried only after
// every client identity has failed.
type ProxyEndpoint struct {
	Name    string
	BaseURL string // expects the extractor to append the video id
}

// Extractor resolves video ids to directly streamable Records.
type Extractor struct {
	client        *resty.Client
	cache         *recordCache
	group         singleflight.Group
	deobfuscator  *Deobfuscator
	proxies       []ProxyEndpoint
	enableWeb     bool
	enableProxies bool
}

// New builds an Extractor. enableWeb/enableProxies gate the optional later
// stages of the strategy chain (web deobfuscation and proxy fallback),
// matching the spec's "(Optional)" strategies.
func New(client *resty.Client, enableWeb, enableProxies bool, proxies []ProxyEndpoint) *Extractor {
	if client == nil {
		client = resty.New()
	}
	client.SetTimeout(fetchTimeout)
	return &Extractor{
		client:        client,
		cache:         newRecordCache(),
		deobfuscator:  NewDeobfuscator(),
		proxies:       proxies,
		enableWeb:     enableWeb,
		enableProxies: enableProxies,
	}
}

// Resolve returns a directly playable Record for videoID, hitting the
// cache first and otherwise running the strategy chain exactly once per
// concurrently-requested video id (single-flight).
func (e *Extractor) Resolve(ctx context.Context, videoID string) (Record, error) {
	if rec, ok := e.cache.Get(videoID); ok && !rec.Expired(time.Now()) {
		return rec, nil
	}

	result, err, _ := e.group.Do(videoID, func() (interface{}, error) {
		rec, rerr := e.resolveUncached(ctx, videoID)
		if rerr == nil {
			e.cache.PutForVideo(videoID, rec)
		}
		return rec, rerr
	})
	if err != nil {
		return Record{}, err
	}
	return result.(Record), nil
}

// Invalidate removes videoID from the cache, forcing the next Resolve call
// to run the full strategy chain again.
func (e *Extractor) Invalidate(videoID string) {
	e.cache.Invalidate(videoID)
}

func (e *Extractor) resolveUncached(ctx context.Context, videoID string) (Record, error) {
	reasons := make(map[string]error)

	for _, identity := range strategyChain {
		if identity.RequiresDeobfuscation && !e.enableWeb {
			continue
		}

		rec, err := e.tryIdentity(ctx, videoID, identity)
		if err != nil {
			reasons[identity.Name] = err
			continue
		}

		if err := e.validate(ctx, rec); err != nil {
			reasons[identity.Name] = err
			continue
		}
		return rec, nil
	}

	if e.enableProxies {
		for _, proxy := range e.proxies {
			rec, err := e.tryProxy(ctx, videoID, proxy)
			if err != nil {
				reasons["proxy:"+proxy.Name] = err
				continue
			}
			if err := e.validate(ctx, rec); err != nil {
				reasons["proxy:"+proxy.Name] = err
				continue
			}
			return rec, nil
		}
	}

	return Record{}, &ErrAllStrategiesFailed{Reasons: reasons}
}

func (e *Extractor) tryIdentity(ctx context.Context, videoID string, identity ClientIdentity) (Record, error) {
	body := map[string]interface{}{
		"videoId": videoID,
		"context": map[string]interface{}{
			"client": map[string]interface{}{
				"clientName":    identity.ClientName,
				"clientVersion": identity.ClientVersion,
			},
		},
		"contentCheckOk": true,
		"racyCheckOk":    true,
		"playbackContext": map[string]interface{}{
			"contentPlaybackContext": map[string]interface{}{
				"html5Preference": "HTML5_PREF_WANTS",
			},
		},
	}

	if identity.RequiresDeobfuscation && e.deobfuscator.Loaded() {
		body["playbackContext"].(map[string]interface{})["contentPlaybackContext"].(map[string]interface{})["signatureTimestamp"] = e.deobfuscator.SignatureTimestamp()
	}

	var resp playerResponse
	apiResp, err := e.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", desktopUserAgent).
		SetBody(body).
		SetResult(&resp).
		Post(playerEndpoint)
	if err != nil {
		return Record{}, fmt.Errorf("%s: request failed: %w", identity.Name, err)
	}
	if apiResp.IsError() {
		return Record{}, fmt.Errorf("%s: http status %d", identity.Name, apiResp.StatusCode())
	}

	if resp.PlayabilityStatus.Status != "" && resp.PlayabilityStatus.Status != "OK" {
		return Record{}, fmt.Errorf("%s: playability %s: %s", identity.Name, resp.PlayabilityStatus.Status, resp.PlayabilityStatus.Reason)
	}

	best, ok := selectBestAudioFormat(resp.StreamingData.AdaptiveFormats)
	if !ok {
		return Record{}, fmt.Errorf("%s: no audio-only format found", identity.Name)
	}

	streamURL, err := e.resolveFormatURL(ctx, best, identity)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", identity.Name, err)
	}

	return e.buildRecord(best, streamURL), nil
}

func (e *Extractor) resolveFormatURL(ctx context.Context, f adaptiveFormat, identity ClientIdentity) (string, error) {
	value, isCipher, ok := f.cipherOrURL()
	if !ok {
		return "", errors.New("format has neither url nor signatureCipher")
	}
	if !isCipher {
		return value, nil
	}

	if !identity.RequiresDeobfuscation {
		return "", errors.New("cipher present but identity does not support deobfuscation")
	}
	if !e.deobfuscator.Loaded() {
		err := e.ensureDeobfuscatorLoaded(ctx)
		if errors.Is(err, ErrPatternNotFound) {
			e.deobfuscator.Invalidate()
			err = e.ensureDeobfuscatorLoaded(ctx)
		}
		if err != nil {
			return "", fmt.Errorf("loading deobfuscator: %w", err)
		}
	}

	rawURL, signature, sigParam := parseCipherParams(value)
	if rawURL == "" {
		return "", errors.New("cipher blob missing url component")
	}

	descrambled, err := e.deobfuscator.DeobfuscateSignature(signature)
	if err != nil {
		e.deobfuscator.Invalidate()
		return "", fmt.Errorf("signature deobfuscation: %w", err)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing cipher url: %w", err)
	}
	q := parsed.Query()
	if n := q.Get("n"); n != "" {
		descrambledN, err := e.deobfuscator.DeobfuscateN(n)
		if err == nil {
			q.Set("n", descrambledN)
		}
	}
	q.Set(sigParam, descrambled)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

// ensureDeobfuscatorLoaded fetches the embed page, locates the player
// bundle, downloads it, and compiles its artifacts. On pattern-not-found,
// resolveFormatURL invalidates the deobfuscator and calls it once more for
// a fresh bundle.
func (e *Extractor) ensureDeobfuscatorLoaded(ctx context.Context) error {
	videoID := "dQw4w9WgXcQ" // any public video id works to reach the embed/player bundle
	embedURL := fmt.Sprintf(embedEndpoint, videoID)

	embedResp, err := e.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", desktopUserAgent).
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		Get(embedURL)
	if err != nil {
		return fmt.Errorf("fetching embed page: %w", err)
	}

	baseJSPath, err := FindBaseJSURL(embedResp.String())
	if err != nil {
		return fmt.Errorf("locating player bundle: %w", err)
	}
	baseJSURL := baseJSPath
	if strings.HasPrefix(baseJSPath, "/") {
		baseJSURL = "https://www.youtube.com" + baseJSPath
	}

	bundleResp, err := e.client.R().SetContext(ctx).Get(baseJSURL)
	if err != nil {
		return fmt.Errorf("fetching player bundle: %w", err)
	}

	artifacts, err := parsePlayerArtifacts(bundleResp.String())
	if err != nil {
		return fmt.Errorf("parsing player bundle: %w", err)
	}

	return e.deobfuscator.Load(artifacts)
}

func (e *Extractor) buildRecord(f adaptiveFormat, streamURL string) Record {
	cpn := GenerateCPN()
	sep := "&"
	if !strings.Contains(streamURL, "?") {
		sep = "?"
	}
	streamURL += sep + "cpn=" + cpn
	return Record{
		URL:        streamURL,
		Itag:       f.Itag,
		MimeType:   f.MimeType,
		BitrateBps: f.Bitrate,
		ExpiresAt:  expiryFromURL(streamURL),
		CPN:        cpn,
	}
}

func expiryFromURL(rawURL string) time.Time {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return time.Now().Add(defaultExpiry)
	}
	expireStr := parsed.Query().Get("expire")
	if expireStr == "" {
		return time.Now().Add(defaultExpiry)
	}
	expireUnix, err := strconv.ParseInt(expireStr, 10, 64)
	if err != nil {
		return time.Now().Add(defaultExpiry)
	}
	return time.Unix(expireUnix, 0).Add(-expirySafetyMargin)
}

// validate issues a HEAD request: 403/410 are treated as a hard failure for
// this strategy; any other network error is logged and treated as
// non-fatal (the record is still considered valid).
func (e *Extractor) validate(ctx context.Context, rec Record) error {
	headCtx, cancel := context.WithTimeout(ctx, headTimeout)
	defer cancel()

	resp, err := e.client.R().SetContext(headCtx).Head(rec.URL)
	if err != nil {
		slog.Debug("extractor: HEAD validation network error, treating as non-fatal", "error", err)
		return nil
	}
	if resp.StatusCode() == 403 || resp.StatusCode() == 410 {
		return fmt.Errorf("HEAD validation rejected: status %d", resp.StatusCode())
	}
	return nil
}

func (e *Extractor) tryProxy(ctx context.Context, videoID string, proxy ProxyEndpoint) (Record, error) {
	resp, err := e.client.R().SetContext(ctx).Get(proxy.BaseURL + videoID)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", proxy.Name, err)
	}
	if resp.IsError() {
		return Record{}, fmt.Errorf("%s: http status %d", proxy.Name, resp.StatusCode())
	}
	return Record{
		URL:       resp.Request.URL,
		ExpiresAt: time.Now().Add(defaultExpiry),
		CPN:       GenerateCPN(),
	}, nil
}

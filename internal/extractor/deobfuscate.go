package extractor

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/dop251/goja"
)

// playerArtifacts are the pieces of JavaScript the web strategy extracts
// from the remote's player bundle: a signature-descrambling function body,
// an n-parameter descrambling function body, and the numeric signature
// timestamp the player payload expects. Cached until explicitly
// invalidated (the remote rotates these periodically).
type playerArtifacts struct {
	signatureFunctionBody string
	nParamFunctionBody     string
	signatureTimestamp     int
}

// Patterns are tried in order because the remote rotates its bundle
// layout; a prioritized list survives more bundle revisions than a single
// fixed pattern.
var signatureFunctionNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)\b([a-zA-Z0-9$]{2,4})\s*=\s*function\(a\)\s*\{a\s*=\s*a\.split\(""\)`),
	regexp.MustCompile(`(?s)["']signature["']\s*,\s*([a-zA-Z0-9$]{2,4})\(`),
	regexp.MustCompile(`(?s)\.sig\s*\|\|\s*([a-zA-Z0-9$]{2,4})\(`),
}

var nParamFunctionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)\b([a-zA-Z0-9$]{2,4})\s*=\s*function\(a\)\s*\{var\s*b\s*=\s*a\.split\(""\)`),
	regexp.MustCompile(`(?s)&&\s*\(b\s*=\s*([a-zA-Z0-9$]{2,4})\(b\)\)`),
}

var signatureTimestampPattern = regexp.MustCompile(`signatureTimestamp[=:](\d{5})`)

var basejsURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/s/player/[A-Za-z0-9_-]+/player_ias\.vflset/[A-Za-z_]+/base\.js`),
	regexp.MustCompile(`"jsUrl":"([^"]+player_ias[^"]+\.js)"`),
	regexp.MustCompile(`/yts/jsbin/player_ias-[A-Za-z0-9_-]+/base\.js`),
}

// ErrPatternNotFound indicates none of the prioritized patterns located an
// artifact in the downloaded player bundle — the caller should invalidate
// the cached artifacts and retry with a freshly fetched bundle.
var ErrPatternNotFound = fmt.Errorf("extractor: no pattern matched in player bundle")

// FindBaseJSURL extracts the player bundle URL from embed-page HTML.
func FindBaseJSURL(embedHTML string) (string, error) {
	for _, p := range basejsURLPatterns {
		if m := p.FindStringSubmatch(embedHTML); len(m) > 0 {
			if len(m) > 1 {
				return m[1], nil
			}
			return m[0], nil
		}
	}
	return "", ErrPatternNotFound
}

// parsePlayerArtifacts extracts the signature function, n-parameter
// function, and signature timestamp from a downloaded player bundle's
// source text.
func parsePlayerArtifacts(bundleSource string) (playerArtifacts, error) {
	var artifacts playerArtifacts

	sigName, err := firstMatch(signatureFunctionNamePatterns, bundleSource)
	if err != nil {
		return artifacts, fmt.Errorf("signature function: %w", err)
	}
	artifacts.signatureFunctionBody, err = extractFunctionBody(bundleSource, sigName)
	if err != nil {
		return artifacts, fmt.Errorf("signature function body: %w", err)
	}

	nName, err := firstMatch(nParamFunctionPatterns, bundleSource)
	if err != nil {
		return artifacts, fmt.Errorf("n-parameter function: %w", err)
	}
	artifacts.nParamFunctionBody, err = extractFunctionBody(bundleSource, nName)
	if err != nil {
		return artifacts, fmt.Errorf("n-parameter function body: %w", err)
	}

	if m := signatureTimestampPattern.FindStringSubmatch(bundleSource); len(m) == 2 {
		fmt.Sscanf(m[1], "%d", &artifacts.signatureTimestamp)
	}

	return artifacts, nil
}

func firstMatch(patterns []*regexp.Regexp, source string) (string, error) {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(source); len(m) >= 2 {
			return m[1], nil
		}
	}
	return "", ErrPatternNotFound
}

// extractFunctionBody locates `name=function(a){...}` (or `function name(a){...}`)
// in source and returns the full function source, brace-matched so nested
// blocks don't truncate it early.
func extractFunctionBody(source, name string) (string, error) {
	anchors := []string{
		name + "=function(",
		"function " + name + "(",
	}
	for _, anchor := range anchors {
		idx := indexOf(source, anchor)
		if idx < 0 {
			continue
		}
		braceStart := indexOfFrom(source, "{", idx)
		if braceStart < 0 {
			continue
		}
		end := matchBrace(source, braceStart)
		if end < 0 {
			continue
		}
		return source[idx:end], nil
	}
	return "", ErrPatternNotFound
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func indexOfFrom(s, substr string, from int) int {
	rel := indexOf(s[from:], substr)
	if rel < 0 {
		return -1
	}
	return from + rel
}

// matchBrace returns the index just past the closing brace matching the
// opening brace at openIdx.
func matchBrace(s string, openIdx int) int {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// Deobfuscator evaluates extracted player artifacts against scrambled
// signature/n-parameter values using an embedded JS interpreter (goja).
// One interpreter instance is built per artifact set and reused — a fresh
// program is loaded only when the artifacts are invalidated.
type Deobfuscator struct {
	mu        sync.Mutex
	artifacts playerArtifacts
	vm        *goja.Runtime
	loaded    bool
}

// NewDeobfuscator returns an empty Deobfuscator; call Load before first use.
func NewDeobfuscator() *Deobfuscator {
	return &Deobfuscator{}
}

// Load compiles the given artifacts into a fresh JS runtime.
func (d *Deobfuscator) Load(artifacts playerArtifacts) error {
	vm := goja.New()

	// sig/nparam hold whatever the remote's minifier actually named these
	// functions; the two wrappers give callers a name that doesn't change
	// across bundle revisions.
	const wrappers = "function deobfuscateSignature(a) { return sig(a); }\n" +
		"function deobfuscateN(a) { return nparam(a); }\n"
	source := fmt.Sprintf("var sig=%s;\nvar nparam=%s;\n%s",
		artifacts.signatureFunctionBody, artifacts.nParamFunctionBody, wrappers)

	if _, err := vm.RunString(source); err != nil {
		return fmt.Errorf("extractor: loading deobfuscation program: %w", err)
	}

	d.mu.Lock()
	d.vm = vm
	d.artifacts = artifacts
	d.loaded = true
	d.mu.Unlock()
	return nil
}

// Loaded reports whether artifacts have been successfully compiled.
func (d *Deobfuscator) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// SignatureTimestamp returns the cached artifacts' signature timestamp.
func (d *Deobfuscator) SignatureTimestamp() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.artifacts.signatureTimestamp
}

// DeobfuscateSignature runs the cached signature function against a
// scrambled value.
func (d *Deobfuscator) DeobfuscateSignature(scrambled string) (string, error) {
	return d.call("deobfuscateSignature", scrambled)
}

// DeobfuscateN runs the cached n-parameter function against a scrambled
// value.
func (d *Deobfuscator) DeobfuscateN(scrambled string) (string, error) {
	return d.call("deobfuscateN", scrambled)
}

func (d *Deobfuscator) call(fnName, arg string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return "", fmt.Errorf("extractor: deobfuscator not loaded")
	}

	fn, ok := goja.AssertFunction(d.vm.Get(fnName))
	if !ok {
		return "", fmt.Errorf("extractor: %s is not callable", fnName)
	}

	result, err := fn(goja.Undefined(), d.vm.ToValue(arg))
	if err != nil {
		return "", fmt.Errorf("extractor: %s invocation failed: %w", fnName, err)
	}
	return result.String(), nil
}

// Invalidate discards the loaded runtime and artifacts, forcing the next
// resolution to re-fetch and re-parse the player bundle.
func (d *Deobfuscator) Invalidate() {
	d.mu.Lock()
	d.vm = nil
	d.artifacts = playerArtifacts{}
	d.loaded = false
	d.mu.Unlock()
}

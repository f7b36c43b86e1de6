package extractor

import (
	"net/url"
	"strings"
)

// playerResponse is the subset of the remote /player API's JSON response
// the extractor actually consumes.
type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	StreamingData struct {
		AdaptiveFormats []adaptiveFormat `json:"adaptiveFormats"`
	} `json:"streamingData"`
}

type adaptiveFormat struct {
	Itag            int     `json:"itag"`
	MimeType        string  `json:"mimeType"`
	Bitrate         int     `json:"bitrate"`
	URL             string  `json:"url,omitempty"`
	SignatureCipher string  `json:"signatureCipher,omitempty"`
	Cipher          string  `json:"cipher,omitempty"`
	Width           *int    `json:"width,omitempty"`
}

// isAudioOnlyM4A reports whether f is a candidate per the spec's filter:
// audio-only (no width), mime type mentions audio/mp4 or audio/m4a, and
// does not mention webm or opus.
func (f adaptiveFormat) isAudioOnlyM4A() bool {
	if f.Width != nil {
		return false
	}
	mime := strings.ToLower(f.MimeType)
	if strings.Contains(mime, "webm") || strings.Contains(mime, "opus") {
		return false
	}
	return strings.Contains(mime, "audio/mp4") || strings.Contains(mime, "audio/m4a")
}

// cipherOrURL returns exactly one of (url, cipher-string) per the spec's
// "exactly one of url | signatureCipher" invariant; ok is false if neither
// or both are present.
func (f adaptiveFormat) cipherOrURL() (value string, isCipher bool, ok bool) {
	cipher := f.SignatureCipher
	if cipher == "" {
		cipher = f.Cipher
	}
	switch {
	case f.URL != "" && cipher == "":
		return f.URL, false, true
	case f.URL == "" && cipher != "":
		return cipher, true, true
	default:
		return "", false, false
	}
}

// selectBestAudioFormat returns the highest-bitrate audio-only M4A/MP4
// format from formats, or false if none qualify.
func selectBestAudioFormat(formats []adaptiveFormat) (adaptiveFormat, bool) {
	var best adaptiveFormat
	found := false
	for _, f := range formats {
		if !f.isAudioOnlyM4A() {
			continue
		}
		if _, _, ok := f.cipherOrURL(); !ok {
			continue
		}
		if !found || f.Bitrate > best.Bitrate {
			best = f
			found = true
		}
	}
	return best, found
}

// parseCipherParams splits a signatureCipher query-string blob (url=..&s=..&sp=..)
// into its component fields.
func parseCipherParams(cipher string) (rawURL, signature, signatureParam string) {
	for _, pair := range strings.Split(cipher, "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := kv[0], kv[1]
		decoded, err := url.QueryUnescape(val)
		if err != nil {
			decoded = val
		}
		switch key {
		case "url":
			rawURL = decoded
		case "s":
			signature = decoded
		case "sp":
			signatureParam = decoded
		}
	}
	if signatureParam == "" {
		signatureParam = "signature"
	}
	return
}

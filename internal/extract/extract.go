// Package extract pulls a displayable assistant reply out of whatever the
// remote agent endpoint sends back. The response shape differs between
// deployments, so extraction probes a fixed list of likely fields instead of
// decoding into a schema. Nothing here returns an error: an unusable payload
// yields its raw form or the empty string.
package extract

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// RawKey is the key under which a body that claims to be JSON but does
	// not parse is wrapped before serialization.
	RawKey = "raw"

	maxBodyBytes = 1 << 20
)

type bodyKind int

const (
	kindUnknown bodyKind = iota
	kindJSON
	kindText
)

// Response reads and closes res.Body and returns the extracted reply.
func Response(res *http.Response) string {
	if res == nil || res.Body == nil {
		return ""
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return ""
	}
	return Body(res.Header.Get("Content-Type"), body)
}

// Body extracts the reply from a response body given its declared content
// type.
func Body(contentType string, body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	switch classify(contentType) {
	case kindJSON:
		return fromJSON(body)
	case kindText:
		return fromText(string(body))
	default:
		if gjson.ValidBytes(body) {
			return fromJSON(body)
		}
		return fromText(string(body))
	}
}

func classify(contentType string) bodyKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return kindUnknown
	}
	switch {
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return kindJSON
	case mediaType == "text/event-stream", mediaType == "text/plain":
		return kindText
	default:
		return kindUnknown
	}
}

func fromJSON(body []byte) string {
	doc := body
	if !gjson.ValidBytes(doc) {
		wrapped, err := sjson.SetBytes(nil, RawKey, string(body))
		if err != nil {
			return string(body)
		}
		doc = wrapped
	}
	if s, ok := search(doc); ok {
		return s
	}
	return compact(doc)
}

func compact(doc []byte) string {
	return gjson.GetBytes(doc, "@ugly").Raw
}

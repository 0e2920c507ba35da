package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Manifest is the remote-module manifest of a micro-frontend host.
type Manifest struct {
	Name       string            `json:"name"`
	Config     json.RawMessage   `json:"config,omitempty"`
	RemoteApps map[string]string `json:"remoteApps"`
}

const (
	manifestScriptOpen  = `<script id="launchpad-micro-config">`
	manifestScriptClose = `</script>`
	manifestGlobal      = "window.__MICRO_CONFIG__="
)

var errNoHead = errors.New("html document has no </head>")

// InjectManifest writes the manifest into the document as an inline script.
// A previously injected manifest is replaced, so injecting twice yields the
// same document.
func InjectManifest(html string, m *Manifest) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	script := manifestScriptOpen + manifestGlobal + string(data) + ";" + manifestScriptClose

	if start := strings.Index(html, manifestScriptOpen); start >= 0 {
		end := strings.Index(html[start:], manifestScriptClose)
		if end >= 0 {
			end += start + len(manifestScriptClose)
			return html[:start] + script + html[end:], nil
		}
	}

	head := strings.Index(strings.ToLower(html), "</head>")
	if head < 0 {
		return "", errNoHead
	}
	return html[:head] + script + html[head:], nil
}

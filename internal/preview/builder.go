// Package preview synthesizes the sandboxed HTML document rendered by the
// shell's iframe. The document embeds model-generated markup, so it must only
// ever be handed to a render surface sandboxed to script execution alone
// (no same-origin, no top navigation, no forms).
package preview

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/foundry/internal/extract"
	"github.com/user/foundry/internal/types"
)

// SandboxAttr is the exact sandbox attribute value the render surface must
// use for documents produced here.
const SandboxAttr = "allow-scripts"

// appStateKeyPrefix namespaces the durable-storage key that persists the
// hydrated application state across reloads, keyed by file name.
const appStateKeyPrefix = "foundry:appstate:"

// AppStateKey returns the durable-storage key for a file's persisted state.
func AppStateKey(fileName string) string {
	return appStateKeyPrefix + fileName
}

// Build synthesizes a complete standalone HTML document for the given file
// and state snapshot. A nil file or a file without content yields an empty
// string; the caller renders a placeholder instead of an iframe. The result
// is deterministic: identical inputs produce byte-identical documents.
func Build(file *types.FileNode, snap map[string]string) string {
	if file == nil || file.Content == "" {
		return ""
	}

	markup := extract.Markup(file.Content)
	snapJSON := marshalSnapshot(snap)
	nonce := docNonce(markup, snapJSON)
	stateKey := AppStateKey(file.Name)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b,
		"<meta http-equiv=\"Content-Security-Policy\" content=\"default-src 'none'; script-src 'self' 'nonce-%s'; style-src 'self' 'nonce-%s'; img-src 'self' data:\">\n",
		nonce, nonce)
	fmt.Fprintf(&b, "<style nonce=%q>%s</style>\n", nonce, overlayCSS)
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<div id=\"root\">%s</div>\n", markup)
	fmt.Fprintf(&b, "<div id=\"state-overlay\"><strong>state</strong><pre>%s</pre></div>\n",
		extract.EscapeHTML(snapJSON))
	fmt.Fprintf(&b, "<script nonce=%q>\n%s</script>\n", nonce, hydrationScript(stateKey, snapJSON))
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// marshalSnapshot serializes the snapshot with stable key order. A nil or
// empty snapshot serializes as {}.
func marshalSnapshot(snap map[string]string) string {
	if len(snap) == 0 {
		return "{}"
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// docNonce derives the per-document CSP nonce from the document's own
// content so rebuilding identical inputs yields an identical document.
func docNonce(markup, snapJSON string) string {
	sum := sha256.Sum256([]byte(markup + "\x00" + snapJSON))
	return hex.EncodeToString(sum[:])[:16]
}

const overlayCSS = `#state-overlay{position:fixed;bottom:8px;right:8px;max-width:40%;max-height:40%;overflow:auto;background:rgba(0,0,0,.75);color:#9f9;font:11px/1.4 monospace;padding:6px 8px;border-radius:4px;z-index:9999}#state-overlay pre{margin:0;white-space:pre-wrap}`

// hydrationScript returns the inline script that resolves the initial state
// (durable storage first, embedded snapshot as fallback), writes it back,
// exposes it on a well-known global, and keeps durable storage in sync with
// same-origin state-update messages. Storage access is wrapped because the
// script-only sandbox denies it in some browsers.
func hydrationScript(stateKey, snapJSON string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "var KEY=%q;\n", stateKey)
	fmt.Fprintf(&b, "var FALLBACK=%s;\n", snapJSON)
	b.WriteString(`var state=FALLBACK;
try{
  var raw=window.localStorage.getItem(KEY);
  if(raw!==null){state=JSON.parse(raw);}
  window.localStorage.setItem(KEY,JSON.stringify(state));
}catch(e){}
window.__APP_STATE__=state;
window.addEventListener('message',function(ev){
  if(ev.origin!==window.origin){return;}
  if(!ev.data||ev.data.type!=='state-update'){return;}
  window.__APP_STATE__=ev.data.state;
  try{window.localStorage.setItem(KEY,JSON.stringify(ev.data.state));}catch(e){}
});
`)
	return b.String()
}

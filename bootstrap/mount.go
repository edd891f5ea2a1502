package bootstrap

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ScriptID is the id of the injected bootstrap script element
const ScriptID = "app-bootstrap"

// DefaultHostPage is served when the app directory has no index.html
var DefaultHostPage = []byte(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Local Explorer</title>
  </head>
  <body>
    <div id="app"></div>
    <script type="module" src="/src/main.js"></script>
  </body>
</html>
`)

type MountResult struct {
	Page    []byte
	Mounted bool
	Anchor  string
}

// Mount injects the bootstrap document into page. When the anchor element is
// missing the page comes back unchanged with Mounted false.
func (a *App) Mount(page []byte) MountResult {
	return a.Render(page, nil)
}

// Render is Mount with per-request values merged into the document
func (a *App) Render(page []byte, extra map[string]any) MountResult {
	result := MountResult{Page: page, Anchor: a.Anchor()}

	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		a.logger.Warn("failed to parse host page", "error", err)
		return result
	}

	if findByID(doc, a.anchor) == nil {
		a.logger.Warn("mount anchor not found in host page; app not mounted", "anchor", a.Anchor())
		return result
	}

	head := findElement(doc, atom.Head)
	if head == nil {
		// html.Parse always synthesizes <head>
		a.logger.Warn("host page has no head element")
		return result
	}

	payload, err := json.Marshal(a.Document(extra))
	if err != nil {
		a.logger.Error("failed to encode bootstrap document", "error", err)
		return result
	}

	if err := a.inject(head, payload); err != nil {
		a.logger.Error("failed to build module wiring", "error", err)
		return result
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		a.logger.Error("failed to render host page", "error", err)
		return result
	}

	result.Page = buf.Bytes()
	result.Mounted = true
	return result
}

func (a *App) inject(head *html.Node, payload []byte) error {
	// replace what an earlier render left behind
	for _, id := range []string{ScriptID, ScriptID + "-importmap"} {
		if old := findByID(head, id); old != nil {
			old.Parent.RemoveChild(old)
		}
	}
	removeModulePreloads(head, a.preloads)

	var nodes []*html.Node
	if a.importMap != nil {
		im, err := json.Marshal(a.importMap)
		if err != nil {
			return err
		}
		nodes = append(nodes, scriptNode(ScriptID+"-importmap", "importmap", im))
	}
	for _, href := range a.preloads {
		nodes = append(nodes, &html.Node{
			Type:     html.ElementNode,
			Data:     "link",
			DataAtom: atom.Link,
			Attr: []html.Attribute{
				{Key: "rel", Val: "modulepreload"},
				{Key: "href", Val: href},
			},
		})
	}
	nodes = append(nodes, scriptNode(ScriptID, "application/json", payload))

	// ahead of any module script in the head
	first := head.FirstChild
	for _, n := range nodes {
		head.InsertBefore(n, first)
	}
	return nil
}

func scriptNode(id, typ string, body []byte) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr: []html.Attribute{
			{Key: "id", Val: id},
			{Key: "type", Val: typ},
		},
	}
	// json.Marshal escapes '<', so the body cannot close the element early
	n.AppendChild(&html.Node{Type: html.TextNode, Data: string(body)})
	return n
}

func removeModulePreloads(head *html.Node, hrefs []string) {
	want := make(map[string]bool, len(hrefs))
	for _, h := range hrefs {
		want[h] = true
	}
	for c := head.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && c.DataAtom == atom.Link &&
			attr(c, "rel") == "modulepreload" && want[attr(c, "href")] {
			head.RemoveChild(c)
		}
		c = next
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findByID(n *html.Node, id string) *html.Node {
	return find(n, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	})
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	return find(n, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == a
	})
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func (r MountResult) String() string {
	return fmt.Sprintf("anchor %s mounted=%t (%d bytes)", r.Anchor, r.Mounted, len(r.Page))
}

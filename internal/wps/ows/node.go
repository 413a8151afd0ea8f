package ows

import (
	"fmt"
	"strings"
	"sync"

	"github.com/beevik/etree"
)

// Node is a read-only view of one XML element.
type Node struct {
	el  *etree.Element
	doc *document
}

// document collects the namespace fallbacks taken while reading one parsed
// document. Each distinct fallback is recorded once. Unqualified elements in
// no namespace are what WPS 1.0.0 descriptions use, so they are not recorded.
type document struct {
	mu       sync.Mutex
	seen     map[string]bool
	warnings Warnings
}

func (d *document) fallback(el *etree.Element, name Name, how string) {
	if d == nil || name.Namespace == "" {
		return
	}
	got := el.NamespaceURI()
	if got == "" && el.Space == "" {
		return
	}
	key := how + "|" + el.FullTag() + "|" + name.Namespace
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return
	}
	d.seen[key] = true
	if got == "" {
		got = "no namespace"
	}
	d.warnings.Add(WarnWrongNamespace, el.FullTag(), "matched %s by %s: expected namespace %s, found %s",
		name.Local, how, name.Namespace, got)
}

// Parse reads an XML document and returns its root element.
func Parse(data []byte) (*Node, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: document has no root element", ErrMalformedDocument)
	}
	return &Node{el: root, doc: &document{seen: make(map[string]bool)}}, nil
}

// ParseString is Parse for string input.
func ParseString(data string) (*Node, error) {
	return Parse([]byte(data))
}

func (n *Node) wrap(el *etree.Element) *Node {
	if el == nil {
		return nil
	}
	return &Node{el: el, doc: n.doc}
}

// Warnings returns the namespace fallbacks taken so far anywhere in the
// document n belongs to, one WarnWrongNamespace per distinct element and name.
func (n *Node) Warnings() Warnings {
	if n.doc == nil {
		return nil
	}
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return append(Warnings(nil), n.doc.warnings...)
}

// Local returns the element's local name.
func (n *Node) Local() string { return n.el.Tag }

// Prefix returns the element's namespace prefix as written in the document.
func (n *Node) Prefix() string { return n.el.Space }

// Namespace returns the resolved namespace URI of the element.
func (n *Node) Namespace() string { return n.el.NamespaceURI() }

// QualifiedName returns prefix:local as written in the document.
func (n *Node) QualifiedName() string { return n.el.FullTag() }

// Is reports whether the element matches name by namespace, then by prefix, then by bare local name.
// A prefix or bare-name match is recorded in Warnings.
func (n *Node) Is(name Name) bool {
	for _, m := range matchers {
		if m.match(n.el, name) {
			if m.how != "" {
				n.doc.fallback(n.el, name, m.how)
			}
			return true
		}
	}
	return false
}

// Text returns the element's leading character data with surrounding whitespace removed.
func (n *Node) Text() string {
	return strings.TrimSpace(n.el.Text())
}

// HasText reports whether the element carries non-blank character data.
func (n *Node) HasText() bool {
	return n.Text() != ""
}

// Attr returns the value of an attribute. The key may carry a prefix ("xlink:href").
func (n *Node) Attr(key string) (string, bool) {
	a := n.el.SelectAttr(key)
	if a == nil {
		return "", false
	}
	return a.Value, true
}

// AttrValue returns the attribute value or def when it is absent.
func (n *Node) AttrValue(key, def string) string {
	if v, ok := n.Attr(key); ok {
		return v
	}
	return def
}

// FirstAttr returns the first present attribute among keys.
func (n *Node) FirstAttr(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := n.Attr(k); ok {
			return v, true
		}
	}
	return "", false
}

// Children returns all child elements in document order.
func (n *Node) Children() []*Node {
	kids := n.el.ChildElements()
	out := make([]*Node, 0, len(kids))
	for _, k := range kids {
		out = append(out, n.wrap(k))
	}
	return out
}

// Child returns the matching direct children of n.
func (n *Node) Child(name Name) []*Node {
	return n.lookup(n.el.ChildElements(), name)
}

// FirstChild returns the first matching direct child or nil.
func (n *Node) FirstChild(name Name) *Node {
	if found := n.Child(name); len(found) > 0 {
		return found[0]
	}
	return nil
}

// Find returns the matching descendants of n in document order.
func (n *Node) Find(name Name) []*Node {
	var all []*etree.Element
	collect(n.el, &all)
	return n.lookup(all, name)
}

// FindFirst returns the first matching descendant or nil.
func (n *Node) FindFirst(name Name) *Node {
	if found := n.Find(name); len(found) > 0 {
		return found[0]
	}
	return nil
}

// Locate returns n itself when it matches name, otherwise its first matching descendant.
// It is used to dig a payload out of a SOAP envelope or accept a bare document.
func (n *Node) Locate(name Name) *Node {
	if n.Is(name) {
		return n
	}
	return n.FindFirst(name)
}

// ChildText returns the trimmed text of the first matching child and whether that child exists.
func (n *Node) ChildText(name Name) (string, bool) {
	c := n.FirstChild(name)
	if c == nil {
		return "", false
	}
	return c.Text(), true
}

// Serialize renders the element and its subtree, including namespace declarations
// inherited from ancestors so the fragment stands on its own.
func (n *Node) Serialize() (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(detach(n.el))
	return doc.WriteToString()
}

// InnerXML renders the children of the element, each carrying its inherited namespace
// declarations. Character data directly under the element is included as text.
func (n *Node) InnerXML() (string, error) {
	var b strings.Builder
	for _, tok := range n.el.Child {
		switch t := tok.(type) {
		case *etree.Element:
			s, err := n.wrap(t).Serialize()
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		case *etree.CharData:
			b.WriteString(EscapeText(t.Data))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// detach copies el and adds the xmlns declarations in scope on its ancestors.
func detach(el *etree.Element) *etree.Element {
	cp := el.Copy()
	declared := make(map[string]bool)
	for _, a := range cp.Attr {
		if isNamespaceDecl(a) {
			declared[a.FullKey()] = true
		}
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if !isNamespaceDecl(a) || declared[a.FullKey()] {
				continue
			}
			declared[a.FullKey()] = true
			cp.CreateAttr(a.FullKey(), a.Value)
		}
	}
	return cp
}

func isNamespaceDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}

func collect(el *etree.Element, out *[]*etree.Element) {
	for _, c := range el.ChildElements() {
		*out = append(*out, c)
		collect(c, out)
	}
}

// matchers are tried in order. how names the fallback; it is empty for an exact match.
var matchers = []struct {
	how   string
	match func(*etree.Element, Name) bool
}{
	{"", matchNamespace},
	{"prefix", matchPrefix},
	{"bare name", matchBare},
}

// lookup applies the namespace, prefix, bare-name fallback to a candidate list.
func (n *Node) lookup(candidates []*etree.Element, name Name) []*Node {
	for _, m := range matchers {
		var out []*Node
		for _, c := range candidates {
			if m.match(c, name) {
				out = append(out, n.wrap(c))
				if m.how != "" {
					n.doc.fallback(c, name, m.how)
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func matchNamespace(el *etree.Element, name Name) bool {
	return name.Namespace != "" && el.Tag == name.Local && el.NamespaceURI() == name.Namespace
}

func matchPrefix(el *etree.Element, name Name) bool {
	return name.Prefix != "" && el.Tag == name.Local && el.Space == name.Prefix
}

func matchBare(el *etree.Element, name Name) bool {
	return el.Space == "" && el.Tag == name.Local
}

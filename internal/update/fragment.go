package update

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/Snshadow/update-server-server-sync/internal/common"
)

// Metadata blobs are sliced into three fragments for delivery: the core
// fragment travels with every UpdateInfo, the extended fragment and the
// localized properties are fetched separately via GetExtendedUpdateInfo.

var coreElements = map[string]bool{
	"UpdateIdentity":     true,
	"Properties":         true,
	"Relationships":      true,
	"ApplicabilityRules": true,
}

var extendedElements = map[string]bool{
	"Files":               true,
	"HandlerSpecificData": true,
	"DriverMetadata":      true,
}

// fragNode is a generic element tree used to re-serialize selected subtrees
// of a metadata blob without interpreting them.
type fragNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []fragNode `xml:",any"`
	Text     string     `xml:",chardata"`
}

func parseFragTree(raw []byte) (*fragNode, error) {
	var root fragNode
	if err := xml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInvalidMetadata, err)
	}
	return &root, nil
}

func renderNode(b *bytes.Buffer, n *fragNode) {
	b.WriteByte('<')
	b.WriteString(n.XMLName.Local)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		if a.Name.Space == "xmlns" {
			b.WriteString("xmlns:")
		}
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		_ = xml.EscapeText(b, []byte(a.Value))
		b.WriteByte('"')
	}

	text := strings.TrimSpace(n.Text)
	if text == "" && len(n.Children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	if text != "" {
		_ = xml.EscapeText(b, []byte(text))
	}
	for i := range n.Children {
		renderNode(b, &n.Children[i])
	}
	b.WriteString("</")
	b.WriteString(n.XMLName.Local)
	b.WriteByte('>')
}

// renderSelected re-emits the root element keeping only the children fn
// accepts.
func renderSelected(root *fragNode, fn func(name string) bool) []byte {
	var b bytes.Buffer
	b.WriteByte('<')
	b.WriteString(root.XMLName.Local)
	for _, a := range root.Attrs {
		b.WriteByte(' ')
		if a.Name.Space == "xmlns" {
			b.WriteString("xmlns:")
		}
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		_ = xml.EscapeText(&b, []byte(a.Value))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	for i := range root.Children {
		if fn(root.Children[i].XMLName.Local) {
			renderNode(&b, &root.Children[i])
		}
	}
	b.WriteString("</")
	b.WriteString(root.XMLName.Local)
	b.WriteByte('>')
	return b.Bytes()
}

// CoreFragment extracts the identity and applicability essentials of a
// metadata blob: UpdateIdentity, Properties, Relationships and
// ApplicabilityRules under the original root element.
func CoreFragment(raw []byte) ([]byte, error) {
	root, err := parseFragTree(raw)
	if err != nil {
		return nil, err
	}
	return renderSelected(root, func(name string) bool { return coreElements[name] }), nil
}

// ExtendedFragment extracts file locations and handler-specific data.
func ExtendedFragment(raw []byte) ([]byte, error) {
	root, err := parseFragTree(raw)
	if err != nil {
		return nil, err
	}
	return renderSelected(root, func(name string) bool { return extendedElements[name] }), nil
}

// LocalizedPropertiesFragment extracts the per-language property blocks for
// the requested locales. When none of the requested locales is present the
// English block is returned instead, so clients always receive a title.
func LocalizedPropertiesFragment(raw []byte, locales []string) ([]byte, error) {
	root, err := parseFragTree(raw)
	if err != nil {
		return nil, err
	}

	var collection *fragNode
	for i := range root.Children {
		if root.Children[i].XMLName.Local == "LocalizedPropertiesCollection" {
			collection = &root.Children[i]
			break
		}
	}

	var b bytes.Buffer
	b.WriteString("<LocalizedPropertiesCollection>")
	if collection != nil {
		selected := selectLocales(collection, locales)
		if len(selected) == 0 {
			selected = selectLocales(collection, []string{"en"})
		}
		for _, n := range selected {
			renderNode(&b, n)
		}
	}
	b.WriteString("</LocalizedPropertiesCollection>")
	return b.Bytes(), nil
}

func selectLocales(collection *fragNode, locales []string) []*fragNode {
	wanted := make(map[string]bool, len(locales))
	for _, l := range locales {
		wanted[strings.ToLower(l)] = true
	}

	var out []*fragNode
	for i := range collection.Children {
		block := &collection.Children[i]
		if block.XMLName.Local != "LocalizedProperties" {
			continue
		}
		for j := range block.Children {
			if block.Children[j].XMLName.Local == "Language" &&
				wanted[strings.ToLower(strings.TrimSpace(block.Children[j].Text))] {
				out = append(out, block)
				break
			}
		}
	}
	return out
}

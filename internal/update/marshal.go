package update

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"time"
)

// MarshalMetadata renders a Package back into canonical metadata XML. The
// mirror pipeline uses it when synthesizing blobs for packages received in
// decomposed form; tests use it to build fixtures.
func MarshalMetadata(p *Package) []byte {
	var b bytes.Buffer
	b.WriteString("<Update>")
	fmt.Fprintf(&b, `<UpdateIdentity UpdateID=%q RevisionNumber="%d"/>`, p.ID.UpdateID, p.ID.RevisionNumber)

	b.WriteString(`<Properties UpdateType="` + p.Type.String() + `"`)
	if p.KBArticleID != "" {
		fmt.Fprintf(&b, ` KBArticleID=%q`, p.KBArticleID)
	}
	b.WriteString("/>")

	if len(p.Prerequisites) > 0 || len(p.BundledUpdates) > 0 {
		b.WriteString("<Relationships>")
		if len(p.Prerequisites) > 0 {
			b.WriteString("<Prerequisites>")
			for _, pr := range p.Prerequisites {
				switch c := pr.(type) {
				case Simple:
					fmt.Fprintf(&b, `<UpdateIdentity UpdateID=%q/>`, c.UpdateID)
				case AtLeastOne:
					fmt.Fprintf(&b, `<AtLeastOne IsCategory="%t">`, c.IsCategory)
					for _, guid := range c.UpdateIDs {
						fmt.Fprintf(&b, `<UpdateIdentity UpdateID=%q/>`, guid)
					}
					b.WriteString("</AtLeastOne>")
				}
			}
			b.WriteString("</Prerequisites>")
		}
		if len(p.BundledUpdates) > 0 {
			b.WriteString("<BundledUpdates>")
			for _, bu := range p.BundledUpdates {
				fmt.Fprintf(&b, `<UpdateIdentity UpdateID=%q RevisionNumber="%d"/>`, bu.UpdateID, bu.RevisionNumber)
			}
			b.WriteString("</BundledUpdates>")
		}
		b.WriteString("</Relationships>")
	}

	if len(p.Files) > 0 {
		b.WriteString("<Files>")
		for _, f := range p.Files {
			fmt.Fprintf(&b, `<File FileName=%q Digest=%q Size="%d"`,
				f.Name, base64.StdEncoding.EncodeToString(f.Digest), f.Size)
			if f.DigestAlgorithm != "" {
				fmt.Fprintf(&b, ` DigestAlgorithm=%q`, f.DigestAlgorithm)
			}
			if !f.Modified.IsZero() {
				fmt.Fprintf(&b, ` Modified=%q`, f.Modified.UTC().Format(time.RFC3339))
			}
			if f.PatchingType != "" {
				fmt.Fprintf(&b, ` PatchingType=%q`, f.PatchingType)
			}
			if f.Source != "" {
				fmt.Fprintf(&b, ` Source=%q`, f.Source)
			}
			b.WriteString("/>")
		}
		b.WriteString("</Files>")
	}

	if len(p.Drivers) > 0 {
		b.WriteString("<DriverMetadata>")
		for _, d := range p.Drivers {
			b.WriteString(`<WindowsDriverMetaData HardwareID="`)
			_ = xml.EscapeText(&b, []byte(d.HardwareID))
			b.WriteByte('"')
			if d.ComputerHardwareID != "" {
				fmt.Fprintf(&b, ` ComputerHardwareID=%q`, d.ComputerHardwareID)
			}
			b.WriteString("/>")
		}
		b.WriteString("</DriverMetadata>")
	}

	if p.Title != "" {
		b.WriteString("<LocalizedPropertiesCollection><LocalizedProperties><Language>en</Language><Title>")
		_ = xml.EscapeText(&b, []byte(p.Title))
		b.WriteString("</Title></LocalizedProperties></LocalizedPropertiesCollection>")
	}

	b.WriteString("</Update>")
	return b.Bytes()
}

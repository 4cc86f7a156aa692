package update

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Snshadow/update-server-server-sync/internal/common"
)

// Metadata XML layout, as produced by the upstream mirror:
//
//	<Update>
//	  <UpdateIdentity UpdateID="..." RevisionNumber="..."/>
//	  <Properties UpdateType="Software" KBArticleID="..."/>
//	  <Relationships>
//	    <Prerequisites>
//	      <UpdateIdentity UpdateID="..."/>
//	      <AtLeastOne IsCategory="true"><UpdateIdentity UpdateID="..."/></AtLeastOne>
//	    </Prerequisites>
//	    <BundledUpdates><UpdateIdentity UpdateID="..." RevisionNumber="..."/></BundledUpdates>
//	  </Relationships>
//	  <ApplicabilityRules>...</ApplicabilityRules>
//	  <Files><File .../></Files>
//	  <HandlerSpecificData>...</HandlerSpecificData>
//	  <DriverMetadata><WindowsDriverMetaData HardwareID="..." ComputerHardwareID="..."/></DriverMetadata>
//	  <LocalizedPropertiesCollection>
//	    <LocalizedProperties><Language>en</Language><Title>...</Title><Description>...</Description></LocalizedProperties>
//	  </LocalizedPropertiesCollection>
//	</Update>

type xmlIdentity struct {
	UpdateID       string `xml:"UpdateID,attr"`
	RevisionNumber string `xml:"RevisionNumber,attr"`
}

type xmlAtLeastOne struct {
	IsCategory string        `xml:"IsCategory,attr"`
	Children   []xmlIdentity `xml:"UpdateIdentity"`
}

type xmlFile struct {
	FileName        string `xml:"FileName,attr"`
	Digest          string `xml:"Digest,attr"`
	DigestAlgorithm string `xml:"DigestAlgorithm,attr"`
	Size            int64  `xml:"Size,attr"`
	Modified        string `xml:"Modified,attr"`
	PatchingType    string `xml:"PatchingType,attr"`
	Source          string `xml:"Source,attr"`
}

type xmlDriverEntry struct {
	HardwareID         string `xml:"HardwareID,attr"`
	ComputerHardwareID string `xml:"ComputerHardwareID,attr"`
}

type xmlLocalizedProperties struct {
	Language    string `xml:"Language"`
	Title       string `xml:"Title"`
	Description string `xml:"Description"`
}

type xmlUpdate struct {
	XMLName  xml.Name    `xml:"Update"`
	Identity xmlIdentity `xml:"UpdateIdentity"`
	Props    struct {
		UpdateType  string `xml:"UpdateType,attr"`
		KBArticleID string `xml:"KBArticleID,attr"`
	} `xml:"Properties"`
	Relationships struct {
		Prerequisites struct {
			Simple     []xmlIdentity   `xml:"UpdateIdentity"`
			AtLeastOne []xmlAtLeastOne `xml:"AtLeastOne"`
		} `xml:"Prerequisites"`
		BundledUpdates struct {
			Children []xmlIdentity `xml:"UpdateIdentity"`
		} `xml:"BundledUpdates"`
	} `xml:"Relationships"`
	Files struct {
		Files []xmlFile `xml:"File"`
	} `xml:"Files"`
	DriverMetadata struct {
		Entries []xmlDriverEntry `xml:"WindowsDriverMetaData"`
	} `xml:"DriverMetadata"`
	Localized struct {
		Blocks []xmlLocalizedProperties `xml:"LocalizedProperties"`
	} `xml:"LocalizedPropertiesCollection"`
}

func parseXMLIdentity(x xmlIdentity) (Identity, error) {
	guid, err := uuid.Parse(x.UpdateID)
	if err != nil {
		return Identity{}, fmt.Errorf("UpdateID: %w", err)
	}
	rev := 0
	if x.RevisionNumber != "" {
		rev, err = strconv.Atoi(x.RevisionNumber)
		if err != nil {
			return Identity{}, fmt.Errorf("RevisionNumber: %w", err)
		}
	}
	return Identity{UpdateID: guid, RevisionNumber: rev}, nil
}

// ParseMetadata reconstructs a Package from its raw metadata XML. A blob the
// codec cannot make sense of yields common.ErrorInvalidMetadata so the caller
// can skip the one package and keep going.
func ParseMetadata(raw []byte) (*Package, error) {
	var doc xmlUpdate
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInvalidMetadata, err)
	}

	id, err := parseXMLIdentity(doc.Identity)
	if err != nil {
		return nil, fmt.Errorf("%w: identity: %v", common.ErrorInvalidMetadata, err)
	}

	typ, err := ParseType(doc.Props.UpdateType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInvalidMetadata, err)
	}

	pkg := &Package{
		ID:          id,
		Type:        typ,
		KBArticleID: doc.Props.KBArticleID,
	}

	for _, s := range doc.Relationships.Prerequisites.Simple {
		guid, err := uuid.Parse(s.UpdateID)
		if err != nil {
			return nil, fmt.Errorf("%w: prerequisite: %v", common.ErrorInvalidMetadata, err)
		}
		pkg.Prerequisites = append(pkg.Prerequisites, Simple{UpdateID: guid})
	}
	for _, a := range doc.Relationships.Prerequisites.AtLeastOne {
		clause := AtLeastOne{IsCategory: a.IsCategory == "true"}
		for _, c := range a.Children {
			guid, err := uuid.Parse(c.UpdateID)
			if err != nil {
				return nil, fmt.Errorf("%w: prerequisite: %v", common.ErrorInvalidMetadata, err)
			}
			clause.UpdateIDs = append(clause.UpdateIDs, guid)
		}
		pkg.Prerequisites = append(pkg.Prerequisites, clause)
	}

	for _, b := range doc.Relationships.BundledUpdates.Children {
		bid, err := parseXMLIdentity(b)
		if err != nil {
			return nil, fmt.Errorf("%w: bundled update: %v", common.ErrorInvalidMetadata, err)
		}
		pkg.BundledUpdates = append(pkg.BundledUpdates, bid)
	}

	for _, f := range doc.Files.Files {
		ref := FileReference{
			Name:            f.FileName,
			DigestAlgorithm: f.DigestAlgorithm,
			Size:            f.Size,
			PatchingType:    f.PatchingType,
			Source:          f.Source,
		}
		if f.Digest != "" {
			digest, err := base64.StdEncoding.DecodeString(f.Digest)
			if err != nil {
				return nil, fmt.Errorf("%w: file digest: %v", common.ErrorInvalidMetadata, err)
			}
			ref.Digest = digest
		}
		if f.Modified != "" {
			t, err := time.Parse(time.RFC3339, f.Modified)
			if err == nil {
				ref.Modified = t
			}
		}
		pkg.Files = append(pkg.Files, ref)
	}

	for _, d := range doc.DriverMetadata.Entries {
		pkg.Drivers = append(pkg.Drivers, DriverMetadata{
			HardwareID:         d.HardwareID,
			ComputerHardwareID: d.ComputerHardwareID,
		})
	}

	pkg.Title = pickTitle(doc.Localized.Blocks)
	pkg.Raw = raw

	return pkg, nil
}

// pickTitle prefers the English block and falls back to the first one.
func pickTitle(blocks []xmlLocalizedProperties) string {
	for _, b := range blocks {
		if b.Language == "en" {
			return b.Title
		}
	}
	if len(blocks) > 0 {
		return blocks[0].Title
	}
	return ""
}

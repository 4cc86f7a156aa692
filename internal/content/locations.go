// Package content mirrors update payload files into a digest-addressed
// store and rewrites file locations for clients.
package content

import (
	"encoding/hex"
	"strings"

	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// FileLocation is the wire form of one downloadable file.
type FileLocation struct {
	FileDigest []byte `xml:"FileDigest"`
	URL        string `xml:"Url"`
}

// Locations rewrites upstream URLs to a local content root when one is
// configured; otherwise clients are pointed at the upstream source.
type Locations struct {
	// ContentRoot is the externally visible base URL of the mirrored
	// content, e.g. "http://wsus.corp.example:8530/Content". Empty means
	// no rewriting.
	ContentRoot string
}

// Resolve returns the location clients should fetch the file from.
func (l Locations) Resolve(f update.FileReference) FileLocation {
	url := f.Source
	if l.ContentRoot != "" {
		url = strings.TrimRight(l.ContentRoot, "/") + "/" + hex.EncodeToString(f.Digest)
	}
	return FileLocation{FileDigest: f.Digest, URL: url}
}

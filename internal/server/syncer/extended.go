package syncer

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/Snshadow/update-server-server-sync/internal/common"
	"github.com/Snshadow/update-server-server-sync/internal/server/cookie"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// GetExtendedUpdateInfo returns the requested metadata fragments and file
// locations for updates the client already received descriptors for.
func (s *Service) GetExtendedUpdateInfo(ctx context.Context, ck cookie.Cookie,
	revisionIDs []int, infoTypes []string, locales []string) (*ExtendedUpdateInfo, error) {

	v, release, err := s.engine.View()
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.cookies.ComputerID(ck); err != nil {
		return nil, err
	}
	if len(infoTypes) == 0 {
		infoTypes = []string{FragmentExtended}
	}

	out := &ExtendedUpdateInfo{}
	seenDigests := make(map[string]bool)

	for _, revID := range revisionIDs {
		id, err := v.Store.PackageIdentity(revID)
		if err != nil {
			return nil, fmt.Errorf("%w: %d", common.ErrorInvalidRevisionIndex, revID)
		}

		rc, err := v.Store.Metadata(id)
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}

		for _, infoType := range infoTypes {
			frag, err := s.fragment(raw, infoType, locales)
			if err != nil {
				return nil, err
			}
			out.Updates = append(out.Updates, ExtendedUpdate{ID: revID, Xml: string(frag)})
		}

		files, err := v.Store.Files(id)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			key := hex.EncodeToString(f.Digest)
			if seenDigests[key] {
				continue
			}
			seenDigests[key] = true
			out.FileLocations = append(out.FileLocations, s.locations.Resolve(f))
		}
	}
	return out, nil
}

func (s *Service) fragment(raw []byte, infoType string, locales []string) ([]byte, error) {
	switch infoType {
	case FragmentCore:
		return update.CoreFragment(raw)
	case FragmentExtended:
		return update.ExtendedFragment(raw)
	case FragmentLocalizedProperties:
		return update.LocalizedPropertiesFragment(raw, locales)
	default:
		return nil, fmt.Errorf("%w: fragment type %q", common.ErrorNotImplemented, infoType)
	}
}

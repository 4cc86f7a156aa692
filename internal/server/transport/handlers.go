package transport

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Snshadow/update-server-server-sync/internal/common"
	"github.com/Snshadow/update-server-server-sync/internal/server/cookie"
	"github.com/Snshadow/update-server-server-sync/internal/server/syncer"
)

// cookieXML is the wire form of a cookie; the payload travels base64.
type cookieXML struct {
	Expiration    time.Time `xml:"Expiration"`
	EncryptedData string    `xml:"EncryptedData"`
}

func encodeCookie(c cookie.Cookie) cookieXML {
	return cookieXML{
		Expiration:    c.Expiration,
		EncryptedData: base64.StdEncoding.EncodeToString(c.EncryptedData),
	}
}

func decodeCookie(x cookieXML) (cookie.Cookie, error) {
	data, err := base64.StdEncoding.DecodeString(x.EncryptedData)
	if err != nil {
		return cookie.Cookie{}, fmt.Errorf("%w: %v", common.ErrorInvalidCookie, err)
	}
	return cookie.Cookie{Expiration: x.Expiration, EncryptedData: data}, nil
}

type getCookieRequest struct {
	XMLName xml.Name `xml:"GetCookie"`

	// AuthCookies, LastChange, CurrentTime and ProtocolVersion travel on
	// the wire but carry no server-side meaning here: the cookie is pure
	// identification.
	AuthCookies     []string   `xml:"AuthCookies>string"`
	OldCookie       *cookieXML `xml:"OldCookie"`
	LastChange      string     `xml:"LastChange"`
	CurrentTime     string     `xml:"CurrentTime"`
	ProtocolVersion string     `xml:"ProtocolVersion"`
}

type getCookieResponse struct {
	XMLName xml.Name  `xml:"GetCookieResponse"`
	Cookie  cookieXML `xml:"Cookie"`
}

type syncRequest struct {
	XMLName                   xml.Name  `xml:"SyncUpdates"`
	Cookie                    cookieXML `xml:"Cookie"`
	InstalledNonLeafUpdateIDs []int     `xml:"Parameters>InstalledNonLeafUpdateIDs>int"`
	OtherCachedUpdateIDs      []int     `xml:"Parameters>OtherCachedUpdateIDs>int"`
	FilterCategoryIDs         []string  `xml:"Parameters>FilterCategoryIds>CategoryIdentifier>Id"`
	SkipSoftwareSync          bool      `xml:"Parameters>SkipSoftwareSync"`
	HardwareIDs               []string  `xml:"Parameters>SystemSpec>HardwareID"`
	ComputerHardwareIDs       []string  `xml:"Parameters>SystemSpec>ComputerHardwareID"`
}

type syncResponse struct {
	XMLName   xml.Name        `xml:"SyncUpdatesResponse"`
	NewCookie cookieXML       `xml:"NewCookie"`
	SyncInfo  syncer.SyncInfo `xml:"SyncInfo"`
}

type extendedRequest struct {
	XMLName     xml.Name  `xml:"GetExtendedUpdateInfo"`
	Cookie      cookieXML `xml:"Cookie"`
	RevisionIDs []int     `xml:"RevisionIDs>int"`
	InfoTypes   []string  `xml:"InfoTypes>XmlUpdateFragmentType"`
	Locales     []string  `xml:"Locales>string"`
}

type extendedResponse struct {
	XMLName xml.Name `xml:"GetExtendedUpdateInfoResponse"`
	syncer.ExtendedUpdateInfo
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeXML(w, r, struct {
		XMLName xml.Name `xml:"GetConfigResponse"`
		syncer.Config
	}{Config: s.syncer.GetConfig()})
}

func (s *Server) handleGetCookie(w http.ResponseWriter, r *http.Request) {
	var req getCookieRequest
	if !s.readXML(w, r, &req) {
		return
	}

	var old *cookie.Cookie
	if req.OldCookie != nil {
		c, err := decodeCookie(*req.OldCookie)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		old = &c
	}

	ck, err := s.syncer.GetCookie(r.Context(), old)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeXML(w, r, getCookieResponse{Cookie: encodeCookie(ck)})
}

func (s *Server) handleSyncUpdates(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !s.readXML(w, r, &req) {
		return
	}

	ck, err := decodeCookie(req.Cookie)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	params := syncer.SyncParams{
		InstalledNonLeafUpdateIDs: req.InstalledNonLeafUpdateIDs,
		OtherCachedUpdateIDs:      req.OtherCachedUpdateIDs,
		SkipSoftwareSync:          req.SkipSoftwareSync,
		HardwareIDs:               req.HardwareIDs,
		ComputerHardwareIDs:       req.ComputerHardwareIDs,
	}
	for _, raw := range req.FilterCategoryIDs {
		guid, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: category id %q", common.ErrorInvalidRevisionIndex, raw))
			return
		}
		params.FilterCategoryIDs = append(params.FilterCategoryIDs, guid)
	}

	info, err := s.syncer.SyncUpdates(r.Context(), ck, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeXML(w, r, syncResponse{NewCookie: encodeCookie(info.NewCookie), SyncInfo: *info})
}

func (s *Server) handleGetExtendedUpdateInfo(w http.ResponseWriter, r *http.Request) {
	var req extendedRequest
	if !s.readXML(w, r, &req) {
		return
	}

	ck, err := decodeCookie(req.Cookie)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	info, err := s.syncer.GetExtendedUpdateInfo(r.Context(), ck, req.RevisionIDs, req.InfoTypes, req.Locales)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeXML(w, r, extendedResponse{ExtendedUpdateInfo: *info})
}

func (s *Server) handleNotImplemented(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, fmt.Errorf("%w: %s", common.ErrorNotImplemented, r.URL.Path))
}

func (s *Server) readXML(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := xml.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeXML(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	if err := xml.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(r.Context(), "encode response", "error", err)
	}
}

// writeError maps the core's error kinds onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrorNoMetadataSource):
		status = http.StatusServiceUnavailable
	case errors.Is(err, common.ErrorInvalidRevisionIndex):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrorInvalidCookie):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrorNotImplemented):
		status = http.StatusNotImplemented
	}

	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	http.Error(w, err.Error(), status)
}

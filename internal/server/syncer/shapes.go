package syncer

import (
	"github.com/google/uuid"

	"github.com/Snshadow/update-server-server-sync/internal/content"
	"github.com/Snshadow/update-server-server-sync/internal/server/cookie"
)

// SyncParams is one client "sync updates" request after transport decoding.
// Update ids are wire indexes. The hardware id lists are only consulted when
// SkipSoftwareSync routes the request to driver matching.
type SyncParams struct {
	InstalledNonLeafUpdateIDs []int
	OtherCachedUpdateIDs      []int
	FilterCategoryIDs         []uuid.UUID
	SkipSoftwareSync          bool

	HardwareIDs         []string
	ComputerHardwareIDs []string
}

// DeploymentInfo is the per-update deployment block of an UpdateInfo.
type DeploymentInfo struct {
	ID     int    `xml:"ID"`
	Action string `xml:"Action"`

	// LastChangeTime is formatted yyyy-MM-dd.
	LastChangeTime string `xml:"LastChangeTime"`

	// Deadline is RFC3339 with offset, empty when the operator set none.
	Deadline string `xml:"Deadline,omitempty"`

	AutoDownload         string `xml:"AutoDownload"`
	AutoSelect           string `xml:"AutoSelect"`
	SupersedenceBehavior string `xml:"SupersedenceBehavior"`
	IsAssigned           bool   `xml:"IsAssigned"`
}

// UpdateInfo is one delivered update descriptor. Verification is always
// absent; the field exists so the wire shape stays complete.
type UpdateInfo struct {
	ID           int            `xml:"ID"`
	IsLeaf       bool           `xml:"IsLeaf"`
	IsShared     bool           `xml:"IsShared"`
	Xml          string         `xml:"Xml"`
	Deployment   DeploymentInfo `xml:"Deployment"`
	Verification *string        `xml:"Verification,omitempty"`
}

// SyncInfo is the response of one sync call.
type SyncInfo struct {
	NewCookie             cookie.Cookie `xml:"-"`
	NewUpdates            []UpdateInfo  `xml:"NewUpdates>UpdateInfo"`
	ChangedUpdates        []UpdateInfo  `xml:"ChangedUpdates>UpdateInfo"`
	Truncated             bool          `xml:"Truncated"`
	OutOfScopeRevisionIDs []int         `xml:"OutOfScopeRevisionIds>int"`
	DriverSyncNotNeeded   string        `xml:"DriverSyncNotNeeded"`
}

// ExtendedUpdateInfo is the response of GetExtendedUpdateInfo.
type ExtendedUpdateInfo struct {
	Updates       []ExtendedUpdate       `xml:"Updates>Update"`
	FileLocations []content.FileLocation `xml:"FileLocations>FileLocation"`
}

// ExtendedUpdate carries one requested fragment of one revision.
type ExtendedUpdate struct {
	ID  int    `xml:"ID"`
	Xml string `xml:"Xml"`
}

// Fragment names accepted by GetExtendedUpdateInfo.
const (
	FragmentCore                = "Core"
	FragmentExtended            = "Extended"
	FragmentLocalizedProperties = "LocalizedProperties"
)

// Config is the static server configuration handed to clients.
type Config struct {
	ProtocolVersion      string `xml:"ProtocolVersion"`
	MaxUpdatesInResponse int    `xml:"MaxUpdatesInResponse"`
	SupportsDrivers      bool   `xml:"SupportsDrivers"`
	SupportsExpress      bool   `xml:"SupportsExpress"`
}

// Deployment ids reported to clients; the historical server distinguishes
// graph tiers this way.
const (
	deploymentIDNonLeaf    = 15000
	deploymentIDBundle     = 20000
	deploymentIDBundled    = 20001
	deploymentIDStandalone = 20002
)

// lastChangeLayout is the on-wire date form of DeploymentInfo.LastChangeTime.
const lastChangeLayout = "2006-01-02"

// legacyLastChange is reported for updates without a deployment row, mirroring
// the fixed date the historical server emits.
const legacyLastChange = "2000-01-01"

package common

import "time"

// MaxUpdatesInResponse caps how many update descriptors a single sync
// response may carry. Responses that would exceed it are truncated and
// flagged so the client issues a follow-up sync.
const MaxUpdatesInResponse = 50

// CookieExpiration is how long an issued client cookie stays valid.
const CookieExpiration = 5 * 24 * time.Hour

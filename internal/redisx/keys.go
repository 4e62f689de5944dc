package redisx

import "time"

const (
	// Cached request status: request_status:{request_id} -> hash{rev, body: BloodRequest JSON}
	KeyRequestStatus = "request_status:%s"

	// Directory read-side cache: contact:{kind}:{id} -> Contact JSON
	KeyContact = "contact:%s:%s"

	// Dedup event processing: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"

	// One urgent SMS per request and organization: alert:critical:{request_id}:{org_id}
	KeyCriticalAlert = "alert:critical:%s:%s"
)

var (
	TTLStatusCache   = 5 * time.Minute
	TTLContact       = 15 * time.Minute
	TTLDedup         = 48 * time.Hour
	TTLCriticalAlert = 24 * time.Hour
)

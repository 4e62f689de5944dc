package bloodbank

import (
	"encoding/json"
	"time"
)

const (
	EventNewBloodRequest      = "NEW_BLOOD_REQUEST"
	EventCriticalRequest      = "CRITICAL_BLOOD_REQUEST"
	EventRequestStatusUpdated = "REQUEST_STATUS_UPDATED"
	EventRequestApproved      = "REQUEST_APPROVED"
	EventRequestFulfilled     = "REQUEST_FULFILLED"
	EventInventoryUpdated     = "INVENTORY_UPDATED"
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentUpdated   = "APPOINTMENT_STATUS_UPDATED"
	EventDonationCompleted    = "DONATION_COMPLETED"
	EventCertificateIssued    = "CERTIFICATE_ISSUED"
	EventBatchesDiscarded     = "BATCHES_DISCARDED"
)

// Channel is the audience class of a notification.
type Channel string

const (
	ChannelUser         Channel = "user"
	ChannelOrganization Channel = "organization"
	ChannelHospital     Channel = "hospital"
	ChannelBroadcast    Channel = "broadcast"
)

// Envelope wraps every event published to Kafka.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	Channel       Channel         `json:"channel"`
	TargetID      string          `json:"target_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// ---- payloads ----

type DeductionPayload struct {
	OrgID       string       `json:"org_id"`
	BloodGroup  BloodGroup   `json:"blood_group"`
	Units       int          `json:"units"`
	Allocations []Allocation `json:"allocations"`
}

type FulfilledPayload struct {
	Request     BloodRequest `json:"request"`
	Allocations []Allocation `json:"allocations"`
}

type DonationCompletedPayload struct {
	Appointment DonationAppointment `json:"appointment"`
	BatchID     string              `json:"batch_id"`
	CollectedAt time.Time           `json:"collected_at"`
}

type DiscardedPayload struct {
	OrgID    string   `json:"org_id"`
	BatchIDs []string `json:"batch_ids"`
	Day      string   `json:"day"`
}

// SMSMessage is published on TopicSMS for the delivery gateway.
type SMSMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

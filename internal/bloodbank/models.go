package bloodbank

import "time"

// DefaultShelfLife applies when a batch is added without an expiry date.
const DefaultShelfLife = 42 * 24 * time.Hour

// InventoryBatch is a discrete quantity of one blood group collected at one
// time. ExpiryDate is fixed at creation. Dates are UTC midnights.
type InventoryBatch struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	BloodGroup     BloodGroup  `json:"blood_group"`
	Quantity       int         `json:"quantity"`
	CollectionDate time.Time   `json:"collection_date"`
	ExpiryDate     time.Time   `json:"expiry_date"`
	Status         BatchStatus `json:"status"`
	SourceDonorID  string      `json:"source_donor_id,omitempty"`
	Label          string      `json:"label,omitempty"`
	ReservedBy     string      `json:"reserved_by,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Requester identifies who raised a blood request.
type RequesterKind string

const (
	RequesterHospital RequesterKind = "hospital"
	RequesterUser     RequesterKind = "user"
)

type RequesterRef struct {
	Kind RequesterKind `json:"kind"`
	ID   string        `json:"id"`
}

// Channel is where status updates for this requester are delivered.
func (r RequesterRef) Channel() Channel {
	if r.Kind == RequesterHospital {
		return ChannelHospital
	}
	return ChannelUser
}

// Party is the directory entry holding the requester's phone number.
func (r RequesterRef) Party() PartyKind {
	if r.Kind == RequesterHospital {
		return PartyHospital
	}
	return PartyUser
}

func (k RequesterKind) Valid() bool { return k == RequesterHospital || k == RequesterUser }

type BloodRequest struct {
	ID            string        `json:"id"`
	Requester     RequesterRef  `json:"requester"`
	BloodGroup    BloodGroup    `json:"blood_group"`
	Units         int           `json:"units"`
	Urgency       Urgency       `json:"urgency"`
	TargetOrgID   string        `json:"target_org_id,omitempty"` // empty = broadcast
	Status        RequestStatus `json:"status"`
	ContactNumber string        `json:"contact_number,omitempty"`
	Note          string        `json:"note,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (r BloodRequest) Broadcast() bool { return r.TargetOrgID == "" }

// Revision orders snapshots of one request. Later UpdatedAt wins; within the
// same microsecond the status further along the state machine wins, since
// transitions only move forward.
func (r BloodRequest) Revision() int64 {
	return r.UpdatedAt.UnixMicro()*4 + int64(r.Status.rank())
}

// Questionnaire holds the donor's day-of-donation health answers.
type Questionnaire struct {
	FeelingWell      bool `json:"feeling_well"`
	TraveledRecently bool `json:"traveled_recently"`
	TakingMedication bool `json:"taking_medication"`
	RecentSurgery    bool `json:"recent_surgery"`
}

type DonationAppointment struct {
	ID              string            `json:"id"`
	DonorID         string            `json:"donor_id"`
	OrganizationID  string            `json:"organization_id"`
	BloodGroup      BloodGroup        `json:"blood_group"`
	AppointmentDate time.Time         `json:"appointment_date"`
	Questionnaire   Questionnaire     `json:"questionnaire"`
	Status          AppointmentStatus `json:"status"`
	BatchID         string            `json:"batch_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Donor is the slice of the user record the core needs. LastDonationAt is
// nil for first-time donors.
type Donor struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	BloodGroup     BloodGroup `json:"blood_group,omitempty"`
	PhoneNumber    string     `json:"phone_number,omitempty"`
	LastDonationAt *time.Time `json:"last_donation_at,omitempty"`
}

// PartyKind names the directory a contact lives in.
type PartyKind string

const (
	PartyOrganization PartyKind = "organization"
	PartyHospital     PartyKind = "hospital"
	PartyUser         PartyKind = "user"
)

// Contact is the read-side view of an organization, hospital or user used
// for display names and alert phone numbers.
type Contact struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// AvailableStock is a search result: a batch joined with its owner's name.
type AvailableStock struct {
	InventoryBatch
	OrganizationName string `json:"organization_name,omitempty"`
}

// Allocation records how much one batch gave up during a FEFO deduction.
type Allocation struct {
	BatchID    string    `json:"batch_id"`
	Units      int       `json:"units"`
	ExpiryDate time.Time `json:"expiry_date"`
	Remaining  int       `json:"remaining"`
}

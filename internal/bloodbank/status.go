package bloodbank

type BatchStatus string

const (
	BatchAvailable BatchStatus = "AVAILABLE"
	BatchReserved  BatchStatus = "RESERVED"
	BatchUtilized  BatchStatus = "UTILIZED"
	BatchDiscarded BatchStatus = "DISCARDED"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestUtilized  RequestStatus = "UTILIZED"
	RequestCancelled RequestStatus = "CANCELLED"
)

func (s RequestStatus) rank() int {
	switch s {
	case RequestPending:
		return 0
	case RequestUtilized:
		return 2
	default:
		return 1
	}
}

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "PENDING"
	AppointmentApproved  AppointmentStatus = "APPROVED"
	AppointmentRejected  AppointmentStatus = "REJECTED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
)

type Urgency string

const (
	UrgencyNormal   Urgency = "NORMAL"
	UrgencyCritical Urgency = "CRITICAL"
)

var validBatchNext = map[BatchStatus]map[BatchStatus]bool{
	BatchAvailable: {BatchReserved: true, BatchUtilized: true, BatchDiscarded: true},
	BatchReserved:  {BatchUtilized: true},
	BatchUtilized:  {},
	BatchDiscarded: {},
}

var validRequestNext = map[RequestStatus]map[RequestStatus]bool{
	RequestPending:   {RequestApproved: true, RequestRejected: true, RequestCancelled: true},
	RequestApproved:  {RequestUtilized: true},
	RequestRejected:  {},
	RequestUtilized:  {},
	RequestCancelled: {},
}

var validAppointmentNext = map[AppointmentStatus]map[AppointmentStatus]bool{
	AppointmentPending:   {AppointmentApproved: true, AppointmentRejected: true},
	AppointmentApproved:  {AppointmentCompleted: true},
	AppointmentRejected:  {},
	AppointmentCompleted: {},
}

func (s BatchStatus) CanTransition(to BatchStatus) bool { return validBatchNext[s][to] }

func (s RequestStatus) CanTransition(to RequestStatus) bool { return validRequestNext[s][to] }

func (s AppointmentStatus) CanTransition(to AppointmentStatus) bool {
	return validAppointmentNext[s][to]
}

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	_, known := validRequestNext[s]
	return known && len(validRequestNext[s]) == 0
}

func (s RequestStatus) Valid() bool {
	_, ok := validRequestNext[s]
	return ok
}

func (s AppointmentStatus) Valid() bool {
	_, ok := validAppointmentNext[s]
	return ok
}

func (u Urgency) Valid() bool { return u == UrgencyNormal || u == UrgencyCritical }

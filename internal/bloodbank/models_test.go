package bloodbank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBloodRequest_Revision(t *testing.T) {
	at := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	rev := func(s RequestStatus, ts time.Time) int64 {
		return BloodRequest{Status: s, UpdatedAt: ts}.Revision()
	}

	assert.Greater(t, rev(RequestPending, at.Add(time.Microsecond)), rev(RequestUtilized, at))
	assert.Greater(t, rev(RequestApproved, at), rev(RequestPending, at))
	assert.Greater(t, rev(RequestUtilized, at), rev(RequestApproved, at))
	assert.Equal(t, rev(RequestRejected, at), rev(RequestCancelled, at))
}

package gauge

import "fmt"

// SetStatus is the derived, display-only aggregate state of a matched
// pair. It is computed from the two persisted member records on every
// read and never written back to storage, so it cannot go stale.
type SetStatus struct {
	Usability  string `json:"usability"`
	SealStatus string `json:"sealStatus"`
}

const (
	UsabilityAvailable = "available"
	SealSealed         = "sealed"
	SealUnsealed       = "unsealed"
)

// statusRestrictiveness orders statuses from least to most restrictive.
// The aggregate usability surfaces the worse of the two members.
var statusRestrictiveness = map[Status]int{
	StatusAvailable:          0,
	StatusCheckedOut:         1,
	StatusCalibrationDue:     2,
	StatusPendingRelease:     3,
	StatusPendingCertificate: 4,
	StatusOutForCalibration:  5,
	StatusPendingQC:          6,
	StatusOutOfService:       7,
	StatusRetired:            8,
	StatusReturned:           9,
}

var statusLabels = map[Status]string{
	StatusCheckedOut:         "checked out",
	StatusCalibrationDue:     "calibration due",
	StatusPendingRelease:     "awaiting release",
	StatusPendingCertificate: "awaiting certificate",
	StatusOutForCalibration:  "out for calibration",
	StatusPendingQC:          "pending QC",
	StatusOutOfService:       "out of service",
	StatusRetired:            "retired",
	StatusReturned:           "returned to customer",
}

// ResolveSetStatus derives the aggregate usability and seal status of a
// set from its two members. Pure: no storage access, no side effects.
func ResolveSetStatus(a, b *GaugeRecord) SetStatus {
	status := SetStatus{
		Usability:  UsabilityAvailable,
		SealStatus: SealUnsealed,
	}
	if a.Sealed || b.Sealed {
		status.SealStatus = SealSealed
	}

	worst := a
	if statusRestrictiveness[b.Status] > statusRestrictiveness[worst.Status] {
		worst = b
	}
	if worst.Status != StatusAvailable {
		label := statusLabels[worst.Status]
		if label == "" {
			label = string(worst.Status)
		}
		status.Usability = fmt.Sprintf("Unusable: %s is %s", worst.ID, label)
	}
	return status
}

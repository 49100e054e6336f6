// Package gauge implements the gauge set lifecycle engine: identifier
// allocation, companion pairing, cascaded status and location changes,
// and the append-only relationship history ledger.
package gauge

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Status represents the operational lifecycle state of a gauge.
type Status string

const (
	StatusAvailable          Status = "available"
	StatusCheckedOut         Status = "checked_out"
	StatusOutOfService       Status = "out_of_service"
	StatusCalibrationDue     Status = "calibration_due"
	StatusPendingQC          Status = "pending_qc"
	StatusOutForCalibration  Status = "out_for_calibration"
	StatusPendingCertificate Status = "pending_certificate"
	StatusPendingRelease     Status = "pending_release"
	StatusRetired            Status = "retired"
	StatusReturned           Status = "returned"
)

// Role identifies which half of a matched set a gauge is. Role A is the
// GO member, role B the NO GO member; member identifiers carry the role
// as a suffix on the shared base identifier.
type Role string

const (
	RoleGo   Role = "A"
	RoleNoGo Role = "B"
)

// Ownership classifies who owns a gauge. Customer-owned gauges carry a
// customer reference and can be returned; both fields are immutable.
type Ownership string

const (
	OwnershipOrganization Ownership = "organization"
	OwnershipCustomer     Ownership = "customer"
)

// EquipmentType tags the kind of measurement instrument. Only thread
// gauges participate in GO/NO-GO pairing.
type EquipmentType string

const (
	EquipmentThreadRing EquipmentType = "thread_ring"
	EquipmentThreadPlug EquipmentType = "thread_plug"
	EquipmentPlainPlug  EquipmentType = "plain_plug"
	EquipmentIndicator  EquipmentType = "indicator"
)

// Pairable reports whether gauges of this equipment type form matched sets.
func (t EquipmentType) Pairable() bool {
	return t == EquipmentThreadRing || t == EquipmentThreadPlug
}

// Spec is the full specification tuple of a gauge. Two gauges may only be
// companioned when their specs match field for field. Stored as a JSON
// column; a normalized key column is kept alongside for matching.
type Spec struct {
	Size  string `json:"size"`
	Class string `json:"class"`
	Form  string `json:"form,omitempty"`
	Type  string `json:"type,omitempty"`
	Hand  string `json:"hand,omitempty"`
}

// Key returns the normalized comparison key for the spec tuple.
func (s Spec) Key() string {
	parts := []string{s.Size, s.Class, s.Form, s.Type, s.Hand}
	for i, p := range parts {
		parts[i] = strings.ToUpper(strings.TrimSpace(p))
	}
	return strings.Join(parts, "|")
}

// String renders the spec the way it appears on the gauge itself.
func (s Spec) String() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{s.Size, s.Class, s.Form, s.Type, s.Hand} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, " ")
}

// Scan implements the sql.Scanner interface for Spec.
func (s *Spec) Scan(value any) error {
	if value == nil {
		*s = Spec{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for Spec: %T", value)
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface for Spec.
func (s Spec) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONMap is a custom GORM type for map[string]any stored as JSON.
type JSONMap map[string]any

// Scan implements the sql.Scanner interface for JSONMap.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONMap.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

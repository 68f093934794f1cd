// Package models defines the data structures for the cmdbsync CI store.
package models

import (
	"strings"
	"time"
)

// CIType classifies a configuration item.
type CIType string

const (
	CITypeServer        CIType = "server"
	CITypeApplication   CIType = "application"
	CITypeNetworkDevice CIType = "network_device"
	CITypeDatabase      CIType = "database"
	CITypeWorkstation   CIType = "workstation"
	CITypeStorage       CIType = "storage"
	CITypeOther         CIType = "other"
)

// CIStatus is the lifecycle state of a configuration item.
type CIStatus string

const (
	CIStatusActive      CIStatus = "active"
	CIStatusInactive    CIStatus = "inactive"
	CIStatusRetired     CIStatus = "retired"
	CIStatusPlanned     CIStatus = "planned"
	CIStatusMaintenance CIStatus = "maintenance"
)

// RawRecord is one source-shaped record as yielded by a connector.
// Never persisted directly; only merged into ConfigurationItem.RawData.
type RawRecord map[string]any

// MappedRecord maps canonical CI field names to scalar values.
type MappedRecord map[string]string

// ConfigurationItem is the canonical record of one piece of infrastructure.
type ConfigurationItem struct {
	ID     int64
	Name   string
	CIType CIType
	Status CIStatus

	Description      string
	Owner            string
	Location         string
	Environment      string
	CostCenter       string
	Domain           string
	OSDBSystem       string
	ServiceProvider  string
	Contact          string
	SLA              string
	EOL              string
	TechnicalDetails string

	// Import bookkeeping. ExternalID is stable within one source and drives
	// the identity-stable match path.
	ExternalID     string
	ImportSourceID *int64
	LastSync       *time.Time

	// RawData is a JSON object keyed by source kind; each value is the most
	// recent raw payload contributed by that source.
	RawData []byte

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// ParseCIType maps a free-form source string to a CIType, defaulting to other.
func ParseCIType(s string) CIType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server":
		return CITypeServer
	case "application", "app":
		return CITypeApplication
	case "network", "network_device":
		return CITypeNetworkDevice
	case "database", "db":
		return CITypeDatabase
	case "workstation":
		return CITypeWorkstation
	case "storage":
		return CITypeStorage
	default:
		return CITypeOther
	}
}

// ParseCIStatus maps a free-form source string to a CIStatus, defaulting to active.
func ParseCIStatus(s string) CIStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inactive":
		return CIStatusInactive
	case "retired":
		return CIStatusRetired
	case "planned":
		return CIStatusPlanned
	case "maintenance":
		return CIStatusMaintenance
	default:
		return CIStatusActive
	}
}

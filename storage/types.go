package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	// FieldReportIxiVersion is the learned Report.ixi version of a neighbor.
	FieldReportIxiVersion = "report_ixi_version"
	// FieldUUID is the learned UUID of a neighbor.
	FieldUUID = "uuid"
	// FieldPublicKey is the learned Ed25519 key of a neighbor, base64 encoded.
	FieldPublicKey = "public_key"
)

const (
	// UUIDOriginMetadataFile marks a UUID loaded from the local metadata file.
	UUIDOriginMetadataFile = "metadata_file"
	// UUIDOriginRCS marks a UUID assigned or confirmed by the RCS.
	UUIDOriginRCS = "rcs"
)

const (
	// SecuritySeverityInfo indicates informational security event context.
	SecuritySeverityInfo = "info"
	// SecuritySeverityWarning indicates potentially suspicious behavior.
	SecuritySeverityWarning = "warning"
	// SecuritySeverityCritical indicates serious security failures.
	SecuritySeverityCritical = "critical"
)

const (
	// EventNonNeighborPacket is a datagram from a source that is neither a
	// configured neighbor nor the RCS.
	EventNonNeighborPacket = "non_neighbor_packet"
	// EventUnverifiedPing is a signed ping no neighbor key verified.
	EventUnverifiedPing = "unverified_ping"
	// EventDuplicateNeighborKey is two neighbors announcing the same key.
	EventDuplicateNeighborKey = "duplicate_neighbor_key"
	// EventInvalidPayload is an undecodable datagram from a known source.
	EventInvalidPayload = "invalid_payload"
)

// NeighborChange records one learned-field transition of a neighbor.
type NeighborChange struct {
	ID              int64
	NeighborAddress string
	Field           string
	OldValue        string
	NewValue        string
	Timestamp       int64
}

// NeighborChangeFilter narrows GetNeighborChanges query results.
type NeighborChangeFilter struct {
	NeighborAddress string
	Field           string
	Limit           int
	Offset          int
}

// SecurityEvent stores structured security-relevant runtime events.
type SecurityEvent struct {
	ID            int64
	EventType     string
	SourceAddress *string
	Details       string
	Severity      string
	Timestamp     int64
}

// SecurityEventFilter narrows GetSecurityEvents query results.
type SecurityEventFilter struct {
	EventType     string
	SourceAddress string
	Severity      string
	FromTimestamp *int64
	ToTimestamp   *int64
	Limit         int
	Offset        int
}

// LocalUUID is one entry of the local node's UUID history.
type LocalUUID struct {
	UUID      string
	Origin    string
	Timestamp int64
}

type scanner interface {
	Scan(dest ...any) error
}

func validateField(field string) error {
	switch field {
	case FieldReportIxiVersion, FieldUUID, FieldPublicKey:
		return nil
	default:
		return fmt.Errorf("invalid neighbor field %q", field)
	}
}

func validateUUIDOrigin(origin string) error {
	switch origin {
	case UUIDOriginMetadataFile, UUIDOriginRCS:
		return nil
	default:
		return fmt.Errorf("invalid uuid origin %q", origin)
	}
}

func validateSecuritySeverity(severity string) error {
	switch severity {
	case SecuritySeverityInfo, SecuritySeverityWarning, SecuritySeverityCritical:
		return nil
	default:
		return fmt.Errorf("invalid security event severity %q", severity)
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nullString(ptr *string) sql.NullString {
	if ptr == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *ptr, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

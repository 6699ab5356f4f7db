package config

import (
	"os"
	"strings"
)

// BestEffortReadAudits controls whether read-path audit entries (exporting a
// report, listing an entity's trail) are written. Failures on these never
// abort the read; mutation audits are always written and always fatal.
//
// Set via env:
// - AUDIT_READ_LOGGING=true
func BestEffortReadAudits() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("AUDIT_READ_LOGGING")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// DetectorNotificationsDisabled silences staleness escalation notifications
// (detection still runs and records are still upserted).
//
// Set via env:
// - DETECTOR_NOTIFICATIONS_DISABLED=true
func DetectorNotificationsDisabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DETECTOR_NOTIFICATIONS_DISABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

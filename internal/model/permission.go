package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionLateCodesIssue allows issuing, listing and revoking late-access
	// codes for exams the staff member authored.
	PermissionLateCodesIssue Permission = "late_codes:issue"

	// PermissionLateCodesInspect allows managing late-access codes for any
	// exam (inspector role).
	PermissionLateCodesInspect Permission = "late_codes:inspect"
)

// PermissionExamsMonitor allows watching the live attempt monitor of exams
// the staff member authored. Inspectors may watch any exam.
const PermissionExamsMonitor Permission = "exams:monitor"

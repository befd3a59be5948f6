package rules

import "vncsentinel/pkg/models"

// DefaultDescriptors returns the built-in rule table. Thresholds are
// calibration data and can be replaced wholesale via a YAML rule file.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:       "high_volume_exfil",
			Category: models.CategoryFileTransfer,
			Severity: models.SeverityHigh,
			Reason:   "sustained outbound transfer rate exceeds exfiltration threshold",
			When: []Condition{
				{Field: models.FieldBytesPerMinute, Op: "gt", Threshold: 10 * 1024 * 1024},
			},
		},
		{
			ID:       "bulk_file_transfer",
			Category: models.CategoryFileTransfer,
			Severity: models.SeverityHigh,
			Reason:   "large aggregate file volume moved through the session",
			When: []Condition{
				{Field: models.FieldTotalFilesSizeBytes, Op: "gt", Threshold: 10 * 1024 * 1024},
			},
		},
		{
			ID:       "rapid_file_transfers",
			Category: models.CategoryFileTransfer,
			Severity: models.SeverityMedium,
			Reason:   "unusually frequent file transfer events",
			When: []Condition{
				{Field: models.FieldFileTransferRate, Op: "gt", Threshold: 5},
			},
		},
		{
			ID:       "clipboard_flood",
			Category: models.CategoryClipboardTheft,
			Severity: models.SeverityMedium,
			Reason:   "clipboard event rate above normal interactive use",
			When: []Condition{
				{Field: models.FieldClipboardEventsRate, Op: "gt", Threshold: 20},
			},
		},
		{
			ID:       "clipboard_bulk",
			Category: models.CategoryClipboardTheft,
			Severity: models.SeverityMedium,
			Reason:   "large volume of data moved through the clipboard",
			When: []Condition{
				{Field: models.FieldTotalClipboardBytes, Op: "gt", Threshold: 1000000},
			},
		},
		{
			ID:       "screenshot_burst",
			Category: models.CategoryScreenshotExfiltration,
			Severity: models.SeverityMedium,
			Reason:   "screenshot cadence consistent with screen scraping",
			When: []Condition{
				{Field: models.FieldScreenshotFrequency, Op: "gt", Threshold: 12},
			},
		},
		{
			ID:       "frame_scrape",
			Category: models.CategoryScreenshotExfiltration,
			Severity: models.SeverityMedium,
			Reason:   "elevated frame rate combined with screenshot activity",
			When: []Condition{
				{Field: models.FieldAvgFrameRate, Op: "gt", Threshold: 12},
				{Field: models.FieldScreenshotFrequency, Op: "gt", Threshold: 4},
			},
		},
		{
			ID:       "encoded_channel",
			Category: models.CategoryEncodedDataTransfer,
			Severity: models.SeverityHigh,
			Reason:   "high-entropy payload at transfer volume, possible encoded tunnel",
			When: []Condition{
				{Field: models.FieldEntropyScore, Op: "gt", Threshold: 7.2},
				{Field: models.FieldBytesPerMinute, Op: "gt", Threshold: 1024 * 1024},
			},
		},
		{
			ID:       "offhours_low_trust",
			Category: models.CategoryCredentialReuse,
			Severity: models.SeverityHigh,
			Reason:   "session at unusual hours from a low-trust device",
			When: []Condition{
				{Field: models.FieldUnusualTimeAccess, Op: "gte", Threshold: 1},
				{Field: models.FieldLowTrustDevice, Op: "gte", Threshold: 1},
			},
		},
		{
			ID:       "weak_auth_unencrypted",
			Category: models.CategoryCredentialReuse,
			Severity: models.SeverityMedium,
			Reason:   "password-only authentication over an unencrypted channel",
			When: []Condition{
				{Field: models.FieldWeakAuth, Op: "gte", Threshold: 1},
				{Field: models.FieldUnencrypted, Op: "gte", Threshold: 1},
			},
		},
	}
}

package model

// SettingsKey is the well-known KV key holding the church-wide settings
// document.
const SettingsKey = "church:settings"

// DefaultSettings returns the settings document served before any admin has
// saved one. Updates are merged field-by-field on top of the stored document,
// so the shape stays open.
func DefaultSettings() map[string]any {
	return map[string]any{
		"churchName":            "Steeple Community Church",
		"pastorName":            "",
		"address":               "",
		"phone":                 "",
		"email":                 "",
		"website":               "",
		"timezone":              "cst",
		"dateFormat":            "mdy",
		"emailNotifications":    true,
		"memberNotifications":   true,
		"donationNotifications": true,
		"eventNotifications":    true,
		"autoBackup":            true,
		"memberPortal":          true,
	}
}

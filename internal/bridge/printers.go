package bridge

import "strings"

// virtualPrinterMarkers are substrings that identify PDF/virtual devices.
// Sending a receipt to one of these silently dumps it to a file, so the
// guard hard-fails instead.
var virtualPrinterMarkers = []string{
	"pdf",
	"microsoft print to pdf",
	"onenote",
	"save as pdf",
	"adobe pdf",
	"xps",
	"fax",
	"anydesk",
	"virtual",
	"cutepdf",
	"primo pdf",
	"pdf24",
	"pdfcreator",
	"foxit",
}

// IsVirtualPrinter reports whether the printer name matches the banned list.
func IsVirtualPrinter(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range virtualPrinterMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

var primaryMarkers = []string{"primary", "pos", "kiosk"}
var mobileMarkers = []string{"mobile", "online", "customer"}

// ClassifyPrinters picks the Primary/POS and Mobile printers from the
// bridge's list. Name hints win; otherwise the first entry is Primary and
// the second Mobile; a single printer serves both roles.
func ClassifyPrinters(names []string) (primary, mobile string) {
	for _, n := range names {
		lower := strings.ToLower(n)
		if primary == "" && containsAny(lower, primaryMarkers) {
			primary = n
			continue
		}
		if mobile == "" && containsAny(lower, mobileMarkers) {
			mobile = n
		}
	}

	if primary == "" {
		for _, n := range names {
			if n != mobile {
				primary = n
				break
			}
		}
		if primary == "" && len(names) > 0 {
			primary = names[0]
		}
	}
	if mobile == "" {
		if len(names) > 1 {
			for _, n := range names {
				if n != primary {
					mobile = n
					break
				}
			}
		}
		if mobile == "" {
			mobile = primary
		}
	}
	return primary, mobile
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

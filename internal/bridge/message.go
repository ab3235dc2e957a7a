package bridge

import "encoding/json"

// Bridge protocol actions. Frames are UTF-8 JSON: {Action, Printer, Payload}.
const (
	ActionAllPrinters = "all-printers"
	ActionPrintBase64 = "printBase64"
	ActionPrintHTML   = "printHtml"
	ActionPrintText   = "printText"
)

// Frame is an outbound request to the bridge. Payload is a base-64 PDF for
// printBase64, raw markup/text for the text modes, empty for all-printers.
type Frame struct {
	Action  string `json:"Action"`
	Printer string `json:"Printer,omitempty"`
	Payload string `json:"Payload"`
}

// reply is an inbound frame. The all-printers response carries a JSON array
// in Payload, so it is decoded lazily.
type reply struct {
	Action  string          `json:"Action,omitempty"`
	Payload json.RawMessage `json:"Payload"`
}

// printerList extracts the printer-name array from a reply, if it is one.
func (r reply) printerList() ([]string, bool) {
	if len(r.Payload) == 0 {
		return nil, false
	}
	var names []string
	if err := json.Unmarshal(r.Payload, &names); err != nil {
		return nil, false
	}
	return names, true
}

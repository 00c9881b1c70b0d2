package bridge

import "fmt"

// PolicyDocument returns the cross-domain policy granting access to port. The
// document is null-terminated and written as-is, outside the line protocol.
func PolicyDocument(port int) []byte {
	doc := fmt.Sprintf("<cross-domain-policy>\n"+
		"  <allow-access-from domain=\"*\" to-ports=\"%d\"/>\n"+
		"</cross-domain-policy>\n\x00", port)
	return []byte(doc)
}

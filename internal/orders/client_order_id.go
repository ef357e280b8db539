// Package orders tracks in-flight broker orders from submission to fill
// or cancellation.
package orders

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ClientOrderIDPrefix marks orders originated by this platform so the
// reconciler can tell ours apart from manually placed ones.
const ClientOrderIDPrefix = "amb"

// NewClientOrderID builds a client order id of the form
// amb-<side>-<uuid>, e.g. "amb-buy-6f1c...". Stays well under broker
// id length limits.
func NewClientOrderID(side string) string {
	return fmt.Sprintf("%s-%s-%s", ClientOrderIDPrefix, strings.ToLower(side), uuid.NewString())
}

// IsOurs reports whether a client order id was generated by this
// platform.
func IsOurs(clientOrderID string) bool {
	return strings.HasPrefix(clientOrderID, ClientOrderIDPrefix+"-")
}

// SideFromClientOrderID extracts the side segment, or "" when the id is
// not ours or malformed.
func SideFromClientOrderID(clientOrderID string) string {
	if !IsOurs(clientOrderID) {
		return ""
	}
	parts := strings.SplitN(clientOrderID, "-", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

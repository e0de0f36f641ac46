// Package trip contains booking, schedule and push payload types shared by
// customers and drivers.
package trip

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/logiride/client/internal/domain/shared/valueobject"
)

// Placeholder is rendered for notification fields the server left out
const Placeholder = "N/A"

// Notification is the payload of a NOTIFICATION push event. Every field is
// optional; unknown fields are kept in Raw so accept/decline can send back
// what the server sent.
type Notification struct {
	BookingID                    string           `json:"bookingId,omitempty"`
	CustomerID                   string           `json:"customerId,omitempty"`
	CustomerStartLocationAddress string           `json:"customerStartLocationAddress,omitempty"`
	CustomerEndLocationAddress   string           `json:"customerEndLocationAddress,omitempty"`
	TotalCustomerPoints          *float64         `json:"totalCustomerPoints,omitempty"`
	Price                        *decimal.Decimal `json:"price,omitempty"`
	Distance                     *float64         `json:"distance,omitempty"`
	VehicleType                  string           `json:"vehicleType,omitempty"`

	Raw map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the whole object in Raw.
// Numeric ids are accepted and turned into strings.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type plain Notification
	var p struct {
		plain
		BookingID  json.RawMessage `json:"bookingId,omitempty"`
		CustomerID json.RawMessage `json:"customerId,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*n = Notification(p.plain)
	n.BookingID = idString(p.BookingID)
	n.CustomerID = idString(p.CustomerID)
	n.Raw = raw
	return nil
}

// IdentifyingFields returns the fields echoed back on accept/decline
func (n Notification) IdentifyingFields() map[string]any {
	out := map[string]any{}
	if n.BookingID != "" {
		out["bookingId"] = n.BookingID
	}
	if n.CustomerID != "" {
		out["customerId"] = n.CustomerID
	}
	return out
}

// NotificationView is the display form of a Notification
type NotificationView struct {
	From        string
	To          string
	Points      string
	Price       string
	Distance    string
	VehicleType string
}

// Display renders every field, substituting Placeholder for missing ones
func (n Notification) Display() NotificationView {
	v := NotificationView{
		From:        orPlaceholder(n.CustomerStartLocationAddress),
		To:          orPlaceholder(n.CustomerEndLocationAddress),
		Points:      Placeholder,
		Price:       Placeholder,
		Distance:    Placeholder,
		VehicleType: orPlaceholder(n.VehicleType),
	}
	if n.TotalCustomerPoints != nil {
		v.Points = strconv.FormatFloat(*n.TotalCustomerPoints, 'f', -1, 64)
	}
	if n.Price != nil {
		v.Price = valueobject.NewMoneyVND(*n.Price).Format()
	}
	if n.Distance != nil {
		v.Distance = fmt.Sprintf("%.1f km", *n.Distance)
	}
	return v
}

func orPlaceholder(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}

func idString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

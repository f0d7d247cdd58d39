package model

// Location partitions the presence ledger.
type Location string

const (
	LocationLibrary Location = "library"
	LocationGate    Location = "gate"
	LocationHostel  Location = "hostel"
)

// Locations lists every tracked location.
var Locations = []Location{LocationLibrary, LocationGate, LocationHostel}

// Valid reports whether l is a known location.
func (l Location) Valid() bool {
	switch l {
	case LocationLibrary, LocationGate, LocationHostel:
		return true
	}
	return false
}

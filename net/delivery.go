package net

// DeliveryMode is the guarantee the game layer asks for when sending.
// Values match the game manager's wire enum.
type DeliveryMode uint8

const (
	ReliableUnordered DeliveryMode = iota
	Sequenced
	ReliableOrdered
	ReliableSequenced
)

func (m DeliveryMode) String() string {
	switch m {
	case ReliableUnordered:
		return "ReliableUnordered"
	case Sequenced:
		return "Sequenced"
	case ReliableOrdered:
		return "ReliableOrdered"
	case ReliableSequenced:
		return "ReliableSequenced"
	default:
		return "Unknown"
	}
}

// SendMode is the engine's coarser reliable/unreliable split.
type SendMode uint8

const (
	Reliable SendMode = iota
	Unreliable
)

func (m SendMode) String() string {
	if m == Reliable {
		return "Reliable"
	}
	return "Unreliable"
}

// MapDeliveryMode maps a delivery guarantee onto an engine send mode.
// Unknown modes are sent unreliably.
func MapDeliveryMode(mode DeliveryMode) SendMode {
	switch mode {
	case ReliableOrdered, ReliableUnordered, ReliableSequenced:
		return Reliable
	case Sequenced:
		return Unreliable
	default:
		return Unreliable
	}
}

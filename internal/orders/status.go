package orders

// Status is a rental's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// cancelled hanya dari pending/confirmed: slot yg sudah terpakai tidak boleh dibebaskan.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusActive: true, StatusCancelled: true},
	StatusActive:    {StatusCompleted: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Blocking reports whether a rental in s holds its range on the calendar.
// Completed rentals keep blocking unless pruning is on.
func (s Status) Blocking(pruneCompleted bool) bool {
	switch s {
	case StatusCancelled:
		return false
	case StatusCompleted:
		return !pruneCompleted
	}
	return true
}

package models

// Status is the lifecycle stage of a plan or conversation.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusWorking    Status = "working"
	StatusCompleted  Status = "completed"
)

// ParseStatus validates a stored or user-supplied status value.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusNotStarted, StatusWorking, StatusCompleted:
		return Status(s), true
	}
	return StatusNotStarted, false
}

// Category groups conversations for listing.
type Category string

const (
	CategoryNotStarted Category = "not_started"
	CategoryWorking    Category = "working"
	CategoryCompleted  Category = "completed"
	CategoryNormal     Category = "normal"
)

// Categories holds conversations grouped by category.
type Categories struct {
	NotStarted []Conversation `json:"not_started"`
	Working    []Conversation `json:"working"`
	Completed  []Conversation `json:"completed"`
	Normal     []Conversation `json:"normal"`
}

// Package types defines the core data structures for voxmemo: the transient
// results produced by one pipeline run (transcription and analysis) and the
// persisted memory card they are projected into.
package types

// Category is the topic bucket the analysis model assigns to a memo.
// The set below is offered to the model as a hint; values outside it are
// accepted and stored as-is.
type Category string

// Category constants
const (
	CategoryShopping      Category = "Shopping"
	CategoryLearning      Category = "Learning"
	CategoryMeeting       Category = "Meeting"
	CategoryPersonal      Category = "Personal"
	CategoryWork          Category = "Work"
	CategoryHealth        Category = "Health"
	CategoryTravel        Category = "Travel"
	CategoryEntertainment Category = "Entertainment"
)

// Categories lists the suggested categories in prompt order.
var Categories = []Category{
	CategoryShopping,
	CategoryLearning,
	CategoryMeeting,
	CategoryPersonal,
	CategoryWork,
	CategoryHealth,
	CategoryTravel,
	CategoryEntertainment,
}

// IsKnownCategory reports whether c is one of the suggested categories.
func IsKnownCategory(c string) bool {
	for _, known := range Categories {
		if string(known) == c {
			return true
		}
	}
	return false
}

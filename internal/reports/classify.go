package reports

import "strings"

// FBTRate is the flat fringe-benefits tax rate applied to classified spend.
// A fixed approximation, not a compliance-grade calculation.
const FBTRate = 0.47

// Fringe-benefit category names.
const (
	CategoryMotorVehicles = "motor_vehicles"
	CategoryEntertainment = "entertainment"
	CategoryMeals         = "meals"
	CategoryAccommodation = "accommodation"
	CategoryOther         = "other"
)

// categoryKeywords maps each category to the substrings matched against
// account codes and line descriptions. Matching is case-insensitive and
// first-hit wins in the order below.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryMotorVehicles, []string{"motor", "vehicle", "car ", "fuel", "parking"}},
	{CategoryEntertainment, []string{"entertain", "function", "event"}},
	{CategoryMeals, []string{"meal", "lunch", "dinner", "catering", "restaurant"}},
	{CategoryAccommodation, []string{"accommodat", "hotel", "lodging", "travel"}},
}

// Classify buckets a transaction by keyword-matching its account code and
// description. Unmatched spend lands in CategoryOther.
func Classify(accountCode, description string) string {
	haystack := strings.ToLower(accountCode + " " + description)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(haystack, kw) {
				return c.category
			}
		}
	}
	return CategoryOther
}

// EmployeeLinked reports whether a contact group name marks the contact as
// an employee.
func EmployeeLinked(groupNames []string) bool {
	for _, name := range groupNames {
		if strings.Contains(strings.ToLower(name), "employee") {
			return true
		}
	}
	return false
}

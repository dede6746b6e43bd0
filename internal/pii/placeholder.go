package pii

import "strings"

// Category is the closed set of generic placeholder categories.
type Category string

const (
	CategoryName     Category = "Name"
	CategoryCompany  Category = "Company"
	CategoryLocation Category = "Location"
	CategoryDate     Category = "Date"
	CategoryAmount   Category = "Amount"
	CategoryPhone    Category = "Phone"
	CategoryNumber   Category = "Number"
	CategoryInfo     Category = "Info"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryName,
	CategoryCompany,
	CategoryLocation,
	CategoryDate,
	CategoryAmount,
	CategoryPhone,
	CategoryNumber,
	CategoryInfo,
}

// Placeholder renders the bracketed token for the category, e.g. "[Name]".
func (c Category) Placeholder() string {
	return "[" + string(c) + "]"
}

// labelCategories maps recognizer labels (spaCy and Presidio entity names)
// to placeholder categories. Generic number labels are resolved separately.
var labelCategories = map[string]Category{
	"PERSON":        CategoryName,
	"ORG":           CategoryCompany,
	"GPE":           CategoryLocation,
	"LOC":           CategoryLocation,
	"FAC":           CategoryLocation,
	"DATE":          CategoryDate,
	"TIME":          CategoryDate,
	"MONEY":         CategoryAmount,
	"PHONE_NUMBER":  CategoryPhone,
	"EMAIL_ADDRESS": CategoryInfo,
	"IBAN_CODE":     CategoryInfo,
	"CREDIT_CARD":   CategoryInfo,
	"IP_ADDRESS":    CategoryInfo,
}

// numberLabels are the generic number labels subject to the phone heuristic.
var numberLabels = map[string]bool{
	"CARDINAL": true,
	"NUMBER":   true,
}

// PhoneMinDigits is the digit count from which a generic number is treated
// as a phone number.
const PhoneMinDigits = 10

// Assign maps a recognizer label and the entity's surface text to a
// placeholder category.
//
// Generic numbers become Phone when they carry at least PhoneMinDigits digits
// or mention "phone". This misfiles long account numbers as phones; the
// heuristic is kept as is.
func Assign(label, text string) Category {
	label = strings.ToUpper(strings.TrimSpace(label))
	if numberLabels[label] {
		if countDigits(text) >= PhoneMinDigits || strings.Contains(strings.ToLower(text), "phone") {
			return CategoryPhone
		}
		return CategoryNumber
	}
	if c, ok := labelCategories[label]; ok {
		return c
	}
	return CategoryInfo
}

// countDigits counts ASCII digits. Spaces, hyphens, and parentheses are
// separators and never count.
func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}

// IsPlaceholder reports whether s is exactly one placeholder token.
func IsPlaceholder(s string) bool {
	for _, c := range Categories {
		if s == c.Placeholder() {
			return true
		}
	}
	return false
}

package domain

import "strings"

// Category is a label from the closed category enumeration.
type Category string

const (
	CategoryFood          Category = "Food & Dining"
	CategoryGroceries     Category = "Groceries"
	CategoryTransport     Category = "Transport"
	CategoryFuel          Category = "Fuel"
	CategoryShopping      Category = "Shopping"
	CategoryBills         Category = "Bills & Utilities"
	CategoryMedical       Category = "Medical"
	CategoryInsurance     Category = "Insurance"
	CategoryInvestment    Category = "Investment"
	CategoryLoanEMI       Category = "Loan EMI"
	CategorySalary        Category = "Salary"
	CategoryRent          Category = "Rent"
	CategoryEntertainment Category = "Entertainment"
	CategoryTravel        Category = "Travel"
	CategoryEducation     Category = "Education"
	CategoryTransfer      Category = "Transfer"
	CategoryCash          Category = "Cash Withdrawal"
	CategoryFees          Category = "Fees & Charges"
	CategoryUnknown       Category = "Unknown"
)

// Categories lists the enumeration in a stable order.
var Categories = []Category{
	CategoryFood,
	CategoryGroceries,
	CategoryTransport,
	CategoryFuel,
	CategoryShopping,
	CategoryBills,
	CategoryMedical,
	CategoryInsurance,
	CategoryInvestment,
	CategoryLoanEMI,
	CategorySalary,
	CategoryRent,
	CategoryEntertainment,
	CategoryTravel,
	CategoryEducation,
	CategoryTransfer,
	CategoryCash,
	CategoryFees,
	CategoryUnknown,
}

var categorySet = func() map[Category]struct{} {
	m := make(map[Category]struct{}, len(Categories))
	for _, c := range Categories {
		m[c] = struct{}{}
	}
	return m
}()

// normalizeCategory lowercases and collapses whitespace for lookup.
func normalizeCategory(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

var categoryLookup = func() map[string]Category {
	m := make(map[string]Category, len(Categories))
	for _, c := range Categories {
		m[normalizeCategory(string(c))] = c
	}
	return m
}()

// CoerceCategory maps a label onto the enumeration, ignoring case and extra
// whitespace. Anything else becomes Unknown.
func CoerceCategory(s string) Category {
	if c, ok := categoryLookup[normalizeCategory(s)]; ok {
		return c
	}
	return CategoryUnknown
}

// IsKnownCategory reports whether s names a category exactly.
func IsKnownCategory(s string) bool {
	_, ok := categorySet[Category(s)]
	return ok
}

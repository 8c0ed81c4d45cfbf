package categorizer

import (
	"strings"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/fuzzy"
)

// Rule assigns Category when any keyword appears as whole words in the text.
type Rule struct {
	Category domain.Category
	Keywords []string
}

// DefaultRules returns the built-in rules in evaluation order. Loans and
// investments come before everything else so that a mandate debit naming a
// shop is still read as the instalment it is.
func DefaultRules() []Rule {
	return []Rule{
		{domain.CategoryLoanEMI, []string{"emi", "loan", "equated monthly", "bajaj finance", "bajaj finserv", "hdb financial", "tata capital", "home credit", "loan repayment"}},
		{domain.CategoryInvestment, []string{"sip", "mutual fund", "mf", "zerodha", "groww", "upstox", "kuvera", "nps", "ppf", "iccl", "indian clearing", "cams", "kfintech", "demat"}},
		{domain.CategoryInsurance, []string{"insurance", "lic", "premium", "policy", "hdfc life", "icici pru", "max life", "star health", "acko", "go digit"}},
		{domain.CategorySalary, []string{"salary", "sal", "payroll", "wages", "stipend"}},
		{domain.CategoryRent, []string{"rent", "house rent", "nobroker", "nestaway", "landlord"}},
		{domain.CategoryFood, []string{"swiggy", "zomato", "restaurant", "cafe", "dominos", "domino s", "mcdonald s", "kfc", "pizza", "starbucks", "eatsure", "bakery", "dining"}},
		{domain.CategoryGroceries, []string{"bigbasket", "blinkit", "zepto", "dmart", "grocery", "grocer", "supermarket", "jiomart", "reliance fresh", "kirana", "instamart"}},
		{domain.CategoryFuel, []string{"fuel", "petrol", "diesel", "indian oil", "iocl", "bpcl", "hpcl", "bharat petroleum", "hindustan petroleum", "filling station"}},
		{domain.CategoryTransport, []string{"uber", "ola", "rapido", "metro", "fastag", "toll", "parking", "cab", "taxi", "bmtc"}},
		{domain.CategoryMedical, []string{"pharmacy", "apollo", "pharmeasy", "hospital", "clinic", "medical", "medplus", "netmeds", "diagnostics", "doctor"}},
		{domain.CategoryBills, []string{"electricity", "bescom", "tata power", "airtel", "jio", "vodafone", "broadband", "fibernet", "recharge", "postpaid", "dth", "bbps", "water bill", "gas bill"}},
		{domain.CategoryEntertainment, []string{"netflix", "spotify", "hotstar", "prime video", "youtube", "bookmyshow", "pvr", "inox", "cinema", "movie", "steam"}},
		{domain.CategoryTravel, []string{"makemytrip", "irctc", "indigo", "air india", "vistara", "goibibo", "cleartrip", "redbus", "hotel", "oyo", "airbnb", "flight", "airlines"}},
		{domain.CategoryEducation, []string{"school", "college", "university", "tuition", "course", "udemy", "coursera", "byjus", "unacademy"}},
		{domain.CategoryCash, []string{"atm", "cash withdrawal", "atw", "cwdr", "nfs", "cash wdl", "atm wdl"}},
		{domain.CategoryFees, []string{"charges", "charge", "fee", "gst", "penalty", "late fee", "annual fee", "finance charge"}},
		{domain.CategoryTransfer, []string{"neft", "imps", "rtgs", "transfer", "trf", "self", "fund transfer"}},
		{domain.CategoryShopping, []string{"amazon", "flipkart", "myntra", "nykaa", "ajio", "meesho", "shopping", "store", "mall", "retail", "decathlon", "croma"}},
	}
}

// compiledRule holds keywords in the padded form matched against padded text.
type compiledRule struct {
	category domain.Category
	needles  []string
}

func compileRules(rules []Rule) []compiledRule {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{category: domain.CoerceCategory(string(r.Category))}
		for _, k := range r.Keywords {
			if k = fuzzy.Clean(k); k != "" {
				cr.needles = append(cr.needles, " "+k+" ")
			}
		}
		out = append(out, cr)
	}
	return out
}

// match returns the category of the first rule with a keyword in text. Text
// must already be cleaned.
func match(rules []compiledRule, text string) (domain.Category, bool) {
	padded := " " + text + " "
	for _, r := range rules {
		for _, n := range r.needles {
			if strings.Contains(padded, n) {
				return r.category, true
			}
		}
	}
	return domain.CategoryUnknown, false
}

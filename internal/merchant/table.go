package merchant

// Entry is one curated merchant: the canonical display name and the spellings
// seen on statements.
type Entry struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// DefaultEntries is the built-in merchant table.
func DefaultEntries() []Entry {
	return []Entry{
		// Food delivery and restaurants
		{Name: "Swiggy", Aliases: []string{"swiggy", "bundl technologies", "swiggy instamart"}},
		{Name: "Zomato", Aliases: []string{"zomato", "zomato online", "zomato media"}},
		{Name: "Domino's", Aliases: []string{"dominos", "domino s", "jubilant foodworks"}},
		{Name: "McDonald's", Aliases: []string{"mcdonalds", "mcdonald s", "hardcastle restaurants"}},
		{Name: "Starbucks", Aliases: []string{"starbucks", "tata starbucks"}},

		// Groceries
		{Name: "BigBasket", Aliases: []string{"bigbasket", "big basket", "innovative retail concepts"}},
		{Name: "Blinkit", Aliases: []string{"blinkit", "grofers"}},
		{Name: "Zepto", Aliases: []string{"zepto", "kiranakart"}},
		{Name: "DMart", Aliases: []string{"dmart", "avenue supermarts"}},

		// Shopping
		{Name: "Amazon", Aliases: []string{"amazon", "amazon pay", "amzn", "amazon seller services"}},
		{Name: "Flipkart", Aliases: []string{"flipkart", "flipkart internet"}},
		{Name: "Myntra", Aliases: []string{"myntra", "myntra designs"}},
		{Name: "Nykaa", Aliases: []string{"nykaa", "fsn e commerce"}},

		// Transport and fuel
		{Name: "Uber", Aliases: []string{"uber", "uber india", "uber rides"}},
		{Name: "Ola", Aliases: []string{"ola", "ola cabs", "ani technologies"}},
		{Name: "Rapido", Aliases: []string{"rapido", "roppen transportation"}},
		{Name: "Indian Oil", Aliases: []string{"indian oil", "iocl", "indianoil"}},
		{Name: "Bharat Petroleum", Aliases: []string{"bharat petroleum", "bpcl"}},
		{Name: "HP Petrol", Aliases: []string{"hindustan petroleum", "hpcl"}},
		{Name: "FASTag", Aliases: []string{"fastag", "netc fastag"}},

		// Travel
		{Name: "IRCTC", Aliases: []string{"irctc", "indian railway catering"}},
		{Name: "MakeMyTrip", Aliases: []string{"makemytrip", "make my trip", "mmt"}},
		{Name: "IndiGo", Aliases: []string{"indigo", "interglobe aviation"}},

		// Subscriptions and entertainment
		{Name: "Netflix", Aliases: []string{"netflix", "netflix com"}},
		{Name: "Spotify", Aliases: []string{"spotify", "spotify india"}},
		{Name: "Disney+ Hotstar", Aliases: []string{"hotstar", "disney hotstar", "novi digital"}},
		{Name: "YouTube Premium", Aliases: []string{"youtube premium", "youtube", "google youtube"}},
		{Name: "BookMyShow", Aliases: []string{"bookmyshow", "bigtree entertainment"}},
		{Name: "PVR", Aliases: []string{"pvr", "pvr inox", "pvr cinemas"}},

		// Bills and utilities
		{Name: "Airtel", Aliases: []string{"airtel", "bharti airtel"}},
		{Name: "Jio", Aliases: []string{"jio", "reliance jio"}},
		{Name: "BESCOM", Aliases: []string{"bescom", "bangalore electricity"}},
		{Name: "Tata Power", Aliases: []string{"tata power"}},
		{Name: "ACT Fibernet", Aliases: []string{"act fibernet", "atria convergence"}},

		// Health
		{Name: "Apollo Pharmacy", Aliases: []string{"apollo pharmacy", "apollo"}},
		{Name: "PharmEasy", Aliases: []string{"pharmeasy"}},

		// Insurance and investments
		{Name: "LIC", Aliases: []string{"lic", "life insurance corporation", "lic of india"}},
		{Name: "HDFC Life", Aliases: []string{"hdfc life", "hdfc standard life"}},
		{Name: "Zerodha", Aliases: []string{"zerodha", "zerodha broking"}},
		{Name: "Groww", Aliases: []string{"groww", "nextbillion technology"}},
	}
}

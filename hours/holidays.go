package hours

// Israeli public holidays, 2024 through 2028, keyed by "YYYY-MM-DD".
// A static table keeps the resolver dependency-free and predictable;
// extend it when the horizon approaches.
//
// Independence Day dates are the observed ones (moved when the nominal
// date falls adjacent to Shabbat).
var israeliHolidays = map[string]string{
	// 2024
	"2024-04-23": "פסח",
	"2024-04-29": "שביעי של פסח",
	"2024-05-14": "יום העצמאות",
	"2024-06-12": "שבועות",
	"2024-10-03": "ראש השנה",
	"2024-10-04": "ראש השנה",
	"2024-10-12": "יום כיפור",
	"2024-10-17": "סוכות",
	"2024-10-24": "שמחת תורה",

	// 2025
	"2025-04-13": "פסח",
	"2025-04-19": "שביעי של פסח",
	"2025-05-01": "יום העצמאות",
	"2025-06-02": "שבועות",
	"2025-09-23": "ראש השנה",
	"2025-09-24": "ראש השנה",
	"2025-10-02": "יום כיפור",
	"2025-10-07": "סוכות",
	"2025-10-14": "שמחת תורה",

	// 2026
	"2026-04-02": "פסח",
	"2026-04-08": "שביעי של פסח",
	"2026-04-22": "יום העצמאות",
	"2026-05-22": "שבועות",
	"2026-09-12": "ראש השנה",
	"2026-09-13": "ראש השנה",
	"2026-09-21": "יום כיפור",
	"2026-09-26": "סוכות",
	"2026-10-03": "שמחת תורה",

	// 2027
	"2027-04-22": "פסח",
	"2027-04-28": "שביעי של פסח",
	"2027-05-12": "יום העצמאות",
	"2027-06-11": "שבועות",
	"2027-10-02": "ראש השנה",
	"2027-10-03": "ראש השנה",
	"2027-10-11": "יום כיפור",
	"2027-10-16": "סוכות",
	"2027-10-23": "שמחת תורה",

	// 2028
	"2028-04-11": "פסח",
	"2028-04-17": "שביעי של פסח",
	"2028-05-02": "יום העצמאות",
	"2028-05-31": "שבועות",
	"2028-09-21": "ראש השנה",
	"2028-09-22": "ראש השנה",
	"2028-09-30": "יום כיפור",
	"2028-10-05": "סוכות",
	"2028-10-12": "שמחת תורה",
}

// holidayName returns the holiday name for a date, "" when none.
func holidayName(date string) string {
	return israeliHolidays[date]
}

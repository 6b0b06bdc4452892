// Package intent classifies user messages with keyword matching so the
// cheap cases never reach retrieval or the LLM. Patterns are bilingual
// (Hebrew and English) and evaluated in priority order; greeting and
// farewell are anchored full-string so "hi, how much is a haircut?"
// does not classify as a greeting.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the routing decision for one user message.
type Intent string

const (
	Greeting           Intent = "greeting"
	Farewell           Intent = "farewell"
	BusinessHours      Intent = "business_hours"
	AppointmentCancel  Intent = "appointment_cancel"
	Pricing            Intent = "pricing"
	AppointmentBooking Intent = "appointment_booking"
	General            Intent = "general"
)

// Patterns in priority order; first match wins. Pricing is evaluated
// before booking so "how much to book an appointment" asks for a price
// instead of starting the booking flow.
var patterns = []struct {
	intent Intent
	re     *regexp.Regexp
}{
	{Greeting, regexp.MustCompile(`(?i)^(` +
		`hi|hello|hey|hiya|good morning|good evening|good afternoon` +
		`|שלום|היי|הי|בוקר טוב|ערב טוב|צהריים טובים|מה נשמע|מה קורה|אהלן|הלו` +
		`)[.!?\s]*$`)},
	{Farewell, regexp.MustCompile(`(?i)^(` +
		`thanks|thank you|bye|goodbye|see you|have a good day|good night` +
		`|תודה|תודה רבה|ביי|ביביי|להתראות|יום טוב|לילה טוב|שבוע טוב|יאללה ביי` +
		`)[.!?\s]*$`)},
	{BusinessHours, regexp.MustCompile(`(?i)(` +
		`business\s*hours|opening\s*hours|what\s*are\s*your\s*hours` +
		`|when\s*(are\s*you|do\s*you)\s*(open|close)|are\s*you\s*open` +
		`|what\s*time\s*(do\s*you|are\s*you)\s*(open|close)|is\s+the\s+\w+\s+open` +
		`|שעות\s*(פתיחה|פעילות|עבודה|קבלה)|מתי\s*(אתם\s*)?(פותחים|פתוחים|סוגרים|נסגרים)` +
		`|עד\s*מתי\s*פתוח|אתם\s*פתוחים|פתוחים?\s*(היום|עכשיו|מחר)|עד\s*איזו?\s*שעה|מתי\s*נפתח` +
		`)`)},
	{AppointmentCancel, regexp.MustCompile(`(?i)(` +
		`cancel\s*(my\s*)?appointment|cancel\s*(my\s*)?booking` +
		`|i\s*want\s*to\s*cancel\s*(my\s*)?(appointment|booking|the\s*appointment)` +
		`|לבטל\s*(את\s*)?ה?תור|ביטול\s*(ה)?תור|רוצה\s*לבטל\s*(את\s*)?ה?תור|אני\s*מבטל\s*(את\s*)?ה?תור` +
		`|אני\s*רוצה\s*לבטל\s*את\s*התור|אני\s*צריך\s*לבטל\s*(את\s*)?ה?תור` +
		`)`)},
	{Pricing, regexp.MustCompile(`(?i)(` +
		`how\s*much|what.*price\b|what.*cost\b|pricing|price\s*list` +
		`|כמה\s*עולה|כמה\s*זה\s*עולה|מה\s*המחיר|מה\s*העלות|מחיר|מחירון|מחירים` +
		`|כמה\s*יעלה|כמה\s*כסף|עלות|תעריף|תעריפים` +
		`)`)},
	{AppointmentBooking, regexp.MustCompile(`(?i)(` +
		`book\s*(an?\s*)?appointment|make\s*(an?\s*)?appointment` +
		`|schedule\s*(an?\s*)?appointment|set\s*up\s*(an?\s*)?appointment` +
		`|i\s*want\s*(an?\s*)?appointment|i\s*want\s*to\s*book` +
		`|רוצה\s*תור|רוצה\s*לקבוע\s*תור|לקבוע\s*תור|אפשר\s*תור|אפשר\s*לקבוע\s*תור` +
		`|קביעת\s*תור|לזמן\s*תור|אני\s*רוצה\s*לקבוע\s*תור` +
		`|בואו\s*נקבע\s*תור|יש\s*תורים\s*פנויים|מתי\s*אפשר\s*לקבוע\s*תור` +
		`)`)},
}

// Detect classifies one message. Empty or whitespace-only input is
// General.
func Detect(message string) Intent {
	text := strings.TrimSpace(message)
	if text == "" {
		return General
	}
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return p.intent
		}
	}
	return General
}

const greetingResponse = "שלום! 👋 ברוכים הבאים. איך אפשר לעזור לכם היום?"

const farewellResponse = "תודה שפניתם אלינו! 😊 אם תצטרכו עוד משהו, אנחנו כאן.\n\n" +
	"נשמח לשמוע מכם — איך הייתה החוויה שלכם?"

// DirectResponse returns the canned reply for intents that skip
// retrieval entirely. ok is false for everything else.
func DirectResponse(in Intent) (string, bool) {
	switch in {
	case Greeting:
		return greetingResponse, true
	case Farewell:
		return farewellResponse, true
	}
	return "", false
}

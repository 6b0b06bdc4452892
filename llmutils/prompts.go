package llmutils

import (
	"fmt"
	"strings"

	"github.com/bizbot-il/bizbot/model"
)

// Fallback is the canned answer used whenever the model cannot ground
// its reply in the knowledge base. The orchestrator treats an answer
// equal to this string as a handoff signal.
const Fallback = "I don't have that specific information right now. " +
	"Let me connect you with a human agent who can help you better. " +
	"Please tap the 'Talk to Agent' button below."

// Tone preset instructions, keyed by the personality setting. Hebrew
// because the deployments this serves are Hebrew-first; rule 10 still
// makes the bot mirror the customer's language.
var toneInstructions = map[model.Tone]string{
	model.ToneFriendly: "דברו בחום ובגובה העיניים, עם אימוג'י פה ושם. כמו חבר שעוזר בשמחה.",
	model.ToneFormal:   "שמרו על שפה מקצועית ומכובדת. בלי סלנג ובלי אימוג'י. פנייה עניינית ומדויקת.",
	model.ToneSales:    "הדגישו את הערך ללקוח והציעו את הצעד הבא (קביעת תור, שירות משלים) בכל הזדמנות טבעית.",
	model.ToneLuxury:   "כתבו בלשון יוקרתית ומוקפדת, כיאה למותג פרימיום. עדינות, ביטחון, ואפס לחץ מכירתי.",
}

// followUpRule is rule 11, inserted only when follow-up suggestions
// are enabled. The bracketed line is extracted and stripped by the
// pipeline before the customer sees the answer.
const followUpRule = `11. End your answer with ONE extra line in this exact format:
[follow_up: question 1 | question 2 | question 3]
Each question must be answerable from the provided context, or be one of the system actions: booking an appointment, cancelling an appointment, or talking to a human agent.`

// BuildSystemPrompt composes the persona system prompt from the
// current bot settings. Settings are snapshotted per request; this
// function never touches storage.
func BuildSystemPrompt(businessName string, settings model.BotSettings) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a friendly and professional customer service representative for %s.\n\n", businessName)

	if tone, ok := toneInstructions[settings.Tone]; ok {
		b.WriteString("סגנון הדיבור שלך:\n")
		b.WriteString(tone)
		b.WriteString("\n\n")
	}

	if phrases := strings.TrimSpace(settings.CustomPhrases); phrases != "" {
		b.WriteString("דגשים ייחודיים של העסק (ה-DNA העסקי) — שלבו אותם בתשובות:\n")
		b.WriteString(phrases)
		b.WriteString("\n\n")
	}

	b.WriteString(`RULES — follow these strictly:
1. ONLY answer based on the provided context information. NEVER make up information.
2. If the context does not contain enough information to answer, say: "I don't have that information right now. Let me transfer you to a human agent who can help."
3. Always cite your source at the end of your answer using the format: Source: [category name or document title]
4. Be warm, helpful, and concise. Use a conversational tone.
5. If the customer wants to book an appointment, guide them to use the booking button.
6. If the customer asks about location, suggest using the location button.
7. If the customer seems frustrated or asks to speak to a person, suggest the "Talk to Agent" button.
8. Suggest relevant next actions when appropriate (e.g., "Would you like to book an appointment?").
9. Keep answers focused and under 200 words unless more detail is specifically requested.
10. Respond in the same language the customer uses.`)

	if settings.FollowUpEnabled {
		b.WriteString("\n")
		b.WriteString(followUpRule)
	}

	return b.String()
}

// BuildContextMessage wraps the formatted RAG context and the live
// business-hours block into the context system message.
func BuildContextMessage(ragContext, hoursContext string) string {
	var b strings.Builder
	b.WriteString("מידע הקשר (השתמש רק במידע זה כדי לענות על שאלת הלקוח):\n\n")
	b.WriteString(ragContext)
	if hoursContext != "" {
		b.WriteString("\n\n--- שעות פעילות (מחושב כעת, מידע אמין) ---\n")
		b.WriteString(hoursContext)
	}
	b.WriteString("\n\nחשוב: בסס את תשובתך רק על המידע למעלה. ")
	b.WriteString("תמיד סיים את התשובה עם 'מקור: [שם המקור]' בציון ההקשר שבו השתמשת.")
	return b.String()
}

// BuildSummaryMessage wraps a stored conversation summary with the
// continuity-only warning. Business facts must come from the context
// message, never from here.
func BuildSummaryMessage(summary string) string {
	return "סיכום שיחות קודמות עם הלקוח (לרקע והמשכיות בלבד — " +
		"אסור להשתמש בו כמקור לעובדות עסקיות כמו מחירים, שעות או כתובת):\n\n" + summary
}

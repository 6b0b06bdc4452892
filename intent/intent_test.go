package intent

import "testing"

func TestDetect_Greetings(t *testing.T) {
	greetings := []string{
		"שלום", "היי", "הי", "בוקר טוב", "ערב טוב", "מה נשמע", "אהלן", "הלו",
		"hi", "hello", "hey", "Hi!", "Hello.", "good morning", "good evening",
	}
	for _, msg := range greetings {
		if got := Detect(msg); got != Greeting {
			t.Errorf("Detect(%q) = %s, want greeting", msg, got)
		}
	}
}

func TestDetect_GreetingWithQuestionIsNotGreeting(t *testing.T) {
	messages := []string{
		"שלום, כמה עולה תספורת?",
		"hi how much is a haircut",
		"hello I want to book an appointment",
	}
	for _, msg := range messages {
		if got := Detect(msg); got == Greeting {
			t.Errorf("Detect(%q) should not be greeting", msg)
		}
	}
}

func TestDetect_Farewells(t *testing.T) {
	farewells := []string{
		"תודה", "תודה רבה", "ביי", "להתראות", "יום טוב",
		"thanks", "thank you", "bye", "goodbye",
	}
	for _, msg := range farewells {
		if got := Detect(msg); got != Farewell {
			t.Errorf("Detect(%q) = %s, want farewell", msg, got)
		}
	}
}

func TestDetect_BusinessHours(t *testing.T) {
	messages := []string{
		"שעות פתיחה", "מתי אתם פותחים?", "אתם פתוחים?",
		"פתוח היום?", "פתוחים עכשיו?", "עד מתי פתוחים?",
		"are you open", "what are your hours", "business hours",
		"is the salon open",
	}
	for _, msg := range messages {
		if got := Detect(msg); got != BusinessHours {
			t.Errorf("Detect(%q) = %s, want business_hours", msg, got)
		}
	}
}

func TestDetect_Pricing(t *testing.T) {
	messages := []string{
		"כמה עולה תספורת?", "מה המחיר?", "מחירון",
		"how much is a haircut?", "what's the price?", "pricing",
	}
	for _, msg := range messages {
		if got := Detect(msg); got != Pricing {
			t.Errorf("Detect(%q) = %s, want pricing", msg, got)
		}
	}
}

func TestDetect_PricingBeatsBooking(t *testing.T) {
	if got := Detect("כמה עולה לקבוע תור?"); got != Pricing {
		t.Errorf("Price question about booking should be pricing, got %s", got)
	}
	if got := Detect("how much to book an appointment?"); got != Pricing {
		t.Errorf("Price question about booking should be pricing, got %s", got)
	}
}

func TestDetect_Booking(t *testing.T) {
	messages := []string{
		"רוצה תור", "רוצה לקבוע תור", "אפשר תור?",
		"book an appointment", "I want to book",
	}
	for _, msg := range messages {
		if got := Detect(msg); got != AppointmentBooking {
			t.Errorf("Detect(%q) = %s, want appointment_booking", msg, got)
		}
	}
}

func TestDetect_Cancel(t *testing.T) {
	messages := []string{
		"לבטל תור", "ביטול תור", "רוצה לבטל את התור",
		"cancel my appointment", "I want to cancel my booking",
	}
	for _, msg := range messages {
		if got := Detect(msg); got != AppointmentCancel {
			t.Errorf("Detect(%q) = %s, want appointment_cancel", msg, got)
		}
	}
}

func TestDetect_General(t *testing.T) {
	messages := []string{
		"מה הכתובת שלכם?",
		"ספרו לי על השירותים",
		"what services do you offer?",
		"",
		"   ",
	}
	for _, msg := range messages {
		if got := Detect(msg); got != General {
			t.Errorf("Detect(%q) = %s, want general", msg, got)
		}
	}
}

func TestDirectResponse(t *testing.T) {
	if resp, ok := DirectResponse(Greeting); !ok || resp == "" {
		t.Error("Greeting should have a direct response")
	}
	if resp, ok := DirectResponse(Farewell); !ok || resp == "" {
		t.Error("Farewell should have a direct response")
	}
	for _, in := range []Intent{BusinessHours, Pricing, AppointmentBooking, AppointmentCancel, General} {
		if _, ok := DirectResponse(in); ok {
			t.Errorf("%s should not have a direct response", in)
		}
	}
}

package email

import "github.com/zelenivrt/storefront-backend/internal/models"

// Brand is the sender name shown in every mail.
const Brand = "Kmetija Zeleni vrt"

type copyText struct {
	Hello     string
	HelloAnon string

	ConfirmSubject  string
	ConfirmIntro    string
	ConfirmButton   string
	ConfirmFallback string
	ConfirmIgnore   string

	WelcomeSubject  string
	WelcomeIntro    string
	DiscountIntro   string
	DiscountHint    string
	WelcomeOutro    string
	UnsubscribeLead string
	Unsubscribe     string

	Regards string
}

var catalog = map[models.Language]copyText{
	models.LangSlovenian: {
		Hello:     "Pozdravljeni",
		HelloAnon: "Pozdravljeni",

		ConfirmSubject:  "Potrdite prijavo na e-novice",
		ConfirmIntro:    "Hvala za prijavo na e-novice naše kmetije. Za dokončanje prijave kliknite spodnjo povezavo.",
		ConfirmButton:   "Potrdi prijavo",
		ConfirmFallback: "Če gumb ne deluje, kopirajte to povezavo v brskalnik:",
		ConfirmIgnore:   "Če se niste prijavili vi, lahko to sporočilo prezrete.",

		WelcomeSubject:  "Dobrodošli! Tukaj je vaša koda za popust",
		WelcomeIntro:    "Vaša prijava je potrjena. Veseli nas, da ste z nami!",
		DiscountIntro:   "Kot zahvalo vam podarjamo kodo za popust pri prvem nakupu:",
		DiscountHint:    "Kodo vnesite v košarici ob zaključku nakupa.",
		WelcomeOutro:    "Kmalu se oglasimo s sezonskimi novostmi, recepti in ponudbami.",
		UnsubscribeLead: "Če ne želite več prejemati naših e-novic, se lahko kadar koli odjavite:",
		Unsubscribe:     "Odjava od e-novic",

		Regards: "Lep pozdrav,",
	},
	models.LangEnglish: {
		Hello:     "Hi",
		HelloAnon: "Hello",

		ConfirmSubject:  "Please confirm your newsletter subscription",
		ConfirmIntro:    "Thank you for signing up to our farm newsletter. Please click the link below to complete your subscription.",
		ConfirmButton:   "Confirm subscription",
		ConfirmFallback: "If the button does not work, copy this link into your browser:",
		ConfirmIgnore:   "If you did not sign up, you can safely ignore this email.",

		WelcomeSubject:  "Welcome! Here is your discount code",
		WelcomeIntro:    "Your subscription is confirmed. We are glad to have you with us!",
		DiscountIntro:   "As a thank you, here is a discount code for your first order:",
		DiscountHint:    "Enter the code in your cart at checkout.",
		WelcomeOutro:    "We will be in touch soon with seasonal news, recipes and offers.",
		UnsubscribeLead: "If you no longer wish to receive our emails, you can unsubscribe at any time:",
		Unsubscribe:     "Unsubscribe",

		Regards: "Warm regards,",
	},
	models.LangGerman: {
		Hello:     "Hallo",
		HelloAnon: "Hallo",

		ConfirmSubject:  "Bitte bestätigen Sie Ihr Newsletter-Abonnement",
		ConfirmIntro:    "Vielen Dank für Ihre Anmeldung zum Newsletter unseres Hofes. Bitte klicken Sie auf den folgenden Link, um Ihr Abonnement abzuschließen.",
		ConfirmButton:   "Abonnement bestätigen",
		ConfirmFallback: "Falls die Schaltfläche nicht funktioniert, kopieren Sie diesen Link in Ihren Browser:",
		ConfirmIgnore:   "Wenn Sie sich nicht angemeldet haben, können Sie diese E-Mail ignorieren.",

		WelcomeSubject:  "Willkommen! Hier ist Ihr Rabattcode",
		WelcomeIntro:    "Ihr Abonnement ist bestätigt. Schön, dass Sie dabei sind!",
		DiscountIntro:   "Als Dankeschön erhalten Sie einen Rabattcode für Ihre erste Bestellung:",
		DiscountHint:    "Geben Sie den Code beim Bezahlen im Warenkorb ein.",
		WelcomeOutro:    "Wir melden uns bald mit saisonalen Neuigkeiten, Rezepten und Angeboten.",
		UnsubscribeLead: "Wenn Sie keine E-Mails mehr erhalten möchten, können Sie sich jederzeit abmelden:",
		Unsubscribe:     "Vom Newsletter abmelden",

		Regards: "Herzliche Grüße,",
	},
	models.LangCroatian: {
		Hello:     "Bok",
		HelloAnon: "Pozdrav",

		ConfirmSubject:  "Molimo potvrdite prijavu na newsletter",
		ConfirmIntro:    "Hvala što ste se prijavili na newsletter našeg imanja. Kliknite poveznicu ispod kako biste dovršili prijavu.",
		ConfirmButton:   "Potvrdi prijavu",
		ConfirmFallback: "Ako gumb ne radi, kopirajte ovu poveznicu u preglednik:",
		ConfirmIgnore:   "Ako se niste prijavili, slobodno zanemarite ovu poruku.",

		WelcomeSubject:  "Dobrodošli! Evo vašeg koda za popust",
		WelcomeIntro:    "Vaša prijava je potvrđena. Drago nam je što ste s nama!",
		DiscountIntro:   "Kao zahvalu, poklanjamo vam kod za popust pri prvoj kupnji:",
		DiscountHint:    "Unesite kod u košarici prilikom plaćanja.",
		WelcomeOutro:    "Uskoro vam se javljamo sa sezonskim novostima, receptima i ponudama.",
		UnsubscribeLead: "Ako više ne želite primati naše poruke, možete se odjaviti u bilo kojem trenutku:",
		Unsubscribe:     "Odjava s newslettera",

		Regards: "Srdačan pozdrav,",
	},
}

// copyFor returns the strings for lang, falling back to English.
func copyFor(lang models.Language) copyText {
	if c, ok := catalog[lang]; ok {
		return c
	}
	return catalog[models.LangEnglish]
}

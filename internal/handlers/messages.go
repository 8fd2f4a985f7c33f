package handlers

import (
	"net/http"
	"strings"

	"github.com/zelenivrt/storefront-backend/internal/models"
)

type messageKey int

const (
	msgSubscribed messageKey = iota
	msgSubscribedSimulated
	msgAlreadySubscribed
	msgInvalidEmail
	msgInvalidToken
	msgSubscriptionError
	msgConfirmed
	msgAlreadyConfirmed
	msgUnsubscribed
	msgAlreadyUnsubscribed
	msgPreferencesUpdated
	msgPreferenceError
	msgBadRequest
	msgIdempotencyKeyRequired
	msgIdempotencyKeyReused
	msgCodeValid
	msgCodeApplied
	msgInvalidCode
	msgExpiredCode
	msgUsageExceeded
	msgBelowMinimum
	msgInternalError
)

var messages = map[models.Language]map[messageKey]string{
	models.LangSlovenian: {
		msgSubscribed:             "Hvala! Preverite e-pošto in potrdite prijavo na e-novice.",
		msgSubscribedSimulated:    "Prijava je shranjena. Pošiljanje e-pošte je v tem okolju simulirano.",
		msgAlreadySubscribed:      "Ta e-poštni naslov je že prijavljen na e-novice.",
		msgInvalidEmail:           "Vnesite veljaven e-poštni naslov.",
		msgInvalidToken:           "Povezava ni veljavna ali je potekla.",
		msgSubscriptionError:      "Prijave trenutno ni bilo mogoče obdelati. Poskusite znova kasneje.",
		msgConfirmed:              "Prijava je potrjena. Koda za popust je na poti v vaš e-poštni predal.",
		msgAlreadyConfirmed:       "Vaša prijava je že potrjena.",
		msgUnsubscribed:           "Uspešno ste se odjavili od e-novic.",
		msgAlreadyUnsubscribed:    "Od e-novic ste že odjavljeni.",
		msgPreferencesUpdated:     "Vaše nastavitve so shranjene.",
		msgPreferenceError:        "Nastavitev ni bilo mogoče shraniti.",
		msgBadRequest:             "Neveljavna zahteva.",
		msgIdempotencyKeyRequired: "Manjka glava Idempotency-Key.",
		msgIdempotencyKeyReused:   "Ključ Idempotency-Key je bil že uporabljen za drugo kodo.",
		msgCodeValid:              "Koda za popust je veljavna.",
		msgCodeApplied:            "Koda za popust je uporabljena.",
		msgInvalidCode:            "Koda za popust ne obstaja.",
		msgExpiredCode:            "Koda za popust ni več veljavna.",
		msgUsageExceeded:          "Koda za popust je bila že porabljena.",
		msgBelowMinimum:           "Znesek naročila je prenizek za to kodo.",
		msgInternalError:          "Prišlo je do napake. Poskusite znova.",
	},
	models.LangEnglish: {
		msgSubscribed:             "Thank you! Check your inbox to confirm your subscription.",
		msgSubscribedSimulated:    "Subscription saved. Email sending is simulated in this environment.",
		msgAlreadySubscribed:      "This email address is already subscribed.",
		msgInvalidEmail:           "Please enter a valid email address.",
		msgInvalidToken:           "This link is invalid or has expired.",
		msgSubscriptionError:      "We could not process your subscription. Please try again later.",
		msgConfirmed:              "Subscription confirmed. Your discount code is on its way.",
		msgAlreadyConfirmed:       "Your subscription is already confirmed.",
		msgUnsubscribed:           "You have been unsubscribed.",
		msgAlreadyUnsubscribed:    "You are already unsubscribed.",
		msgPreferencesUpdated:     "Your preferences have been saved.",
		msgPreferenceError:        "We could not save your preferences.",
		msgBadRequest:             "Invalid request.",
		msgIdempotencyKeyRequired: "Idempotency-Key header is required.",
		msgIdempotencyKeyReused:   "This Idempotency-Key was already used for another code.",
		msgCodeValid:              "Discount code is valid.",
		msgCodeApplied:            "Discount code applied.",
		msgInvalidCode:            "This discount code does not exist.",
		msgExpiredCode:            "This discount code has expired.",
		msgUsageExceeded:          "This discount code has been used up.",
		msgBelowMinimum:           "Your order total is below the minimum for this code.",
		msgInternalError:          "Something went wrong. Please try again.",
	},
	models.LangGerman: {
		msgSubscribed:             "Danke! Bitte bestätigen Sie Ihre Anmeldung über den Link in Ihrem Postfach.",
		msgSubscribedSimulated:    "Anmeldung gespeichert. Der E-Mail-Versand wird in dieser Umgebung simuliert.",
		msgAlreadySubscribed:      "Diese E-Mail-Adresse ist bereits angemeldet.",
		msgInvalidEmail:           "Bitte geben Sie eine gültige E-Mail-Adresse ein.",
		msgInvalidToken:           "Dieser Link ist ungültig oder abgelaufen.",
		msgSubscriptionError:      "Ihre Anmeldung konnte nicht verarbeitet werden. Bitte versuchen Sie es später erneut.",
		msgConfirmed:              "Anmeldung bestätigt. Ihr Rabattcode ist unterwegs.",
		msgAlreadyConfirmed:       "Ihre Anmeldung ist bereits bestätigt.",
		msgUnsubscribed:           "Sie wurden vom Newsletter abgemeldet.",
		msgAlreadyUnsubscribed:    "Sie sind bereits abgemeldet.",
		msgPreferencesUpdated:     "Ihre Einstellungen wurden gespeichert.",
		msgPreferenceError:        "Ihre Einstellungen konnten nicht gespeichert werden.",
		msgBadRequest:             "Ungültige Anfrage.",
		msgIdempotencyKeyRequired: "Der Header Idempotency-Key fehlt.",
		msgIdempotencyKeyReused:   "Dieser Idempotency-Key wurde bereits für einen anderen Code verwendet.",
		msgCodeValid:              "Der Rabattcode ist gültig.",
		msgCodeApplied:            "Der Rabattcode wurde angewendet.",
		msgInvalidCode:            "Dieser Rabattcode existiert nicht.",
		msgExpiredCode:            "Dieser Rabattcode ist abgelaufen.",
		msgUsageExceeded:          "Dieser Rabattcode ist aufgebraucht.",
		msgBelowMinimum:           "Der Bestellwert liegt unter dem Mindestbetrag für diesen Code.",
		msgInternalError:          "Etwas ist schiefgelaufen. Bitte versuchen Sie es erneut.",
	},
	models.LangCroatian: {
		msgSubscribed:             "Hvala! Provjerite e-poštu i potvrdite prijavu na newsletter.",
		msgSubscribedSimulated:    "Prijava je spremljena. Slanje e-pošte je u ovom okruženju simulirano.",
		msgAlreadySubscribed:      "Ova adresa e-pošte već je prijavljena.",
		msgInvalidEmail:           "Unesite valjanu adresu e-pošte.",
		msgInvalidToken:           "Poveznica nije valjana ili je istekla.",
		msgSubscriptionError:      "Prijavu trenutno nije moguće obraditi. Pokušajte ponovno kasnije.",
		msgConfirmed:              "Prijava je potvrđena. Kod za popust stiže vam e-poštom.",
		msgAlreadyConfirmed:       "Vaša prijava je već potvrđena.",
		msgUnsubscribed:           "Uspješno ste se odjavili.",
		msgAlreadyUnsubscribed:    "Već ste odjavljeni.",
		msgPreferencesUpdated:     "Vaše postavke su spremljene.",
		msgPreferenceError:        "Postavke nije bilo moguće spremiti.",
		msgBadRequest:             "Neispravan zahtjev.",
		msgIdempotencyKeyRequired: "Nedostaje zaglavlje Idempotency-Key.",
		msgIdempotencyKeyReused:   "Ovaj Idempotency-Key već je korišten za drugi kod.",
		msgCodeValid:              "Kod za popust je valjan.",
		msgCodeApplied:            "Kod za popust je primijenjen.",
		msgInvalidCode:            "Ovaj kod za popust ne postoji.",
		msgExpiredCode:            "Ovaj kod za popust je istekao.",
		msgUsageExceeded:          "Ovaj kod za popust je iskorišten.",
		msgBelowMinimum:           "Iznos narudžbe je ispod minimuma za ovaj kod.",
		msgInternalError:          "Došlo je do pogreške. Pokušajte ponovno.",
	},
}

func message(lang models.Language, key messageKey) string {
	if m, ok := messages[lang]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return messages[models.LangEnglish][key]
}

// requestLanguage prefers an explicit lang, then ?lang=, then the first
// Accept-Language tag.
func requestLanguage(r *http.Request, explicit string) models.Language {
	if explicit != "" {
		return models.ParseLanguage(explicit)
	}
	if q := r.URL.Query().Get("lang"); q != "" {
		return models.ParseLanguage(q)
	}
	if al := r.Header.Get("Accept-Language"); al != "" {
		first := strings.SplitN(al, ",", 2)[0]
		first = strings.SplitN(first, ";", 2)[0]
		return models.ParseLanguage(first)
	}
	return models.LangEnglish
}

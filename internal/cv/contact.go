package cv

import "regexp"

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\+?\d[\d -]{7,}\d`)
)

// ExtractContact returns the first email and phone number in text.
func ExtractContact(text string) *Contact {
	contact := &Contact{}
	if email := emailPattern.FindString(text); email != "" {
		contact.Email = &email
	}
	if phone := phonePattern.FindString(text); phone != "" {
		contact.Phone = &phone
	}
	return contact
}

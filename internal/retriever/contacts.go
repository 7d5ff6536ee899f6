package retriever

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/campus-kb/internal/kb"
)

var (
	emailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
	phonePattern = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]\d{4}\b`)
	// Campus room codes ("JSOM 2.801", "ECSS 4.910A") or labelled rooms.
	locationPattern = regexp.MustCompile(
		`\b[A-Z]{2,5}\s?\d{1,2}\.\d{3}[A-Z]?\b|\b(?:Room|Suite|Building|Bldg\.?)\s+[A-Za-z0-9][\w.-]*`,
	)
)

// ExtractContacts scans blocks in order for contact details. Every email
// yields an entry paired with the first phone and location in the same
// block; a block with a phone but no email yields a phone-only entry.
// Entries repeat at most once per email and phone pair.
func ExtractContacts(blocks []string) []kb.ContactInfo {
	out := []kb.ContactInfo{}
	seen := make(map[[2]string]struct{})
	add := func(c kb.ContactInfo) {
		key := [2]string{strings.ToLower(c.Email), phoneKey(c.Phone)}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}

	for _, text := range blocks {
		phone := strings.TrimSpace(phonePattern.FindString(text))
		location := strings.TrimSpace(locationPattern.FindString(text))
		emails := emailPattern.FindAllString(text, -1)
		if len(emails) == 0 {
			if phone != "" {
				add(kb.ContactInfo{Phone: phone, Location: location})
			}
			continue
		}
		for _, email := range emails {
			add(kb.ContactInfo{
				Email:    strings.TrimRight(email, "."),
				Phone:    phone,
				Location: location,
			})
		}
	}
	return out
}

// phoneKey reduces a phone number to its ten NANP digits.
func phoneKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 11 && d[0] == '1' {
		return d[1:]
	}
	return d
}

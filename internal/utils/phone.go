package utils

import "strings"

// OnlyDigits remove tudo que não é dígito
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneFromJid returns the digits of a WhatsApp JID's user part
// ("5511999999999@s.whatsapp.net" or "5511999999999:3@s.whatsapp.net").
func PhoneFromJid(jid string) string {
	if i := strings.IndexAny(jid, "@:"); i >= 0 {
		jid = jid[:i]
	}
	return OnlyDigits(jid)
}

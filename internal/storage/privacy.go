package storage

import "strings"

// privacyKeywords are lowercase substrings that mark content as sensitive.
// The list is bilingual because the robot converses in Spanish and English.
// Matching is deliberately coarse; an innocent sentence mentioning "pin" is
// dropped rather than risking a credential in long-term storage.
var privacyKeywords = []string{
	// credentials
	"contraseña", "password", "clave", "pin",
	// payment
	"tarjeta", "crédito", "débito", "credit card", "debit card",
	"cuenta bancaria", "bank account",
	// identity
	"dni", "pasaporte", "passport",
	"número de seguridad", "seguridad social", "social security",
	// location
	"dirección", "domicilio", "address",
	// health
	"medicamento", "diagnóstico", "enfermedad", "tratamiento",
	"medication", "diagnosis",
}

// ContainsSensitive reports whether content mentions any privacy keyword.
// Matching is case-insensitive substring search.
func ContainsSensitive(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range privacyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

package schema

import (
	"strings"
	"unicode/utf8"
)

const (
	ChapterUnknown  = "Unknown"
	ChapterUnmapped = "Unmapped Chapter"
)

var chapterByLetter = map[string]string{
	"A": "Infectious & Parasitic Diseases",
	"B": "Infectious & Parasitic Diseases",
	"C": "Neoplasms",
	"D": "Blood Disorders / Neoplasms",
	"E": "Endocrine & Metabolic",
	"F": "Mental & Behavioural Disorders",
	"G": "Nervous System",
	"H": "Eye / Ear Disorders",
	"I": "Cardiovascular (Heart & Vessels)",
	"J": "Respiratory System",
	"K": "Digestive System",
	"L": "Skin & Subcutaneous Tissue",
	"M": "Musculoskeletal System",
	"N": "Genitourinary System",
	"O": "Pregnancy, Childbirth & Puerperium",
	"P": "Perinatal Conditions",
	"Q": "Congenital Malformations",
	"R": "Symptoms, Signs & Abnormal Findings",
	"S": "Injury, Poisoning & Certain Other Consequences",
	"T": "Injury, Poisoning & Certain Other Consequences",
	"V": "External Causes of Morbidity",
	"W": "External Causes of Morbidity",
	"X": "External Causes of Morbidity",
	"Y": "External Causes of Morbidity",
	"Z": "Factors Influencing Health Status",
}

// ChapterFor maps the first letter of a code to its chapter name.
func ChapterFor(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ChapterUnknown
	}
	r, _ := utf8.DecodeRuneInString(code)
	if name, ok := chapterByLetter[strings.ToUpper(string(r))]; ok {
		return name
	}
	return ChapterUnmapped
}

// CategoryFor returns the first three characters of a code.
func CategoryFor(code string) string {
	runes := []rune(code)
	if len(runes) <= 3 {
		return code
	}
	return string(runes[:3])
}

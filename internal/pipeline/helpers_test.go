package pipeline

import (
	"bytes"
	"testing"

	"github.com/jhillyerd/enmime"

	"icdlookup/internal"
)

// buildEmail renders a message with a text body and an optional attachment.
func buildEmail(t *testing.T, subject, text, attachmentName string, attachment []byte) []byte {
	t.Helper()
	b := enmime.Builder().
		From("Front Desk", "desk@clinic.example.com").
		To("Coding", "coding@example.com").
		Subject(subject).
		Header("Message-ID", "<fixture-1@clinic.example.com>").
		Text([]byte(text))
	if attachmentName != "" {
		b = b.AddAttachment(attachment, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", attachmentName)
	}
	part, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	if err := part.Encode(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testTable() internal.CanonicalTable {
	return internal.CanonicalTable{Records: []internal.CanonicalRecord{
		{Code: "E119", ShortDescription: "Type 2 diabetes mellitus without complications", LongDescription: "Type 2 diabetes mellitus without complications", Category: "E11", Chapter: "Endocrine & Metabolic"},
		{Code: "E11", ShortDescription: "Type 2 diabetes mellitus", LongDescription: "Type 2 diabetes mellitus", Category: "E11", Chapter: "Endocrine & Metabolic"},
		{Code: "I10", ShortDescription: "Essential (primary) hypertension", LongDescription: "Essential (primary) hypertension", Category: "I10", Chapter: "Cardiovascular (Heart & Vessels)"},
		{Code: "J45909", ShortDescription: "Unspecified asthma, uncomplicated", LongDescription: "Unspecified asthma, uncomplicated", Category: "J45", Chapter: "Respiratory System"},
	}}
}

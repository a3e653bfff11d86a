package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcceptsSchemaVersion(t *testing.T) {
	assert.True(t, AcceptsSchemaVersion("1.0"))
	assert.True(t, AcceptsSchemaVersion("1.7"))
	assert.False(t, AcceptsSchemaVersion("2.0"))
	assert.False(t, AcceptsSchemaVersion(""))
}

func TestRawMailValidate(t *testing.T) {
	valid := RawMail{
		SchemaVersion:     "1.0",
		ID:                "evt-1",
		OriginalMessageID: "M-001",
		Sender:            "billing@acme.com",
	}
	assert.NoError(t, valid.Validate())

	missingOriginal := valid
	missingOriginal.OriginalMessageID = ""
	assert.Error(t, missingOriginal.Validate())

	badVersion := valid
	badVersion.SchemaVersion = "2.0"
	assert.Error(t, badVersion.Validate())
}

func TestRawMailHasAttachment(t *testing.T) {
	assert.False(t, RawMail{BlobURL: NoAttachmentBlob}.HasAttachment())
	assert.False(t, RawMail{BlobURL: ""}.HasAttachment())
	assert.True(t, RawMail{BlobURL: "2026/07/30/evt-1.pdf"}.HasAttachment())
}

func TestFromRawMailCarriesOverFields(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	m := RawMail{
		ID:                "evt-1",
		OriginalMessageID: "M-001",
		Sender:            "billing@acme.com",
		Subject:           "Invoice #123",
		BlobURL:           "2026/07/30/evt-1.pdf",
		ReceivedAt:        now,
		InvoiceAmount:     1234.00,
		Currency:          "USD",
	}

	inv := FromRawMail(m)
	assert.Equal(t, CurrentSchemaVersion, inv.SchemaVersion)
	assert.Equal(t, m.ID, inv.ID)
	assert.Equal(t, m.OriginalMessageID, inv.OriginalMessageID)
	assert.Equal(t, m.InvoiceAmount, inv.InvoiceAmount)
	assert.Equal(t, m.Currency, inv.Currency)
}

func TestEnrichedInvoiceValidate(t *testing.T) {
	valid := EnrichedInvoice{
		SchemaVersion:     "1.0",
		OriginalMessageID: "M-001",
		RecipientEmail:    "ap@acme.com",
	}
	assert.NoError(t, valid.Validate())

	noRecipient := valid
	noRecipient.RecipientEmail = ""
	assert.Error(t, noRecipient.Validate())
}

func TestSubscriptionNeedsRenewal(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	soon := Subscription{ExpirationUTC: now.Add(10 * time.Hour)}
	assert.True(t, soon.NeedsRenewal(now, 48*time.Hour))

	plenty := Subscription{ExpirationUTC: now.Add(60 * time.Hour)}
	assert.False(t, plenty.NeedsRenewal(now, 48*time.Hour))
}

func TestMonthPartition(t *testing.T) {
	assert.Equal(t, "202607", MonthPartition(time.Date(2026, 7, 30, 1, 2, 3, 0, time.UTC)))
}

func TestChangeNotificationValidate(t *testing.T) {
	valid := ChangeNotification{SchemaVersion: "1.0", SubscriptionID: "sub-1", Resource: "me/mailFolders/inbox/messages"}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.SubscriptionID = ""
	assert.Error(t, missing.Validate())
}

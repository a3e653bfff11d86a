package graphmail

import (
	"encoding/base64"
	"time"
)

// messageResource mirrors the provider's wire shape for a message; only the
// fields the pipeline consumes are modeled.
type messageResource struct {
	ID               string                `json:"id"`
	From             addressWrapper        `json:"from"`
	Subject          string                `json:"subject"`
	IsRead           bool                  `json:"isRead"`
	HasAttachments   bool                  `json:"hasAttachments"`
	ReceivedDateTime time.Time             `json:"receivedDateTime"`
	Attachments      []attachmentResource  `json:"attachments,omitempty"`
}

type addressWrapper struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func (m messageResource) toMailItem() MailItem {
	item := MailItem{
		ID:            m.ID,
		Sender:        m.From.EmailAddress.Address,
		Subject:       m.Subject,
		IsRead:        m.IsRead,
		HasAttachment: m.HasAttachments,
		ReceivedAt:    m.ReceivedDateTime,
	}
	for _, a := range m.Attachments {
		if a.isInvoiceCandidate() {
			item.AttachmentID = a.ID
			item.AttachmentName = a.Name
			break
		}
	}
	return item
}

// messageListResource mirrors the provider's paged message-collection
// response shape: a page of items plus an opaque "next page" link.
type messageListResource struct {
	Value    []messageResource `json:"value"`
	NextLink string            `json:"@odata.nextLink,omitempty"`
}

type attachmentResource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

func (a attachmentResource) isInvoiceCandidate() bool {
	return a.ContentType == "application/pdf"
}

func (a attachmentResource) decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.ContentBytes)
}

// sendMailRequest mirrors the provider's sendMail action body.
type sendMailRequest struct {
	Message outboundMessage `json:"message"`
}

type outboundMessage struct {
	Subject      string                       `json:"subject"`
	Body         outboundBody                 `json:"body"`
	ToRecipients []recipientWrapper           `json:"toRecipients"`
	Attachments  []outboundAttachmentResource `json:"attachments,omitempty"`
}

type outboundBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipientWrapper struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func (recipientWrapper) with(address string) recipientWrapper {
	var r recipientWrapper
	r.EmailAddress.Address = address
	return r
}

type outboundAttachmentResource struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

func encodeAttachment(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

type subscriptionRequest struct {
	ChangeType         string `json:"changeType"`
	NotificationURL    string `json:"notificationUrl"`
	Resource           string `json:"resource"`
	ClientState        string `json:"clientState"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

type subscriptionResource struct {
	ID                 string `json:"id"`
	Resource           string `json:"resource"`
	ClientState        string `json:"clientState"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

func (s subscriptionResource) toSubscription() Subscription {
	expires, _ := time.Parse(time.RFC3339, s.ExpirationDateTime)
	return Subscription{
		ID:          s.ID,
		Resource:    s.Resource,
		ClientState: s.ClientState,
		ExpiresAt:   expires,
	}
}

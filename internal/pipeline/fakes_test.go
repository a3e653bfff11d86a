package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/graphmail"
	"github.com/afoxnyc3/invoice-agent/internal/vendormatch"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// --- fake SQS client, the same in-memory shape internal/ingest and
// internal/queue's own tests use.

type fakeSQSMessage struct {
	body         string
	id           string
	receiveCount int
	deleted      bool
}

type fakeSQSClient struct {
	mu     sync.Mutex
	queues map[string][]*fakeSQSMessage
	nextID int
}

func newFakeSQSClient() *fakeSQSClient {
	return &fakeSQSClient{queues: make(map[string][]*fakeSQSMessage)}
}

func (f *fakeSQSClient) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	url := aws.ToString(in.QueueUrl)
	f.queues[url] = append(f.queues[url], &fakeSQSMessage{body: aws.ToString(in.MessageBody), id: id})
	return &sqs.SendMessageOutput{MessageId: aws.String(id)}, nil
}

func (f *fakeSQSClient) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := aws.ToString(in.QueueUrl)
	var out []types.Message
	for _, m := range f.queues[url] {
		if m.deleted {
			continue
		}
		m.receiveCount++
		out = append(out, types.Message{
			Body:          aws.String(m.body),
			MessageId:     aws.String(m.id),
			ReceiptHandle: aws.String(m.id),
			Attributes: map[string]string{
				string(types.QueueAttributeNameApproximateReceiveCount): fmt.Sprintf("%d", m.receiveCount),
			},
		})
		if len(out) >= int(in.MaxNumberOfMessages) {
			break
		}
	}
	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (f *fakeSQSClient) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := aws.ToString(in.ReceiptHandle)
	for _, msgs := range f.queues {
		for _, m := range msgs {
			if m.id == handle {
				m.deleted = true
			}
		}
	}
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQSClient) pending(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.queues[url] {
		if !m.deleted {
			n++
		}
	}
	return n
}

func (f *fakeSQSClient) bodies(url string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.queues[url] {
		if !m.deleted {
			out = append(out, m.body)
		}
	}
	return out
}

// --- fake blob store

type fakeBlobStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{data: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = data
	return "s3://fake-bucket/" + key, nil
}

func (f *fakeBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[key]
	if !ok {
		return nil, fmt.Errorf("fakeBlobStore: no such key %s", key)
	}
	return data, nil
}

// --- fake transaction log

type fakeTransactionLog struct {
	mu           sync.Mutex
	processed    map[string]bool
	rows         []domain.InvoiceTransaction
	duplicateID  string
	duplicateHit bool
}

func newFakeTransactionLog() *fakeTransactionLog {
	return &fakeTransactionLog{processed: make(map[string]bool)}
}

func (f *fakeTransactionLog) Append(_ context.Context, row domain.InvoiceTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	if row.Status == domain.StatusProcessed || row.Status == domain.StatusUnknown {
		f.processed[row.OriginalMessageID] = true
	}
	return nil
}

func (f *fakeTransactionLog) WasProcessed(_ context.Context, originalMessageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[originalMessageID], nil
}

func (f *fakeTransactionLog) FindCandidateDuplicate(_ context.Context, _, _ string, _ time.Time) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duplicateID, f.duplicateHit, nil
}

func (f *fakeTransactionLog) StreamForMonth(_ context.Context, _ string) (<-chan domain.InvoiceTransaction, <-chan error) {
	rowsCh := make(chan domain.InvoiceTransaction)
	errCh := make(chan error, 1)
	close(rowsCh)
	close(errCh)
	return rowsCh, errCh
}

// --- deterministic id generator

type fakeIDGen struct {
	mu  sync.Mutex
	n   int
	pfx string
}

func newFakeIDGen(prefix string) *fakeIDGen {
	return &fakeIDGen{pfx: prefix}
}

func (g *fakeIDGen) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.pfx, g.n)
}

// --- fake vendor matcher

type fakeMatcher struct {
	result domain.VendorMatch
	err    error
}

func (m fakeMatcher) Match(_ context.Context, _ vendormatch.Candidate) (domain.VendorMatch, error) {
	return m.result, m.err
}

// --- fake mail sender

type fakeMailSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

type sentMail struct {
	to, subject, body string
	attachments       []graphmail.OutboundAttachment
}

func (f *fakeMailSender) SendMail(_ context.Context, to, subject, body string, attachments []graphmail.OutboundAttachment) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body, attachments: attachments})
	return nil
}

// --- fake chat sender

type fakeChatSender struct {
	mu   sync.Mutex
	sent []domain.NotificationMessage
	err  error
}

func (f *fakeChatSender) Send(_ context.Context, msg domain.NotificationMessage) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

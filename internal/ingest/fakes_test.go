package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/graphmail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// --- fake SQS client, the same in-memory shape internal/queue's own tests
// use, so *queue.Queue can be exercised end-to-end from this package too.

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

// --- fake mail provider

type fakeMailProvider struct {
	mu          sync.Mutex
	messages    map[string]graphmail.MailItem
	unread      []graphmail.MailItem
	attachments map[string][]byte
	markedRead  map[string]bool
	downloadErr error
}

func newFakeMailProvider() *fakeMailProvider {
	return &fakeMailProvider{
		messages:    make(map[string]graphmail.MailItem),
		attachments: make(map[string][]byte),
		markedRead:  make(map[string]bool),
	}
}

func (f *fakeMailProvider) GetMessage(_ context.Context, messageID string) (graphmail.MailItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.messages[messageID]
	if !ok {
		return graphmail.MailItem{}, fmt.Errorf("fakeMailProvider: no such message %s", messageID)
	}
	return item, nil
}

func (f *fakeMailProvider) ListUnreadMessages(_ context.Context, pageSize int) ([]graphmail.MailItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pageSize < len(f.unread) {
		return append([]graphmail.MailItem{}, f.unread[:pageSize]...), nil
	}
	return append([]graphmail.MailItem{}, f.unread...), nil
}

func (f *fakeMailProvider) DownloadAttachment(_ context.Context, messageID, attachmentID string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, "", f.downloadErr
	}
	return f.attachments[messageID+"/"+attachmentID], "application/pdf", nil
}

func (f *fakeMailProvider) MarkAsRead(_ context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead[messageID] = true
	return nil
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
	mu        sync.Mutex
	processed map[string]bool
	rows      []domain.InvoiceTransaction
}

func newFakeTransactionLog() *fakeTransactionLog {
	return &fakeTransactionLog{processed: make(map[string]bool)}
}

func (f *fakeTransactionLog) Append(_ context.Context, row domain.InvoiceTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	if row.Status == domain.StatusProcessed {
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
	return "", false, nil
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

package pipeline

import "strings"

// blobKeyFromURL recovers the store key from a "s3://bucket/key..." URL, the
// shape storage.S3BlobStore.Put returns and the only shape RawMail and
// EnrichedInvoice ever carry in BlobURL.
func blobKeyFromURL(url string) (key string, ok bool) {
	const prefix = "s3://"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(url, prefix)
	idx := strings.Index(rest, "/")
	if idx < 0 || idx == len(rest)-1 {
		return "", false
	}
	return rest[idx+1:], true
}

// Package llmvendor implements the C1 step-3 LLM-assisted vendor match
// given free-text pulled from a PDF and a short-list of active
// vendor names, ask the model to pick one. Built on the same
// bedrockruntime.InvokeModel call and Anthropic-messages-on-Bedrock
// request/response shape a general-purpose Bedrock chat agent would use,
// trimmed down to a single-purpose classifier.
package llmvendor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const defaultModelID = "anthropic.claude-3-haiku-20240307-v1:0"

// invokeAPI is the narrow bedrockruntime surface this package calls,
// matching internal/storage's dynamoAPI convention for testability.
type invokeAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Client resolves a vendor-name candidate from free PDF text against a
// short-list of active vendor names.
type Client struct {
	client  invokeAPI
	modelID string
}

func New(client invokeAPI, modelID string) *Client {
	if modelID == "" {
		modelID = defaultModelID
	}
	return &Client{client: client, modelID: modelID}
}

// matchResult is the structured response the system prompt instructs the
// model to emit, so parsing does not depend on free-text scraping.
type matchResult struct {
	VendorName string `json:"vendor_name"`
	Certainty  int    `json:"certainty"`
	Found      bool   `json:"found"`
}

// MatchVendor implements vendormatch.LLMMatcher.
func (c *Client) MatchVendor(ctx context.Context, candidateText string, shortlist []string) (string, int, bool, error) {
	if len(shortlist) == 0 {
		return "", 0, false, nil
	}

	req := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        300,
		System:           systemPrompt(shortlist),
		Messages: []bedrockMessage{
			{Role: "user", Content: []bedrockContentBlock{{Type: "text", Text: candidateText}}},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", 0, false, fmt.Errorf("llmvendor: marshal request: %w", err)
	}

	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", 0, false, fmt.Errorf("llmvendor: invoke model: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", 0, false, fmt.Errorf("llmvendor: parse response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", 0, false, nil
	}

	var result matchResult
	if err := json.Unmarshal([]byte(resp.Content[0].Text), &result); err != nil {
		return "", 0, false, fmt.Errorf("llmvendor: parse model output: %w", err)
	}
	return result.VendorName, result.Certainty, result.Found, nil
}

func systemPrompt(shortlist []string) string {
	return "You resolve invoice vendor names. Given free text extracted from an invoice PDF, " +
		"pick the single best-matching vendor from this list: [" + strings.Join(shortlist, ", ") + "]. " +
		"Respond with ONLY a JSON object: {\"vendor_name\": \"<exact name from the list or empty>\", " +
		"\"certainty\": <0-100>, \"found\": <true|false>}. Set found=false if no vendor in the list plausibly matches."
}

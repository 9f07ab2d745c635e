// Package ai is the contract between the pipeline and the model provider.
// The pipeline treats extraction and summarization as opaque capabilities;
// everything here can be swapped for deterministic fakes in tests.
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/models"
)

// Extractor turns raw document bytes into a JSON payload of candidate
// clinical facts. The payload is opaque here; the consolidator owns its
// schema.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (json.RawMessage, error)
	Model() string
}

// Summarizer turns a patient's daily clinical snapshot into dashboard JSON.
type Summarizer interface {
	Summarize(ctx context.Context, snapshot models.PatientSnapshot) (json.RawMessage, error)
	Model() string
}

const extractionSystemPrompt = `You are a clinical document interpreter. Extract structured clinical facts
from the document. Respond with a single JSON object using exactly these keys:
"vitals" (array of {measuredAt, systolic, diastolic, heartRate, temperatureC}),
"labs" (array of {collectedAt, testName, valueText, unit, referenceRange, flag}),
"medications" (array of {medicationName, dose, frequency, active}),
"conditions" (array of {conditionName, status}),
"hpi" ({historyOfPresentIllness}).
Omit values you cannot find. Do not invent data.`

const summarySystemPrompt = `You are a careful clinical assistant writing a daily overview for a patient.
Given the patient's data, respond with a single JSON object using exactly these
keys: "overview" (string), "insights" (array of strings), "recommendations"
(array of strings), "redFlags" (array of strings), "suggestedFollowUps"
(array of strings). Be specific, cautious, and avoid diagnosis.`

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	httpc   *http.Client
}

func NewClient(apiKey, baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		timeout: timeout,
		httpc:   &http.Client{},
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Extract(ctx context.Context, data []byte, contentType string) (json.RawMessage, error) {
	var user string
	if strings.HasPrefix(contentType, "text/") {
		user = fmt.Sprintf("Document (%s):\n\n%s", contentType, string(data))
	} else {
		user = fmt.Sprintf("Document (%s), base64-encoded:\n\n%s", contentType, base64.StdEncoding.EncodeToString(data))
	}

	content, err := c.chat(ctx, extractionSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	return asJSONObject(content)
}

func (c *Client) Summarize(ctx context.Context, snapshot models.PatientSnapshot) (json.RawMessage, error) {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}

	user := fmt.Sprintf("Patient snapshot for %s:\n\n%s", snapshot.Date, string(snapshotJSON))
	content, err := c.chat(ctx, summarySystemPrompt, user)
	if err != nil {
		return nil, err
	}
	return asJSONObject(content)
}

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature":     0.2,
		"response_format": map[string]string{"type": "json_object"},
	}

	payloadBytes, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", faults.ErrUpstreamTimeout
		}
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return "", faults.ErrUpstreamTimeout
		}
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", faults.ErrUpstreamInvalid, resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: %v", faults.ErrUpstreamInvalid, err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", faults.ErrUpstreamInvalid)
	}

	return result.Choices[0].Message.Content, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// asJSONObject validates the model output is one JSON object, stripping the
// markdown fences some models wrap around JSON.
func asJSONObject(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var probe map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrUpstreamInvalid, err)
	}
	return json.RawMessage(trimmed), nil
}

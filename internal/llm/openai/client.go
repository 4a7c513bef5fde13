package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
)

// Extract implements llm.Provider using chat/completions with the document attached.
func (c *Client) Extract(ctx context.Context, doc llm.Document, categories []string) llm.Result {
	return c.ExtractPages(ctx, doc, []llm.Document{doc}, categories)
}

// ExtractPages sends several attachments (e.g. rendered PDF pages) in one request.
// doc names the original file for prompts and logs.
func (c *Client) ExtractPages(ctx context.Context, doc llm.Document, pages []llm.Document, categories []string) llm.Result {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
		ctx = common.WithRequestID(ctx, rid)
	}
	start := time.Now()

	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return llm.Failed(c.name, llm.Errorf(llm.KindAuthentication, "no API key configured"))
	}
	for _, p := range pages {
		if !p.IsImage() && !c.cfg.AllowPDF {
			return llm.Failed(c.name, llm.Errorf(llm.KindUnsupportedFormat, "%s accepts images only", c.name))
		}
	}

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", c.name,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"document", doc.Name,
		"format", doc.Format,
		"bytes", len(doc.Data),
		"attachments", len(pages),
		"categories", len(categories),
	)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := c.buildRequest(doc, pages, categories)
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		var ee *llm.ExtractionError
		if !errors.As(err, &ee) {
			ee = llm.ClassifyTransport(err)
		}
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "provider", c.name, "kind", ee.Kind, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Failed(c.name, ee)
	}

	content, ee := ParseChatResponse(raw)
	if ee != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "provider", c.name, "error", ee, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Failed(c.name, ee)
	}

	res := llm.ParseModelAnswer(c.name, content, categories, c.logger)
	if !res.Success() {
		return res
	}
	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"provider", c.name,
		"vendor", res.Fields.Vendor,
		"date", res.Fields.Date,
		"amount", res.Fields.Amount,
		"category", res.Fields.Category,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

func (c *Client) buildRequest(doc llm.Document, pages []llm.Document, categories []string) map[string]any {
	schema := llm.BuildTransactionJSONSchema(categories)

	userParts := []map[string]any{
		{"type": "text", "text": llm.BuildUserPrompt(doc)},
	}
	for _, p := range pages {
		userParts = append(userParts, documentPart(p))
	}

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt(categories)},
			{"role": "system", "content": llm.SchemaInstruction(schema)},
			{"role": "user", "content": userParts},
		},
	}
	if c.cfg.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}
	if c.cfg.MaxTokens > 0 {
		body["max_tokens"] = c.cfg.MaxTokens
	}
	return body
}

func documentPart(doc llm.Document) map[string]any {
	if doc.IsImage() {
		return map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": doc.DataURL(), "detail": "high"},
		}
	}
	return map[string]any{
		"type": "file",
		"file": map[string]any{"filename": doc.Name, "file_data": doc.DataURL()},
	}
}

// ParseChatResponse pulls the assistant text out of a chat/completions body.
func ParseChatResponse(raw []byte) (string, *llm.ExtractionError) {
	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", &llm.ExtractionError{Kind: llm.KindMalformedResponse, Message: "decode chat response", Raw: raw, Cause: err}
	}
	if len(cc.Choices) == 0 {
		return "", &llm.ExtractionError{Kind: llm.KindMalformedResponse, Message: "no choices in response", Raw: raw}
	}
	msg := cc.Choices[0].Message
	if msg.Refusal != "" {
		return "", &llm.ExtractionError{Kind: llm.KindMalformedResponse, Message: "model refused: " + msg.Refusal, Raw: raw}
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return "", &llm.ExtractionError{Kind: llm.KindMalformedResponse, Message: "empty message content (finish_reason=" + cc.Choices[0].FinishReason + ")", Raw: raw}
	}
	return content, nil
}

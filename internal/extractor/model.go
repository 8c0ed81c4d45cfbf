package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// DefaultModelName is the Gemini model used for statement parsing.
const DefaultModelName = "gemini-2.5-flash"

const statementPrompt = "You are a bank statement parser.\n\n" +
	"Task:\n" +
	"- Parse ALL transactions in the attached statement.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a JSON array of objects.\n\n" +
	"Each object must have these fields:\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\"\n" +
	"- \"description\": string, the narration exactly as printed\n" +
	"- \"amount\": string, the unsigned amount as printed without currency symbols\n" +
	"- \"direction\": \"debit\" for money out, \"credit\" for money in\n" +
	"- \"balance\": string or null\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

// StatementModel sends a document to a language model and returns its raw
// text answer.
type StatementModel interface {
	ParseStatement(ctx context.Context, data []byte, mimeType string) (string, error)
}

// GeminiModel is the StatementModel backed by google.golang.org/genai.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel creates the genai client. Credentials come from the usual
// GOOGLE_API_KEY or Vertex environment.
func NewGeminiModel(ctx context.Context, model string) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiModel{client: client, model: model}, nil
}

func (m *GeminiModel) ParseStatement(ctx context.Context, data []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: statementPrompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			},
		},
	}
	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// ModelStrategy asks a language model for the rows. It is the last resort
// and is off unless configured.
type ModelStrategy struct {
	Policy DatePolicy
	Model  StatementModel
}

func (s *ModelStrategy) Name() string { return StrategyModel }

type modelRow struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
	Direction   string          `json:"direction"`
	Balance     json.RawMessage `json:"balance"`
}

func (s *ModelStrategy) Extract(ctx context.Context, doc *Document) Outcome {
	if s.Model == nil {
		return Skip("no statement model configured")
	}
	var mime string
	switch doc.Kind() {
	case KindPDF:
		mime = "application/pdf"
	case KindImage:
		mime = "image/" + strings.TrimPrefix(imageExt(doc), ".")
	default:
		return Skip("%s is not sent to the model", doc.Kind())
	}

	raw, err := s.Model.ParseStatement(ctx, doc.Data, mime)
	if err != nil {
		return Failed(err)
	}
	var parsed []modelRow
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &parsed); err != nil {
		return Failed(fmt.Errorf("unmarshal model JSON: %w", err))
	}

	var rows []Row
	var skipped []SkippedRow
	for i, m := range parsed {
		line := i + 1
		date, ts, err := s.Policy.ParseDate(m.Date)
		if err != nil {
			skipped = append(skipped, SkippedRow{Line: line, Raw: m.Description, Reason: "unparseable date: " + err.Error()})
			continue
		}
		v, marker, err := ParseAmount(jsonScalar(m.Amount))
		if err != nil || v.IsZero() {
			skipped = append(skipped, SkippedRow{Line: line, Raw: m.Description, Reason: "no amount"})
			continue
		}
		amount, dir := directionFromSigned(v)
		if marker != "" {
			dir = marker
		}
		if d, ok := domain.ParseDirection(m.Direction); ok {
			dir = d
		}
		row := Row{
			Date:        date,
			Timestamp:   ts,
			Description: strings.TrimSpace(m.Description),
			Amount:      amount,
			Direction:   dir,
			Line:        line,
			Raw:         m.Description,
			Strategy:    StrategyModel,
		}
		if b, _, err := ParseAmount(jsonScalar(m.Balance)); err == nil {
			row.Balance = &b
		}
		rows = append(rows, row)
	}
	return OK(rows, skipped)
}

// jsonScalar renders a JSON string or number as plain text. null is empty.
func jsonScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

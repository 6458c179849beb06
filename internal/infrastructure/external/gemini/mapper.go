package gemini

import (
	"encoding/json"
	"strings"

	"google.golang.org/genai"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - domain values to SDK requests and back
// ══════════════════════════════════════════════════════════════════════════════

// Roles used in Content.Role.
const (
	RoleUser  = genai.RoleUser
	RoleModel = genai.RoleModel
)

// MIMETypeJSON asks the model for a JSON document.
const MIMETypeJSON = "application/json"

// Request is one generateContent call: the conversation and its config.
type Request struct {
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// ObjectSchema builds an object schema whose properties are all required
// strings, described by descriptions. Property order follows names.
func ObjectSchema(names []string, descriptions map[string]string) *genai.Schema {
	props := make(map[string]*genai.Schema, len(names))
	for _, n := range names {
		props[n] = &genai.Schema{Type: genai.TypeString, Description: descriptions[n]}
	}
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       props,
		Required:         append([]string(nil), names...),
		PropertyOrdering: append([]string(nil), names...),
	}
}

// JSONRequest builds a single-turn request constrained to schema.
func JSONRequest(prompt string, schema *genai.Schema) *Request {
	return &Request{
		Contents: []*genai.Content{genai.NewContentFromText(prompt, RoleUser)},
		Config: &genai.GenerateContentConfig{
			ResponseMIMEType: MIMETypeJSON,
			ResponseSchema:   schema,
		},
	}
}

// ChatRequest builds a multi-turn request under a system instruction.
func ChatRequest(system string, contents []*genai.Content) *Request {
	req := &Request{Contents: contents, Config: &genai.GenerateContentConfig{}}
	if strings.TrimSpace(system) != "" {
		req.Config.SystemInstruction = genai.NewContentFromText(system, RoleUser)
	}
	return req
}

// DecodeJSON decodes model text into v. Models occasionally wrap JSON in a
// markdown fence or add prose around it even when a JSON MIME type was
// requested, so the outermost {...} is extracted first.
func DecodeJSON(text string, v any) error {
	raw := strings.TrimSpace(text)
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	if raw == "" {
		return shared.WrapError("gemini", "Parse", shared.ErrGeminiInvalidResponse, "empty text", nil)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return shared.WrapError("gemini", "Parse", shared.ErrGeminiInvalidResponse, "response is not valid JSON", err)
	}
	return nil
}

// History converts (role, text) turns into request contents, skipping empty
// turns.
func History[T any](turns []T, role func(T) string, text func(T) string) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		txt := text(t)
		if strings.TrimSpace(txt) == "" {
			continue
		}
		out = append(out, genai.NewContentFromText(txt, genai.Role(role(t))))
	}
	return out
}

// Package ai drafts new levels with a hosted language model.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"phonics-master/internal/domain"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-1.5-flash"
	imageBaseURL   = "https://image.pollinations.ai/prompt/"
)

// ErrNoAPIKey is returned when generation is attempted without a key.
var ErrNoAPIKey = errors.New("missing AI API key")

type rule struct {
	name, description, examples string
}

var phonicsRules = []rule{
	{"Short A", `The letter "a" makes the /æ/ sound`, "cat, hat, bat"},
	{"Short E", `The letter "e" makes the /ɛ/ sound`, "bed, red, pen"},
	{"Short I", `The letter "i" makes the /ɪ/ sound`, "pig, big, sit"},
	{"Short O", `The letter "o" makes the /ɒ/ sound`, "dog, hot, box"},
	{"Short U", `The letter "u" makes the /ʌ/ sound`, "cup, bus, sun"},
	{"Silent E", `The silent "e" makes the vowel say its name`, "cake, bike, home"},
	{"Double Letters", "Two same letters make one sound", "ball, bell, hill"},
	{"Digraph CH", `"ch" makes the /tʃ/ sound`, "chip, chat, cheese"},
	{"Digraph SH", `"sh" makes the /ʃ/ sound`, "ship, shop, fish"},
	{"Digraph TH", `"th" makes the /θ/ or /ð/ sound`, "this, that, think"},
}

var ruleColors = []string{"#f59e0b", "#10b981", "#3b82f6", "#8b5cf6", "#ec4899", "#ef4444"}

// Generator asks a Gemini-style generateContent endpoint for quiz levels.
type Generator struct {
	APIKey  string
	BaseURL string
	Model   string
	// Pause is waited between requests in GenerateMany.
	Pause time.Duration

	http *http.Client
	log  *zap.Logger
}

func NewGenerator(apiKey, baseURL, model string, log *zap.Logger) *Generator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Pause:   500 * time.Millisecond,
		http:    &http.Client{Timeout: 20 * time.Second},
		log:     log,
	}
}

type draft struct {
	TargetWord  string   `json:"targetWord"`
	Sentence    string   `json:"sentence"`
	Distractors []string `json:"distractors"`
}

// Generate drafts one level with the given id.
func (g *Generator) Generate(ctx context.Context, id int) (domain.Question, error) {
	if g.APIKey == "" {
		return domain.Question{}, ErrNoAPIKey
	}
	r := phonicsRules[rand.Intn(len(phonicsRules))]
	text, err := g.complete(ctx, prompt(r))
	if err != nil {
		return domain.Question{}, err
	}

	var d draft
	if err := json.Unmarshal([]byte(stripFence(text)), &d); err != nil {
		return domain.Question{}, fmt.Errorf("decode generated level: %w", err)
	}
	word := strings.ToLower(strings.TrimSpace(d.TargetWord))
	distractors := make([]string, 0, len(d.Distractors))
	for _, c := range d.Distractors {
		distractors = append(distractors, strings.ToLower(strings.TrimSpace(c)))
	}
	q := domain.Question{
		ID:          id,
		Sentence:    d.Sentence,
		TargetWord:  word,
		ImageHint:   imageURL(word),
		Distractors: distractors,
		PhonicsRules: []domain.PhonicsRule{{
			Name:        r.name,
			Description: r.description,
			Indices:     vowelIndices(word),
			Color:       ruleColors[rand.Intn(len(ruleColors))],
		}},
	}
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

// GenerateMany drafts up to count levels numbered from firstID. Drafts that
// fail are logged and skipped.
func (g *Generator) GenerateMany(ctx context.Context, count, firstID int) ([]domain.Question, error) {
	if g.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	out := make([]domain.Question, 0, count)
	for i := 0; i < count; i++ {
		if i > 0 && g.Pause > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(g.Pause):
			}
		}
		q, err := g.Generate(ctx, firstID+len(out))
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			g.log.Warn("level generation failed", zap.Int("attempt", i+1), zap.Error(err))
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (g *Generator) complete(ctx context.Context, text string) (string, error) {
	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": text}}},
		},
		"generationConfig": map[string]any{
			"temperature":     0.7,
			"maxOutputTokens": 200,
		},
	}
	b, _ := json.Marshal(payload)
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.BaseURL, g.Model, url.QueryEscape(g.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("generate status %d", resp.StatusCode)
	}
	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no candidates")
	}
	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}

func prompt(r rule) string {
	return fmt.Sprintf(`Generate a phonics quiz for children learning English.
Use the phonics rule: %q - %s
Examples: %s

Return ONLY a valid JSON object (no markdown, no code blocks) with this exact structure:
{
  "targetWord": "a simple 3-6 letter word following the phonics rule",
  "sentence": "A simple sentence using the word, with %s as placeholder for the word",
  "distractors": ["2-3 random letters not in the target word"]
}

Example response:
{"targetWord": "cat", "sentence": "The %s is sleeping.", "distractors": ["x", "z"]}`,
		r.name, r.description, r.examples, domain.BlankMarker, domain.BlankMarker)
}

// stripFence removes a markdown code fence around a JSON reply.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	return strings.TrimSpace(strings.TrimSuffix(text, "```"))
}

func vowelIndices(word string) []int {
	var idx []int
	for i, c := range []rune(word) {
		if strings.ContainsRune("aeiou", c) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return []int{0}
	}
	return idx
}

func imageURL(word string) string {
	return imageBaseURL + url.PathEscape("cute cartoon "+word+" for children education, simple colorful illustration, white background") +
		"?width=512&height=512&nologo=true"
}

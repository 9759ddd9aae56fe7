package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"honest-report-service/serper"
)

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

const promptSystem = `Tu es **Rapport Honnête**, un analyste qui transforme des discussions Reddit en un rapport d'honnêteté structuré sur un produit.

########################################
# 1. MISSION
########################################
À partir d'un mot-clé produit et d'extraits de discussions Reddit, tu DOIS :

Étape 1 : vérifier que les discussions parlent bien du produit demandé. Si les extraits sont hors sujet, trop vagues ou ne permettent aucune conclusion, renvoie uniquement {"error": "<explication courte en français>"} et rien d'autre.
Étape 2 : dégager le consensus de la communauté : ce que les utilisateurs réels pensent du produit, sans langue de bois.
Étape 3 : remplir chaque champ du schéma JSON (voir § 3).
Étape 4 : produire **un seul objet JSON valide** et rien d'autre.

########################################
# 2. RÈGLES DE SORTIE
########################################
* JSON uniquement — aucun markdown autour.
* Chaque élément de "pros" et "cons" doit citer textuellement un extrait source, entre guillemets, jamais le même extrait deux fois.
* "score" est un entier de 0 à 100 : la confiance pondérée par le sentiment des discussions (0 = unanimement négatif, 100 = unanimement positif).
* "category" doit être exactement l'une des 4 valeurs : "Électronique", "Cosmétiques", "Alimentation", "Services".
* "products" liste 1 à 3 noms de produits précis mentionnés dans les discussions, utilisables pour une recherche marchande.
* "amazonSearchQuery" est la requête produit la plus précise possible.
* Écris tout en français, ton direct et honnête.

########################################
# 3. SCHÉMA DE SORTIE
{
  "title":            "<titre accrocheur du rapport>",
  "consensus":        "<2-3 phrases résumant l'avis général>",
  "pros":             ["<point fort + citation>", "..."],
  "cons":             ["<point faible + citation>", "..."],
  "target_audience":  { "yes": "<pour qui c'est fait>", "no": "<pour qui ça ne l'est pas>" },
  "final_verdict":    "<verdict en une phrase percutante>",
  "score":            <0-100>,
  "category":         "<Électronique | Cosmétiques | Alimentation | Services>",
  "products":         ["<nom produit 1>", "..."],
  "amazonSearchQuery":"<requête marchande>"
}
########################################`

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client represents an OpenAI chat-completions client.
type Client struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewClient creates a new OpenAI client.
func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:   apiKey,
		model:    model,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 90 * time.Second},
	}
}

// NewClientWithEndpoint is NewClient with an overridable endpoint for tests.
func NewClientWithEndpoint(apiKey, model, endpoint string) *Client {
	c := NewClient(apiKey, model)
	c.endpoint = endpoint
	return c
}

// SourceName identifies this provider in logs and stored reports.
func (c *Client) SourceName() string {
	return "ChatGPT"
}

// Summarize sends the keyword and discussion snippets to the model and
// returns the raw JSON document. The response format is forced to a JSON
// object; parsing and validation happen in the parser package.
func (c *Client) Summarize(ctx context.Context, keyword string, discussions []serper.Result) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: promptSystem},
			{Role: "user", Content: buildUserPrompt(keyword, discussions)},
		},
		Temperature:    0.7,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

func buildUserPrompt(keyword string, discussions []serper.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mot-clé produit : %s\n\nDiscussions Reddit :\n\n", keyword)
	for i, d := range discussions {
		fmt.Fprintf(&sb, "Discussion %d :\nTitre : %s\nLien : %s\nExtrait : %s\n\n", i+1, d.Title, d.Link, d.Snippet)
	}
	sb.WriteString("Génère le rapport d'honnêteté au format JSON défini dans les instructions système.")
	return sb.String()
}

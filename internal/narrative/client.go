package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/meridianpe/meridian/backend/internal/metrics"
	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/logger"
)

// ErrDisabled is returned by Generate when narrative generation is turned
// off. Callers treat it as "no narrative", not as a failure.
var ErrDisabled = errors.New("narrative generation disabled")

const systemInstruction = `You are a portfolio analyst writing for a private-equity
operations team. Given computed portfolio risk metrics, respond with a single JSON
object with keys "summary" (2-3 sentences), "strengths" (array of strings),
"concerns" (array of strings) and "suggestion" (one string). Be specific about
the numbers. Respond with JSON only, no markdown.`

// Client generates plain-language portfolio commentary from computed metrics
// using the Gemini API.
type Client struct {
	genai   *genai.Client
	model   string
	enabled bool
	logger  *logger.Logger
}

// New creates a narrative client. When narrative generation is disabled in
// config, the returned client is a no-op whose Generate returns ErrDisabled.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	c := &Client{
		model:   cfg.Narrative.Model,
		enabled: cfg.Narrative.Enabled,
		logger:  log.WithField("module", "narrative"),
	}
	if !c.enabled {
		return c, nil
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Narrative.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	c.genai = gc
	return c, nil
}

// Enabled reports whether narrative generation is active.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Generate produces a structured narrative for the computed metrics. Quota
// and rate-limit failures come back as an {"error": ...} payload rather than
// an error so the metrics response still succeeds.
func (c *Client) Generate(ctx context.Context, m *metrics.PortfolioMetrics, holdings []metrics.Holding) (map[string]interface{}, error) {
	if !c.enabled {
		return nil, ErrDisabled
	}

	prompt := BuildPrompt(m, holdings)

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
	})
	if err != nil {
		if isQuotaError(err) {
			c.logger.WithError(err).Warn("Narrative generation rate-limited")
			return map[string]interface{}{"error": "narrative temporarily unavailable"}, nil
		}
		return nil, fmt.Errorf("narrative generate: %w", err)
	}

	return ParseResponse(resp.Text()), nil
}

// BuildPrompt renders the metrics and composition into a deterministic prompt.
// Holdings are sorted by ticker so the same portfolio always yields the same
// prompt text.
func BuildPrompt(m *metrics.PortfolioMetrics, holdings []metrics.Holding) string {
	sorted := make([]metrics.Holding, len(holdings))
	copy(sorted, holdings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ticker < sorted[j].Ticker })

	var b strings.Builder
	b.WriteString("Portfolio composition:\n")
	for _, h := range sorted {
		fmt.Fprintf(&b, "- %s: %.2f%%\n", h.Ticker, h.Weight*100)
	}

	b.WriteString("\nComputed metrics:\n")
	fmt.Fprintf(&b, "- Total return: %.4f%%\n", m.TotalReturn)
	fmt.Fprintf(&b, "- CAGR: %.4f%%\n", m.CAGR)
	fmt.Fprintf(&b, "- Annualized volatility: %.4f%%\n", m.Volatility)
	fmt.Fprintf(&b, "- Max drawdown: %.4f%%\n", m.MaxDrawdown)
	fmt.Fprintf(&b, "- Sharpe ratio: %.4f\n", m.SharpeRatio)
	fmt.Fprintf(&b, "- Sortino ratio: %.4f\n", m.SortinoRatio)
	fmt.Fprintf(&b, "- VaR 95: %.4f%%, CVaR 95: %.4f%%\n", m.VaR95, m.CVaR95)
	fmt.Fprintf(&b, "- Beta: %.4f, Alpha: %.4f%%\n", m.Beta, m.Alpha)
	fmt.Fprintf(&b, "- Sleep score: %.0f/100, turbulence: %.0f/100\n", m.SleepScore, m.TurbulenceRating)

	return b.String()
}

// ParseResponse decodes the model output as JSON, tolerating markdown code
// fences. Unparseable output falls back to a bare summary so a chatty model
// never fails the request.
func ParseResponse(text string) map[string]interface{} {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil || out == nil {
		return map[string]interface{}{"summary": strings.TrimSpace(text)}
	}
	return out
}

func isQuotaError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit")
}

package outreach

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexusflow/backend/internal/cache"
	"github.com/nexusflow/backend/internal/llm"
)

// Knowledge supplies retrieval context for prompt construction. Satisfied
// by *rag.Engine.
type Knowledge interface {
	ContextSummary(ctx context.Context, query string) string
}

// Customer describes the outbound recipient.
type Customer struct {
	Name      string `json:"name"`
	Position  string `json:"position"`
	Company   string `json:"company"`
	PainPoint string `json:"painPoint"`
}

// OutboundRequest drives cold-email draft generation.
type OutboundRequest struct {
	Customer       Customer `json:"customer"`
	Focus          string   `json:"focus"`
	ProductContext string   `json:"productContext"`
	Language       string   `json:"language"`
}

type OutboundResult struct {
	DraftID string `json:"draftId"`
	Draft   string `json:"draft"`
}

// InboundEmail is a received message handed to analysis.
type InboundEmail struct {
	FromName string `json:"fromName"`
	Subject  string `json:"subject"`
	Content  string `json:"content"`
}

type InboundRequest struct {
	Email    InboundEmail `json:"email"`
	Language string       `json:"language"`
}

// Analysis is the classified intent plus a suggested reply draft.
type Analysis struct {
	Intent     string   `json:"intent"` // Sales, Technical, Support, Spam
	Draft      string   `json:"draft"`
	Confidence int      `json:"confidence"` // 0-100
	Sources    []string `json:"sources"`
}

type SummarizeRequest struct {
	Email    InboundEmail `json:"email"`
	Language string       `json:"language"`
}

const summaryCacheTTL = 10 * time.Minute

// Service builds bilingual prompts over knowledge-base context and calls
// the reasoning model to draft, analyze, and summarize emails.
type Service struct {
	gateway   llm.Gateway
	knowledge Knowledge
	prompts   *PromptConfig
	cache     *cache.Cache
	model     string
}

func NewService(gateway llm.Gateway, knowledge Knowledge, prompts *PromptConfig, c *cache.Cache, model string) *Service {
	if prompts == nil {
		prompts = &PromptConfig{CampaignFocus: map[string]map[string]string{}}
	}
	return &Service{
		gateway:   gateway,
		knowledge: knowledge,
		prompts:   prompts,
		cache:     c,
		model:     model,
	}
}

func normalizeLanguage(lang string) string {
	if lang == "en" {
		return "en"
	}
	return "zh"
}

// contextSummary fetches retrieval context for a query, consulting the
// cache first so repeated drafting for the same campaign does not re-run
// embedding search.
func (s *Service) contextSummary(ctx context.Context, query string) string {
	key := cache.SummaryKey(query)

	var cached string
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached
	}

	summary := s.knowledge.ContextSummary(ctx, query)
	if err := s.cache.Set(ctx, key, summary, summaryCacheTTL); err != nil {
		slog.Warn("cache summary failed", "error", err)
	}
	return summary
}

// GenerateOutbound drafts a personalized cold email for the customer using
// knowledge-base context and the campaign focus instructions.
func (s *Service) GenerateOutbound(ctx context.Context, req OutboundRequest) (OutboundResult, error) {
	lang := normalizeLanguage(req.Language)

	searchQuery := fmt.Sprintf("%s %s %s medical device cryoablation",
		req.Focus, req.Customer.Position, req.Customer.PainPoint)
	knowledgeContext := s.contextSummary(ctx, searchQuery)

	languageInstructions := "用中文写邮件。保持专业、简洁和个性化。"
	languageName := "Chinese"
	if lang == "en" {
		languageInstructions = "Write the email in English. Keep it professional, concise, and personalized."
		languageName = "English"
	}

	painPoint := req.Customer.PainPoint
	if painPoint == "" {
		painPoint = "General industry challenges"
	}

	prompt := fmt.Sprintf(`You are an expert medical device sales copywriter specializing in the AI Epic™ Co-Ablation System.

**Language Requirement:** %s

**Product Knowledge Base:**
%s

**Campaign Focus:** %s
%s

**Sender Context:**
%s

**Recipient:**
Name: %s
Role: %s
Company: %s
Specific Pain Point (if known): %s

**Email Structure:**
1. Personalized greeting addressing their role and institution
2. Brief context relevant to their specialty
3. Main content following the campaign focus instructions above
4. Clear call-to-action (schedule demo, request information, etc.)
5. Professional closing

**Important:**
- Return ONLY the email body text. Do not include subject lines or signature placeholders.
- Tone: Professional, knowledgeable, consultative (not pushy sales)
- Length: 150-250 words (concise but informative)
- Use the specified language (%s) throughout
- Make it highly relevant to their specific role and institution`,
		languageInstructions,
		knowledgeContext,
		req.Focus,
		s.prompts.FocusInstructions(req.Focus, lang),
		req.ProductContext,
		req.Customer.Name,
		req.Customer.Position,
		req.Customer.Company,
		painPoint,
		languageName,
	)

	resp, err := s.gateway.Chat(ctx, llm.ChatRequest{
		Model:       s.model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		return OutboundResult{}, fmt.Errorf("generate outbound draft: %w", err)
	}

	return OutboundResult{
		DraftID: uuid.NewString(),
		Draft:   resp.Content,
	}, nil
}

// AnalyzeInbound classifies a received email and drafts a reply grounded in
// knowledge-base context. It never fails outward: an LLM error produces a
// holding reply with confidence 0, a malformed LLM response is kept as the
// draft text with reduced confidence.
func (s *Service) AnalyzeInbound(ctx context.Context, req InboundRequest) Analysis {
	lang := normalizeLanguage(req.Language)
	knowledgeContext := s.contextSummary(ctx, req.Email.Content)

	var prompt string
	if lang == "en" {
		prompt = fmt.Sprintf(`You are an intelligent customer service assistant.

**Task:**
1. Analyze email intent (Sales/Technical/Support/Spam)
2. Draft a professional, polite reply based on knowledge base content

**Received Email:**
From: %s
Subject: %s
Content: %s

**Knowledge Base Context:**
%s

**Output Format:**
Return JSON format:
{
    "intent": "Sales" | "Technical" | "Support" | "Spam",
    "draft": "Email reply content in English...",
    "confidence": confidence score (0-100),
    "sources": ["Referenced knowledge base document names"]
}`, req.Email.FromName, req.Email.Subject, req.Email.Content, knowledgeContext)
	} else {
		prompt = fmt.Sprintf(`你是一个智能客服助手。

**任务:**
1. 分析邮件意图（Sales/Technical/Support/Spam）
2. 基于知识库内容草拟专业、礼貌的回复

**收到的邮件:**
发件人: %s
主题: %s
内容: %s

**知识库上下文:**
%s

**输出格式:**
返回 JSON 格式:
{
    "intent": "Sales" | "Technical" | "Support" | "Spam",
    "draft": "邮件回复正文（用中文）...",
    "confidence": 置信度分数 (0-100),
    "sources": ["引用的知识库文档名称"]
}`, req.Email.FromName, req.Email.Subject, req.Email.Content, knowledgeContext)
	}

	resp, err := s.gateway.Chat(ctx, llm.ChatRequest{
		Model:       s.model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		slog.Error("inbound analysis failed", "error", err)
		draft := "感谢您的来信。我们正在审核您的请求，会尽快回复您。"
		if lang == "en" {
			draft = "Thank you for your email. We are reviewing your request and will respond shortly."
		}
		return Analysis{Intent: "Support", Draft: draft, Confidence: 0, Sources: []string{}}
	}

	return parseAnalysis(resp.Content)
}

// parseAnalysis extracts the JSON object from the model output, tolerating
// markdown fences and surrounding prose. Unparseable output becomes the
// draft itself.
func parseAnalysis(raw string) Analysis {
	candidate := raw
	if start := strings.Index(candidate, "{"); start >= 0 {
		if end := strings.LastIndex(candidate, "}"); end > start {
			candidate = candidate[start : end+1]
		}
	}

	var result Analysis
	if err := json.Unmarshal([]byte(candidate), &result); err != nil || result.Draft == "" {
		slog.Warn("inbound analysis returned non-JSON output, using raw text")
		return Analysis{Intent: "Technical", Draft: raw, Confidence: 75, Sources: []string{}}
	}
	if result.Sources == nil {
		result.Sources = []string{}
	}
	return result
}

// Summarize condenses an email to a one-sentence summary. Failures fall
// back to the subject line so the inbox list always has something to show.
func (s *Service) Summarize(ctx context.Context, req SummarizeRequest) string {
	lang := normalizeLanguage(req.Language)

	var prompt string
	if lang == "en" {
		prompt = fmt.Sprintf(`Please summarize the core content of the following email in one sentence (no more than 50 words):

Subject: %s
Content: %s

Return only the summary text in English, nothing else.`, req.Email.Subject, req.Email.Content)
	} else {
		prompt = fmt.Sprintf(`请用一句话（不超过50字）总结以下邮件的核心内容：

主题: %s
内容: %s

只返回摘要文本，不要其他内容。`, req.Email.Subject, req.Email.Content)
	}

	resp, err := s.gateway.Chat(ctx, llm.ChatRequest{
		Model:       s.model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		slog.Error("summarize failed", "error", err)
		if req.Email.Subject != "" {
			return req.Email.Subject
		}
		if lang == "en" {
			return "Unable to generate summary"
		}
		return "无法生成摘要"
	}

	return strings.TrimSpace(resp.Content)
}

package outreach

import (
	"encoding/json"
	"fmt"
	"os"
)

// PromptConfig maps campaign focus names to per-language drafting
// instructions, loaded from config/campaignPrompts.json.
type PromptConfig struct {
	CampaignFocus map[string]map[string]string `json:"campaignFocus"`
}

// LoadPrompts reads the campaign prompt file. A missing or unreadable file
// yields an empty config so drafting falls back to the generic instructions.
func LoadPrompts(path string) (*PromptConfig, error) {
	cfg := &PromptConfig{CampaignFocus: map[string]map[string]string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read campaign prompts: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return &PromptConfig{CampaignFocus: map[string]map[string]string{}},
			fmt.Errorf("parse campaign prompts: %w", err)
	}
	if cfg.CampaignFocus == nil {
		cfg.CampaignFocus = map[string]map[string]string{}
	}
	return cfg, nil
}

const (
	defaultFocusEN = "Provide a comprehensive overview of all products in the knowledge base and their benefits for their medical specialty."
	defaultFocusZH = "为其医疗专科提供知识库中所有产品的全面概述和优势。"
)

// FocusInstructions resolves the drafting instructions for a campaign focus
// in the requested language, preferring the exact language, then English,
// then the built-in generic instructions.
func (p *PromptConfig) FocusInstructions(focus, lang string) string {
	if byLang, ok := p.CampaignFocus[focus]; ok {
		if text, ok := byLang[lang]; ok && text != "" {
			return text
		}
		if text, ok := byLang["en"]; ok && text != "" {
			return text
		}
	}
	if lang == "en" {
		return defaultFocusEN
	}
	return defaultFocusZH
}

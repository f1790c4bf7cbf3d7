package jsoncfg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptParams is the prompt template snapshot stored with every job and
// forwarded to the provider.
type PromptParams struct {
	Version     string `json:"version"`
	Prompt      string `json:"prompt"`
	Duration    int    `json:"duration"`
	Quality     string `json:"quality"`
	AspectRatio string `json:"aspect_ratio"`
	Watermark   string `json:"watermark,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

var allowedAspectRatios = map[string]struct{}{
	"1:1":  {},
	"4:3":  {},
	"3:4":  {},
	"16:9": {},
	"9:16": {},
}

var allowedQualities = map[string]struct{}{
	"720p":  {},
	"1080p": {},
}

const (
	// DefaultPromptVersion represents the schema version persisted for prompts.
	DefaultPromptVersion = "2025-01"
	// DefaultAspectRatio is used when the request omits the aspect ratio.
	DefaultAspectRatio = "16:9"
	// DefaultDuration is the clip length in seconds when omitted.
	DefaultDuration = 5
	// DefaultQuality is the output resolution when omitted.
	DefaultQuality = "720p"
	// MaxPromptLength bounds the prompt text forwarded to the provider.
	MaxPromptLength = 1800
	// DefaultLocale is applied when no locale preference is provided.
	DefaultLocale = "en"
)

// Normalize fills server defaults without overriding explicit values.
func (p *PromptParams) Normalize(preferredLocale string) {
	if p == nil {
		return
	}
	p.Prompt = strings.TrimSpace(p.Prompt)
	p.Quality = strings.ToLower(strings.TrimSpace(p.Quality))
	p.AspectRatio = strings.TrimSpace(p.AspectRatio)
	p.Watermark = strings.TrimSpace(p.Watermark)
	if p.Version == "" {
		p.Version = DefaultPromptVersion
	}
	if p.Duration == 0 {
		p.Duration = DefaultDuration
	}
	if p.Quality == "" {
		p.Quality = DefaultQuality
	}
	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspectRatio
	}
	if p.Locale == "" {
		if preferredLocale != "" {
			p.Locale = preferredLocale
		} else {
			p.Locale = DefaultLocale
		}
	}
}

// Validate ensures the params satisfy the provider contract.
func (p PromptParams) Validate() error {
	if p.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if len([]rune(p.Prompt)) > MaxPromptLength {
		return fmt.Errorf("prompt must be at most %d characters", MaxPromptLength)
	}
	if p.Duration != 5 && p.Duration != 10 {
		return fmt.Errorf("duration must be 5 or 10")
	}
	if _, ok := allowedQualities[p.Quality]; !ok {
		return fmt.Errorf("quality must be one of 720p, 1080p")
	}
	// 1080p clips are capped at 5 seconds by the provider.
	if p.Quality == "1080p" && p.Duration == 10 {
		return fmt.Errorf("1080p is only available for 5 second clips")
	}
	if _, ok := allowedAspectRatios[p.AspectRatio]; !ok {
		return fmt.Errorf("aspect_ratio must be one of 1:1, 4:3, 3:4, 16:9, 9:16")
	}
	return nil
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("json marshal: %w", err))
	}
	return b
}

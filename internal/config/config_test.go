package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.ModelName != "gpt-4o-mini" {
		t.Errorf("expected default model gpt-4o-mini, got %q", cfg.ModelName)
	}
	if cfg.QuestionsAllowed != 4 {
		t.Errorf("expected default question budget 4, got %d", cfg.QuestionsAllowed)
	}
	if cfg.MaxAgentRounds != 8 {
		t.Errorf("expected default round cap 8, got %d", cfg.MaxAgentRounds)
	}
	if cfg.SessionTTL != 60*time.Minute {
		t.Errorf("expected default session TTL 60m, got %s", cfg.SessionTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "9090")
	t.Setenv("QUESTIONS_ALLOWED", "2")
	t.Setenv("MAX_AGENT_ROUNDS", "3")
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("CONVERSATION_LOG_ENABLED", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.QuestionsAllowed != 2 {
		t.Errorf("expected question budget 2, got %d", cfg.QuestionsAllowed)
	}
	if cfg.MaxAgentRounds != 3 {
		t.Errorf("expected round cap 3, got %d", cfg.MaxAgentRounds)
	}
	if cfg.SessionTTL != 5*time.Minute {
		t.Errorf("expected session TTL 5m, got %s", cfg.SessionTTL)
	}
	if cfg.ConversationLog.Enabled {
		t.Error("expected conversation log to be disabled")
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is empty")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"zero budget", func(c *Config) { c.QuestionsAllowed = 0 }},
		{"negative budget", func(c *Config) { c.QuestionsAllowed = -1 }},
		{"zero round cap", func(c *Config) { c.MaxAgentRounds = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimit.RequestsPerWindow = 0 }},
		{"zero queue size", func(c *Config) { c.ConversationLog.QueueSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Port:             "8080",
				DBPath:           "./data/scout.db",
				OpenAIAPIKey:     "sk-test",
				ModelName:        "gpt-4o-mini",
				QuestionsAllowed: 4,
				MaxAgentRounds:   8,
				SessionTTL:       time.Hour,
				RateLimit: RateLimitConfig{
					RequestsPerWindow: 10,
					WindowDuration:    time.Minute,
				},
				ConversationLog: ConversationLogConfig{QueueSize: 100},
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:5173", true},
		{"https://scout.example.com", false},
	}

	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.frontendURL}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.frontendURL, got, tt.want)
		}
	}
}

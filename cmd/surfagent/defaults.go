package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("bot.name", "SurfaBabe")
	viper.SetDefault("bot.admin_number", "")
	viper.SetDefault("bot.response_mode", "silent")
	viper.SetDefault("bot.group_trigger_words", []string{"surfababe", "surfa babe"})
	viper.SetDefault("bot.cooldown_message", "You're sending messages a bit fast! Give me a minute to catch up.")
	viper.SetDefault("bot.max_concurrency", 4)

	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("logs_dir", "./logs")
	viper.SetDefault("knowledge_dir", "./knowledge")

	// Reasoning engine subprocess
	viper.SetDefault("engine.path", "claude")
	viper.SetDefault("engine.model_admin", "")
	viper.SetDefault("engine.model_customer", "")
	viper.SetDefault("engine.timeout", 120*time.Second)
	viper.SetDefault("engine.retry_delay", 2*time.Second)

	viper.SetDefault("batch.window", 2*time.Second)
	viper.SetDefault("knowledge.reload_interval", 60*time.Second)
	viper.SetDefault("context.window_size", 50)
	viper.SetDefault("ratelimit.per_minute", 20)
	viper.SetDefault("dispatch.max_chunk", 3900)
	viper.SetDefault("dispatch.chunk_delay", 500*time.Millisecond)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.max_file_bytes", int64(20*1024*1024))

	// Postgres CRM (optional; features degrade without it)
	viper.SetDefault("store.database_url", "")

	// Voice transcription (optional)
	viper.SetDefault("transcribe.api_key", "")

	// Control-plane HTTP API
	viper.SetDefault("http.listen", ":3002")
	viper.SetDefault("http.token", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}

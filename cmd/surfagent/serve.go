package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bluemele/SurfaBabe/agent"
	"github.com/bluemele/SurfaBabe/batch"
	"github.com/bluemele/SurfaBabe/bot"
	"github.com/bluemele/SurfaBabe/conversation"
	"github.com/bluemele/SurfaBabe/dispatch"
	"github.com/bluemele/SurfaBabe/guard"
	"github.com/bluemele/SurfaBabe/httpapi"
	"github.com/bluemele/SurfaBabe/internal/logutil"
	"github.com/bluemele/SurfaBabe/internal/statepaths"
	"github.com/bluemele/SurfaBabe/knowledge"
	"github.com/bluemele/SurfaBabe/memory"
	"github.com/bluemele/SurfaBabe/orders"
	"github.com/bluemele/SurfaBabe/scheduler"
	"github.com/bluemele/SurfaBabe/store"
	"github.com/bluemele/SurfaBabe/transcribe"
	"github.com/bluemele/SurfaBabe/transport"
	"github.com/bluemele/SurfaBabe/transport/telegram"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant against the Telegram API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			token := strings.TrimSpace(viper.GetString("telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set SURFAGENT_TELEGRAM_BOT_TOKEN)")
			}

			dataDir := statepaths.DataDir()
			logsDir := statepaths.LogsDir()
			botName := viper.GetString("bot.name")
			adminNumber := strings.TrimSpace(viper.GetString("bot.admin_number"))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			channel, err := telegram.New(telegram.Config{
				Token:        token,
				BaseURL:      viper.GetString("telegram.base_url"),
				PollTimeout:  viper.GetDuration("telegram.poll_timeout"),
				MaxFileBytes: viper.GetInt64("telegram.max_file_bytes"),
				DataDir:      dataDir,
			})
			if err != nil {
				return err
			}
			if err := channel.Connect(ctx); err != nil {
				return err
			}

			kb := knowledge.NewBase(statepaths.KnowledgeDir(), viper.GetDuration("knowledge.reload_interval"))

			var recorder orders.Recorder
			var crm bot.CRM
			healthCheck := func(ctx context.Context) error { return nil }
			dsn := strings.TrimSpace(viper.GetString("store.database_url"))
			if dsn != "" {
				st, err := store.Open(ctx, dsn)
				if err != nil {
					return fmt.Errorf("store: %w", err)
				}
				defer st.Close()
				if err := st.SeedProducts(ctx, kb.Products()); err != nil {
					slog.Warn("product_seed_failed", "error", err.Error())
				}
				recorder = st
				crm = st
				healthCheck = st.HealthCheck
			} else {
				slog.Info("store_disabled", "reason", "no database_url configured")
			}

			sessions := agent.NewSessionStore(dataDir)
			engine := agent.NewEngine(
				viper.GetString("engine.path"),
				viper.GetDuration("engine.timeout"),
				viper.GetDuration("engine.retry_delay"),
				sessions,
			)

			sched := scheduler.New(filepath.Join(dataDir, statepaths.SchedulesFilename), channel, adminNumber)
			if err := sched.Start(); err != nil {
				slog.Warn("scheduler_start_failed", "error", err.Error())
			}
			defer sched.Stop()

			var transcriber bot.Transcriber
			if tc := transcribe.NewClient(viper.GetString("transcribe.api_key")); tc.Enabled() {
				transcriber = tc
			}

			cfg := bot.Config{
				BotName:           botName,
				AdminIDs:          adminIDs(adminNumber),
				AdminChatID:       adminNumber,
				ResponseMode:      viper.GetString("bot.response_mode"),
				GroupTriggerWords: viper.GetStringSlice("bot.group_trigger_words"),
				CooldownMessage:   viper.GetString("bot.cooldown_message"),
				DataDir:           dataDir,
				LogsDir:           logsDir,
				ModelAdmin:        viper.GetString("engine.model_admin"),
				ModelCustomer:     viper.GetString("engine.model_customer"),
				MaxConcurrency:    viper.GetInt("bot.max_concurrency"),
			}
			b := bot.New(cfg, bot.Deps{
				Conversations: conversation.NewStore(dataDir, botName, viper.GetInt("context.window_size")),
				Orders:        orders.NewStore(dataDir, recorder),
				Batcher:       batch.New(viper.GetDuration("batch.window")),
				Engine:        engine,
				Sessions:      sessions,
				Dispatcher: dispatch.New(
					channel,
					viper.GetInt("dispatch.max_chunk"),
					viper.GetDuration("dispatch.chunk_delay"),
					[]string{dataDir, os.TempDir()},
				),
				Limiter:     guard.NewLimiter(viper.GetInt("ratelimit.per_minute")),
				Knowledge:   kb,
				Memory:      memory.NewManager(dataDir),
				Scheduler:   sched,
				Transcriber: transcriber,
				CRM:         crm,
				Sender:      channel,
			})

			api := httpapi.New(viper.GetString("http.listen"), httpapi.Deps{
				BotName:     botName,
				Token:       viper.GetString("http.token"),
				AdminChatID: adminNumber,
				Send:        channel.SendText,
				HealthCheck: healthCheck,
				StartedAt:   time.Now(),
			})
			go func() {
				if err := api.Start(); err != nil {
					slog.Error("http_api_failed", "error", err.Error())
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = api.Shutdown(shutdownCtx)
			}()

			slog.Info("assistant_started",
				"bot_name", botName,
				"bot_username", channel.BotUsername(),
				"mode", cfg.ResponseMode,
			)

			return channel.Poll(ctx, func(u transport.Unit) {
				go b.HandleUnit(ctx, u)
			})
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	_ = viper.BindPFlag("telegram.bot_token", cmd.Flags().Lookup("telegram-bot-token"))
	cmd.Flags().String("data-dir", "./data", "State directory for chats, orders, and sessions.")
	_ = viper.BindPFlag("data_dir", cmd.Flags().Lookup("data-dir"))
	cmd.Flags().String("mode", "", "Initial response mode (all or silent).")
	_ = viper.BindPFlag("bot.response_mode", cmd.Flags().Lookup("mode"))

	return cmd
}

func adminIDs(adminNumber string) []string {
	if adminNumber == "" {
		return nil
	}
	return []string{adminNumber}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	blog "github.com/beemacro/beemacro/cmd/beemacro/log"
	"github.com/beemacro/beemacro/internal/action"
	"github.com/beemacro/beemacro/internal/bot"
	"github.com/beemacro/beemacro/internal/config"
	"github.com/beemacro/beemacro/internal/event"
	"github.com/beemacro/beemacro/internal/game"
	"github.com/beemacro/beemacro/internal/movement"
	"github.com/beemacro/beemacro/internal/pather"
	"github.com/beemacro/beemacro/internal/remote/discord"
	ngrokremote "github.com/beemacro/beemacro/internal/remote/ngrok"
	"github.com/beemacro/beemacro/internal/remote/telegram"
	"github.com/beemacro/beemacro/internal/runstate"
	"github.com/beemacro/beemacro/internal/server"
	"github.com/beemacro/beemacro/internal/speed"
	"github.com/beemacro/beemacro/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const metricsNamespace = "beemacro"

// wrapWithRecover wraps a function with panic recovery logic
func wrapWithRecover(logger *slog.Logger, f func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(fmt.Sprintf("panic recovered: %v\nStacktrace: %s", r, debug.Stack()))
				blog.FlushLog()
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return f()
	}
}

// loadConfig reads the configuration and applies the command line overrides.
func loadConfig(flags *rootFlags) (*config.ProfileCfg, error) {
	config.Dir = flags.configDir
	if err := config.Load(); err != nil {
		return nil, err
	}
	if flags.profile != "" {
		config.Macro.ActiveProfile = flags.profile
	}
	if flags.dryRun {
		config.Macro.DryRun = true
	}
	if flags.addr != "" {
		config.Macro.HTTP.Addr = flags.addr
	}
	return config.ActiveProfile()
}

func runAgent(ctx context.Context, flags *rootFlags) error {
	profile, err := loadConfig(flags)
	if err != nil {
		utils.ShowDialog("Error loading configuration", err.Error())
		return fmt.Errorf("error loading configuration: %w", err)
	}

	logger, err := blog.NewLogger(config.Macro.Debug.Log, config.Macro.LogSaveDirectory, profile.Name)
	if err != nil {
		return fmt.Errorf("error starting logger: %w", err)
	}
	defer blog.FlushAndClose()

	logger.Info("Starting beemacro",
		slog.String("version", config.Version),
		slog.String("profile", profile.Name),
		slog.Bool("dryRun", config.Macro.DryRun),
		slog.String("strategy", profile.Movement.Strategy.String()),
		slog.Bool("hasteCompensation", profile.Movement.HasteCompensation),
	)

	a, err := buildAgent(profile, logger)
	if err != nil {
		logger.Error("Error building agent", slog.Any("error", err))
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(wrapWithRecover(logger, func() error {
		return a.listener.Listen(ctx)
	}))
	g.Go(wrapWithRecover(logger, func() error {
		return a.supervisor.Run(ctx)
	}))
	g.Go(wrapWithRecover(logger, func() error {
		return a.server.Listen(ctx, config.Macro.HTTP.Addr)
	}))

	if config.Macro.Discord.Enabled {
		discordBot, err := discord.NewBot(discord.Options{
			Token:              config.Macro.Discord.Token,
			ChannelID:          config.Macro.Discord.ChannelID,
			BotAdmins:          config.Macro.Discord.BotAdmins,
			UseWebhook:         config.Macro.Discord.UseWebhook,
			WebhookURL:         config.Macro.Discord.WebhookURL,
			EnableTaskMessages: config.Macro.Discord.EnableTaskMessages,
		}, a.manager, logger)
		if err != nil {
			logger.Error("Discord could not be initialized", slog.Any("error", err))
		} else {
			a.listener.Register(discordBot.Handle)
			g.Go(wrapWithRecover(logger, func() error {
				return discordBot.Start(ctx)
			}))
		}
	}

	if config.Macro.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(config.Macro.Telegram.Token, config.Macro.Telegram.ChatID, a.manager, config.Macro.Telegram.EnableTaskMessages, logger)
		if err != nil {
			logger.Error("Telegram could not be initialized", slog.Any("error", err))
		} else {
			a.listener.Register(telegramBot.Handle)
			g.Go(wrapWithRecover(logger, func() error {
				defer telegramBot.Close()
				return telegramBot.Start(ctx)
			}))
		}
	}

	if config.Macro.Ngrok.Enabled {
		if config.Macro.Ngrok.Authtoken == "" && os.Getenv("NGROK_AUTHTOKEN") == "" {
			logger.Warn("ngrok enabled but no authtoken set; skipping tunnel start")
		} else {
			opts := ngrokremote.Options{
				LocalAddr:     config.Macro.HTTP.Addr,
				Authtoken:     config.Macro.Ngrok.Authtoken,
				Region:        config.Macro.Ngrok.Region,
				Domain:        config.Macro.Ngrok.Domain,
				BasicAuthUser: config.Macro.Ngrok.BasicAuthUser,
				BasicAuthPass: config.Macro.Ngrok.BasicAuthPass,
				SendURL:       config.Macro.Ngrok.SendURL,
			}
			g.Go(wrapWithRecover(logger, func() error {
				// A tunnel failure leaves the local control surface usable.
				if err := ngrokremote.Run(ctx, opts, logger); err != nil {
					logger.Error("ngrok tunnel failed", slog.Any("error", err))
				}
				return nil
			}))
		}
	}

	if config.Macro.AutoStart.Enabled {
		delay := time.Duration(config.Macro.AutoStart.DelaySeconds) * time.Second
		g.Go(wrapWithRecover(logger, func() error {
			logger.Info("Auto start scheduled", slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
			case <-time.After(delay):
				if err := a.manager.Start(); err != nil {
					logger.Warn("Auto start skipped", slog.Any("error", err))
				}
			}
			return nil
		}))
	}

	g.Go(wrapWithRecover(logger, func() error {
		<-ctx.Done()
		logger.Info("beemacro shutting down...")
		if err := a.manager.Stop(); err != nil && !errors.Is(err, runstate.ErrAlreadyStopped) {
			logger.Debug("Stop on shutdown", slog.Any("error", err))
		}
		return nil
	}))

	if err = g.Wait(); err != nil {
		logger.Error("Error running beemacro", slog.Any("error", err))
		return err
	}
	return nil
}

type agent struct {
	cell       *runstate.Cell
	supervisor *bot.Supervisor
	manager    *bot.Manager
	listener   *event.Listener
	server     *server.HttpServer
}

// buildAgent wires the executor stack for one profile.
func buildAgent(profile *config.ProfileCfg, logger *slog.Logger) (*agent, error) {
	cell := runstate.NewCell()
	waitOpts := []utils.WaiterOption{
		utils.WithChunk(profile.Timing.Chunk),
		utils.WithPausePoll(profile.Timing.PausePoll),
	}
	utils.SetRunState(cell, waitOpts...)
	waiter := utils.DefaultWaiter()

	feed := speed.NewLatest(profile.Speed.MaxAge, utils.SystemClock{})
	feed.SetFallback(profile.Speed.Fallback)

	driver, err := game.NewDriver(config.Macro.DryRun, logger)
	if err != nil {
		return nil, fmt.Errorf("input driver: %w (use --dry-run to test without the game)", err)
	}
	hid := game.NewHID(driver, logger)

	actionMetrics, err := action.NewMetrics(metricsNamespace, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	botMetrics, err := bot.NewMetrics(metricsNamespace, cell, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}

	lib, err := pather.LoadDir(config.Macro.PathsDirectory)
	if err != nil {
		return nil, fmt.Errorf("loading paths: %w", err)
	}
	for _, task := range append(append([]string(nil), profile.Tasks...), profile.Reconnect.Path) {
		if _, ok := lib.Get(task); task != "" && !ok {
			return nil, fmt.Errorf("%w: %s (available: %v)", pather.ErrUnknownPath, task, lib.Names())
		}
	}
	if len(profile.Tasks) == 0 {
		logger.Warn("Profile has no tasks, the executor will idle", slog.String("profile", profile.Name))
	}

	newWalker := func(w *utils.Waiter) *action.Walker {
		engine := movement.NewEngine(feed, w,
			movement.WithWalkSpeed(profile.Movement.WalkSpeed),
			movement.WithCutoffFactor(profile.Movement.CutoffFactor),
			movement.WithSampleInterval(profile.Movement.SampleInterval),
			movement.WithLogger(logger),
		)
		return action.NewWalker(hid, engine, w,
			action.WithCompensation(profile.Movement.HasteCompensation),
			action.WithDefaultStrategy(profile.Movement.Strategy),
			action.WithMetrics(actionMetrics),
			action.WithLogger(logger),
		)
	}

	// Reconnect waits must survive the Disconnected state that triggered them.
	reconnectWaiter := bot.ReconnectWaiter(cell, waitOpts...)
	reconnectRunner := pather.NewRunner(lib, newWalker(reconnectWaiter), reconnectWaiter, bot.StopCheckpoint(cell), logger)

	var supervisor *bot.Supervisor
	runner := pather.NewRunner(lib, newWalker(waiter), waiter, func() error { return supervisor.Checkpoint() }, logger)
	supervisor = bot.NewSupervisor(bot.SupervisorConfig{
		Name:        profile.Name,
		Tasks:       profile.Tasks,
		CycleDelay:  profile.CycleDelay,
		RetryDelay:  profile.Reconnect.RetryDelay,
		MaxAttempts: profile.Reconnect.MaxAttempts,
	}, cell, waiter, runner, hid, logger,
		bot.WithReconnector(bot.PathReconnector(reconnectRunner, profile.Reconnect.Path)),
		bot.WithSupervisorMetrics(botMetrics),
	)

	manager := bot.NewManager(cell, supervisor, feed, profile.Name, logger)
	listener := event.NewListener(logger)
	srv := server.New(logger, manager, feed, server.Options{
		CommandsPerSecond: config.Macro.HTTP.CommandsPerSecond,
		CommandBurst:      config.Macro.HTTP.CommandBurst,
	})
	listener.Register(srv.WebSocket().EventHandler())

	return &agent{cell: cell, supervisor: supervisor, manager: manager, listener: listener, server: srv}, nil
}

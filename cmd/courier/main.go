package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/joebot/courier/internal/channel"
	"github.com/joebot/courier/internal/cli"
	"github.com/joebot/courier/internal/config"
	"github.com/joebot/courier/internal/logging"
	"github.com/joebot/courier/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "chat":
		cmdChat(os.Args[2:])
	case "send":
		cmdSend(os.Args[2:])
	case "status":
		cmdStatus()
	case "onboard":
		cli.RunOnboard()
	case "version", "--version", "-v":
		fmt.Println(cli.TitleStyle.Render(
			fmt.Sprintf("  %s courier v%s", cli.Logo, cli.Version),
		))
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	dim := cli.DimStyle.Render
	fmt.Println()
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("  %s courier", cli.Logo)) + dim(" · message delivery pipeline"))
	fmt.Println()
	fmt.Println("  " + cli.BoldStyle.Render("Usage"))
	fmt.Println()
	fmt.Printf("    courier %-22s %s\n", "chat", dim("Interactive chat"))
	fmt.Printf("    courier %-22s %s\n", "send -m \"…\" [-f file]", dim("Single message"))
	fmt.Printf("    courier %-22s %s\n", "status", dim("Show configuration"))
	fmt.Printf("    courier %-22s %s\n", "onboard", dim("Initialize setup"))
	fmt.Printf("    courier %-22s %s\n", "version", dim("Show version"))
	fmt.Println()
}

// targetFlags are shared by chat and send.
type targetFlags struct {
	channel string
	chat    string
}

func (t *targetFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&t.channel, "channel", "c", "", "channel to deliver through (discord, amqp, log)")
	fs.StringVar(&t.chat, "chat", "", "chat to deliver to (overrides channels.chatId)")
}

func (t *targetFlags) apply(cfg *config.Config) {
	if t.channel != "" {
		cfg.Channels.Default = t.channel
	}
	if t.chat != "" {
		cfg.Channels.ChatID = t.chat
	}
}

// --- chat command ---

func cmdChat(args []string) {
	fs := pflag.NewFlagSet("chat", pflag.ExitOnError)
	var target targetFlags
	target.register(fs)
	fs.Parse(args)

	cfg := mustLoadConfig()
	target.apply(cfg)
	redirectLogs(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := mustBuild(cfg)
	defer app.close()

	if app.discord != nil && cfg.Channels.ChatID != "" {
		unbind := app.discord.BindTyping(app.pipe.Typing(), cfg.Channels.ChatID)
		defer unbind()
	}

	err := cli.RunChat(ctx, app.pipe, cli.ChatConfig{
		Channel: app.router.Default(),
		ChatID:  cfg.Channels.ChatID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// --- send command ---

func cmdSend(args []string) {
	fs := pflag.NewFlagSet("send", pflag.ExitOnError)
	var target targetFlags
	target.register(fs)
	message := fs.StringP("message", "m", "", "message text")
	reply := fs.String("reply", "", "id of the message to reply to")
	files := fs.StringArrayP("file", "f", nil, "attach a file (repeatable)")
	fs.Parse(args)

	if *message == "" && len(*files) == 0 && *reply == "" {
		fmt.Fprintln(os.Stderr, "courier send: nothing to send, use -m, -f or --reply")
		os.Exit(2)
	}

	cfg := mustLoadConfig()
	target.apply(cfg)
	stderrLogs(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := mustBuild(cfg)
	defer app.close()

	err := cli.RunSend(ctx, app.pipe, cli.SendRequest{
		Content: *message,
		ReplyTo: *reply,
		Files:   *files,
	})
	if err != nil {
		app.close()
		os.Exit(1)
	}
}

// --- status command ---

func cmdStatus() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
	}
	cli.RunStatus(cfg)
}

// --- wiring ---

type app struct {
	router  *channel.Router
	discord *channel.Discord
	pipe    *pipeline.Pipeline
}

// mustBuild registers every enabled channel, with the log channel last
// so the default falls to the first real one.
func mustBuild(cfg *config.Config) *app {
	a := &app{router: channel.NewRouter(cfg.Channels.Default)}

	if cfg.Channels.Discord.Enabled {
		d, err := channel.NewDiscord(cfg.Channels.Discord, slog.Default())
		if err != nil {
			slog.Error("Discord channel disabled", "err", err)
		} else {
			a.discord = d
			a.router.Register(d)
		}
	}
	if cfg.Channels.AMQP.Enabled {
		q, err := channel.NewAMQP(cfg.Channels.AMQP, slog.Default())
		if err != nil {
			slog.Error("AMQP channel disabled", "err", err)
		} else {
			a.router.Register(q)
		}
	}
	a.router.Register(channel.NewFallback(slog.Default()))

	pcfg := pipeline.ConfigFrom(cfg, a.router, a.router.Uploader(cfg.Channels.Default))
	pcfg.Logger = slog.Default()
	pipe, err := pipeline.New(pcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	a.pipe = pipe
	return a
}

func (a *app) close() {
	a.pipe.Close()
	if err := a.router.Close(); err != nil {
		slog.Warn("Closing channels", "err", err)
	}
}

// --- helpers ---

func redirectLogs(cfg *config.Config) {
	f, err := os.OpenFile(config.LogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.SetDefault(slog.New(logging.NewHandler(io.Discard, nil)))
		return
	}
	slog.SetDefault(slog.New(logging.NewHandler(f, &logging.Options{Level: cfg.Logging.SlogLevel()})))
}

func stderrLogs(cfg *config.Config) {
	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, &logging.Options{
		Level: cfg.Logging.SlogLevel(),
		Color: isatty.IsTerminal(os.Stderr.Fd()),
	})))
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

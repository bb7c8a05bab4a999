package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/joebot/courier/internal/config"
)

// RunStatus displays the current configuration status with styled output.
func RunStatus(cfg *config.Config) {
	cfgPath := config.ConfigPath()

	fmt.Println()
	fmt.Println(TitleStyle.Render(fmt.Sprintf("  %s courier Status", Logo)))
	fmt.Println()

	fmt.Printf("  %-12s %s  %s\n", "Config", StatusBadge(fileExists(cfgPath)), DimStyle.Render(cfgPath))
	logPath := config.LogPath()
	fmt.Printf("  %-12s %s  %s\n", "Log", StatusBadge(fileExists(logPath)), DimStyle.Render(logPath))
	fmt.Println()

	p := cfg.Pipeline
	fmt.Println("  " + BoldStyle.Render("Pipeline"))
	fmt.Printf("    %-18s %d every %v\n", "Batch", p.BatchSize, p.FlushInterval())
	fmt.Printf("    %-18s %d × %v (linear)\n", "Retries", p.MaxRetries, p.RetryDelay())
	fmt.Printf("    %-18s %d\n", "Concurrency", p.ConcurrencyLimit)
	fmt.Printf("    %-18s %v\n", "Typing quiet", p.TypingQuiet())
	fmt.Printf("    %-18s %d chars\n", "Max content", p.MaxContentLength)
	fmt.Println()

	m := cfg.Media
	fmt.Println("  " + BoldStyle.Render("Media"))
	fmt.Printf("    %-18s above %s\n", "Compress", humanize.IBytes(uint64(m.MaxFileSizeBytes)))
	fmt.Printf("    %-18s %dpx at quality %.2f\n", "Resize to", m.MaxImageSize, m.Quality)
	fmt.Println()

	ch := cfg.Channels
	def := ch.Default
	if def == "" {
		def = "first enabled"
	}
	fmt.Println("  " + BoldStyle.Render("Channels") + DimStyle.Render("  default: "+def))
	fmt.Printf("    %s  Discord\n", StatusBadge(ch.Discord.Enabled && ch.Discord.Token != ""))
	fmt.Printf("    %s  AMQP %s\n", StatusBadge(ch.AMQP.Enabled && ch.AMQP.URL != ""), DimStyle.Render(ch.AMQP.Exchange))
	fmt.Printf("    %s  Log\n", StatusBadge(true))
	if ch.ChatID != "" {
		fmt.Printf("    %-18s %s\n", "Chat", ch.ChatID)
	}
	fmt.Println()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner, naming the sites this
// process will refresh and where their artifacts and cache live.
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("BULKFEED")
	b.PrintCenteredText("Offline Bulk API Materialiser")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Environment", config.Environment, 15)
	b.PrintKeyValue("Artifact Dir", config.Storage.ArtifactDir, 15)
	b.PrintKeyValue("Cache Dir", config.Storage.CacheDir, 15)
	b.PrintKeyValue("Sites", fmt.Sprintf("%d configured", len(config.Sites)), 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	siteNames := make([]string, 0, len(config.Sites))
	for _, s := range config.Sites {
		siteNames = append(siteNames, s.Name)
	}

	logger.Info().
		Str("version", version).
		Str("environment", config.Environment).
		Str("artifact_dir", config.Storage.ArtifactDir).
		Str("cache_dir", config.Storage.CacheDir).
		Strs("sites", siteNames).
		Msg("bulkfeed started")
}

// PrintShutdownBanner displays the application shutdown banner.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("BULKFEED")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("bulkfeed shutting down")
}

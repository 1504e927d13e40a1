package main

import (
	"context"
	"os"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/service/ui"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/spf13/cobra"
)

var (
	debug      bool
	threadID   string
	resourceID string
)

var rootCmd = &cobra.Command{
	Use:           "tuskmem",
	Short:         "Conversational agent with persistent memory",
	Long:          `tuskmem keeps conversation threads, working memory and a semantic index of past messages, and answers through an LLM that can call tools.`,
	SilenceUsage:  true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&threadID, "thread", "t", "", "thread id (default TUSK_THREAD_ID)")
	rootCmd.PersistentFlags().StringVarP(&resourceID, "resource", "r", "", "resource id (default TUSK_RESOURCE_ID)")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithLogger(ctx, isDebug)
}

// scope resolves the thread and resource from flags, then config.
func scope(cfg *config.AppConfig) (string, string) {
	thread, resource := threadID, resourceID
	if thread == "" {
		thread = cfg.DefaultThread
	}
	if resource == "" {
		resource = cfg.DefaultResource
	}
	return thread, resource
}

func CustomizeHelp(rootCmd *cobra.Command) {
	cobra.AddTemplateFunc("StyleTitle", func(s string) string { return ui.TitleStyle.Render(s) })
	cobra.AddTemplateFunc("StyleUsage", func(s string) string { return ui.UsageStyle.Render(s) })
	cobra.AddTemplateFunc("StyleFlag", func(s string) string { return ui.FlagStyle.Render(s) })
	cobra.AddTemplateFunc("StyleDesc", func(s string) string { return ui.DescStyle.Render(s) })

	template := `
{{StyleTitle "USAGE"}}
  {{StyleUsage .UseLine}}
{{if gt (len .Commands) 0}}
{{StyleTitle "AVAILABLE COMMANDS"}}
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding}} {{StyleDesc .Short}}{{end}}{{end}}
{{end}}
{{if .HasAvailableLocalFlags}}{{StyleTitle "FLAGS"}}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces | StyleFlag}}
{{end}}{{if .HasAvailableInheritedFlags}}{{StyleTitle "GLOBAL FLAGS"}}
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces | StyleFlag}}
{{end}}
`
	rootCmd.SetHelpTemplate(template)
}

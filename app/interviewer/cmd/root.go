package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "interviewer",
	Short: "AI-HR interview runner: questions, recording, transcription, answers",
	Long:  `Runs voice interviews against the AI-HR backend. Commands: serve, run, timer, migrate, video-url.`,
	RunE:  runServe, // default: same as "interviewer serve"
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(timerCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the root command and returns the error (for main to log.Fatal).
func Execute() error {
	return rootCmd.Execute()
}

package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "attendbot",
	Short: "Photo-based attendance capture for class sessions",
	Long: `Attendbot drives a conversational attendance workflow for instructors:
a class photo is matched against enrolled student faces, each detected face
is confirmed by the instructor, and attendance facts are committed exactly
once per student, session and day.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/classmgr/attendbot/internal/config"
	"github.com/classmgr/attendbot/internal/ledger"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Print the attendance records for a session",
	RunE:  runAttendance,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)

	attendanceCmd.Flags().String("session", "", "Session code (required)")
	attendanceCmd.Flags().String("date", "", "Date as YYYY-MM-DD (defaults to today)")
	_ = attendanceCmd.MarkFlagRequired("session")
}

func runAttendance(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	sessionCode := mustGetString(cmd, "session")
	date := time.Now()
	if d := mustGetString(cmd, "date"); d != "" {
		parsed, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return fmt.Errorf("invalid --date %q, use YYYY-MM-DD", d)
		}
		date = parsed
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	records, err := ledger.New(st).List(ctx, sessionCode, date)
	if err != nil {
		return fmt.Errorf("listing attendance: %w", err)
	}
	if len(records) == 0 {
		fmt.Printf("No attendance for %s on %s\n", sessionCode, date.Format(time.DateOnly))
		return nil
	}

	fmt.Printf("Attendance for %s on %s:\n", sessionCode, date.Format(time.DateOnly))
	for _, rec := range records {
		name := rec.Enrollee.String()
		if enrollee, err := st.GetEnrollee(ctx, rec.Enrollee); err == nil {
			name = fmt.Sprintf("%s (%s)", enrollee.FullName(), rec.Enrollee)
		}
		fmt.Printf("  %s  recorded by %d at %s\n", name, rec.RecordedBy, rec.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

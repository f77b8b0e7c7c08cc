// Datalog CLI Tool
// Provides command-line access to the energy monitor's datalog
package main

import (
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/gridwatch/energy-monitor/internal/datalog"
)

var (
	dbPath  string
	rootCmd = &cobra.Command{
		Use:   "monitor-log",
		Short: "Energy Monitor Datalog CLI",
		Long:  "Command-line tool for inspecting the energy monitor's time-series log.",
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show log statistics",
		RunE:  showStats,
	}

	recordsCmd = &cobra.Command{
		Use:   "records",
		Short: "Show the most recent records",
		RunE:  showRecords,
	}

	limit    int
	channels int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "/var/lib/energy-monitor/datalog.db", "Datalog file path")
	recordsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	recordsCmd.Flags().IntVarP(&channels, "channels", "k", 3, "Number of channels to print")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(recordsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func showStats(cmd *cobra.Command, args []string) error {
	db, err := sql.Open("sqlite3", dbPath+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEGMENT\tROWS\tFIRST\tLAST")
	for _, segment := range []string{"current_log", "history_log"} {
		var rows int
		var first, last sql.NullInt64
		err := db.QueryRow("SELECT COUNT(*), MIN(unix_time), MAX(unix_time) FROM " + segment).
			Scan(&rows, &first, &last)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", segment, rows, formatKey(first), formatKey(last))
	}
	return w.Flush()
}

func showRecords(cmd *cobra.Command, args []string) error {
	store, err := datalog.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	reader := datalog.NewReader(store)
	last, err := reader.LastKey()
	if err != nil {
		return fmt.Errorf("log is empty")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSERIAL\tLOG HOURS\tACCUMULATORS")

	key := last
	printed := int64(-1)
	for i := 0; i < limit; i++ {
		rec, err := reader.ReadAtOrBefore(key)
		if err != nil || rec.UnixTime == printed {
			break
		}
		printed = rec.UnixTime
		accums := ""
		for c := 0; c < channels && c < datalog.MaxChannels; c++ {
			if c > 0 {
				accums += " "
			}
			accums += fmt.Sprintf("%.1f", rec.Accum1[c])
		}
		fmt.Fprintf(w, "%s\t%d\t%.3f\t%s\n",
			time.Unix(rec.UnixTime, 0).UTC().Format("2006/01/02 15:04:05"),
			rec.Serial, rec.LogHours, accums)

		if rec.UnixTime <= 0 {
			break
		}
		key = rec.UnixTime - 1
	}
	return w.Flush()
}

func formatKey(key sql.NullInt64) string {
	if !key.Valid {
		return "-"
	}
	return time.Unix(key.Int64, 0).UTC().Format("2006/01/02 15:04:05")
}

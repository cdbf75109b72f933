package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/yourusername/ldm-go/api/handlers"
	"github.com/yourusername/ldm-go/internal/app"
	"github.com/yourusername/ldm-go/internal/domain"
	"github.com/yourusername/ldm-go/pkg/logger"
)

var (
	serverURL    string
	serverConfig string
	noAutoStart  bool
	rootCmd      = &cobra.Command{
		Use:           "ldm",
		Short:         "ldm - HTTP download manager",
		Long:          `A command-line client for the ldm download server: queue, control and watch HTTP downloads.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8089", "Server URL")
	rootCmd.PersistentFlags().StringVar(&serverConfig, "server-config", "", "Config file passed to an auto-started server")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(controlCommand("start", "Start or resume a download"))
	rootCmd.AddCommand(controlCommand("pause", "Pause a running download"))
	rootCmd.AddCommand(controlCommand("stop", "Stop a download and delete its partial file"))
	rootCmd.AddCommand(controlCommand("toggle", "Pause a running download, otherwise start it"))
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a download to the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		req := app.AddRequest{URL: args[0]}
		req.Dir, _ = cmd.Flags().GetString("dir")
		req.FileName, _ = cmd.Flags().GetString("name")
		req.Checksum, _ = cmd.Flags().GetString("checksum")
		req.ChecksumAlgo, _ = cmd.Flags().GetString("algo")
		req.Priority, _ = cmd.Flags().GetInt("priority")
		req.StartPaused, _ = cmd.Flags().GetBool("paused")
		start, _ := cmd.Flags().GetBool("start")

		var download app.DownloadView
		if err := call(http.MethodPost, "/api/v1/downloads", req, &download); err != nil {
			return err
		}

		fmt.Printf("Download added successfully!\n")
		fmt.Printf("ID:     %s\n", download.ID)
		fmt.Printf("File:   %s\n", download.FilePath)
		fmt.Printf("Status: %s\n", download.Status)

		if start {
			var result handlers.ControlResponse
			if err := call(http.MethodPost, "/api/v1/downloads/"+download.ID+"/start", nil, &result); err != nil {
				return err
			}
			fmt.Printf("Start:  %s\n", result.Outcome)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		path := "/api/v1/downloads"
		if status, _ := cmd.Flags().GetString("status"); status != "" {
			path += "?status=" + url.QueryEscape(status)
		}

		var downloads []*app.DownloadView
		if err := call(http.MethodGet, path, nil, &downloads); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILE\tSTATUS\tPROGRESS\tSIZE\tRATE\tETA\tADDED")
		for _, d := range downloads {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				truncate(d.ID, 8),
				truncate(fileName(d), 32),
				formatStatus(d),
				formatProgress(d),
				formatSize(d.ContentSize),
				formatRate(d.Rate),
				formatETA(d.ETASeconds),
				humanize.Time(d.CreatedAt))
		}
		return w.Flush()
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get download details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		var d app.DownloadView
		if err := call(http.MethodGet, "/api/v1/downloads/"+args[0], nil, &d); err != nil {
			return err
		}

		fmt.Printf("Download Details:\n")
		fmt.Printf("  ID:        %s\n", d.ID)
		fmt.Printf("  URL:       %s\n", d.URL)
		fmt.Printf("  File:      %s\n", d.FilePath)
		fmt.Printf("  Status:    %s\n", formatStatus(&d))
		fmt.Printf("  Progress:  %s of %s\n", formatSize(d.BytesTransferred), formatSize(d.ContentSize))
		if d.Active {
			fmt.Printf("  Rate:      %s\n", formatRate(d.Rate))
			fmt.Printf("  ETA:       %s\n", formatETA(d.ETASeconds))
		}
		if d.Resumed {
			fmt.Printf("  Resumed:   yes\n")
		}
		if d.Checksum != "" {
			fmt.Printf("  Checksum:  %s:%s\n", d.ChecksumAlgo, d.Checksum)
		}
		if d.RetryCount > 0 {
			fmt.Printf("  Retries:   %d\n", d.RetryCount)
		}
		fmt.Printf("  Added:     %s\n", humanize.Time(d.CreatedAt))
		if d.CompletedAt != nil {
			fmt.Printf("  Completed: %s\n", humanize.Time(*d.CompletedAt))
		}
		if d.ErrorMessage != "" {
			fmt.Printf("  Error:     %s\n", d.ErrorMessage)
		}
		return nil
	},
}

// controlCommand builds start/pause/stop/toggle, which differ only in the endpoint they hit
func controlCommand(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ensureServer()

			var result handlers.ControlResponse
			if err := call(http.MethodPost, "/api/v1/downloads/"+args[0]+"/"+action, nil, &result); err != nil {
				return err
			}
			if !result.Accepted {
				if result.Download != nil {
					fmt.Printf("Nothing to %s: download is %s\n", action, result.Download.Status)
				} else {
					fmt.Printf("Nothing to %s\n", action)
				}
				return nil
			}
			fmt.Printf("Download %s\n", result.Outcome)
			return nil
		},
	}
}

var removeCmd = &cobra.Command{
	Use:     "remove [id]",
	Aliases: []string{"rm"},
	Short:   "Remove an idle download from the list",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		deleteFile, _ := cmd.Flags().GetBool("delete-file")
		path := "/api/v1/downloads/" + args[0] + "?delete_file=" + strconv.FormatBool(deleteFile)
		if err := call(http.MethodDelete, path, nil, nil); err != nil {
			return err
		}
		fmt.Println("Download removed")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show download statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		var stats domain.DownloadStats
		if err := call(http.MethodGet, "/api/v1/downloads/stats", nil, &stats); err != nil {
			return err
		}

		fmt.Println("Download Statistics:")
		fmt.Printf("  Total:    %d\n", stats.Total)
		fmt.Printf("  Queued:   %d\n", stats.Queued)
		fmt.Printf("  Running:  %d\n", stats.Running)
		fmt.Printf("  Paused:   %d\n", stats.Paused)
		fmt.Printf("  Complete: %d\n", stats.Complete)
		fmt.Printf("  Stopped:  %d\n", stats.Stopped)
		fmt.Printf("  Error:    %d\n", stats.Error)
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:       "queue [start|stop]",
	Short:     "Show or control the queue processor",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"start", "stop"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		method, path := http.MethodGet, "/api/v1/queue"
		if len(args) == 1 {
			method, path = http.MethodPost, path+"/"+args[0]
		}

		var status app.QueueStatus
		if err := call(method, path, nil, &status); err != nil {
			return err
		}

		state := "stopped"
		if status.Running {
			state = "running"
		}
		fmt.Printf("Queue %s, %d of %d slots in use\n", state, status.Active, status.ConcurrentLimit)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "Show server logs (transfer, queue, error)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		query := url.Values{}
		if date, _ := cmd.Flags().GetString("date"); date != "" {
			query.Set("date", date)
		}
		if q, _ := cmd.Flags().GetString("query"); q != "" {
			query.Set("q", q)
		}
		limit, _ := cmd.Flags().GetInt("limit")
		query.Set("limit", strconv.Itoa(limit))

		var result struct {
			Entries []logger.LogEntry `json:"entries"`
		}
		if err := call(http.MethodGet, "/api/v1/logs/"+url.PathEscape(args[0])+"?"+query.Encode(), nil, &result); err != nil {
			return err
		}

		for _, entry := range result.Entries {
			fmt.Printf("%s  %-5s  %s", entry.Timestamp, entry.Level, entry.Message)
			for k, v := range entry.Fields {
				fmt.Printf("  %s=%v", k, v)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	addCmd.Flags().StringP("dir", "d", "", "Directory to save into (default from server config)")
	addCmd.Flags().StringP("name", "n", "", "File name (default derived from the URL)")
	addCmd.Flags().StringP("checksum", "c", "", "Expected hex digest, verified after completion")
	addCmd.Flags().String("algo", "", "Checksum algorithm: sha1 (default), sha256, md5")
	addCmd.Flags().IntP("priority", "p", 0, "Queue priority, higher starts first")
	addCmd.Flags().Bool("paused", false, "Add without queueing")
	addCmd.Flags().Bool("start", false, "Start immediately instead of waiting for the queue")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	removeCmd.Flags().Bool("delete-file", false, "Also delete the downloaded file")
	logsCmd.Flags().String("date", "", "Day to read, YYYY-MM-DD (default today)")
	logsCmd.Flags().StringP("query", "q", "", "Only show entries containing this text")
	logsCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

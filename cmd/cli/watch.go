package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/yourusername/ldm-go/internal/app"
)

var watchCmd = &cobra.Command{
	Use:   "watch [id]",
	Short: "Stream live download events",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		exitOnFinish, _ := cmd.Flags().GetBool("exit")
		id := ""
		if len(args) == 1 {
			id = args[0]
		}

		endpoint, err := eventsURL(serverURL, id)
		if err != nil {
			return err
		}
		conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to connect to event stream: %w", err)
		}
		defer conn.Close()

		interrupt := make(chan os.Signal, 1)
		interrupted := make(chan struct{})
		signal.Notify(interrupt, os.Interrupt)
		defer signal.Stop(interrupt)
		go func() {
			if _, ok := <-interrupt; ok {
				close(interrupted)
				conn.Close()
			}
		}()

		for {
			var event app.Event
			if err := conn.ReadJSON(&event); err != nil {
				select {
				case <-interrupted:
					return nil
				default:
				}
				if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					return nil
				}
				return fmt.Errorf("event stream closed: %w", err)
			}

			fmt.Println(describeEvent(event))
			if exitOnFinish && id != "" && finished(event) {
				return nil
			}
		}
	},
}

func init() {
	watchCmd.Flags().BoolP("exit", "x", false, "Exit once the watched download finishes")
}

// eventsURL turns the server base URL into the WebSocket event endpoint
func eventsURL(base, id string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/events"
	if id != "" {
		u.RawQuery = url.Values{"id": {id}}.Encode()
	}
	return u.String(), nil
}

// finished reports whether no further events follow for the download.
// A completed download with a checksum still has its verification ahead.
func finished(event app.Event) bool {
	switch event.Type {
	case app.EventError, app.EventStopped, app.EventVerified, app.EventChecksumFailed, app.EventRemoved:
		return true
	case app.EventCompleted:
		var d app.DownloadView
		raw, _ := json.Marshal(event.Data)
		return json.Unmarshal(raw, &d) == nil && d.Checksum == ""
	}
	return false
}

func describeEvent(event app.Event) string {
	prefix := fmt.Sprintf("[%s] %-24s", truncate(event.ID, 8), event.Type)

	raw, err := json.Marshal(event.Data)
	if err != nil {
		return prefix
	}

	if event.Type == app.EventProgress || event.Type == app.EventVerifying {
		var p app.ProgressData
		if json.Unmarshal(raw, &p) != nil {
			return prefix
		}
		line := fmt.Sprintf("%s %s / %s", prefix, formatSize(p.Transferred), formatSize(p.Total))
		if p.Percent >= 0 {
			line += fmt.Sprintf(" (%.1f%%)", p.Percent)
		}
		if p.Rate > 0 {
			line += "  " + formatRate(p.Rate)
		}
		if p.ETASeconds > 0 {
			line += "  eta " + formatETA(&p.ETASeconds)
		}
		return line
	}

	var d app.DownloadView
	if json.Unmarshal(raw, &d) != nil || d.ID == "" {
		return prefix
	}
	line := fmt.Sprintf("%s %s", prefix, fileName(&d))
	if d.ErrorMessage != "" {
		line += "  " + d.ErrorMessage
	}
	return line
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	synchub "oncostats/internal/sync"
)

var (
	watchAddr      string
	watchWS        string
	watchSelect    string
	watchRaw       bool
	watchReconnect bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a running server's sync stream",
	Long: `watch connects to the TCP sync server (or the /ws endpoint with --ws),
optionally selects a category, and prints every event it receives. A
selected category is re-sent whenever its dataset changes on the server.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "TCP sync address (default tcp_addr from config)")
	watchCmd.Flags().StringVar(&watchWS, "ws", "", "WebSocket URL, e.g. ws://localhost:8080/ws")
	watchCmd.Flags().StringVar(&watchSelect, "select", "", "Category to select after connecting")
	watchCmd.Flags().BoolVar(&watchRaw, "raw", false, "Print events as received")
	watchCmd.Flags().BoolVar(&watchReconnect, "reconnect", true, "Reconnect after a disconnect")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := watchAddr
	if addr == "" {
		addr = cfg.TCPAddr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}

	out := cmd.OutOrStdout()
	for {
		var err error
		if watchWS != "" {
			err = watchWebSocket(ctx, watchWS, watchSelect, out, watchRaw)
		} else {
			err = watchTCP(ctx, addr, watchSelect, out, watchRaw)
		}
		if ctx.Err() != nil {
			return nil
		}
		if !watchReconnect {
			return err
		}
		logger.Warn("sync stream disconnected", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

// watchTCP streams newline-delimited events from the TCP sync server until
// the connection drops or ctx ends.
func watchTCP(ctx context.Context, addr, category string, w io.Writer, raw bool) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logger.Debug("connected", zap.String("addr", addr))
	if category != "" {
		req, err := json.Marshal(synchub.Request{Type: synchub.RequestSelect, Category: category})
		if err != nil {
			return err
		}
		if _, err := conn.Write(append(req, '\n')); err != nil {
			return err
		}
	}

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		printEvent(w, sc.Bytes(), raw)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func watchWebSocket(ctx context.Context, url, category string, w io.Writer, raw bool) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logger.Debug("connected", zap.String("url", url))
	if category != "" {
		if err := conn.WriteJSON(synchub.Request{Type: synchub.RequestSelect, Category: category}); err != nil {
			return err
		}
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		printEvent(w, msg, raw)
	}
}

// printEvent writes one summary line per event. Anything that does not
// decode as an event is printed as is.
func printEvent(w io.Writer, line []byte, raw bool) {
	var ev synchub.Event
	if raw || json.Unmarshal(line, &ev) != nil || ev.Type == "" {
		fmt.Fprintln(w, string(line))
		return
	}

	at := ev.At.Local().Format("15:04:05")
	switch ev.Type {
	case synchub.EventWelcome:
		fmt.Fprintf(w, "[%s] welcome session=%s transport=%s categories=%d\n", at, ev.SessionID, ev.Transport, len(ev.Categories))
	case synchub.EventCategories:
		fmt.Fprintf(w, "[%s] categories %s\n", at, strings.Join(ev.Categories, ", "))
	case synchub.EventResult:
		if ev.Result == nil {
			fmt.Fprintf(w, "[%s] result %s (empty)\n", at, ev.Category)
			return
		}
		rows := 0
		if ev.Result.Table != nil {
			rows = len(ev.Result.Table.Rows)
		}
		refresh := ""
		if ev.Refresh {
			refresh = " refresh"
		}
		fmt.Fprintf(w, "[%s] result %s source=%s rows=%d charts=%d%s\n", at, ev.Result.Category, ev.Result.Source, rows, len(ev.Result.Charts), refresh)
	case synchub.EventDatasetChanged:
		fmt.Fprintf(w, "[%s] dataset.changed %s affects %s\n", at, ev.Source, strings.Join(ev.Categories, ", "))
	case synchub.EventError:
		fmt.Fprintf(w, "[%s] error %s: %s\n", at, ev.Code, ev.Error)
	default:
		fmt.Fprintf(w, "[%s] %s\n", at, ev.Type)
	}
}

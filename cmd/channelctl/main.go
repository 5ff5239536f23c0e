// Package main はCLIツールのエントリポイント。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"secure-channel-service/internal/client"
	"secure-channel-service/internal/crypt"
	"secure-channel-service/internal/domain"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
	layers  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "channelctl",
		Short: "Secure Channel Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("CHANNELCTL_API_URL")
			}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set CHANNELCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().IntVar(&layers, "layers", domain.DefaultLayerCount, "Number of encryption layers")

	// サブコマンド登録
	rootCmd.AddCommand(connectCmd())
	rootCmd.AddCommand(echoCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("channelctl version %s\n", version)
		},
	}
}

func newClient() (*client.Client, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set CHANNELCTL_API_URL)")
	}
	return client.New(client.NewHTTPTransport(apiURL, timeout), crypt.NewEnginePool(), layers), nil
}

func disconnect(ctx context.Context, c *client.Client) {
	if err := c.Disconnect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// connectCmd はハンドシェイクを行い、セッションの状態を表示する。
func connectCmd() *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Perform the key exchange handshake",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if err := c.Connect(ctx); err != nil {
				disconnect(ctx, c)
				return fmt.Errorf("handshake failed: %w", err)
			}
			sess := c.Session()
			defer sess.Wipe()

			if output == "json" {
				out, _ := json.Marshal(map[string]any{
					"session_id": sess.ID.String(),
					"state":      c.State().String(),
					"layers":     len(sess.AESKeys),
				})
				fmt.Println(string(out))
			} else {
				fmt.Printf("Connected session %s (state: %s, layers: %d)\n", sess.ID, c.State(), len(sess.AESKeys))
			}

			if !keep {
				disconnect(ctx, c)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the session on the server after exit")
	return cmd
}

// echoCmd はハンドシェイク後に暗号化通信でデータを送り、復号した応答を表示する。
func echoCmd() *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Send JSON over the secure channel and print the decrypted echo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(data)) {
				return fmt.Errorf("--data must be valid JSON")
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer disconnect(ctx, c)

			if err := c.Connect(ctx); err != nil {
				return fmt.Errorf("handshake failed: %w", err)
			}

			var resp json.RawMessage
			if err := c.Call(ctx, "/v1/secure/echo", json.RawMessage(data), &resp); err != nil {
				return fmt.Errorf("secure call failed: %w", err)
			}

			if output == "json" {
				fmt.Println(string(resp))
			} else {
				fmt.Printf("Echo: %s\n", resp)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON payload (required)")
	cmd.MarkFlagRequired("data")
	return cmd
}

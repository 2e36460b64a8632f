package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/client/auth"
	"github.com/aserras/web/backend/internal/client/featuregate"
	"github.com/aserras/web/backend/internal/client/notify"
	"github.com/aserras/web/backend/internal/client/runtime"
	"github.com/aserras/web/backend/internal/client/storage"
	"github.com/aserras/web/backend/internal/logging"
)

var (
	email     string
	password  string
	chatModel string
	timeout   time.Duration
	asJSON    bool
)

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	loginCmd.Flags().StringVar(&email, "email", os.Getenv("ASERRAS_PROBE_EMAIL"), "Account email")
	loginCmd.Flags().StringVar(&password, "password", os.Getenv("ASERRAS_PROBE_PASSWORD"), "Account password")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Model to request")
	historyCmd.Flags().BoolVar(&asJSON, "json", false, "Print history as JSON")

	rootCmd.AddCommand(pageCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
}

// pageCmd shows what the runtime sees on one page
var pageCmd = &cobra.Command{
	Use:   "page [path]",
	Short: "Boot a page and report its configuration and gated elements",
	Example: `  aserras-probe page /login
  aserras-probe page /checkout?plan=elite`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPage,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the stored session",
	RunE:  runLogout,
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a chat message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Load conversation history and usage stats",
	RunE:  runHistory,
}

// boot fetches path from the server and boots the runtime on it.
func boot(ctx context.Context, path string, chatModel string) (*runtime.Runtime, error) {
	origin := strings.TrimRight(baseURL, "/")
	if path == "" {
		path = "/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+path, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()
	logging.Named("probe").Debug("page fetched", zap.String("path", path), zap.Int("status", resp.StatusCode))

	return runtime.BootHTML(resp.Body, origin, runtime.Options{
		Storage:    storage.NewFile(storePath),
		Surface:    notify.WriterSurface{W: os.Stderr},
		HTTPClient: client,
		ChatModel:  chatModel,
	})
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func runPage(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	path := "/"
	if len(args) == 1 {
		path = args[0]
	}
	rt, err := boot(ctx, path, "")
	if err != nil {
		return err
	}

	fmt.Printf("API base:        %s\n", rt.Config.BaseAPIURL)
	fmt.Printf("Authenticated:   %v\n", rt.Session.IsAuthenticated())
	fmt.Printf("Theme:           %s\n", rt.Session.Theme())
	fmt.Printf("Auth providers:  %s\n", enabledKeys(rt, featuregate.KindAuthProvider, "email", "google", "github"))
	fmt.Printf("Payment methods: %s\n", enabledKeys(rt, featuregate.KindPaymentMethod, "card", "paypal"))

	for _, v := range visibleMarked(rt) {
		fmt.Printf("  visible %s=%q\n", auth.AttrAuthVisibility, v)
	}
	return nil
}

func enabledKeys(rt *runtime.Runtime, kind string, keys ...string) string {
	var on []string
	for _, key := range keys {
		if rt.Gate.Enabled(kind, key) {
			on = append(on, key)
		}
	}
	if len(on) == 0 {
		return "(none)"
	}
	return strings.Join(on, ", ")
}

func visibleMarked(rt *runtime.Runtime) []string {
	if rt.Document == nil {
		return nil
	}
	var out []string
	for _, el := range rt.Document.WithAttr(auth.AttrAuthVisibility) {
		if el.Visible() {
			v, _ := el.Attr(auth.AttrAuthVisibility)
			out = append(out, v)
		}
	}
	return out
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	rt, err := boot(ctx, "/login", "")
	if err != nil {
		return err
	}
	result, err := rt.Auth.Login(ctx, auth.Credentials{Email: email, Password: password})
	if err != nil {
		return err
	}
	fmt.Printf("%s (redirect %s)\n", result.Message, result.Redirect)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	rt, err := boot(ctx, "/", "")
	if err != nil {
		return err
	}
	result := rt.Auth.Logout(ctx)
	fmt.Println(result.Message)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	rt, err := boot(ctx, "/chat", chatModel)
	if err != nil {
		return err
	}
	if err := rt.Chat.Send(ctx, strings.Join(args, " ")); err != nil {
		return err
	}

	state := rt.Chat.State()
	if state.Error != "" {
		return fmt.Errorf("%s", state.Error)
	}
	if n := len(state.Messages); n > 0 {
		fmt.Println(state.Messages[n-1].Text)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	rt, err := boot(ctx, "/history", "")
	if err != nil {
		return err
	}
	if err := rt.History.Load(ctx); err != nil {
		return err
	}

	state := rt.History.State()
	if state.Error != "" {
		return fmt.Errorf("%s", state.Error)
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state.Items)
	}
	for _, item := range state.Items {
		fmt.Printf("%-9s %s  %s\n", item.Role, item.Timestamp, item.Text)
	}
	fmt.Printf("\n%d messages (%d prompts, %d replies)\n", state.Stats.Total, state.Stats.Prompts, state.Stats.Replies)
	return nil
}

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"remindbot/internal/config"
)

type sayReply struct {
	Success bool   `json:"success"`
	Reply   string `json:"reply"`
	Error   string `json:"error"`
}

func newSayCommand(v *viper.Viper, cfgFile *string) *cobra.Command {
	var (
		owner  string
		server string
	)
	cmd := &cobra.Command{
		Use:     "say <command...>",
		Short:   "Send one command to a running service and print the reply",
		Example: "  remindbot say --owner alice@example.com add in 1 day complete timesheets",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				cfg, err := config.Load(v, *cfgFile)
				if err != nil {
					return err
				}
				server = baseURL(cfg.Addr)
			}
			body, err := json.Marshal(map[string]string{
				"zulip_user_email": owner,
				"content":          strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Post(strings.TrimRight(server, "/")+"/command", "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("reach %s: %w", server, err)
			}
			defer resp.Body.Close()

			var out sayReply
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("decode reply (status %d): %w", resp.StatusCode, err)
			}
			if out.Error != "" {
				return fmt.Errorf("server: %s", out.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "address of the user issuing the command")
	cmd.Flags().StringVar(&server, "server", "", "service base URL (default derived from addr)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

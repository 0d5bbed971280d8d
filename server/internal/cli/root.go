// Package cli 实现 draftwatch 命令行：订阅草稿、提醒列表的实时变化，并浏览用户、消息、附件。
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"chat-drafts/server/internal/chatclient"
	"chat-drafts/server/internal/config"
	"chat-drafts/server/internal/logging"
)

const AppName = "draftwatch"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Watch chat drafts and reminders as they change",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "config file path")
	cmd.PersistentFlags().String("server", "", "backend base url (overrides config)")
	cmd.PersistentFlags().String("user", "", "user id (overrides config)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		NewDraftsCmd(),
		NewRemindersCmd(),
		NewUsersCmd(),
		NewSearchCmd(),
		NewAttachmentsCmd(),
	)
	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}

// env 是一次命令执行需要的配置、日志和客户端。
type env struct {
	cfg    *config.Config
	logger *log.Logger
	closer io.Closer
	client *chatclient.Client
}

func (e *env) Close() {
	_ = e.client.Close()
	_ = e.closer.Close()
}

func setup(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		cfg.Client.ServerURL = server
	}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		cfg.Client.UserID = user
	}
	if cfg.Client.UserID == "" {
		return nil, fmt.Errorf("user id required (--user or client.user_id)")
	}

	// 标准输出留给命令结果
	logCfg := cfg.Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger, closer, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	client, err := chatclient.New(chatclient.Options{
		BaseURL:           cfg.Client.ServerURL,
		UserID:            cfg.Client.UserID,
		RequestsPerSecond: cfg.Client.RequestsPerSecond,
		Burst:             cfg.Client.Burst,
		Timeout:           cfg.Client.Timeout,
		ReconnectMin:      cfg.Client.ReconnectMin,
		ReconnectMax:      cfg.Client.ReconnectMax,
		Logger:            logger,
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, closer: closer, client: client}, nil
}

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
	return err
}

func writeJSON(out io.Writer, key string, v any) error {
	return json.NewEncoder(out).Encode(map[string]any{key: v})
}

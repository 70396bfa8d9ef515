package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"netrelay/internal/config"
	"netrelay/internal/logger"
)

var version = "dev"

// rootOptions 命令行参数
type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "netrelay",
		Short:         "打开注入网络拦截脚本的浏览窗口并转发捕获的请求",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, err := opts.load()
			if err != nil {
				return err
			}
			return runGUI(cfg, l)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "netrelay.yaml", "配置文件路径")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "覆盖配置中的日志级别")
	root.AddCommand(newHeadlessCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("netrelay", version)
		},
	}
}

func (o *rootOptions) load() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	l := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Writers: cfg.Log.Writer,
		File:    cfg.Log.File,
	})
	return cfg, l, nil
}

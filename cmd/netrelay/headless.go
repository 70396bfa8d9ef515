package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"netrelay/internal/service"
	"netrelay/internal/surface"
	"netrelay/internal/window"
)

func newHeadlessCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "headless [url...]",
		Short: "不启动主界面，转发事件以 JSON 行写到标准输出",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := service.New(cfg, service.Deps{
				Surface: surface.NewJSONLines(os.Stdout),
				Out:     os.Stderr,
			}, l)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := svc.Shutdown(shutdownCtx); err != nil {
					l.Warn("关闭服务失败", "error", err)
				}
			}()

			if len(args) == 0 {
				args = []string{""}
			}
			for _, u := range args {
				info, err := svc.OpenInterceptedWindow(ctx, u)
				switch {
				case err == nil:
				case errors.Is(err, window.ErrScriptInjectionFailed):
					l.Warn("窗口已打开但未拦截", "label", info.Label, "error", err)
				default:
					return err
				}
			}

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if len(svc.ListWindows()) == 0 {
						l.Info("所有窗口已关闭")
						return nil
					}
				}
			}
		},
	}
}

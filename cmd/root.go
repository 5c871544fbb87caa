/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/mautops/approval-engine/internal/api"
	"github.com/mautops/approval-engine/internal/config"
	"github.com/mautops/approval-engine/internal/container"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "approval-engine",
	Short: "Approval workflow engine for ERP documents",
	Long: `Approval Engine routes ERP documents (requisitions, purchase orders,
suppliers, goods receipts) through multi-step approval workflows.
It tracks each request, records every action, escalates overdue steps
and writes the final outcome back to the originating document.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: search in current directory, ./config, or $HOME/.approval-engine)")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadRuntime 加载配置并创建日志记录器
func loadRuntime() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := api.NewLoggerFromConfig(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// newContainer 供一次性命令使用的容器, 不启动后台任务
func newContainer() (*container.Container, error) {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return nil, err
	}
	// 一次性命令不需要定时扫描
	cfg.Escalation.Enabled = false
	ctr, err := container.NewContainer(cfg, logger, container.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}
	return ctr, nil
}

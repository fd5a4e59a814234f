package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"zerolock/internal/api"
	"zerolock/internal/config"
	"zerolock/internal/logging"
	"zerolock/internal/platform"
	"zerolock/internal/shutdown"
)

var (
	// 基础参数
	configFile string
	apiPort    int
	verbose    bool

	// 存储参数
	storePath string
	noRestore bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zerolock",
		Short: "去中心化安全赏金平台核心",
		Long:  `ZeroLock 平台后端：挑战生命周期、托管金库与自动裁决结算引擎`,
		RunE:  run,
	}

	// 基础参数
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")
	rootCmd.Flags().IntVar(&apiPort, "port", 0, "API端口（覆盖配置文件）")

	// 存储参数
	rootCmd.Flags().StringVar(&storePath, "store", "", "快照数据库路径（覆盖配置文件）")
	rootCmd.Flags().BoolVar(&noRestore, "no-restore", false, "启动时不从快照恢复")

	// 统计查询子命令
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "查看平台统计信息",
		RunE:  showStats,
	}

	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, cfg, err := setup()
	if err != nil {
		return err
	}

	// 命令行参数覆盖
	if apiPort > 0 {
		cfg.API.Port = apiPort
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if noRestore {
		cfg.Store.Restore = false
	}

	// 装配平台
	p, err := platform.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("装配平台失败: %w", err)
	}

	if err := p.OpenStore(); err != nil {
		return fmt.Errorf("打开快照存储失败: %w", err)
	}

	// 启动调度器与API服务
	p.Scheduler.Start()

	server := api.NewServer(p, logger, cfg.API.Port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// 注册停机顺序
	gs := shutdown.NewGracefulShutdown(30*time.Second, logger)
	gs.RegisterShutdownFunc("api", func(ctx context.Context) error {
		return server.Stop(ctx)
	}, shutdown.OrderStopAPI)
	gs.RegisterShutdownFunc("schedulers", func(ctx context.Context) error {
		p.Scheduler.Stop()
		return nil
	}, shutdown.OrderStopSchedulers)
	gs.RegisterShutdownFunc("snapshot", func(ctx context.Context) error {
		return p.Snapshot(ctx)
	}, shutdown.OrderSnapshotState)
	gs.RegisterShutdownFunc("close", func(ctx context.Context) error {
		p.Close()
		return nil
	}, shutdown.OrderCloseStore)

	logger.Info("ZeroLock 平台已启动")

	go func() {
		if err := <-serverErr; err != nil && !strings.Contains(err.Error(), "Server closed") {
			logger.Errorf("API服务器异常退出: %v", err)
			gs.Shutdown()
		}
	}()

	gs.WaitForShutdown()
	return nil
}

// showStats 显示平台统计
func showStats(cmd *cobra.Command, args []string) error {
	logger, cfg, err := setup()
	if err != nil {
		return err
	}

	p, err := platform.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("装配平台失败: %w", err)
	}
	defer p.Close()

	if err := p.OpenStore(); err != nil {
		return fmt.Errorf("打开快照存储失败: %w", err)
	}

	challengeStats := p.Challenges.GetChallengeStats()
	vaultStats := p.Vault.GetVaultStats()
	platformStats := p.Leaderboard.GetPlatformStats()

	fmt.Println("ZeroLock 平台统计")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("%-20s: %d\n", "挑战总数", challengeStats.Total)
	fmt.Printf("%-20s: %d\n", "进行中", challengeStats.Active)
	fmt.Printf("%-20s: %d\n", "已完成", challengeStats.Completed)
	fmt.Printf("%-20s: %d\n", "已过期", challengeStats.Expired)
	fmt.Printf("%-20s: %d\n", "已取消", challengeStats.Cancelled)
	fmt.Printf("%-20s: %d\n", "锁定总额", vaultStats.TotalLocked)
	fmt.Printf("%-20s: %d\n", "生效锁定数", vaultStats.ActiveLocks)
	fmt.Printf("%-20s: %d\n", "交易总数", vaultStats.TotalTransactions)
	fmt.Printf("%-20s: %d\n", "赏金支付总额", platformStats.TotalBountiesPaid)
	fmt.Printf("%-20s: %d\n", "成功攻击数", platformStats.SuccessfulAttacks)

	return nil
}

// setup 初始化日志与配置
func setup() (*logrus.Logger, *config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger := logging.NewLogrusLogger(cfg.Logging)
	return logger, cfg, nil
}

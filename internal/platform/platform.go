package platform

import (
	"context"
	"fmt"

	"zerolock/internal/challenge"
	"zerolock/internal/config"
	"zerolock/internal/events"
	"zerolock/internal/judge"
	"zerolock/internal/leaderboard"
	"zerolock/internal/ports"
	"zerolock/internal/scheduler"
	"zerolock/internal/store"
	"zerolock/internal/vault"
	"zerolock/pkg/models"

	"github.com/sirupsen/logrus"
)

// OperatorPrincipal 平台运维身份
// 没有显式配置管理员时的引导管理员
const OperatorPrincipal models.Principal = "zerolock-operator"

// Platform 装配完成的平台核心
// 各组件通过窄接口注入协作方，调用方身份由组件常量承载
type Platform struct {
	Config      *config.Config
	Logger      *logrus.Logger
	Clock       ports.Clock
	Probe       ports.BalanceProbe
	Deploy      ports.DeployPort
	Vault       *vault.Vault
	Challenges  *challenge.Manager
	Judge       *judge.Judge
	Leaderboard *leaderboard.Leaderboard
	Feed        events.Feed
	Scheduler   *scheduler.Scheduler
	Store       *store.Store

	ethProbe *ports.EthBalanceProbe
}

// New 按配置装配平台
func New(cfg *config.Config, logger *logrus.Logger) (*Platform, error) {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}

	feed, err := events.NewFeed(cfg.Events, logger)
	if err != nil {
		return nil, fmt.Errorf("创建事件输出失败: %w", err)
	}

	p := &Platform{
		Config: cfg,
		Logger: logger,
		Clock:  ports.SystemClock{},
		Feed:   feed,
	}

	// 探针与部署端口按运行模式选择
	switch cfg.Platform.Mode {
	case "eth":
		ethProbe, err := ports.NewEthBalanceProbe(cfg.Blockchain.Nodes, logger)
		if err != nil {
			return nil, fmt.Errorf("创建以太坊探针失败: %w", err)
		}
		p.ethProbe = ethProbe
		p.Probe = ethProbe
		// eth 模式下目标程序由链上自行部署，部署端口只登记标识
		p.Deploy = ports.NewLocalDeployPort(nil, 0)
	default:
		localProbe := ports.NewLocalBalanceProbe()
		p.Probe = localProbe
		p.Deploy = ports.NewLocalDeployPort(localProbe, 0)
	}

	p.Vault = vault.NewVault(p.Clock, ports.NoopTransferPort{}, logger)
	p.Leaderboard = leaderboard.NewLeaderboard(p.Clock, logger)

	// 裁决组件先建，挑战组件引用在装配末尾回填
	p.Judge = judge.NewJudge(
		p.Clock, p.Probe, p.Vault, nil, p.Leaderboard, feed,
		challenge.ComponentPrincipal, logger)

	p.Challenges = challenge.NewManager(
		p.Clock, p.Deploy, p.Vault, p.Judge, p.Leaderboard, feed, logger)

	p.Judge.SetChallengePort(p.Challenges)

	if err := p.bootstrapAuthorization(); err != nil {
		return nil, err
	}

	p.Scheduler = scheduler.NewScheduler(cfg.Scheduler, p.Judge, p.Challenges, logger)

	return p, nil
}

// bootstrapAuthorization 初始化管理员与组件授权
func (p *Platform) bootstrapAuthorization() error {
	admins := make([]models.Principal, 0, len(p.Config.Platform.Admins))
	for _, admin := range p.Config.Platform.Admins {
		admins = append(admins, models.Principal(admin))
	}
	if len(admins) == 0 {
		admins = []models.Principal{OperatorPrincipal}
	}

	bootstrap := admins[0]
	for _, admin := range admins {
		if err := p.Vault.AddAdmin(bootstrap, admin); err != nil {
			return fmt.Errorf("初始化金库管理员失败: %w", err)
		}
		if err := p.Challenges.AddAdmin(bootstrap, admin); err != nil {
			return fmt.Errorf("初始化挑战管理员失败: %w", err)
		}
		if err := p.Judge.AddAdmin(bootstrap, admin); err != nil {
			return fmt.Errorf("初始化裁决管理员失败: %w", err)
		}
	}

	// 金库只接受平台组件的锁定与解锁调用
	if err := p.Vault.AddAuthorizedCaller(bootstrap, challenge.ComponentPrincipal); err != nil {
		return fmt.Errorf("授权挑战组件失败: %w", err)
	}
	if err := p.Vault.AddAuthorizedCaller(bootstrap, judge.ComponentPrincipal); err != nil {
		return fmt.Errorf("授权裁决组件失败: %w", err)
	}

	if p.Config.Platform.FeeRecipient != "" {
		recipient := models.Principal(p.Config.Platform.FeeRecipient)
		if err := p.Vault.SetPlatformFeeRecipient(bootstrap, recipient); err != nil {
			return fmt.Errorf("设置手续费入账方失败: %w", err)
		}
	}

	return nil
}

// OpenStore 打开快照存储，按配置恢复状态
func (p *Platform) OpenStore() error {
	s, err := store.NewStore(p.Config.Store.Path, p.Logger)
	if err != nil {
		return err
	}
	p.Store = s

	if !p.Config.Store.Restore {
		return nil
	}

	if err := p.Vault.Restore(s); err != nil {
		return fmt.Errorf("恢复金库状态失败: %w", err)
	}
	if err := p.Challenges.Restore(s); err != nil {
		return fmt.Errorf("恢复挑战状态失败: %w", err)
	}
	if err := p.Judge.Restore(s); err != nil {
		return fmt.Errorf("恢复裁决状态失败: %w", err)
	}
	if err := p.Leaderboard.Restore(s); err != nil {
		return fmt.Errorf("恢复声誉状态失败: %w", err)
	}
	return nil
}

// Snapshot 保存全部组件快照
func (p *Platform) Snapshot(ctx context.Context) error {
	if p.Store == nil {
		return nil
	}

	if err := p.Vault.Snapshot(p.Store); err != nil {
		return err
	}
	if err := p.Challenges.Snapshot(p.Store); err != nil {
		return err
	}
	if err := p.Judge.Snapshot(p.Store); err != nil {
		return err
	}
	return p.Leaderboard.Snapshot(p.Store)
}

// Close 释放平台资源，不含停机顺序编排
func (p *Platform) Close() {
	if p.Feed != nil {
		if err := p.Feed.Close(); err != nil {
			p.Logger.Warnf("关闭事件输出失败: %v", err)
		}
	}
	if p.Store != nil {
		if err := p.Store.Close(); err != nil {
			p.Logger.Warnf("关闭快照存储失败: %v", err)
		}
	}
	if p.ethProbe != nil {
		p.ethProbe.Close()
	}
}

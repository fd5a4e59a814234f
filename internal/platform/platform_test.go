package platform

import (
	"context"
	"path/filepath"
	"testing"

	"zerolock/internal/config"
	"zerolock/internal/ports"
	"zerolock/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Platform.Admins = []string{"admin-1"}
	cfg.Platform.FeeRecipient = "treasury-1"
	cfg.Store.Path = filepath.Join(t.TempDir(), "platform.db")
	return cfg
}

func TestNew_BootstrapsAuthorization(t *testing.T) {
	p, err := New(testConfig(t), newQuietLogger())
	require.NoError(t, err)
	defer p.Close()

	// 组件已进入金库授权列表
	callers := p.Vault.GetAuthorizedCallers()
	assert.Contains(t, callers, models.Principal("zerolock-challenges"))
	assert.Contains(t, callers, models.Principal("zerolock-judge"))

	// 配置的管理员生效
	assert.Contains(t, p.Vault.GetAdmins(), models.Principal("admin-1"))
	assert.Contains(t, p.Challenges.GetAdmins(), models.Principal("admin-1"))
	assert.Equal(t, models.Principal("treasury-1"), p.Vault.GetPlatformFeeRecipient())
}

func TestNew_DefaultOperatorWhenNoAdmins(t *testing.T) {
	cfg := testConfig(t)
	cfg.Platform.Admins = nil

	p, err := New(cfg, newQuietLogger())
	require.NoError(t, err)
	defer p.Close()

	assert.Contains(t, p.Vault.GetAdmins(), OperatorPrincipal)
}

func TestEndToEnd_CreateDeployEvaluate(t *testing.T) {
	p, err := New(testConfig(t), newQuietLogger())
	require.NoError(t, err)
	defer p.Close()

	company := models.Principal("company-1")
	hacker := models.Principal("hacker-1")

	_, err = p.Vault.Deposit(context.Background(), company, models.NativeToken(), 10*100_000_000)
	require.NoError(t, err)

	id, err := p.Challenges.CreateChallenge(context.Background(), company, &models.CreateChallengeRequest{
		WasmImage:            []byte{0x00, 0x61, 0x73, 0x6d},
		InterfaceDescription: "service : {}",
		BountyAmount:         5 * 100_000_000,
		Duration:             models.MinChallengeDuration,
		Token:                models.NativeToken(),
		Description:          "集成测试",
		DifficultyLevel:      3,
	})
	require.NoError(t, err)

	target, err := p.Challenges.DeployTarget(context.Background(), company, id)
	require.NoError(t, err)

	// 本地模式探针可以直接操纵目标余额
	localProbe, ok := p.Probe.(*ports.LocalBalanceProbe)
	require.True(t, ok)
	localProbe.SetBalance(target, 100)

	// 重建初始余额：本地部署端口初始余额为 0，监控以部署时采样为准
	state, err := p.Judge.GetMonitoringState(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), state.InitialBalance)

	// 初始余额为零的目标上，评估一律无效
	evaluation, err := p.Judge.EvaluateAttack(context.Background(), id, &models.AttackAttempt{
		ID: 1, Hacker: hacker,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionInvalid, evaluation.Decision)
}

func TestSnapshotRoundTrip(t *testing.T) {
	cfg := testConfig(t)

	p, err := New(cfg, newQuietLogger())
	require.NoError(t, err)
	require.NoError(t, p.OpenStore())

	company := models.Principal("company-1")
	_, err = p.Vault.Deposit(context.Background(), company, models.NativeToken(), 100_000_000)
	require.NoError(t, err)

	require.NoError(t, p.Snapshot(context.Background()))
	p.Close()

	// 同一路径重建平台并恢复
	p2, err := New(cfg, newQuietLogger())
	require.NoError(t, err)
	require.NoError(t, p2.OpenStore())
	defer p2.Close()

	balance := p2.Vault.GetBalance(company, models.NativeToken())
	assert.Equal(t, uint64(100_000_000), balance.Available)
}

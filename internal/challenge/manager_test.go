package challenge

import (
	"context"
	"testing"

	"zerolock/internal/errors"
	"zerolock/internal/events"
	"zerolock/internal/judge"
	"zerolock/internal/leaderboard"
	"zerolock/internal/ports"
	"zerolock/internal/vault"
	"zerolock/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const icp = uint64(100_000_000)

const (
	admin     = models.Principal("admin-1")
	company   = models.Principal("company-1")
	hacker    = models.Principal("hacker-1")
	startTime = int64(1_700_000_000) * 1_000_000_000
)

// rig 装配好的组件组合，探针与部署端口为进程内实现
type rig struct {
	clock  *ports.ManualClock
	probe  *ports.LocalBalanceProbe
	deploy *ports.LocalDeployPort
	vault  *vault.Vault
	judge  *judge.Judge
	board  *leaderboard.Leaderboard
	mgr    *Manager
}

// newRig 创建测试装配，目标程序部署后的初始余额为 targetBalance
func newRig(t *testing.T, targetBalance uint64) *rig {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	clock := ports.NewManualClock(startTime)
	probe := ports.NewLocalBalanceProbe()
	deploy := ports.NewLocalDeployPort(probe, targetBalance)

	v := vault.NewVault(clock, ports.NoopTransferPort{}, logger)
	board := leaderboard.NewLeaderboard(clock, logger)
	j := judge.NewJudge(clock, probe, v, nil, board, events.NoopFeed{}, ComponentPrincipal, logger)
	mgr := NewManager(clock, deploy, v, j, board, events.NoopFeed{}, logger)
	j.SetChallengePort(mgr)

	require.NoError(t, v.AddAdmin(admin, admin))
	require.NoError(t, v.AddAuthorizedCaller(admin, ComponentPrincipal))
	require.NoError(t, v.AddAuthorizedCaller(admin, judge.ComponentPrincipal))
	require.NoError(t, mgr.AddAdmin(admin, admin))
	require.NoError(t, j.AddAdmin(admin, admin))

	return &rig{clock: clock, probe: probe, deploy: deploy, vault: v, judge: j, board: board, mgr: mgr}
}

// fund 给公司充值
func (r *rig) fund(t *testing.T, amount uint64) {
	t.Helper()
	_, err := r.vault.Deposit(context.Background(), company, models.NativeToken(), amount)
	require.NoError(t, err)
}

// createRequest 标准挑战创建请求
func createRequest(bounty uint64) *models.CreateChallengeRequest {
	return &models.CreateChallengeRequest{
		WasmImage:            []byte{0x00, 0x61, 0x73, 0x6d},
		InterfaceDescription: "service : {}",
		BountyAmount:         bounty,
		Duration:             models.MinChallengeDuration,
		Token:                models.NativeToken(),
		Description:          "测试挑战",
		DifficultyLevel:      3,
	}
}

func TestCreateChallenge(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, 10*icp)

	id, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(5*icp))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	challenge, err := r.mgr.GetChallenge(id)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeCreated, challenge.Status)
	assert.Equal(t, company, challenge.Company)
	assert.Nil(t, challenge.TargetProgramID)
	assert.Equal(t, startTime+models.MinChallengeDuration, challenge.EndTime)

	// 赏金已锁定
	lock, err := r.vault.GetLockInfo(id)
	require.NoError(t, err)
	assert.Equal(t, models.LockActive, lock.Status)
	assert.Equal(t, 5*icp, lock.Amount)

	// 声誉观察者已记录
	view, err := r.board.GetUserProfile(company)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), view.Profile.CreatedChallenges)
	assert.Equal(t, 5*icp, view.Profile.TotalOffered)
}

func TestCreateChallenge_Rejections(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, 10*icp)

	// 匿名调用者
	_, err := r.mgr.CreateChallenge(context.Background(), models.AnonymousPrincipal, createRequest(5*icp))
	assert.Equal(t, errors.KindUnauthorized, errors.KindOf(err))

	// 持续时间下界减一
	req := createRequest(5 * icp)
	req.Duration = models.MinChallengeDuration - 1
	_, err = r.mgr.CreateChallenge(context.Background(), company, req)
	assert.Equal(t, errors.KindTimeRangeError, errors.KindOf(err))

	// 镜像超限
	req = createRequest(5 * icp)
	req.WasmImage = make([]byte, models.MaxWasmSize+1)
	_, err = r.mgr.CreateChallenge(context.Background(), company, req)
	assert.Equal(t, errors.KindWasmSizeExceeded, errors.KindOf(err))

	// 余额不足时不会留下挑战记录
	req = createRequest(20 * icp)
	_, err = r.mgr.CreateChallenge(context.Background(), company, req)
	assert.Equal(t, errors.KindInsufficientFunds, errors.KindOf(err))
	stats := r.mgr.GetChallengeStats()
	assert.Equal(t, uint64(0), stats.Total)
}

func TestCreateChallenge_Quota(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, icp)

	for i := 0; i < models.MaxChallengesPerUser; i++ {
		_, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(models.MinLockAmount))
		require.NoError(t, err)
	}

	// 第11个拒绝
	_, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(models.MinLockAmount))
	assert.Equal(t, errors.KindResourceLimit, errors.KindOf(err))

	// 取消一个后额度恢复（只统计未完结挑战）
	require.NoError(t, r.mgr.CancelChallenge(context.Background(), company, 1))
	_, err = r.mgr.CreateChallenge(context.Background(), company, createRequest(models.MinLockAmount))
	assert.NoError(t, err)
}

func TestDeployTarget(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, 10*icp)

	id, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(5*icp))
	require.NoError(t, err)

	target, err := r.mgr.DeployTarget(context.Background(), company, id)
	require.NoError(t, err)
	assert.NotEmpty(t, target)

	challenge, err := r.mgr.GetChallenge(id)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeActive, challenge.Status)
	require.NotNil(t, challenge.TargetProgramID)
	assert.Equal(t, target, *challenge.TargetProgramID)

	// 监控已启动且初始余额已采样
	state, err := r.judge.GetMonitoringState(id)
	require.NoError(t, err)
	assert.True(t, state.MonitoringActive)
	assert.Equal(t, uint64(100), state.InitialBalance)
	assert.False(t, state.AttackDetected)
}

func TestDeployTarget_Rejections(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, 10*icp)

	id, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(5*icp))
	require.NoError(t, err)

	// 无关用户
	_, err = r.mgr.DeployTarget(context.Background(), "stranger", id)
	assert.Equal(t, errors.KindPermissionDenied, errors.KindOf(err))

	// 部署成功后重复部署拒绝
	_, err = r.mgr.DeployTarget(context.Background(), company, id)
	require.NoError(t, err)
	_, err = r.mgr.DeployTarget(context.Background(), company, id)
	assert.Equal(t, errors.KindInvalidState, errors.KindOf(err))
}

func TestDeployTarget_FailureLeavesCreated(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, 10*icp)

	id, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(5*icp))
	require.NoError(t, err)

	r.deploy.SetFailing(true)
	_, err = r.mgr.DeployTarget(context.Background(), company, id)
	assert.Error(t, err)

	challenge, err := r.mgr.GetChallenge(id)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeCreated, challenge.Status)
	assert.Nil(t, challenge.TargetProgramID)

	// 故障恢复后可以重试
	r.deploy.SetFailing(false)
	_, err = r.mgr.DeployTarget(context.Background(), company, id)
	assert.NoError(t, err)
}

func TestCancelChallenge(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, 10*icp)

	id, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(5*icp))
	require.NoError(t, err)

	before := r.vault.GetBalance(company, models.NativeToken())
	assert.Equal(t, 5*icp, before.Locked)

	require.NoError(t, r.mgr.CancelChallenge(context.Background(), company, id))

	challenge, err := r.mgr.GetChallenge(id)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeCancelled, challenge.Status)

	// 赏金已退回
	after := r.vault.GetBalance(company, models.NativeToken())
	assert.Equal(t, uint64(0), after.Locked)
	assert.Equal(t, 10*icp, after.Available)
}

func TestCancelChallenge_CompanyOnlyPreActive(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, 10*icp)

	id, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(5*icp))
	require.NoError(t, err)
	_, err = r.mgr.DeployTarget(context.Background(), company, id)
	require.NoError(t, err)

	// 公司在激活后不能取消
	err = r.mgr.CancelChallenge(context.Background(), company, id)
	assert.Equal(t, errors.KindInvalidState, errors.KindOf(err))

	// 管理员可以取消激活中的挑战，监控随之停止
	require.NoError(t, r.mgr.CancelChallenge(context.Background(), admin, id))
	state, err := r.judge.GetMonitoringState(id)
	require.NoError(t, err)
	assert.False(t, state.MonitoringActive)
}

func TestUpdateChallengeStatus_Graph(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, 10*icp)

	id, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(5*icp))
	require.NoError(t, err)

	// 自迁移幂等
	require.NoError(t, r.mgr.UpdateChallengeStatus(company, id, models.ChallengeCreated))

	// Created 不能直接 Completed
	err = r.mgr.UpdateChallengeStatus(company, id, models.ChallengeCompleted)
	assert.Equal(t, errors.KindInvalidState, errors.KindOf(err))

	// 被拒绝的迁移不改变记录
	challenge, err := r.mgr.GetChallenge(id)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeCreated, challenge.Status)

	// 终态不能回退
	require.NoError(t, r.mgr.UpdateChallengeStatus(company, id, models.ChallengeCancelled))
	err = r.mgr.UpdateChallengeStatus(company, id, models.ChallengeCreated)
	assert.Equal(t, errors.KindInvalidState, errors.KindOf(err))
}

func TestSweepExpired(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, 10*icp)

	id, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(5*icp))
	require.NoError(t, err)
	_, err = r.mgr.DeployTarget(context.Background(), company, id)
	require.NoError(t, err)

	// 未到期时清扫不动
	r.mgr.SweepExpired(context.Background())
	challenge, _ := r.mgr.GetChallenge(id)
	assert.Equal(t, models.ChallengeActive, challenge.Status)

	// 越过 end_time 后清扫生效
	r.clock.Advance(models.MinChallengeDuration + 1)
	r.mgr.SweepExpired(context.Background())

	challenge, err = r.mgr.GetChallenge(id)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeExpired, challenge.Status)

	// 锁已释放、全额退回、不收手续费
	lock, err := r.vault.GetLockInfo(id)
	require.NoError(t, err)
	assert.Equal(t, models.LockReleased, lock.Status)

	balance := r.vault.GetBalance(company, models.NativeToken())
	assert.Equal(t, 10*icp, balance.Available)
	assert.Equal(t, uint64(0), balance.Locked)

	// 监控已停止
	state, err := r.judge.GetMonitoringState(id)
	require.NoError(t, err)
	assert.False(t, state.MonitoringActive)
}

func TestSweepExpired_RetriesAfterFailure(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, 10*icp)

	id, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(5*icp))
	require.NoError(t, err)
	_, err = r.mgr.DeployTarget(context.Background(), company, id)
	require.NoError(t, err)

	r.clock.Advance(models.MinChallengeDuration + 1)

	// 金库暂停导致退款失败，挑战保持 Active
	require.NoError(t, r.vault.SetPauseStatus(admin, true))
	r.mgr.SweepExpired(context.Background())

	challenge, _ := r.mgr.GetChallenge(id)
	assert.Equal(t, models.ChallengeActive, challenge.Status)

	// 下个周期重试成功
	require.NoError(t, r.vault.SetPauseStatus(admin, false))
	r.mgr.SweepExpired(context.Background())

	challenge, _ = r.mgr.GetChallenge(id)
	assert.Equal(t, models.ChallengeExpired, challenge.Status)
}

func TestListChallenges(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, icp)

	for i := 0; i < 3; i++ {
		r.clock.Advance(1_000_000_000)
		_, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(models.MinLockAmount))
		require.NoError(t, err)
	}
	require.NoError(t, r.mgr.CancelChallenge(context.Background(), company, 2))

	// limit 超限拒绝
	_, err := r.mgr.ListChallenges(nil, 0, 101)
	assert.Equal(t, errors.KindPaginationError, errors.KindOf(err))

	// 创建时间倒序
	page, err := r.mgr.ListChallenges(nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.Total)
	assert.Equal(t, uint64(3), page.Data[0].ID)
	assert.False(t, page.HasMore)

	// 状态过滤
	cancelled := models.ChallengeCancelled
	page, err = r.mgr.ListChallenges(&cancelled, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), page.Total)
	assert.Equal(t, uint64(2), page.Data[0].ID)

	// 分页
	page, err = r.mgr.ListChallenges(nil, 1, 1)
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.True(t, page.HasMore)
}

func TestGetCompanyChallenges(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, icp)

	_, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(models.MinLockAmount))
	require.NoError(t, err)

	page, err := r.mgr.GetCompanyChallenges(company, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), page.Total)

	page, err = r.mgr.GetCompanyChallenges("other-company", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}

func TestGetChallengeStats(t *testing.T) {
	r := newRig(t, 100)
	r.fund(t, icp)

	id1, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(models.MinLockAmount))
	require.NoError(t, err)
	id2, err := r.mgr.CreateChallenge(context.Background(), company, createRequest(models.MinLockAmount))
	require.NoError(t, err)

	_, err = r.mgr.DeployTarget(context.Background(), company, id1)
	require.NoError(t, err)
	require.NoError(t, r.mgr.CancelChallenge(context.Background(), company, id2))

	stats := r.mgr.GetChallengeStats()
	assert.Equal(t, uint64(2), stats.Total)
	assert.Equal(t, uint64(1), stats.Active)
	assert.Equal(t, uint64(1), stats.Cancelled)
}

package judge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"zerolock/internal/errors"
	"zerolock/internal/events"
	"zerolock/internal/ports"
	"zerolock/internal/validation"
	"zerolock/pkg/models"

	"github.com/sirupsen/logrus"
)

// ComponentPrincipal 裁决组件的身份标识
// 金库与挑战组件以此校验调用方
const ComponentPrincipal models.Principal = "zerolock-judge"

const componentName = "judge"

// maxConsecutiveProbeFailures 连续探测失败升级为网络错误日志的阈值
const maxConsecutiveProbeFailures = 3

// VaultPort 裁决组件对金库的依赖
type VaultPort interface {
	UnlockFunds(caller models.Principal, req *models.UnlockRequest) error
	GetLockInfo(challengeID uint64) (*models.LockInfo, error)
}

// ChallengePort 裁决组件对挑战组件的依赖
type ChallengePort interface {
	UpdateChallengeStatus(caller models.Principal, id uint64, status models.ChallengeStatus) error
}

// ReputationPort 声誉观察者依赖，所有调用尽力而为
type ReputationPort interface {
	RecordSuccessfulAttack(hacker models.Principal, challengeID uint64, bounty uint64, token models.TokenType) error
}

// Judge 监控与裁决引擎
// 独占监控状态、余额快照环、评估记录与争议记录
// 结算决策由本组件路由：金库只被动响应，从不回调
type Judge struct {
	logger       *logrus.Logger
	clock        ports.Clock
	probe        ports.BalanceProbe
	vault        VaultPort
	challenges   ChallengePort
	reputation   ReputationPort
	feed         events.Feed
	errorHandler *errors.ErrorHandler

	mu            sync.RWMutex
	states        map[uint64]*models.MonitoringState
	history       map[models.Principal][]*models.BalanceSnapshot
	evaluations   map[uint64]*models.Evaluation
	disputes      map[uint64]*models.DisputeCase
	probeFailures map[uint64]int

	nextEvaluationID uint64
	nextDisputeID    uint64
	admins           map[models.Principal]bool

	// 唯一被允许启停监控的组件
	challengeComponent models.Principal
}

// NewJudge 创建裁决引擎
func NewJudge(
	clock ports.Clock,
	probe ports.BalanceProbe,
	vault VaultPort,
	challenges ChallengePort,
	reputation ReputationPort,
	feed events.Feed,
	challengeComponent models.Principal,
	logger *logrus.Logger,
) *Judge {
	return &Judge{
		logger:             logger,
		clock:              clock,
		probe:              probe,
		vault:              vault,
		challenges:         challenges,
		reputation:         reputation,
		feed:               feed,
		errorHandler:       errors.NewErrorHandler(logger),
		states:             make(map[uint64]*models.MonitoringState),
		history:            make(map[models.Principal][]*models.BalanceSnapshot),
		evaluations:        make(map[uint64]*models.Evaluation),
		disputes:           make(map[uint64]*models.DisputeCase),
		probeFailures:      make(map[uint64]int),
		nextEvaluationID:   1,
		nextDisputeID:      1,
		admins:             make(map[models.Principal]bool),
		challengeComponent: challengeComponent,
	}
}

// SetChallengePort 设置挑战组件引用
// 组件间存在构造顺序上的环，挑战组件建成后由装配方回填
func (j *Judge) SetChallengePort(challenges ChallengePort) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.challenges = challenges
}

// StartMonitoring 开始监控挑战的目标程序
// 只有挑战组件可以调用；探测失败时整个调用中止
func (j *Judge) StartMonitoring(ctx context.Context, caller models.Principal, challengeID uint64, target models.Principal) error {
	if caller != j.challengeComponent {
		return errors.Unauthorized("只有挑战组件可以启动监控").
			WithComponent(componentName).WithChallengeID(challengeID)
	}

	j.mu.RLock()
	if existing, exists := j.states[challengeID]; exists && existing.MonitoringActive {
		j.mu.RUnlock()
		return errors.InvalidState("该挑战已在监控中").
			WithComponent(componentName).WithChallengeID(challengeID)
	}
	j.mu.RUnlock()

	// 初始余额采样在锁外进行
	initialBalance, err := j.probe.Probe(ctx, target)
	if err != nil {
		return errors.NetworkError("初始余额探测失败", err).
			WithComponent(componentName).WithChallengeID(challengeID)
	}

	now := j.clock.Now()

	j.mu.Lock()
	defer j.mu.Unlock()

	if existing, exists := j.states[challengeID]; exists && existing.MonitoringActive {
		return errors.InvalidState("该挑战已在监控中").
			WithComponent(componentName).WithChallengeID(challengeID)
	}

	j.states[challengeID] = &models.MonitoringState{
		ChallengeID:      challengeID,
		Target:           target,
		InitialBalance:   initialBalance,
		CurrentBalance:   initialBalance,
		LastCheck:        now,
		MonitoringActive: true,
		AttackDetected:   false,
	}
	j.probeFailures[challengeID] = 0
	j.appendSnapshot(target, initialBalance, now)

	j.logger.WithFields(logrus.Fields{
		"challenge_id":    challengeID,
		"target":          target.String(),
		"initial_balance": initialBalance,
	}).Info("监控已启动")
	return nil
}

// StopMonitoring 停止监控
// Stopped 为终态，只能通过新挑战重新进入监控
func (j *Judge) StopMonitoring(caller models.Principal, challengeID uint64) error {
	if caller != j.challengeComponent && caller != ComponentPrincipal {
		return errors.Unauthorized("只有挑战组件可以停止监控").
			WithComponent(componentName).WithChallengeID(challengeID)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	state, exists := j.states[challengeID]
	if !exists {
		return errors.NotFound("该挑战没有监控状态").
			WithComponent(componentName).WithChallengeID(challengeID)
	}

	state.MonitoringActive = false
	j.logger.Infof("挑战 %d 监控已停止", challengeID)
	return nil
}

// Tick 周期性余额检查
// 调度器以至少一次语义投递；按 last_check + interval 判定保证重复投递幂等
// 探测失败跳过本轮且不推进 last_check，连续三次失败升级为网络错误日志
func (j *Judge) Tick(ctx context.Context) {
	now := j.clock.Now()

	j.mu.RLock()
	due := make([]*models.MonitoringState, 0)
	for _, state := range j.states {
		if state.MonitoringActive && now-state.LastCheck >= models.BalanceCheckInterval {
			copied := *state
			due = append(due, &copied)
		}
	}
	j.mu.RUnlock()

	for _, snapshot := range due {
		balance, err := j.probe.Probe(ctx, snapshot.Target)
		if err != nil {
			j.recordProbeFailure(snapshot.ChallengeID, err)
			continue
		}

		j.mu.Lock()
		state, exists := j.states[snapshot.ChallengeID]
		if !exists || !state.MonitoringActive {
			j.mu.Unlock()
			continue
		}

		j.probeFailures[snapshot.ChallengeID] = 0
		state.CurrentBalance = balance
		state.LastCheck = now
		j.appendSnapshot(state.Target, balance, now)

		if pct, ok := dropPercentage(state.InitialBalance, balance); ok && pct >= models.AttackThresholdPercentage {
			if !state.AttackDetected {
				j.logger.WithFields(logrus.Fields{
					"challenge_id": state.ChallengeID,
					"drop_pct":     pct,
				}).Warn("检测到疑似攻击")
			}
			// 粘滞标志，监控停止前不再清除
			state.AttackDetected = true
		}
		j.mu.Unlock()
	}
}

// EvaluateAttack 评估一次攻击尝试
// 任何人都可以提交；判定只依据余额观测
// 解锁失败时评估记录保留、挑战不翻转，返回评估与错误供调用方重试
func (j *Judge) EvaluateAttack(ctx context.Context, challengeID uint64, attempt *models.AttackAttempt) (*models.Evaluation, error) {
	if attempt == nil {
		return nil, errors.InvalidInput("攻击尝试为空").WithComponent(componentName)
	}
	if err := validation.CheckCallerNotAnonymous(attempt.Hacker); err != nil {
		return nil, err.WithComponent(componentName)
	}

	j.mu.RLock()
	state, exists := j.states[challengeID]
	if !exists {
		j.mu.RUnlock()
		return nil, errors.NotFound("该挑战没有监控状态").
			WithComponent(componentName).WithChallengeID(challengeID)
	}
	if !state.MonitoringActive {
		j.mu.RUnlock()
		return nil, errors.InvalidState("该挑战的监控未激活").
			WithComponent(componentName).WithChallengeID(challengeID)
	}
	target := state.Target
	j.mu.RUnlock()

	// 评估时刻重新采样
	balance, err := j.probe.Probe(ctx, target)
	if err != nil {
		return nil, errors.NetworkError("评估时余额探测失败", err).
			WithComponent(componentName).WithChallengeID(challengeID)
	}

	now := j.clock.Now()

	j.mu.Lock()
	state, exists = j.states[challengeID]
	if !exists || !state.MonitoringActive {
		j.mu.Unlock()
		return nil, errors.InvalidState("该挑战的监控未激活").
			WithComponent(componentName).WithChallengeID(challengeID)
	}

	state.CurrentBalance = balance
	state.LastCheck = now
	j.appendSnapshot(state.Target, balance, now)

	decision := models.DecisionInvalid
	var reasoning string
	if pct, ok := dropPercentage(state.InitialBalance, balance); ok {
		if pct >= models.AttackThresholdPercentage {
			decision = models.DecisionValid
		}
		decrease := state.InitialBalance - min64(state.InitialBalance, balance)
		reasoning = fmt.Sprintf("余额下降 %d%%（%d 基础单位），判定阈值 %d%%",
			pct, decrease, models.AttackThresholdPercentage)
	} else {
		reasoning = "no initial balance"
	}

	evaluationID := j.nextEvaluationID
	j.nextEvaluationID++
	evaluation := &models.Evaluation{
		ID:              evaluationID,
		ChallengeID:     challengeID,
		AttackAttemptID: attempt.ID,
		Decision:        decision,
		Reasoning:       reasoning,
		Timestamp:       now,
		Evaluator:       ComponentPrincipal,
	}
	j.evaluations[evaluationID] = evaluation

	if decision == models.DecisionValid {
		state.AttackDetected = true
	}
	j.mu.Unlock()

	j.publish(&models.Event{
		Type: models.EventAttackAttempted, ChallengeID: challengeID,
		Actor: attempt.Hacker, Timestamp: now,
	})

	j.logger.WithFields(logrus.Fields{
		"challenge_id": challengeID,
		"hacker":       attempt.Hacker.String(),
		"decision":     string(decision),
	}).Info("攻击已评估")

	if decision != models.DecisionValid {
		return evaluation, nil
	}

	// 有效攻击触发结算，全部在锁外进行
	lock, err := j.vault.GetLockInfo(challengeID)
	if err != nil {
		return evaluation, errors.AsPlatformError(err).WithChallengeID(challengeID)
	}
	if lock.Status != models.LockActive {
		// 并发评估在金库的单一生效锁上串行化，后到者在此失败
		return evaluation, errors.InvalidState("锁定已不在生效状态").
			WithComponent(componentName).WithChallengeID(challengeID)
	}
	token := lock.Token

	// 支付全部锁定金额
	if err := j.vault.UnlockFunds(ComponentPrincipal, &models.UnlockRequest{
		ChallengeID: challengeID,
		Recipient:   attempt.Hacker,
		Amount:      lock.Amount,
		Reason:      models.BountyPayoutReason(attempt.Hacker),
	}); err != nil {
		return evaluation, err
	}

	if err := j.challenges.UpdateChallengeStatus(ComponentPrincipal, challengeID, models.ChallengeCompleted); err != nil {
		j.logger.Errorf("挑战 %d 状态翻转失败: %v", challengeID, err)
	}

	j.mu.Lock()
	if state, exists := j.states[challengeID]; exists {
		state.MonitoringActive = false
	}
	j.mu.Unlock()

	if err := j.reputation.RecordSuccessfulAttack(attempt.Hacker, challengeID, lock.Amount, token); err != nil {
		j.logger.Warnf("声誉观察者通知失败: %v", err)
	}

	j.publish(&models.Event{
		Type: models.EventAttackSuccessful, ChallengeID: challengeID,
		Actor: attempt.Hacker, Amount: lock.Amount, Token: token, Timestamp: now,
	})
	j.publish(&models.Event{
		Type: models.EventBountyPaid, ChallengeID: challengeID,
		Recipient: attempt.Hacker, Amount: lock.Amount, Token: token, Timestamp: now,
	})
	j.publish(&models.Event{
		Type: models.EventChallengeCompleted, ChallengeID: challengeID,
		Recipient: attempt.Hacker, Timestamp: now,
	})

	j.logger.WithFields(logrus.Fields{
		"challenge_id": challengeID,
		"winner":       attempt.Hacker.String(),
		"amount":       lock.Amount,
	}).Info("结算完成")
	return evaluation, nil
}

// CreateDispute 创建争议
func (j *Judge) CreateDispute(caller models.Principal, challengeID, attemptID uint64, reason string, evidence [][]byte) (uint64, error) {
	if err := validation.CheckCallerNotAnonymous(caller); err != nil {
		return 0, err.WithComponent(componentName)
	}
	if reason == "" {
		return 0, errors.InvalidInput("争议原因不能为空").WithComponent(componentName)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.nextDisputeID
	j.nextDisputeID++

	j.disputes[id] = &models.DisputeCase{
		ID:              id,
		ChallengeID:     challengeID,
		AttackAttemptID: attemptID,
		Disputer:        caller,
		Reason:          reason,
		Evidence:        evidence,
		Status:          models.DisputeOpen,
		CreatedAt:       j.clock.Now(),
	}

	j.logger.Infof("争议已创建: ID=%d, 挑战=%d", id, challengeID)
	return id, nil
}

// ResolveDispute 裁定争议，仅管理员可用
// 裁定结果仅作参考，不会自动回滚结算
func (j *Judge) ResolveDispute(caller models.Principal, disputeID uint64, status models.DisputeStatus, resolutionText string) error {
	if status != models.DisputeResolved && status != models.DisputeRejected {
		return errors.InvalidInput("裁定结果只能为 Resolved 或 Rejected").WithComponent(componentName)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.admins[caller] {
		return errors.Unauthorized("只有管理员可以裁定争议").WithComponent(componentName)
	}

	dispute, exists := j.disputes[disputeID]
	if !exists {
		return errors.NotFound("争议不存在").WithComponent(componentName)
	}
	if dispute.Status.IsClosed() {
		return errors.InvalidState("争议已关闭").WithComponent(componentName)
	}

	now := j.clock.Now()
	dispute.Status = status
	dispute.ResolvedAt = &now
	dispute.Resolution = &resolutionText

	j.logger.Infof("争议已裁定: ID=%d, 结果=%s", disputeID, status)
	return nil
}

// GetMonitoringState 查询监控状态
func (j *Judge) GetMonitoringState(challengeID uint64) (*models.MonitoringState, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	state, exists := j.states[challengeID]
	if !exists {
		return nil, errors.NotFound("该挑战没有监控状态").
			WithComponent(componentName).WithChallengeID(challengeID)
	}
	copied := *state
	return &copied, nil
}

// GetEvaluations 查询挑战的评估历史，时间倒序
func (j *Judge) GetEvaluations(challengeID uint64) []*models.Evaluation {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := make([]*models.Evaluation, 0)
	for _, evaluation := range j.evaluations {
		if evaluation.ChallengeID == challengeID {
			copied := *evaluation
			result = append(result, &copied)
		}
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].Timestamp != result[k].Timestamp {
			return result[i].Timestamp > result[k].Timestamp
		}
		return result[i].ID > result[k].ID
	})
	return result
}

// GetBalanceHistory 查询目标的余额快照，返回最近 limit 条
func (j *Judge) GetBalanceHistory(target models.Principal, limit uint64) []*models.BalanceSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	snapshots, exists := j.history[target]
	if !exists || limit == 0 {
		return []*models.BalanceSnapshot{}
	}

	count := int(limit)
	if count > len(snapshots) {
		count = len(snapshots)
	}

	result := make([]*models.BalanceSnapshot, 0, count)
	for _, snapshot := range snapshots[len(snapshots)-count:] {
		copied := *snapshot
		result = append(result, &copied)
	}
	return result
}

// GetOpenDisputes 查询未关闭的争议，创建时间倒序
func (j *Judge) GetOpenDisputes() []*models.DisputeCase {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := make([]*models.DisputeCase, 0)
	for _, dispute := range j.disputes {
		if !dispute.Status.IsClosed() {
			copied := *dispute
			result = append(result, &copied)
		}
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].CreatedAt != result[k].CreatedAt {
			return result[i].CreatedAt > result[k].CreatedAt
		}
		return result[i].ID > result[k].ID
	})
	return result
}

// JudgeConfig 裁决配置信息
type JudgeConfig struct {
	ChallengeComponent   models.Principal `json:"challenge_component"`
	BalanceCheckInterval int64            `json:"balance_check_interval"`
	AttackThreshold      uint64           `json:"attack_threshold"`
}

// GetConfig 查询裁决配置
func (j *Judge) GetConfig() *JudgeConfig {
	return &JudgeConfig{
		ChallengeComponent:   j.challengeComponent,
		BalanceCheckInterval: models.BalanceCheckInterval,
		AttackThreshold:      models.AttackThresholdPercentage,
	}
}

// AddAdmin 添加管理员，集合为空时允许初始引导
func (j *Judge) AddAdmin(caller, newAdmin models.Principal) error {
	if newAdmin.IsAnonymous() {
		return errors.InvalidInput("管理员身份不能为匿名").WithComponent(componentName)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.admins) > 0 && !j.admins[caller] {
		return errors.Unauthorized("只有管理员可以添加管理员").WithComponent(componentName)
	}
	if j.admins[newAdmin] {
		return errors.AlreadyExists("该身份已是管理员").WithComponent(componentName)
	}

	j.admins[newAdmin] = true
	j.logger.Infof("裁决组件管理员已添加: %s", newAdmin.String())
	return nil
}

// 内部辅助函数

// appendSnapshot 追加余额快照，环满时淘汰最旧的一条
// 调用方需持有写锁
func (j *Judge) appendSnapshot(target models.Principal, balance uint64, timestamp int64) {
	snapshots := j.history[target]
	if len(snapshots) >= models.MaxBalanceHistory {
		snapshots = snapshots[1:]
	}
	j.history[target] = append(snapshots, &models.BalanceSnapshot{
		Target:    target,
		Balance:   balance,
		Timestamp: timestamp,
	})
}

// recordProbeFailure 记录探测失败，连续三次升级为网络错误日志
func (j *Judge) recordProbeFailure(challengeID uint64, err error) {
	j.mu.Lock()
	j.probeFailures[challengeID]++
	failures := j.probeFailures[challengeID]
	j.mu.Unlock()

	if failures >= maxConsecutiveProbeFailures {
		netErr := errors.NetworkError(
			fmt.Sprintf("挑战 %d 连续 %d 次探测失败", challengeID, failures), err).
			WithComponent(componentName).WithChallengeID(challengeID)
		netErr.Severity = errors.SeverityHigh
		_ = j.errorHandler.HandleError(context.Background(), netErr)
		return
	}

	j.logger.Debugf("挑战 %d 本轮探测失败，跳过: %v", challengeID, err)
}

// dropPercentage 计算余额下降百分比
// 初始余额为零时无法计算，返回 ok=false
func dropPercentage(initial, current uint64) (uint64, bool) {
	if initial == 0 {
		return 0, false
	}
	if current >= initial {
		return 0, true
	}
	return (initial - current) * 100 / initial, true
}

// min64 返回较小值
func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// publish 发布事件，失败只记日志
func (j *Judge) publish(event *models.Event) {
	if j.feed == nil {
		return
	}
	if err := j.feed.Publish(event); err != nil {
		j.logger.Warnf("事件发布失败 (%s): %v", event.Type, err)
	}
}

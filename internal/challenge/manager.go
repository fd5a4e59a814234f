package challenge

import (
	"context"
	"sort"
	"sync"

	"zerolock/internal/errors"
	"zerolock/internal/events"
	"zerolock/internal/ports"
	"zerolock/internal/retry"
	"zerolock/internal/validation"
	"zerolock/pkg/models"

	"github.com/sirupsen/logrus"
)

// ComponentPrincipal 挑战组件的身份标识
// 金库与裁决组件以此校验调用方
const ComponentPrincipal models.Principal = "zerolock-challenges"

// JudgePrincipal 裁决组件身份，结算时由其更新挑战状态
const JudgePrincipal models.Principal = "zerolock-judge"

const componentName = "challenge"

// VaultPort 挑战组件对金库的依赖
type VaultPort interface {
	LockFunds(caller models.Principal, req *models.LockRequest) error
	UnlockFunds(caller models.Principal, req *models.UnlockRequest) error
	GetLockInfo(challengeID uint64) (*models.LockInfo, error)
}

// MonitorPort 挑战组件对裁决组件的依赖
type MonitorPort interface {
	StartMonitoring(ctx context.Context, caller models.Principal, challengeID uint64, target models.Principal) error
	StopMonitoring(caller models.Principal, challengeID uint64) error
}

// ReputationPort 声誉观察者依赖，所有调用尽力而为
type ReputationPort interface {
	RecordChallengeCreated(company models.Principal, challengeID uint64, bounty uint64, token models.TokenType) error
}

// Manager 挑战生命周期管理器
// 独占挑战记录与创建者额度索引
type Manager struct {
	logger     *logrus.Logger
	clock      ports.Clock
	deploy     ports.DeployPort
	vault      VaultPort
	monitor    MonitorPort
	reputation ReputationPort
	feed       events.Feed
	validator  *validation.Validator

	mu         sync.RWMutex
	challenges map[uint64]*models.Challenge
	nextID     uint64
	admins     map[models.Principal]bool
}

// NewManager 创建挑战生命周期管理器
func NewManager(
	clock ports.Clock,
	deploy ports.DeployPort,
	vault VaultPort,
	monitor MonitorPort,
	reputation ReputationPort,
	feed events.Feed,
	logger *logrus.Logger,
) *Manager {
	return &Manager{
		logger:     logger,
		clock:      clock,
		deploy:     deploy,
		vault:      vault,
		monitor:    monitor,
		reputation: reputation,
		feed:       feed,
		validator:  validation.NewValidator(logger),
		challenges: make(map[uint64]*models.Challenge),
		nextID:     1,
		admins:     make(map[models.Principal]bool),
	}
}

// CreateChallenge 创建挑战并立即锁定赏金
// 锁定失败时挑战不会被持久化
func (m *Manager) CreateChallenge(ctx context.Context, caller models.Principal, req *models.CreateChallengeRequest) (uint64, error) {
	if err := validation.CheckCallerNotAnonymous(caller); err != nil {
		return 0, err.WithComponent(componentName)
	}

	result := m.validator.ValidateChallengeRequest(req)
	if !result.Valid {
		return 0, result.Errors[0].WithComponent(componentName)
	}

	// 额度检查与ID分配
	m.mu.Lock()
	if m.countNonTerminal(caller) >= models.MaxChallengesPerUser {
		m.mu.Unlock()
		return 0, errors.ResourceLimit("超出单用户未完结挑战数上限").WithComponent(componentName)
	}
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	// 锁定时长受金库上限约束，挑战到期由过期清扫负责释放
	lockDuration := req.Duration
	if lockDuration > models.MaxLockDuration {
		lockDuration = models.MaxLockDuration
	}

	if err := m.vault.LockFunds(ComponentPrincipal, &models.LockRequest{
		ChallengeID: id,
		Company:     caller,
		Amount:      req.BountyAmount,
		Token:       req.Token,
		Duration:    lockDuration,
	}); err != nil {
		return 0, err
	}

	now := m.clock.Now()
	challenge := &models.Challenge{
		ID:                   id,
		Company:              caller,
		WasmImage:            req.WasmImage,
		InterfaceDescription: req.InterfaceDescription,
		BountyAmount:         req.BountyAmount,
		Token:                req.Token,
		StartTime:            now,
		EndTime:              now + req.Duration,
		Status:               models.ChallengeCreated,
		Description:          req.Description,
		DifficultyLevel:      req.DifficultyLevel,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	m.mu.Lock()
	m.challenges[id] = challenge
	m.mu.Unlock()

	// 事件与声誉通知尽力而为，失败不回滚
	m.publish(&models.Event{
		Type: models.EventFundsLocked, ChallengeID: id,
		Actor: caller, Amount: req.BountyAmount, Token: req.Token, Timestamp: now,
	})
	m.publish(&models.Event{
		Type: models.EventChallengeCreated, ChallengeID: id,
		Actor: caller, Amount: req.BountyAmount, Token: req.Token, Timestamp: now,
	})
	if err := m.reputation.RecordChallengeCreated(caller, id, req.BountyAmount, req.Token); err != nil {
		m.logger.Warnf("声誉观察者通知失败: %v", err)
	}

	m.logger.WithFields(logrus.Fields{
		"challenge_id": id,
		"company":      caller.String(),
		"bounty":       req.BountyAmount,
	}).Info("挑战已创建")
	return id, nil
}

// GetChallenge 查询单个挑战
func (m *Manager) GetChallenge(id uint64) (*models.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	challenge, exists := m.challenges[id]
	if !exists {
		return nil, errors.NotFound("挑战不存在").WithComponent(componentName).WithChallengeID(id)
	}
	copied := *challenge
	return &copied, nil
}

// ListChallenges 按状态过滤分页查询，创建时间倒序
func (m *Manager) ListChallenges(status *models.ChallengeStatus, offset, limit uint64) (*models.ChallengePage, error) {
	if err := validation.ValidatePagination(offset, limit); err != nil {
		return nil, err.WithComponent(componentName)
	}

	m.mu.RLock()
	filtered := make([]*models.Challenge, 0, len(m.challenges))
	for _, challenge := range m.challenges {
		if status != nil && challenge.Status != *status {
			continue
		}
		copied := *challenge
		filtered = append(filtered, &copied)
	}
	m.mu.RUnlock()

	return paginate(filtered, offset, limit), nil
}

// GetCompanyChallenges 查询某公司创建的挑战，创建时间倒序
func (m *Manager) GetCompanyChallenges(company models.Principal, offset, limit uint64) (*models.ChallengePage, error) {
	if err := validation.ValidatePagination(offset, limit); err != nil {
		return nil, err.WithComponent(componentName)
	}

	m.mu.RLock()
	filtered := make([]*models.Challenge, 0)
	for _, challenge := range m.challenges {
		if challenge.Company == company {
			copied := *challenge
			filtered = append(filtered, &copied)
		}
	}
	m.mu.RUnlock()

	return paginate(filtered, offset, limit), nil
}

// GetChallengeStats 按状态统计挑战数量
func (m *Manager) GetChallengeStats() *models.ChallengeStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.ChallengeStats{}
	for _, challenge := range m.challenges {
		stats.Total++
		switch challenge.Status {
		case models.ChallengeActive:
			stats.Active++
		case models.ChallengeCompleted:
			stats.Completed++
		case models.ChallengeExpired:
			stats.Expired++
		case models.ChallengeCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// UpdateChallengeStatus 更新挑战状态
// 只允许状态图中的迁移，自迁移幂等放行；调用方需为公司、管理员或平台组件
func (m *Manager) UpdateChallengeStatus(caller models.Principal, id uint64, newStatus models.ChallengeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	challenge, exists := m.challenges[id]
	if !exists {
		return errors.NotFound("挑战不存在").WithComponent(componentName).WithChallengeID(id)
	}

	if caller != challenge.Company && !m.admins[caller] && !isPlatformComponent(caller) {
		return errors.PermissionDenied("无权更新该挑战的状态").
			WithComponent(componentName).WithChallengeID(id)
	}

	if !challenge.Status.CanTransitionTo(newStatus) {
		return errors.InvalidState("不允许的状态迁移").
			WithComponent(componentName).WithChallengeID(id).
			WithContext("from", string(challenge.Status)).
			WithContext("to", string(newStatus))
	}

	if challenge.Status != newStatus {
		challenge.Status = newStatus
		challenge.UpdatedAt = m.clock.Now()
		m.logger.Infof("挑战 %d 状态更新为 %s", id, newStatus)
	}
	return nil
}

// DeployTarget 部署挑战的目标程序
// 成功后挑战进入 Active 并开始监控；任何一步失败都保持 Created 不变
func (m *Manager) DeployTarget(ctx context.Context, caller models.Principal, id uint64) (models.Principal, error) {
	m.mu.RLock()
	challenge, exists := m.challenges[id]
	if !exists {
		m.mu.RUnlock()
		return "", errors.NotFound("挑战不存在").WithComponent(componentName).WithChallengeID(id)
	}
	if caller != challenge.Company && !m.admins[caller] {
		m.mu.RUnlock()
		return "", errors.PermissionDenied("无权为该挑战部署目标程序").
			WithComponent(componentName).WithChallengeID(id)
	}
	if challenge.Status != models.ChallengeCreated {
		m.mu.RUnlock()
		return "", errors.InvalidState("只有 Created 状态的挑战可以部署目标程序").
			WithComponent(componentName).WithChallengeID(id)
	}
	wasmImage := challenge.WasmImage
	m.mu.RUnlock()

	// 部署与监控启动都在锁外进行，瞬时网络故障做有限重试
	var target models.Principal
	err := retry.RetryNetworkOperation(ctx, "deploy_target", func() error {
		deployed, deployErr := m.deploy.Deploy(ctx, wasmImage, nil)
		if deployErr != nil {
			return deployErr
		}
		target = deployed
		return nil
	}, m.logger)
	if err != nil {
		return "", errors.AsPlatformError(err).WithComponent(componentName).WithChallengeID(id)
	}

	if err := m.monitor.StartMonitoring(ctx, ComponentPrincipal, id, target); err != nil {
		m.logger.Warnf("挑战 %d 监控启动失败，保持 Created: %v", id, err)
		return "", errors.AsPlatformError(err).WithChallengeID(id)
	}

	m.mu.Lock()
	challenge, exists = m.challenges[id]
	if !exists || challenge.Status != models.ChallengeCreated {
		m.mu.Unlock()
		return "", errors.InvalidState("部署期间挑战状态已变化").
			WithComponent(componentName).WithChallengeID(id)
	}
	challenge.TargetProgramID = &target
	challenge.Status = models.ChallengeActive
	challenge.UpdatedAt = m.clock.Now()
	m.mu.Unlock()

	m.publish(&models.Event{
		Type: models.EventChallengeActivated, ChallengeID: id,
		Actor: challenge.Company, Timestamp: m.clock.Now(),
	})

	m.logger.WithFields(logrus.Fields{
		"challenge_id": id,
		"target":       target.String(),
	}).Info("目标程序已部署，挑战进入 Active")
	return target, nil
}

// CancelChallenge 取消挑战
// 公司只能在激活前取消，管理员可在任何非终态取消；取消会释放锁定的赏金
func (m *Manager) CancelChallenge(ctx context.Context, caller models.Principal, id uint64) error {
	m.mu.RLock()
	challenge, exists := m.challenges[id]
	if !exists {
		m.mu.RUnlock()
		return errors.NotFound("挑战不存在").WithComponent(componentName).WithChallengeID(id)
	}

	isAdmin := m.admins[caller]
	status := challenge.Status
	company := challenge.Company
	m.mu.RUnlock()

	if caller != company && !isAdmin {
		return errors.PermissionDenied("无权取消该挑战").
			WithComponent(componentName).WithChallengeID(id)
	}
	if caller == company && !isAdmin && status != models.ChallengeCreated {
		return errors.InvalidState("公司只能在挑战激活前取消").
			WithComponent(componentName).WithChallengeID(id)
	}
	if !status.CanTransitionTo(models.ChallengeCancelled) {
		return errors.InvalidState("当前状态不允许取消").
			WithComponent(componentName).WithChallengeID(id)
	}

	// 激活中的挑战先停监控
	if status == models.ChallengeActive {
		if err := m.monitor.StopMonitoring(ComponentPrincipal, id); err != nil {
			return errors.AsPlatformError(err).WithChallengeID(id)
		}
	}

	// 释放锁定的赏金
	if lock, err := m.vault.GetLockInfo(id); err == nil && lock.Status == models.LockActive {
		if err := m.vault.UnlockFunds(ComponentPrincipal, &models.UnlockRequest{
			ChallengeID: id,
			Recipient:   company,
			Amount:      lock.Amount,
			Reason:      models.UnlockReason{Kind: models.UnlockChallengeCancelled},
		}); err != nil {
			return err
		}
	}

	m.mu.Lock()
	challenge, exists = m.challenges[id]
	if !exists {
		m.mu.Unlock()
		return errors.NotFound("挑战不存在").WithComponent(componentName).WithChallengeID(id)
	}
	challenge.Status = models.ChallengeCancelled
	challenge.UpdatedAt = m.clock.Now()
	m.mu.Unlock()

	m.publish(&models.Event{
		Type: models.EventChallengeCancelled, ChallengeID: id,
		Actor: caller, Timestamp: m.clock.Now(),
	})

	m.logger.Infof("挑战 %d 已取消", id)
	return nil
}

// ExpireChallenge 手动过期一个挑战，公司或管理员可用
func (m *Manager) ExpireChallenge(ctx context.Context, caller models.Principal, id uint64) error {
	m.mu.RLock()
	challenge, exists := m.challenges[id]
	if !exists {
		m.mu.RUnlock()
		return errors.NotFound("挑战不存在").WithComponent(componentName).WithChallengeID(id)
	}
	company := challenge.Company
	status := challenge.Status
	m.mu.RUnlock()

	if caller != company && !m.isAdmin(caller) {
		return errors.PermissionDenied("无权过期该挑战").
			WithComponent(componentName).WithChallengeID(id)
	}
	if status != models.ChallengeActive {
		return errors.InvalidState("只有 Active 状态的挑战可以过期").
			WithComponent(componentName).WithChallengeID(id)
	}

	return m.expireOne(ctx, id)
}

// SweepExpired 过期清扫
// 由调度器周期触发；任何一步失败都保持 Active，下个周期重试
func (m *Manager) SweepExpired(ctx context.Context) {
	now := m.clock.Now()

	m.mu.RLock()
	expired := make([]uint64, 0)
	for id, challenge := range m.challenges {
		if challenge.Status == models.ChallengeActive && challenge.EndTime <= now {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		if err := m.expireOne(ctx, id); err != nil {
			m.logger.Warnf("挑战 %d 过期处理失败，下个周期重试: %v", id, err)
		}
	}
}

// expireOne 过期单个挑战：停监控、退款、置 Expired
func (m *Manager) expireOne(ctx context.Context, id uint64) error {
	if err := m.monitor.StopMonitoring(ComponentPrincipal, id); err != nil {
		return errors.AsPlatformError(err).WithChallengeID(id)
	}

	lock, err := m.vault.GetLockInfo(id)
	if err == nil && lock.Status == models.LockActive {
		m.mu.RLock()
		challenge, exists := m.challenges[id]
		if !exists {
			m.mu.RUnlock()
			return errors.NotFound("挑战不存在").WithComponent(componentName).WithChallengeID(id)
		}
		company := challenge.Company
		m.mu.RUnlock()

		if err := m.vault.UnlockFunds(ComponentPrincipal, &models.UnlockRequest{
			ChallengeID: id,
			Recipient:   company,
			Amount:      lock.Amount,
			Reason:      models.UnlockReason{Kind: models.UnlockChallengeExpired},
		}); err != nil {
			return err
		}
	}

	m.mu.Lock()
	challenge, exists := m.challenges[id]
	if !exists {
		m.mu.Unlock()
		return errors.NotFound("挑战不存在").WithComponent(componentName).WithChallengeID(id)
	}
	if !challenge.Status.CanTransitionTo(models.ChallengeExpired) {
		m.mu.Unlock()
		return errors.InvalidState("当前状态不允许过期").
			WithComponent(componentName).WithChallengeID(id)
	}
	challenge.Status = models.ChallengeExpired
	challenge.UpdatedAt = m.clock.Now()
	m.mu.Unlock()

	m.publish(&models.Event{
		Type: models.EventChallengeExpired, ChallengeID: id, Timestamp: m.clock.Now(),
	})

	m.logger.Infof("挑战 %d 已过期", id)
	return nil
}

// AddAdmin 添加管理员，集合为空时允许初始引导
func (m *Manager) AddAdmin(caller, newAdmin models.Principal) error {
	if newAdmin.IsAnonymous() {
		return errors.InvalidInput("管理员身份不能为匿名").WithComponent(componentName)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.admins) > 0 && !m.admins[caller] {
		return errors.Unauthorized("只有管理员可以添加管理员").WithComponent(componentName)
	}
	if m.admins[newAdmin] {
		return errors.AlreadyExists("该身份已是管理员").WithComponent(componentName)
	}

	m.admins[newAdmin] = true
	m.logger.Infof("挑战组件管理员已添加: %s", newAdmin.String())
	return nil
}

// GetAdmins 返回管理员列表
func (m *Manager) GetAdmins() []models.Principal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Principal, 0, len(m.admins))
	for p := range m.admins {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// 内部辅助函数

// countNonTerminal 统计某用户未完结的挑战数，调用方需持有锁
func (m *Manager) countNonTerminal(user models.Principal) uint64 {
	var count uint64
	for _, challenge := range m.challenges {
		if challenge.Company == user && !challenge.Status.IsFinal() {
			count++
		}
	}
	return count
}

// isAdmin 判断是否为管理员
func (m *Manager) isAdmin(p models.Principal) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admins[p]
}

// isPlatformComponent 判断是否为平台内部组件
func isPlatformComponent(p models.Principal) bool {
	return p == ComponentPrincipal || p == JudgePrincipal
}

// publish 发布事件，失败只记日志
func (m *Manager) publish(event *models.Event) {
	if m.feed == nil {
		return
	}
	if err := m.feed.Publish(event); err != nil {
		m.logger.Warnf("事件发布失败 (%s): %v", event.Type, err)
	}
}

// paginate 按创建时间倒序分页
func paginate(items []*models.Challenge, offset, limit uint64) *models.ChallengePage {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt > items[j].CreatedAt
		}
		return items[i].ID > items[j].ID
	})

	total := uint64(len(items))
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &models.ChallengePage{
		Data:    items[start:end],
		Total:   total,
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+(end-start) < total,
	}
}

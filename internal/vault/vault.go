package vault

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"zerolock/internal/errors"
	"zerolock/internal/ports"
	"zerolock/internal/validation"
	"zerolock/pkg/models"

	"github.com/sirupsen/logrus"
)

// VaultPrincipal 金库自身的身份标识，托管类交易的对手方
const VaultPrincipal models.Principal = "zerolock-vault"

// DefaultFeeRecipient 平台手续费的默认入账方
const DefaultFeeRecipient models.Principal = "zerolock-treasury"

const componentName = "vault"

// Vault 托管账本
// 独占余额行、锁定记录、交易日志与暂停开关
// 所有变更操作对余额行、锁定记录和交易日志整体原子生效
type Vault struct {
	logger   *logrus.Logger
	clock    ports.Clock
	transfer ports.TransferPort

	mu           sync.RWMutex
	balances     map[string]*models.Balance
	locks        map[uint64]*models.LockInfo
	transactions []*models.Transaction
	nextTxID     uint64

	authorizedCallers map[models.Principal]bool
	admins            map[models.Principal]bool
	feeRecipient      models.Principal
	paused            bool
}

// NewVault 创建金库
func NewVault(clock ports.Clock, transfer ports.TransferPort, logger *logrus.Logger) *Vault {
	return &Vault{
		logger:            logger,
		clock:             clock,
		transfer:          transfer,
		balances:          make(map[string]*models.Balance),
		locks:             make(map[uint64]*models.LockInfo),
		transactions:      make([]*models.Transaction, 0),
		nextTxID:          1,
		authorizedCallers: make(map[models.Principal]bool),
		admins:            make(map[models.Principal]bool),
		feeRecipient:      DefaultFeeRecipient,
	}
}

// Deposit 用户存入资金
// 进入托管的资金记为一条 Lock 类交易，挑战ID为 0
func (v *Vault) Deposit(ctx context.Context, caller models.Principal, token models.TokenType, amount uint64) (uint64, error) {
	if err := validation.CheckCallerNotAnonymous(caller); err != nil {
		return 0, err.WithComponent(componentName)
	}
	if amount == 0 {
		return 0, errors.InvalidInput("存入金额必须大于 0").WithComponent(componentName)
	}
	if err := validation.ValidateTokenType(token); err != nil {
		return 0, err.WithComponent(componentName)
	}

	v.mu.RLock()
	paused := v.paused
	v.mu.RUnlock()
	if paused {
		return 0, errors.InvalidState("paused").WithComponent(componentName)
	}

	// 外部轨道先行，最简模式下为空操作
	// 端口调用不在锁内，失败时本地状态未被触碰
	if err := v.transfer.Transfer(ctx, caller, VaultPrincipal, token, amount); err != nil {
		return 0, errors.NetworkError("外部转账失败", err).WithComponent(componentName)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused {
		return 0, errors.InvalidState("paused").WithComponent(componentName)
	}

	balance := v.balanceRow(caller, token)
	balance.Available += amount
	balance.Total += amount

	txID := v.appendTransaction(models.TxLock, 0, caller, VaultPrincipal, amount, token)

	v.logger.WithFields(logrus.Fields{
		"user":   caller.String(),
		"amount": amount,
		"token":  token.String(),
	}).Info("存入完成")
	return txID, nil
}

// LockFunds 为挑战锁定资金
// 调用方必须在授权列表中
func (v *Vault) LockFunds(caller models.Principal, req *models.LockRequest) error {
	if req == nil {
		return errors.InvalidInput("锁定请求为空").WithComponent(componentName)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.authorizedCallers[caller] {
		return errors.Unauthorized("只有授权组件可以锁定资金").WithComponent(componentName)
	}
	if v.paused {
		return errors.InvalidState("paused").WithComponent(componentName)
	}

	if req.Amount < models.MinLockAmount {
		return errors.InvalidInput("锁定金额低于最小阈值").WithComponent(componentName)
	}
	if req.Duration <= 0 || req.Duration > models.MaxLockDuration {
		return errors.InvalidInput("锁定时长超出允许范围").WithComponent(componentName)
	}

	if existing, exists := v.locks[req.ChallengeID]; exists && existing.Status == models.LockActive {
		return errors.InvalidState("该挑战已存在生效中的锁定").
			WithComponent(componentName).WithChallengeID(req.ChallengeID)
	}

	key := models.BalanceKey(req.Company, req.Token)
	balance, exists := v.balances[key]
	if !exists {
		return errors.InsufficientFunds("该代币下没有余额").WithComponent(componentName)
	}
	if balance.Available < req.Amount {
		return errors.InsufficientFunds("可用余额不足").WithComponent(componentName)
	}

	// 可用转入锁定，总额不变
	balance.Available -= req.Amount
	balance.Locked += req.Amount

	now := v.clock.Now()
	v.locks[req.ChallengeID] = &models.LockInfo{
		ChallengeID: req.ChallengeID,
		Company:     req.Company,
		Amount:      req.Amount,
		Token:       req.Token,
		LockedAt:    now,
		ExpiresAt:   now + req.Duration,
		Status:      models.LockActive,
	}

	v.appendTransaction(models.TxLock, req.ChallengeID, req.Company, VaultPrincipal, req.Amount, req.Token)

	if err := v.checkBalanceInvariant(balance); err != nil {
		return err
	}

	v.logger.WithFields(logrus.Fields{
		"challenge_id": req.ChallengeID,
		"company":      req.Company.String(),
		"amount":       req.Amount,
	}).Info("资金已锁定")
	return nil
}

// UnlockFunds 按挑战结果解锁并划转资金
// 赏金支付从毛额中扣除平台手续费，其余原因全额划转
func (v *Vault) UnlockFunds(caller models.Principal, req *models.UnlockRequest) error {
	if req == nil {
		return errors.InvalidInput("解锁请求为空").WithComponent(componentName)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.authorizedCallers[caller] {
		return errors.Unauthorized("只有授权组件可以解锁资金").WithComponent(componentName)
	}
	if v.paused {
		return errors.InvalidState("paused").WithComponent(componentName)
	}

	lock, exists := v.locks[req.ChallengeID]
	if !exists {
		return errors.NotFound("该挑战没有锁定的资金").
			WithComponent(componentName).WithChallengeID(req.ChallengeID)
	}
	if lock.Status != models.LockActive {
		return errors.InvalidState("锁定已不在生效状态").
			WithComponent(componentName).WithChallengeID(req.ChallengeID)
	}
	if req.Amount > lock.Amount {
		return errors.InvalidInput("解锁金额超过锁定金额").WithComponent(componentName)
	}
	if req.Amount == 0 {
		return errors.InvalidInput("解锁金额必须大于 0").WithComponent(componentName)
	}

	// 手续费只在赏金支付时收取，按毛额计，整数除法向零截断
	var fee, net uint64
	if req.Reason.Kind == models.UnlockBountyPayout {
		fee = req.Amount * models.PlatformFeeBasisPoints / 10000
		net = req.Amount - fee
	} else {
		fee = 0
		net = req.Amount
	}

	companyKey := models.BalanceKey(lock.Company, lock.Token)
	companyBalance, exists := v.balances[companyKey]
	if !exists || companyBalance.Locked < req.Amount {
		// 锁定记录与余额行失配属于不变量破坏
		invErr := errors.Internal("锁定金额与公司余额行失配").
			WithComponent(componentName).WithChallengeID(req.ChallengeID)
		v.logger.WithFields(logrus.Fields{
			"challenge_id":     req.ChallengeID,
			"invariant_breach": true,
		}).Error(invErr.Message)
		return invErr
	}

	// 所有写入在校验全部通过后一次性生效
	companyBalance.Locked -= req.Amount
	companyBalance.Total -= req.Amount

	if net > 0 {
		recipient := v.balanceRow(req.Recipient, lock.Token)
		recipient.Available += net
		recipient.Total += net
	}

	if fee > 0 {
		feeBalance := v.balanceRow(v.feeRecipient, lock.Token)
		feeBalance.Available += fee
		feeBalance.Total += fee
	}

	lock.Status = models.LockReleased

	// 净额交易：支付、退款或管理员解锁
	txType := models.TxRefund
	switch req.Reason.Kind {
	case models.UnlockBountyPayout:
		txType = models.TxPayout
	case models.UnlockAdminOverride:
		txType = models.TxUnlock
	}
	if net > 0 {
		v.appendTransaction(txType, req.ChallengeID, lock.Company, req.Recipient, net, lock.Token)
	}
	if fee > 0 {
		v.appendTransaction(models.TxFee, req.ChallengeID, lock.Company, v.feeRecipient, fee, lock.Token)
	}

	if err := v.checkBalanceInvariant(companyBalance); err != nil {
		return err
	}

	v.logger.WithFields(logrus.Fields{
		"challenge_id": req.ChallengeID,
		"recipient":    req.Recipient.String(),
		"net":          net,
		"fee":          fee,
		"reason":       string(req.Reason.Kind),
	}).Info("资金已解锁")
	return nil
}

// GetBalance 查询余额行，不存在时返回零余额
func (v *Vault) GetBalance(user models.Principal, token models.TokenType) *models.Balance {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if balance, exists := v.balances[models.BalanceKey(user, token)]; exists {
		copied := *balance
		return &copied
	}
	return models.ZeroBalance(user, token)
}

// GetLockInfo 查询挑战的锁定记录
func (v *Vault) GetLockInfo(challengeID uint64) (*models.LockInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	lock, exists := v.locks[challengeID]
	if !exists {
		return nil, errors.NotFound("该挑战没有锁定记录").
			WithComponent(componentName).WithChallengeID(challengeID)
	}
	copied := *lock
	return &copied, nil
}

// GetTransactionHistory 分页查询用户交易历史，时间倒序
func (v *Vault) GetTransactionHistory(user models.Principal, offset, limit uint64) (*models.TransactionPage, error) {
	if err := validation.ValidatePagination(offset, limit); err != nil {
		return nil, err.WithComponent(componentName)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	filtered := make([]*models.Transaction, 0)
	for _, tx := range v.transactions {
		if tx.From == user || tx.To == user {
			filtered = append(filtered, tx)
		}
	}

	// 时间倒序，同一时刻按ID倒序
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Timestamp != filtered[j].Timestamp {
			return filtered[i].Timestamp > filtered[j].Timestamp
		}
		return filtered[i].ID > filtered[j].ID
	})

	// 单用户扫描的返回上限
	if len(filtered) > models.MaxTransactionHistory {
		filtered = filtered[:models.MaxTransactionHistory]
	}

	total := uint64(len(filtered))
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	data := make([]*models.Transaction, 0, end-start)
	for _, tx := range filtered[start:end] {
		copied := *tx
		data = append(data, &copied)
	}

	return &models.TransactionPage{
		Data:    data,
		Total:   total,
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+uint64(len(data)) < total,
	}, nil
}

// GetVaultStats 金库统计
func (v *Vault) GetVaultStats() *models.VaultStats {
	v.mu.RLock()
	defer v.mu.RUnlock()

	stats := &models.VaultStats{}
	for _, lock := range v.locks {
		if lock.Status == models.LockActive {
			stats.TotalLocked += lock.Amount
			stats.ActiveLocks++
		}
	}

	stats.TotalTransactions = uint64(len(v.transactions))
	for _, tx := range v.transactions {
		if tx.Status == models.TxCompleted {
			stats.TotalVolume += tx.Amount
		}
	}
	return stats
}

// AddAdmin 添加管理员
// 管理员集合为空时允许任何非匿名调用者完成初始引导
func (v *Vault) AddAdmin(caller, newAdmin models.Principal) error {
	if err := validation.CheckCallerNotAnonymous(newAdmin); err != nil {
		return errors.InvalidInput("管理员身份不能为匿名").WithComponent(componentName)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.admins) > 0 && !v.admins[caller] {
		return errors.Unauthorized("只有管理员可以添加管理员").WithComponent(componentName)
	}
	if v.admins[newAdmin] {
		return errors.AlreadyExists("该身份已是管理员").WithComponent(componentName)
	}

	v.admins[newAdmin] = true
	v.logger.Infof("金库管理员已添加: %s", newAdmin.String())
	return nil
}

// GetAdmins 返回管理员列表
func (v *Vault) GetAdmins() []models.Principal {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return principalSet(v.admins)
}

// AddAuthorizedCaller 添加授权调用组件，仅管理员可用
func (v *Vault) AddAuthorizedCaller(caller, component models.Principal) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.admins[caller] {
		return errors.Unauthorized("只有管理员可以修改授权列表").WithComponent(componentName)
	}
	if v.authorizedCallers[component] {
		return errors.AlreadyExists("该组件已在授权列表中").WithComponent(componentName)
	}

	v.authorizedCallers[component] = true
	v.logger.Infof("授权调用组件已添加: %s", component.String())
	return nil
}

// GetAuthorizedCallers 返回授权调用组件列表
func (v *Vault) GetAuthorizedCallers() []models.Principal {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return principalSet(v.authorizedCallers)
}

// SetPauseStatus 设置暂停开关，仅管理员可用
// 暂停只拒绝变更操作，查询不受影响
func (v *Vault) SetPauseStatus(caller models.Principal, paused bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.admins[caller] {
		return errors.Unauthorized("只有管理员可以设置暂停状态").WithComponent(componentName)
	}

	v.paused = paused
	v.logger.Infof("金库暂停状态设置为: %t", paused)
	return nil
}

// IsPaused 查询暂停状态
func (v *Vault) IsPaused() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.paused
}

// SetPlatformFeeRecipient 设置手续费入账方，仅管理员可用
func (v *Vault) SetPlatformFeeRecipient(caller, recipient models.Principal) error {
	if err := validation.CheckCallerNotAnonymous(recipient); err != nil {
		return errors.InvalidInput("手续费入账方不能为匿名").WithComponent(componentName)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.admins[caller] {
		return errors.Unauthorized("只有管理员可以设置手续费入账方").WithComponent(componentName)
	}

	v.feeRecipient = recipient
	v.logger.Infof("手续费入账方设置为: %s", recipient.String())
	return nil
}

// GetPlatformFeeRecipient 查询手续费入账方
func (v *Vault) GetPlatformFeeRecipient() models.Principal {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.feeRecipient
}

// 内部辅助函数，调用方必须已持有写锁

// balanceRow 取出余额行，首次入账时创建
func (v *Vault) balanceRow(owner models.Principal, token models.TokenType) *models.Balance {
	key := models.BalanceKey(owner, token)
	if balance, exists := v.balances[key]; exists {
		return balance
	}
	balance := models.ZeroBalance(owner, token)
	v.balances[key] = balance
	return balance
}

// appendTransaction 追加一条已完成交易并返回其ID
func (v *Vault) appendTransaction(txType models.TransactionType, challengeID uint64, from, to models.Principal, amount uint64, token models.TokenType) uint64 {
	id := v.nextTxID
	v.nextTxID++

	v.transactions = append(v.transactions, &models.Transaction{
		ID:          id,
		Type:        txType,
		ChallengeID: challengeID,
		From:        from,
		To:          to,
		Amount:      amount,
		Token:       token,
		Timestamp:   v.clock.Now(),
		Status:      models.TxCompleted,
	})
	return id
}

// checkBalanceInvariant 校验余额行不变量 total = available + locked
func (v *Vault) checkBalanceInvariant(balance *models.Balance) *errors.PlatformError {
	if balance.Total != balance.Available+balance.Locked {
		invErr := errors.Internal(fmt.Sprintf(
			"余额行不变量被破坏: owner=%s total=%d available=%d locked=%d",
			balance.Owner.String(), balance.Total, balance.Available, balance.Locked)).
			WithComponent(componentName)
		v.logger.WithField("invariant_breach", true).Error(invErr.Message)
		return invErr
	}
	return nil
}

// principalSet 集合转有序切片
func principalSet(set map[models.Principal]bool) []models.Principal {
	result := make([]models.Principal, 0, len(set))
	for p := range set {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

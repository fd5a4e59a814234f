package models

// Balance 余额行
// 不变量: Total = Available + Locked，首次入账时创建，永不物理删除
type Balance struct {
	Owner     Principal `json:"owner"`
	Token     TokenType `json:"token"`
	Available uint64    `json:"available"`
	Locked    uint64    `json:"locked"`
	Total     uint64    `json:"total"`
}

// ZeroBalance 返回指定用户和代币的零余额行
func ZeroBalance(owner Principal, token TokenType) *Balance {
	return &Balance{Owner: owner, Token: token}
}

// LockStatus 锁定记录状态
type LockStatus string

const (
	LockActive   LockStatus = "Active"
	LockReleased LockStatus = "Released"
	LockExpired  LockStatus = "Expired"
)

// LockInfo 锁定记录
// 每个挑战同一时刻至多存在一条 Active 锁
type LockInfo struct {
	ChallengeID uint64     `json:"challenge_id"`
	Company     Principal  `json:"company"`
	Amount      uint64     `json:"amount"`
	Token       TokenType  `json:"token"`
	LockedAt    int64      `json:"locked_at"`
	ExpiresAt   int64      `json:"expires_at"`
	Status      LockStatus `json:"status"`
}

// LockRequest 锁定请求
type LockRequest struct {
	ChallengeID uint64    `json:"challenge_id"`
	Company     Principal `json:"company"`
	Amount      uint64    `json:"amount"`
	Token       TokenType `json:"token"`
	Duration    int64     `json:"duration"` // 纳秒
}

// UnlockReasonKind 解锁原因种类
type UnlockReasonKind string

const (
	UnlockBountyPayout       UnlockReasonKind = "BountyPayout"
	UnlockChallengeExpired   UnlockReasonKind = "ChallengeExpired"
	UnlockChallengeCancelled UnlockReasonKind = "ChallengeCancelled"
	UnlockAdminOverride      UnlockReasonKind = "AdminOverride"
)

// UnlockReason 解锁原因
// BountyPayout 携带获胜黑客，AdminOverride 携带说明文本
type UnlockReason struct {
	Kind   UnlockReasonKind `json:"kind"`
	Winner Principal        `json:"winner,omitempty"`
	Note   string           `json:"note,omitempty"`
}

// BountyPayoutReason 构造赏金支付解锁原因
func BountyPayoutReason(winner Principal) UnlockReason {
	return UnlockReason{Kind: UnlockBountyPayout, Winner: winner}
}

// UnlockRequest 解锁请求
type UnlockRequest struct {
	ChallengeID uint64       `json:"challenge_id"`
	Recipient   Principal    `json:"recipient"`
	Amount      uint64       `json:"amount"`
	Reason      UnlockReason `json:"reason"`
}

// TransactionType 金库交易类型
type TransactionType string

const (
	TxLock   TransactionType = "Lock"   // 资金进入托管或锁定
	TxUnlock TransactionType = "Unlock" // 解锁
	TxPayout TransactionType = "Payout" // 赏金支付
	TxRefund TransactionType = "Refund" // 退还公司
	TxFee    TransactionType = "Fee"    // 平台手续费
)

// TransactionStatus 交易状态
type TransactionStatus string

const (
	TxPending   TransactionStatus = "Pending"
	TxCompleted TransactionStatus = "Completed"
	TxFailed    TransactionStatus = "Failed"
	TxCancelled TransactionStatus = "Cancelled"
)

// Transaction 金库交易记录，只追加
type Transaction struct {
	ID          uint64            `json:"id"`
	Type        TransactionType   `json:"type"`
	ChallengeID uint64            `json:"challenge_id"` // 非挑战类入账为 0
	From        Principal         `json:"from"`
	To          Principal         `json:"to"`
	Amount      uint64            `json:"amount"`
	Token       TokenType         `json:"token"`
	Timestamp   int64             `json:"timestamp"`
	Status      TransactionStatus `json:"status"`
}

// TransactionPage 交易分页结果
type TransactionPage struct {
	Data    []*Transaction `json:"data"`
	Total   uint64         `json:"total"`
	Offset  uint64         `json:"offset"`
	Limit   uint64         `json:"limit"`
	HasMore bool           `json:"has_more"`
}

// VaultStats 金库统计
type VaultStats struct {
	TotalLocked       uint64 `json:"total_locked"`
	TotalTransactions uint64 `json:"total_transactions"`
	ActiveLocks       uint64 `json:"active_locks"`
	TotalVolume       uint64 `json:"total_volume"`
}

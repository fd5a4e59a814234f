package models

// JudgeDecision 裁决结论
type JudgeDecision string

const (
	DecisionValid    JudgeDecision = "Valid"    // 攻击有效，触发赏金支付
	DecisionInvalid  JudgeDecision = "Invalid"  // 攻击无效
	DecisionDisputed JudgeDecision = "Disputed" // 需人工复核
	DecisionPending  JudgeDecision = "Pending"  // 评估中
)

// MonitoringState 单个挑战的监控状态
// attack_detected 一旦置位即保持，直到监控停止
type MonitoringState struct {
	ChallengeID      uint64    `json:"challenge_id"`
	Target           Principal `json:"target"`
	InitialBalance   uint64    `json:"initial_balance"`
	CurrentBalance   uint64    `json:"current_balance"`
	LastCheck        int64     `json:"last_check"`
	MonitoringActive bool      `json:"monitoring_active"`
	AttackDetected   bool      `json:"attack_detected"`
}

// BalanceSnapshot 目标余额快照
type BalanceSnapshot struct {
	Target    Principal `json:"target"`
	Balance   uint64    `json:"balance"`
	Timestamp int64     `json:"timestamp"`
}

// Evaluation 评估记录
type Evaluation struct {
	ID              uint64        `json:"id"`
	ChallengeID     uint64        `json:"challenge_id"`
	AttackAttemptID uint64        `json:"attack_attempt_id"`
	Decision        JudgeDecision `json:"decision"`
	Reasoning       string        `json:"reasoning"`
	Timestamp       int64         `json:"timestamp"`
	Evaluator       Principal     `json:"evaluator"`
}

// DisputeStatus 争议状态
type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "Open"
	DisputeUnderReview DisputeStatus = "UnderReview"
	DisputeResolved    DisputeStatus = "Resolved"
	DisputeRejected    DisputeStatus = "Rejected"
)

// IsClosed 判断争议是否已关闭
func (s DisputeStatus) IsClosed() bool {
	return s == DisputeResolved || s == DisputeRejected
}

// DisputeCase 争议记录
// 争议裁决仅作参考，不会自动回滚已完成的结算
type DisputeCase struct {
	ID              uint64        `json:"id"`
	ChallengeID     uint64        `json:"challenge_id"`
	AttackAttemptID uint64        `json:"attack_attempt_id"`
	Disputer        Principal     `json:"disputer"`
	Reason          string        `json:"reason"`
	Evidence        [][]byte      `json:"evidence,omitempty"`
	Status          DisputeStatus `json:"status"`
	CreatedAt       int64         `json:"created_at"`
	ResolvedAt      *int64        `json:"resolved_at,omitempty"`
	Resolution      *string       `json:"resolution,omitempty"`
}

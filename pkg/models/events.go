package models

// EventType 跨组件事件类型
type EventType string

const (
	EventChallengeCreated   EventType = "challenge_created"
	EventChallengeActivated EventType = "challenge_activated"
	EventAttackAttempted    EventType = "attack_attempted"
	EventAttackSuccessful   EventType = "attack_successful"
	EventChallengeCompleted EventType = "challenge_completed"
	EventChallengeExpired   EventType = "challenge_expired"
	EventChallengeCancelled EventType = "challenge_cancelled"
	EventFundsLocked        EventType = "funds_locked"
	EventBountyPaid         EventType = "bounty_paid"
)

// Event 平台事件
// 事件发布是尽力而为的，失败不会回滚触发它的操作
type Event struct {
	Type        EventType `json:"type"`
	ChallengeID uint64    `json:"challenge_id"`
	Actor       Principal `json:"actor,omitempty"`
	Recipient   Principal `json:"recipient,omitempty"`
	Amount      uint64    `json:"amount,omitempty"`
	Token       TokenType `json:"token,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}

// PaginationParams 分页参数
type PaginationParams struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

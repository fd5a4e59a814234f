package models

// ChallengeStatus 挑战生命周期状态
type ChallengeStatus string

const (
	ChallengeCreated   ChallengeStatus = "Created"   // 已创建，尚未激活
	ChallengeActive    ChallengeStatus = "Active"    // 进行中，接受攻击
	ChallengeCompleted ChallengeStatus = "Completed" // 被黑客成功完成
	ChallengeExpired   ChallengeStatus = "Expired"   // 超过时限
	ChallengeCancelled ChallengeStatus = "Cancelled" // 被公司或管理员取消
)

// IsFinal 判断是否为终态
func (s ChallengeStatus) IsFinal() bool {
	switch s {
	case ChallengeCompleted, ChallengeExpired, ChallengeCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo 判断状态迁移是否允许
// 自迁移幂等放行，其余只允许状态图中的边
func (s ChallengeStatus) CanTransitionTo(next ChallengeStatus) bool {
	switch {
	case s == ChallengeCreated && next == ChallengeActive:
		return true
	case s == ChallengeCreated && next == ChallengeCancelled:
		return true
	case s == ChallengeActive && next == ChallengeCompleted:
		return true
	case s == ChallengeActive && next == ChallengeExpired:
		return true
	case s == ChallengeActive && next == ChallengeCancelled:
		return true
	default:
		return s == next
	}
}

// Challenge 挑战记录
type Challenge struct {
	ID                   uint64          `json:"id"`
	Company              Principal       `json:"company"`
	TargetProgramID      *Principal      `json:"target_program_id,omitempty"`
	WasmImage            []byte          `json:"wasm_image"`
	InterfaceDescription string          `json:"interface_description"`
	BountyAmount         uint64          `json:"bounty_amount"`
	Token                TokenType       `json:"token"`
	StartTime            int64           `json:"start_time"`
	EndTime              int64           `json:"end_time"`
	Status               ChallengeStatus `json:"status"`
	Description          string          `json:"description"`
	DifficultyLevel      uint8           `json:"difficulty_level"`
	CreatedAt            int64           `json:"created_at"`
	UpdatedAt            int64           `json:"updated_at"`
}

// CreateChallengeRequest 挑战创建请求
type CreateChallengeRequest struct {
	WasmImage            []byte    `json:"wasm_image"`
	InterfaceDescription string    `json:"interface_description"`
	BountyAmount         uint64    `json:"bounty_amount"`
	Duration             int64     `json:"duration"` // 纳秒
	Token                TokenType `json:"token"`
	Description          string    `json:"description"`
	DifficultyLevel      uint8     `json:"difficulty_level"`
}

// ChallengeStats 按状态统计的挑战数量
type ChallengeStats struct {
	Total     uint64 `json:"total"`
	Active    uint64 `json:"active"`
	Completed uint64 `json:"completed"`
	Expired   uint64 `json:"expired"`
	Cancelled uint64 `json:"cancelled"`
}

// ChallengePage 挑战分页结果
type ChallengePage struct {
	Data    []*Challenge `json:"data"`
	Total   uint64       `json:"total"`
	Offset  uint64       `json:"offset"`
	Limit   uint64       `json:"limit"`
	HasMore bool         `json:"has_more"`
}

// AttackAttempt 攻击尝试记录
type AttackAttempt struct {
	ID          uint64    `json:"id"`
	ChallengeID uint64    `json:"challenge_id"`
	Hacker      Principal `json:"hacker"`
	Timestamp   int64     `json:"timestamp"`
	Success     bool      `json:"success"`
	Proof       []byte    `json:"proof,omitempty"`
	GasUsed     uint64    `json:"gas_used"`
}

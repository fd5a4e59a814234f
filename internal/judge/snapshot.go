package judge

import (
	"encoding/json"
	"fmt"

	"zerolock/internal/store"
	"zerolock/pkg/models"
)

// judgeMeta 随快照保存的单例状态
type judgeMeta struct {
	Admins             []models.Principal `json:"admins"`
	ChallengeComponent models.Principal   `json:"challenge_component"`
}

// Snapshot 把裁决状态写入快照存储
func (j *Judge) Snapshot(s *store.Store) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	states := make(map[string][]byte, len(j.states))
	for id, state := range j.states {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("序列化监控状态失败: %w", err)
		}
		states[store.IDKey(id)] = data
	}
	if err := s.ReplaceAll(store.JudgeMonitoringBucket, states); err != nil {
		return err
	}

	evaluations := make(map[string][]byte, len(j.evaluations))
	for id, evaluation := range j.evaluations {
		data, err := json.Marshal(evaluation)
		if err != nil {
			return fmt.Errorf("序列化评估记录失败: %w", err)
		}
		evaluations[store.IDKey(id)] = data
	}
	if err := s.ReplaceAll(store.JudgeEvaluationsBucket, evaluations); err != nil {
		return err
	}

	disputes := make(map[string][]byte, len(j.disputes))
	for id, dispute := range j.disputes {
		data, err := json.Marshal(dispute)
		if err != nil {
			return fmt.Errorf("序列化争议记录失败: %w", err)
		}
		disputes[store.IDKey(id)] = data
	}
	if err := s.ReplaceAll(store.JudgeDisputesBucket, disputes); err != nil {
		return err
	}

	history := make(map[string][]byte, len(j.history))
	for target, snapshots := range j.history {
		data, err := json.Marshal(snapshots)
		if err != nil {
			return fmt.Errorf("序列化快照环失败: %w", err)
		}
		history[string(target)] = data
	}
	if err := s.ReplaceAll(store.JudgeHistoryBucket, history); err != nil {
		return err
	}

	if err := s.PutCounter("judge_next_evaluation_id", j.nextEvaluationID); err != nil {
		return err
	}
	if err := s.PutCounter("judge_next_dispute_id", j.nextDisputeID); err != nil {
		return err
	}

	admins := make([]models.Principal, 0, len(j.admins))
	for p := range j.admins {
		admins = append(admins, p)
	}
	if err := s.PutJSON(store.MetaBucket, "judge_meta", &judgeMeta{
		Admins:             admins,
		ChallengeComponent: j.challengeComponent,
	}); err != nil {
		return err
	}

	j.logger.Infof("裁决快照已保存: %d 监控状态, %d 评估, %d 争议",
		len(j.states), len(j.evaluations), len(j.disputes))
	return nil
}

// Restore 从快照存储恢复裁决状态
func (j *Judge) Restore(s *store.Store) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	states := make(map[uint64]*models.MonitoringState)
	err := s.ForEach(store.JudgeMonitoringBucket, func(key, value []byte) error {
		var state models.MonitoringState
		if err := json.Unmarshal(value, &state); err != nil {
			return fmt.Errorf("反序列化监控状态失败: %w", err)
		}
		states[state.ChallengeID] = &state
		return nil
	})
	if err != nil {
		return err
	}

	evaluations := make(map[uint64]*models.Evaluation)
	err = s.ForEach(store.JudgeEvaluationsBucket, func(key, value []byte) error {
		var evaluation models.Evaluation
		if err := json.Unmarshal(value, &evaluation); err != nil {
			return fmt.Errorf("反序列化评估记录失败: %w", err)
		}
		evaluations[evaluation.ID] = &evaluation
		return nil
	})
	if err != nil {
		return err
	}

	disputes := make(map[uint64]*models.DisputeCase)
	err = s.ForEach(store.JudgeDisputesBucket, func(key, value []byte) error {
		var dispute models.DisputeCase
		if err := json.Unmarshal(value, &dispute); err != nil {
			return fmt.Errorf("反序列化争议记录失败: %w", err)
		}
		disputes[dispute.ID] = &dispute
		return nil
	})
	if err != nil {
		return err
	}

	history := make(map[models.Principal][]*models.BalanceSnapshot)
	err = s.ForEach(store.JudgeHistoryBucket, func(key, value []byte) error {
		var snapshots []*models.BalanceSnapshot
		if err := json.Unmarshal(value, &snapshots); err != nil {
			return fmt.Errorf("反序列化快照环失败: %w", err)
		}
		history[models.Principal(key)] = snapshots
		return nil
	})
	if err != nil {
		return err
	}

	var meta judgeMeta
	found, err := s.GetJSON(store.MetaBucket, "judge_meta", &meta)
	if err != nil {
		return err
	}

	j.states = states
	j.evaluations = evaluations
	j.disputes = disputes
	j.history = history
	j.probeFailures = make(map[uint64]int)
	j.nextEvaluationID = s.GetCounter("judge_next_evaluation_id", 1)
	j.nextDisputeID = s.GetCounter("judge_next_dispute_id", 1)

	if found {
		j.admins = make(map[models.Principal]bool, len(meta.Admins))
		for _, p := range meta.Admins {
			j.admins[p] = true
		}
		if meta.ChallengeComponent != "" {
			j.challengeComponent = meta.ChallengeComponent
		}
	}

	j.logger.Infof("裁决状态已恢复: %d 监控状态, %d 评估, %d 争议",
		len(j.states), len(j.evaluations), len(j.disputes))
	return nil
}

package challenge

import (
	"encoding/json"
	"fmt"

	"zerolock/internal/store"
	"zerolock/pkg/models"
)

// challengeMeta 随快照保存的单例状态
type challengeMeta struct {
	Admins []models.Principal `json:"admins"`
}

// Snapshot 把挑战状态写入快照存储
func (m *Manager) Snapshot(s *store.Store) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make(map[string][]byte, len(m.challenges))
	for id, challenge := range m.challenges {
		data, err := json.Marshal(challenge)
		if err != nil {
			return fmt.Errorf("序列化挑战失败: %w", err)
		}
		entries[store.IDKey(id)] = data
	}
	if err := s.ReplaceAll(store.ChallengesBucket, entries); err != nil {
		return err
	}

	if err := s.PutCounter("challenge_next_id", m.nextID); err != nil {
		return err
	}

	if err := s.PutJSON(store.MetaBucket, "challenge_meta", &challengeMeta{
		Admins: m.GetAdminsLocked(),
	}); err != nil {
		return err
	}

	m.logger.Infof("挑战快照已保存: %d 条记录", len(m.challenges))
	return nil
}

// GetAdminsLocked 管理员列表，调用方需已持有锁
func (m *Manager) GetAdminsLocked() []models.Principal {
	result := make([]models.Principal, 0, len(m.admins))
	for p := range m.admins {
		result = append(result, p)
	}
	return result
}

// Restore 从快照存储恢复挑战状态
func (m *Manager) Restore(s *store.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	challenges := make(map[uint64]*models.Challenge)
	err := s.ForEach(store.ChallengesBucket, func(key, value []byte) error {
		var challenge models.Challenge
		if err := json.Unmarshal(value, &challenge); err != nil {
			return fmt.Errorf("反序列化挑战失败: %w", err)
		}
		challenges[challenge.ID] = &challenge
		return nil
	})
	if err != nil {
		return err
	}

	var meta challengeMeta
	found, err := s.GetJSON(store.MetaBucket, "challenge_meta", &meta)
	if err != nil {
		return err
	}

	m.challenges = challenges
	m.nextID = s.GetCounter("challenge_next_id", 1)

	if found {
		m.admins = make(map[models.Principal]bool, len(meta.Admins))
		for _, p := range meta.Admins {
			m.admins[p] = true
		}
	}

	m.logger.Infof("挑战状态已恢复: %d 条记录", len(m.challenges))
	return nil
}

package events

import (
	"encoding/json"
	"fmt"
	"time"

	"zerolock/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// 事件类型到topic键的归类
var eventTopicKeys = map[models.EventType]string{
	models.EventChallengeCreated:   "challenges",
	models.EventChallengeActivated: "challenges",
	models.EventChallengeCompleted: "challenges",
	models.EventChallengeExpired:   "challenges",
	models.EventChallengeCancelled: "challenges",
	models.EventAttackAttempted:    "attacks",
	models.EventAttackSuccessful:   "attacks",
	models.EventFundsLocked:        "settlements",
	models.EventBountyPaid:         "settlements",
}

// 默认topic映射
var defaultTopics = map[string]string{
	"challenges":  "zerolock_challenges",
	"attacks":     "zerolock_attacks",
	"settlements": "zerolock_settlements",
}

// KafkaFeed Kafka事件输出
type KafkaFeed struct {
	logger   *logrus.Logger
	topics   map[string]string
	producer sarama.SyncProducer
}

// NewKafkaFeed 创建Kafka事件输出
func NewKafkaFeed(brokers []string, topics map[string]string, logger *logrus.Logger) (*KafkaFeed, error) {
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	if len(topics) == 0 {
		topics = defaultTopics
	}

	logger.Infof("初始化Kafka事件输出，brokers: %v", brokers)
	logger.Infof("Kafka topics配置: %v", topics)

	// 配置Kafka生产者
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者已创建")

	return &KafkaFeed{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}, nil
}

// Publish 发送一条事件
func (k *KafkaFeed) Publish(event *models.Event) error {
	if event == nil {
		return nil
	}

	topicKey, exists := eventTopicKeys[event.Type]
	if !exists {
		topicKey = "challenges"
	}
	topic, exists := k.topics[topicKey]
	if !exists {
		topic = defaultTopics[topicKey]
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", event.ChallengeID)),
		Value: sarama.StringEncoder(jsonData),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送事件到Kafka失败: %w", err)
	}

	k.logger.Debugf("事件已发送到Kafka topic '%s' (partition: %d, offset: %d): %s",
		topic, partition, offset, event.Type)
	return nil
}

// Close 关闭Kafka连接
func (k *KafkaFeed) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}

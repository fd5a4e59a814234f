package ports

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"zerolock/internal/errors"
	"zerolock/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// EthNodeConfig 以太坊节点配置
type EthNodeConfig struct {
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url"`
	Priority int    `mapstructure:"priority"`
}

// ethNode 单个节点的运行时状态
type ethNode struct {
	config      *EthNodeConfig
	client      *ethclient.Client
	rateLimited bool
	limitedAt   time.Time
	failures    int
}

// EthBalanceProbe 基于以太坊RPC的余额探针
// 目标标识按十六进制地址解释；每次探测选用优先级最高且未限流的节点，
// 其余节点只在其限流冷却期间接替，普通错误不会切换节点；限流节点冷却后恢复
type EthBalanceProbe struct {
	nodes    []*ethNode
	logger   *logrus.Logger
	mu       sync.Mutex
	cooldown time.Duration
}

// NewEthBalanceProbe 创建以太坊余额探针
func NewEthBalanceProbe(configs []*EthNodeConfig, logger *logrus.Logger) (*EthBalanceProbe, error) {
	if len(configs) == 0 {
		return nil, errors.InvalidInput("至少需要配置一个节点")
	}

	nodes := make([]*ethNode, 0, len(configs))
	for _, cfg := range configs {
		nodes = append(nodes, &ethNode{config: cfg})
	}

	return &EthBalanceProbe{
		nodes:    nodes,
		logger:   logger,
		cooldown: 30 * time.Second,
	}, nil
}

// Probe 查询目标地址余额
func (p *EthBalanceProbe) Probe(ctx context.Context, target models.Principal) (uint64, error) {
	if !common.IsHexAddress(target.String()) {
		return 0, errors.InvalidInput("目标不是合法的十六进制地址")
	}
	addr := common.HexToAddress(target.String())

	var lastErr error
	for attempt := 0; attempt < len(p.nodes); attempt++ {
		node := p.nextAvailableNode()
		if node == nil {
			break
		}

		client, err := p.clientFor(node)
		if err != nil {
			lastErr = err
			continue
		}

		balance, err := client.BalanceAt(ctx, addr, nil)
		if err != nil {
			p.handleNodeError(node, err)
			lastErr = err
			continue
		}

		if !balance.IsUint64() {
			// 余额超出64位表示范围时饱和，判定逻辑只关心下降幅度
			return math.MaxUint64, nil
		}
		return balance.Uint64(), nil
	}

	return 0, errors.NetworkError("所有节点探测均失败", lastErr)
}

// nextAvailableNode 选取下一个可用节点
// 冷却期已过的限流节点重新参与轮询
func (p *EthBalanceProbe) nextAvailableNode() *ethNode {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *ethNode
	for _, node := range p.nodes {
		if node.rateLimited {
			if time.Since(node.limitedAt) < p.cooldown {
				continue
			}
			node.rateLimited = false
			p.logger.Debugf("节点 %s 限流冷却结束，恢复可用", node.config.Name)
		}
		if best == nil || node.config.Priority < best.config.Priority {
			best = node
		}
	}
	return best
}

// clientFor 惰性建立节点连接
func (p *EthBalanceProbe) clientFor(node *ethNode) (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if node.client != nil {
		return node.client, nil
	}

	client, err := ethclient.Dial(node.config.URL)
	if err != nil {
		return nil, errors.NetworkError("连接节点失败", err).WithContext("node", node.config.Name)
	}
	node.client = client
	p.logger.Infof("已连接节点 %s", node.config.Name)
	return client, nil
}

// handleNodeError 处理节点错误，识别限流
func (p *EthBalanceProbe) handleNodeError(node *ethNode, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	node.failures++
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "too many requests") || strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "429") {
		node.rateLimited = true
		node.limitedAt = time.Now()
		p.logger.Warnf("节点 %s 触发限流，进入冷却", node.config.Name)
		return
	}

	p.logger.Warnf("节点 %s 探测失败: %v", node.config.Name, err)
}

// Close 关闭所有节点连接
func (p *EthBalanceProbe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, node := range p.nodes {
		if node.client != nil {
			node.client.Close()
			node.client = nil
		}
	}
}

package models

import "strings"

// Principal 平台内的不透明身份标识
// 文本形式存储，来源于上游认证层，核心只做相等比较
type Principal string

// AnonymousPrincipal 匿名身份哨兵值
// 所有变更类入口都会拒绝匿名调用者
const AnonymousPrincipal Principal = "anonymous"

// IsAnonymous 判断是否为匿名身份
func (p Principal) IsAnonymous() bool {
	return p == "" || p == AnonymousPrincipal
}

// String 返回身份的文本形式
func (p Principal) String() string {
	return string(p)
}

// TokenKind 代币种类判别符
type TokenKind string

const (
	// TokenNative 平台原生代币
	TokenNative TokenKind = "NATIVE"
	// TokenFungible 带发行方的同质化代币
	TokenFungible TokenKind = "FUNGIBLE"
)

// TokenType 代币类型
// 两个代币相等当且仅当种类与发行方完全一致
type TokenType struct {
	Kind   TokenKind `json:"kind"`
	Issuer Principal `json:"issuer,omitempty"`
}

// NativeToken 返回原生代币类型
func NativeToken() TokenType {
	return TokenType{Kind: TokenNative}
}

// FungibleToken 返回指定发行方的同质化代币类型
func FungibleToken(issuer Principal) TokenType {
	return TokenType{Kind: TokenFungible, Issuer: issuer}
}

// Equal 判断两个代币类型是否相同
func (t TokenType) Equal(other TokenType) bool {
	return t.Kind == other.Kind && t.Issuer == other.Issuer
}

// Valid 判断代币类型是否合法
func (t TokenType) Valid() bool {
	switch t.Kind {
	case TokenNative:
		return t.Issuer == ""
	case TokenFungible:
		return !t.Issuer.IsAnonymous()
	default:
		return false
	}
}

// String 返回代币类型的文本形式，用作余额键的一部分
func (t TokenType) String() string {
	if t.Kind == TokenFungible {
		return string(TokenFungible) + ":" + string(t.Issuer)
	}
	return string(TokenNative)
}

// BalanceKey 生成 (用户, 代币) 余额行的存储键
func BalanceKey(owner Principal, token TokenType) string {
	var b strings.Builder
	b.WriteString(string(owner))
	b.WriteByte('#')
	b.WriteString(token.String())
	return b.String()
}

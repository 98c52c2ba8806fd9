package web3

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySource 说明私钥来自哪里。
type KeySource string

const (
	KeySourceConfig    KeySource = "config"
	KeySourceFile      KeySource = "file"
	KeySourceGenerated KeySource = "generated"
)

// walletData 是钱包备份文件的格式。
type walletData struct {
	PrivateKey string `json:"privateKey"`
}

// Signer 持有智能体钱包的私钥，负责签名交易。
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner 从十六进制私钥创建签名器，允许带 0x 前缀。
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("私钥不能为空")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// ResolveSigner 按照 配置私钥 > 钱包文件 > 新生成 的顺序确定私钥。
// 新生成的私钥会写入 dataFile，调用方应提示运维人员转移到 PRIVATE_KEY。
func ResolveSigner(privateKey, dataFile string) (*Signer, KeySource, error) {
	if strings.TrimSpace(privateKey) != "" {
		signer, err := NewSigner(privateKey)
		return signer, KeySourceConfig, err
	}
	if strings.TrimSpace(dataFile) == "" {
		return nil, "", errors.New("未配置私钥且未指定钱包文件")
	}

	content, err := os.ReadFile(dataFile)
	switch {
	case err == nil:
		var data walletData
		if err := json.Unmarshal(content, &data); err != nil {
			return nil, "", fmt.Errorf("解析钱包文件失败: %w", err)
		}
		signer, err := NewSigner(data.PrivateKey)
		return signer, KeySourceFile, err
	case !errors.Is(err, fs.ErrNotExist):
		return nil, "", fmt.Errorf("读取钱包文件失败: %w", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, "", fmt.Errorf("生成私钥失败: %w", err)
	}
	encoded, err := json.Marshal(walletData{PrivateKey: hexutil.Encode(crypto.FromECDSA(key))})
	if err != nil {
		return nil, "", fmt.Errorf("序列化钱包文件失败: %w", err)
	}
	if dir := filepath.Dir(dataFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, "", fmt.Errorf("创建钱包目录失败: %w", err)
		}
	}
	if err := os.WriteFile(dataFile, encoded, 0o600); err != nil {
		return nil, "", fmt.Errorf("写入钱包文件失败: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, KeySourceGenerated, nil
}

// Address 返回钱包地址。
func (s *Signer) Address() common.Address {
	if s == nil {
		return common.Address{}
	}
	return s.address
}

// SignTx 使用 EIP-155 / London 兼容的签名规则签名交易。
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("签名器未初始化")
	}
	if chainID == nil {
		return nil, errors.New("签名交易需要链 ID")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

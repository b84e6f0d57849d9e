package bch

import (
	"errors"
	"strings"

	"github.com/paysats/paysats-api/internal/constants"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

var (
	// ErrXpubInvalid 扩展公钥无法解析
	ErrXpubInvalid = errors.New("bch: invalid extended public key")
	// ErrNetworkInvalid 不支持的网络标识
	ErrNetworkInvalid = errors.New("bch: unsupported network")
	// ErrAddressInvalid 地址校验失败
	ErrAddressInvalid = errors.New("bch: invalid address")
)

// Wallet 只读收款钱包，基于账户级扩展公钥按 m/0/index 派生收款地址。
// 服务端不持有任何私钥。
type Wallet struct {
	external *hdkeychain.ExtendedKey
	params   *chaincfg.Params
}

// NetworkParams 解析网络标识为链参数
func NetworkParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "", constants.BCHNetworkMainnet:
		return &chaincfg.MainNetParams, nil
	case constants.BCHNetworkTestnet, "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, ErrNetworkInvalid
	}
}

// NewWallet 从扩展公钥创建只读钱包
func NewWallet(xpub, network string) (*Wallet, error) {
	params, err := NetworkParams(network)
	if err != nil {
		return nil, err
	}
	key, err := hdkeychain.NewKeyFromString(strings.TrimSpace(xpub))
	if err != nil {
		return nil, ErrXpubInvalid
	}
	if key.IsPrivate() {
		// 配置错误时拒绝启动，避免私钥落入服务端
		return nil, ErrXpubInvalid
	}
	// 外部链（收款分支）：m/0
	external, err := key.Derive(0)
	if err != nil {
		return nil, ErrXpubInvalid
	}
	return &Wallet{external: external, params: params}, nil
}

// DeriveAddress 派生第 index 个收款地址（P2PKH legacy 格式）
func (w *Wallet) DeriveAddress(index uint32) (string, error) {
	child, err := w.external.Derive(index)
	if err != nil {
		return "", err
	}
	pubKey, err := child.ECPubKey()
	if err != nil {
		return "", err
	}
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubKey.SerializeCompressed()), w.params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// ValidateAddress 校验地址是否属于当前网络
func (w *Wallet) ValidateAddress(address string) error {
	return ValidateAddress(address, w.params)
}

// ValidateAddress 校验 base58 地址合法性与网络归属
func ValidateAddress(address string, params *chaincfg.Params) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrAddressInvalid
	}
	decoded, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return ErrAddressInvalid
	}
	if !decoded.IsForNet(params) {
		return ErrAddressInvalid
	}
	return nil
}

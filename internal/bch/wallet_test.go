package bch

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
)

const walletTestXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"

const walletTestXprv = "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"

func TestNetworkParams(t *testing.T) {
	cases := []struct {
		network string
		want    *chaincfg.Params
	}{
		{network: "", want: &chaincfg.MainNetParams},
		{network: "mainnet", want: &chaincfg.MainNetParams},
		{network: " Mainnet ", want: &chaincfg.MainNetParams},
		{network: "testnet", want: &chaincfg.TestNet3Params},
		{network: "testnet3", want: &chaincfg.TestNet3Params},
		{network: "regtest", want: &chaincfg.RegressionNetParams},
	}
	for _, c := range cases {
		params, err := NetworkParams(c.network)
		if err != nil {
			t.Fatalf("network %q: %v", c.network, err)
		}
		if params != c.want {
			t.Fatalf("network %q resolved to %s", c.network, params.Name)
		}
	}

	if _, err := NetworkParams("dogenet"); !errors.Is(err, ErrNetworkInvalid) {
		t.Fatalf("unknown network want ErrNetworkInvalid got %v", err)
	}
}

func TestNewWalletRejectsBadKeys(t *testing.T) {
	if _, err := NewWallet("not-a-key", "mainnet"); !errors.Is(err, ErrXpubInvalid) {
		t.Fatalf("garbage key want ErrXpubInvalid got %v", err)
	}
	if _, err := NewWallet(walletTestXprv, "mainnet"); !errors.Is(err, ErrXpubInvalid) {
		t.Fatalf("private key want ErrXpubInvalid got %v", err)
	}
	if _, err := NewWallet(walletTestXpub, "dogenet"); !errors.Is(err, ErrNetworkInvalid) {
		t.Fatalf("bad network want ErrNetworkInvalid got %v", err)
	}
}

func TestDeriveAddressDeterministic(t *testing.T) {
	wallet, err := NewWallet(walletTestXpub, "mainnet")
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}

	first, err := wallet.DeriveAddress(0)
	if err != nil {
		t.Fatalf("derive index 0: %v", err)
	}
	again, err := wallet.DeriveAddress(0)
	if err != nil {
		t.Fatalf("derive index 0 again: %v", err)
	}
	if first != again {
		t.Fatalf("same index derived different addresses: %s vs %s", first, again)
	}

	second, err := wallet.DeriveAddress(1)
	if err != nil {
		t.Fatalf("derive index 1: %v", err)
	}
	if second == first {
		t.Fatalf("distinct indexes derived the same address: %s", first)
	}

	if err := wallet.ValidateAddress(first); err != nil {
		t.Fatalf("derived address rejected: %v", err)
	}
	if err := wallet.ValidateAddress(second); err != nil {
		t.Fatalf("derived address rejected: %v", err)
	}
}

func TestValidateAddress(t *testing.T) {
	wallet, err := NewWallet(walletTestXpub, "mainnet")
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}

	if err := wallet.ValidateAddress(""); !errors.Is(err, ErrAddressInvalid) {
		t.Fatalf("empty address want ErrAddressInvalid got %v", err)
	}
	if err := wallet.ValidateAddress("   "); !errors.Is(err, ErrAddressInvalid) {
		t.Fatalf("blank address want ErrAddressInvalid got %v", err)
	}
	if err := wallet.ValidateAddress("1BadChecksum1BadChecksum1BadChe"); !errors.Is(err, ErrAddressInvalid) {
		t.Fatalf("bad checksum want ErrAddressInvalid got %v", err)
	}

	// Testnet address should not pass mainnet validation.
	testnetWallet, err := NewWallet(walletTestXpub, "testnet")
	if err == nil {
		addr, derr := testnetWallet.DeriveAddress(0)
		if derr != nil {
			t.Fatalf("derive testnet address: %v", derr)
		}
		if verr := wallet.ValidateAddress(addr); !errors.Is(verr, ErrAddressInvalid) {
			t.Fatalf("testnet address on mainnet want ErrAddressInvalid got %v", verr)
		}
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"

	"github.com/uhyunpark/portex/params"
	"github.com/uhyunpark/portex/pkg/app/core/transaction"
	"github.com/uhyunpark/portex/pkg/crypto"
)

// sign-tx signs one transaction and prints the JSON envelope to submit to POST /api/v1/tx.
//
//	sign-tx --key 0x... --type make_order --nonce 3 \
//	    --token-get 0x...7047 --amount-get 1000000000000000000 \
//	    --token-give 0x0000000000000000000000000000000000000000 --amount-give 100000000000000000
func main() {
	defaults := params.Default()

	var (
		keyHex     = flag.String("key", os.Getenv("PRIVATE_KEY"), "hex private key (default $PRIVATE_KEY); a new key is generated when empty")
		txType     = flag.String("type", "", "deposit_ether|withdraw_ether|deposit_token|withdraw_token|make_order|cancel_order|fill_order|token_transfer|token_approve")
		nonce      = flag.Uint64("nonce", 1, "sender nonce, one more than the last included")
		tokenAddr  = flag.String("token", "", "token address")
		to         = flag.String("to", "", "recipient (token_transfer) or spender (token_approve)")
		amount     = flag.String("amount", "0", "amount in the asset's smallest unit")
		tokenGet   = flag.String("token-get", "", "asset the maker wants")
		amountGet  = flag.String("amount-get", "0", "amount the maker wants")
		tokenGive  = flag.String("token-give", "", "asset the maker offers")
		amountGive = flag.String("amount-give", "0", "amount the maker offers")
		orderID    = flag.Uint64("order", 0, "order id (cancel_order, fill_order)")
		chainID    = flag.Int64("chain-id", defaults.Chain.ChainID, "EIP-712 domain chain id")
		exchange   = flag.String("exchange", defaults.Exchange.Address.Hex(), "EIP-712 verifying contract (exchange address)")
		verbose    = flag.BoolP("verbose", "v", false, "print the signer address and typed data to stderr")
	)
	flag.Parse()

	signer, err := loadKey(*keyHex)
	if err != nil {
		fail("key: %v", err)
	}
	if !common.IsHexAddress(*exchange) {
		fail("--exchange %q is not an address", *exchange)
	}
	domain := crypto.NewDomain(*chainID, common.HexToAddress(*exchange))

	a := &transaction.Action{
		Type:       transaction.TxType(*txType),
		Nonce:      *nonce,
		Token:      address("token", *tokenAddr),
		To:         address("to", *to),
		Amount:     integer("amount", *amount),
		TokenGet:   address("token-get", *tokenGet),
		AmountGet:  integer("amount-get", *amountGet),
		TokenGive:  address("token-give", *tokenGive),
		AmountGive: integer("amount-give", *amountGive),
		OrderID:    *orderID,
	}

	tx, err := transaction.Sign(domain, signer, a)
	if err != nil {
		fail("sign: %v", err)
	}

	// Round-trip through the verifier so a bad envelope never leaves this tool.
	raw, err := tx.Serialize()
	if err != nil {
		fail("serialize: %v", err)
	}
	if _, err := transaction.NewVerifier(domain).Verify(raw); err != nil {
		fail("verify: %v", err)
	}

	if *verbose {
		primaryType, msg := a.TypedMessage()
		typed, _ := json.MarshalIndent(msg, "", "  ")
		fmt.Fprintf(os.Stderr, "Address: %s\n", signer.Address().Hex())
		if *keyHex == "" {
			fmt.Fprintf(os.Stderr, "Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
		}
		fmt.Fprintf(os.Stderr, "Typed data (%s):\n%s\n", primaryType, typed)
	}

	out, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		fail("marshal: %v", err)
	}
	fmt.Println(string(out))
}

func loadKey(hexKey string) (*crypto.Signer, error) {
	if hexKey == "" {
		return crypto.GenerateKey()
	}
	return crypto.FromPrivateKeyHex(hexKey)
}

// address parses an optional address flag; empty means the zero address (Ether).
func address(name, v string) common.Address {
	if v == "" {
		return common.Address{}
	}
	if !common.IsHexAddress(v) {
		fail("--%s %q is not an address", name, v)
	}
	return common.HexToAddress(v)
}

func integer(name, v string) *big.Int {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		fail("--%s %q is not a non-negative integer", name, v)
	}
	return n
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

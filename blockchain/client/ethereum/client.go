package ethereum

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"sampletrace/blockchain/types"
	"sampletrace/config"

	"github.com/go-resty/resty/v2"
	"github.com/hyperledger/firefly-signer/pkg/ethsigner"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/hyperledger/firefly-signer/pkg/rpcbackend"
	"github.com/hyperledger/firefly-signer/pkg/secp256k1"
	"golang.org/x/crypto/sha3"
)

// Client is the EVM implementation of the ledger client. It speaks JSON-RPC
// to the node, encodes contract call data from the ledger ABI and signs
// legacy EIP-155 transactions with a local secp256k1 key file.
type Client struct {
	rpc       rpcbackend.Backend
	keypair   *secp256k1.KeyPair
	contract  *ethtypes.Address0xHex
	chainID   int64
	functions map[string]*abiFunction

	cfg    *config.BlockchainConfig
	ethCfg *EthereumConfig
	logger *log.Logger

	receiptPollInterval time.Duration
	gasPrice            *big.Int
	connected           bool
}

// NewEthereumClient initializes the Ethereum ledger client from the combined configuration
func NewEthereumClient(cfg *config.BlockchainConfig, logger *log.Logger) (*Client, error) {
	logger.Println("Initializing Ethereum ledger client...")

	ethCfg, ok := cfg.ChainSpecific.(*EthereumConfig)
	if !ok {
		return nil, fmt.Errorf("invalid Ethereum configuration type")
	}

	keypair, err := loadKeyFile(ethCfg.KeyFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load signer key file '%s': %w", ethCfg.KeyFilePath, err)
	}

	contract, err := ethtypes.NewAddress(ethCfg.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid contract address '%s': %w", ethCfg.ContractAddress, err)
	}

	requestTimeout, err := time.ParseDuration(ethCfg.RequestTimeout)
	if err != nil {
		logger.Printf("Warning: Invalid request_timeout '%s', using default 15s", ethCfg.RequestTimeout)
		requestTimeout = 15 * time.Second
	}
	receiptPollInterval, err := time.ParseDuration(ethCfg.ReceiptPollInterval)
	if err != nil {
		logger.Printf("Warning: Invalid receipt_poll_interval '%s', using default 1s", ethCfg.ReceiptPollInterval)
		receiptPollInterval = 1 * time.Second
	}

	rpc := rpcbackend.NewRPCClient(resty.New().
		SetBaseURL(ethCfg.RPCURL).
		SetTimeout(requestTimeout))

	functions, err := parseLedgerABI(context.Background())
	if err != nil {
		return nil, err
	}

	c := &Client{
		rpc:                 rpc,
		keypair:             keypair,
		contract:            contract,
		functions:           functions,
		cfg:                 cfg,
		ethCfg:              ethCfg,
		logger:              logger,
		receiptPollInterval: receiptPollInterval,
		gasPrice:            big.NewInt(ethCfg.GasPriceWei),
	}

	// Check we are attached to the expected network before any submission
	var chainID ethtypes.HexUint64
	if rpcErr := c.rpc.CallRPC(context.Background(), &chainID, "eth_chainId"); rpcErr != nil {
		return nil, fmt.Errorf("eth_chainId failed: %w", rpcErr.Error())
	}
	c.chainID = int64(chainID.Uint64())
	if ethCfg.ChainID != 0 && c.chainID != ethCfg.ChainID {
		return nil, fmt.Errorf("connected to chain %d but configuration expects chain %d", c.chainID, ethCfg.ChainID)
	}
	c.connected = true

	logger.Printf("Ethereum ledger client initialized (chain: %d, contract: %s, signer: %s)",
		c.chainID, contract.String(), c.SignerAddress())
	return c, nil
}

// loadKeyFile reads a hex-encoded secp256k1 private key
func loadKeyFile(path string) (*secp256k1.KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	keyHex := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("key file is not valid hex: %w", err)
	}
	return secp256k1.NewSecp256k1KeyPair(keyBytes)
}

// SignerAddress returns the 0x address derived from the signer key
func (c *Client) SignerAddress() string {
	return ethtypes.Address0xHex(c.keypair.Address).String()
}

// Connected reports whether the signer credential is loaded and the client
// verified the expected chain id at startup
func (c *Client) Connected() bool {
	return c.connected && c.keypair != nil
}

// Config returns the configuration associated with the client
func (c *Client) Config() any {
	return c.ethCfg
}

// Close releases the client; the HTTP transport needs no explicit shutdown
func (c *Client) Close() error {
	c.connected = false
	return nil
}

// RecordStep anchors a step hash through the contract's ordering guard
func (c *Client) RecordStep(ctx context.Context, sampleID string, step int, hash string, gasLimit uint64) (*types.Proof, error) {
	if hash == "" {
		return nil, fmt.Errorf("step hash cannot be empty")
	}
	callData, err := c.functions["recordStep"].buildCallData(ctx, map[string]any{
		"sampleId": sampleID,
		"step":     step,
		"stepHash": hash,
	})
	if err != nil {
		return nil, err
	}
	if gasLimit == 0 {
		gasLimit = c.cfg.DefaultGasLimit
	}
	proof, err := c.sendTransaction(ctx, c.contract, callData, big.NewInt(0), gasLimit)
	if err != nil {
		return nil, c.classifyRecordError(ctx, sampleID, step, err)
	}
	return proof, nil
}

// EstimateRecordStepGas runs eth_estimateGas for a recordStep call. A revert
// during estimation surfaces the same classified error a submission would.
func (c *Client) EstimateRecordStepGas(ctx context.Context, sampleID string, step int, hash string) (uint64, error) {
	callData, err := c.functions["recordStep"].buildCallData(ctx, map[string]any{
		"sampleId": sampleID,
		"step":     step,
		"stepHash": hash,
	})
	if err != nil {
		return 0, err
	}
	tx := &ethsigner.Transaction{
		From: json.RawMessage(strconv.Quote(c.SignerAddress())),
		To:   c.contract,
		Data: callData,
	}
	var gasEstimate ethtypes.HexInteger
	if rpcErr := c.rpc.CallRPC(ctx, &gasEstimate, "eth_estimateGas", tx); rpcErr != nil {
		return 0, c.classifyRecordError(ctx, sampleID, step, rpcErr.Error())
	}
	return gasEstimate.BigInt().Uint64(), nil
}

// SubmitProofTransfer sends the minimal self-addressed value transfer used as
// a timestamped anchor when recordStep cannot succeed. The transfer does not
// store the step hash; callers must keep that distinction.
func (c *Client) SubmitProofTransfer(ctx context.Context, sampleID string, step int) (*types.Proof, error) {
	c.logger.Printf("Submitting fallback proof transfer for sample %s step %d", sampleID, step)
	self := ethtypes.Address0xHex(c.keypair.Address)
	// 21000 is the intrinsic gas of a plain transfer
	return c.sendTransaction(ctx, &self, nil, big.NewInt(c.cfg.FallbackTransferWei), 21000)
}

// getSampleOutput matches the getSample ABI outputs; integers arrive as
// base-10 strings from the ABI serializer
type getSampleOutput struct {
	Hash1       string `json:"hash1"`
	Hash2       string `json:"hash2"`
	Hash3       string `json:"hash3"`
	Hash4       string `json:"hash4"`
	CurrentStep string `json:"currentStep"`
}

// GetSample reads the per-sample contract state
func (c *Client) GetSample(ctx context.Context, sampleID string) (*types.SampleRecord, error) {
	var out getSampleOutput
	if err := c.callView(ctx, "getSample", map[string]any{"sampleId": sampleID}, &out); err != nil {
		return nil, err
	}
	currentStep, err := strconv.Atoi(out.CurrentStep)
	if err != nil {
		return nil, fmt.Errorf("contract returned non-numeric currentStep '%s'", out.CurrentStep)
	}
	return &types.SampleRecord{
		SampleID:    sampleID,
		StepHashes:  [4]string{out.Hash1, out.Hash2, out.Hash3, out.Hash4},
		CurrentStep: currentStep,
	}, nil
}

// VerifyStep is a read-only equality check of a step hash against the contract
func (c *Client) VerifyStep(ctx context.Context, sampleID string, step int, hash string) (bool, error) {
	var out struct {
		Matches bool `json:"matches"`
	}
	err := c.callView(ctx, "verifyStep", map[string]any{
		"sampleId": sampleID,
		"step":     step,
		"stepHash": hash,
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Matches, nil
}

// callView executes an eth_call against the contract and decodes the outputs
func (c *Client) callView(ctx context.Context, fnName string, inputs map[string]any, into any) error {
	fn := c.functions[fnName]
	callData, err := fn.buildCallData(ctx, inputs)
	if err != nil {
		return err
	}
	tx := &ethsigner.Transaction{To: c.contract, Data: callData}
	var result ethtypes.HexBytes0xPrefix
	if rpcErr := c.rpc.CallRPC(ctx, &result, "eth_call", tx, "latest"); rpcErr != nil {
		return fmt.Errorf("eth_call '%s' failed: %w", fnName, rpcErr.Error())
	}
	return fn.decodeOutputs(ctx, result, into)
}

// txReceipt is the subset of the JSON-RPC receipt the client needs
type txReceipt struct {
	BlockNumber     *ethtypes.HexInteger      `json:"blockNumber"`
	Status          *ethtypes.HexInteger      `json:"status"`
	TransactionHash ethtypes.HexBytes0xPrefix `json:"transactionHash"`
}

// sendTransaction signs, submits and waits for confirmation of a transaction.
// The caller's context carries the confirmation ceiling; cancellation is
// surfaced as an error and treated by the submitter as a failed attempt.
func (c *Client) sendTransaction(ctx context.Context, to *ethtypes.Address0xHex, callData []byte, value *big.Int, gasLimit uint64) (*types.Proof, error) {
	fromAddr := c.SignerAddress()

	// Trivial nonce management: one key, nonce from the node mempool per TX
	var nonce ethtypes.HexUint64
	if rpcErr := c.rpc.CallRPC(ctx, &nonce, "eth_getTransactionCount", fromAddr, "latest"); rpcErr != nil {
		return nil, fmt.Errorf("eth_getTransactionCount failed: %w", rpcErr.Error())
	}

	tx := &ethsigner.Transaction{
		Nonce:    ethtypes.NewHexInteger(new(big.Int).SetUint64(nonce.Uint64())),
		GasPrice: ethtypes.NewHexInteger(c.gasPrice),
		GasLimit: ethtypes.NewHexInteger(new(big.Int).SetUint64(gasLimit)),
		To:       to,
		Value:    ethtypes.NewHexInteger(value),
		Data:     callData,
	}

	sigPayload := tx.SignaturePayloadLegacyEIP155(c.chainID)
	hash := sha3.NewLegacyKeccak256()
	_, _ = hash.Write(sigPayload.Bytes())
	sig, err := c.keypair.SignDirect(hash.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("signing failed (addr=%s): %w", fromAddr, err)
	}
	rawTX, err := tx.FinalizeLegacyEIP155WithSignature(sigPayload, sig, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize transaction: %w", err)
	}

	var txHash ethtypes.HexBytes0xPrefix
	if rpcErr := c.rpc.CallRPC(ctx, &txHash, "eth_sendRawTransaction", ethtypes.HexBytes0xPrefix(rawTX)); rpcErr != nil {
		return nil, fmt.Errorf("eth_sendRawTransaction failed: %w", rpcErr.Error())
	}

	return c.waitForReceipt(ctx, txHash.String())
}

// waitForReceipt polls for the transaction receipt until the context expires
func (c *Client) waitForReceipt(ctx context.Context, txHash string) (*types.Proof, error) {
	ticker := time.NewTicker(c.receiptPollInterval)
	defer ticker.Stop()
	for {
		var receipt *txReceipt
		if rpcErr := c.rpc.CallRPC(ctx, &receipt, "eth_getTransactionReceipt", txHash); rpcErr != nil {
			return nil, fmt.Errorf("eth_getTransactionReceipt failed: %w", rpcErr.Error())
		}
		if receipt != nil {
			if receipt.Status == nil || receipt.Status.BigInt().Sign() == 0 {
				return nil, fmt.Errorf("execution reverted (tx: %s)", txHash)
			}
			var blockHeight uint64
			if receipt.BlockNumber != nil {
				blockHeight = receipt.BlockNumber.BigInt().Uint64()
			}
			return &types.Proof{TransactionID: txHash, BlockHeight: blockHeight}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("confirmation wait cancelled for tx %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// classifyRecordError distinguishes the lost-race revert from generic
// failures: when the contract already holds the slot, the chain state is the
// answer, not the revert string.
func (c *Client) classifyRecordError(ctx context.Context, sampleID string, step int, err error) error {
	if !strings.Contains(strings.ToLower(err.Error()), "revert") {
		return err
	}
	record, getErr := c.GetSample(ctx, sampleID)
	if getErr == nil && record.CurrentStep >= step {
		return types.ErrStepAlreadyRecorded
	}
	return fmt.Errorf("recordStep reverted for sample %s step %d: %w", sampleID, step, err)
}

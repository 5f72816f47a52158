package chainmaker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"sampletrace/blockchain/types"
	"sampletrace/config"

	"chainmaker.org/chainmaker/pb-go/v2/common"
	sdk "chainmaker.org/chainmaker/sdk-go/v2"
)

// Client is the wrapper around the ChainMaker SDK client. ChainMaker has no
// fee-estimation phase and no plain value transfers, so the submitter's gas
// ladder and fallback anchor degrade gracefully on this backend.
type Client struct {
	sdkClient sdk.ChainClient
	cfg       *config.BlockchainConfig
	cmCfg     *ChainMakerConfig
	logger    *log.Logger
	connected bool
}

// NewChainMakerClient initializes the ChainMaker SDK client with the combined configuration
func NewChainMakerClient(cfg *config.BlockchainConfig, logger *log.Logger) (*Client, error) {
	logger.Println("Initializing ChainMaker SDK client using builder pattern...")

	cmCfg, ok := cfg.ChainSpecific.(*ChainMakerConfig)
	if !ok {
		return nil, fmt.Errorf("invalid ChainMaker configuration type")
	}

	var clientOptions []sdk.ChainClientOption
	clientOptions = append(clientOptions, sdk.WithChainClientOrgId(cmCfg.OrgID))
	clientOptions = append(clientOptions, sdk.WithChainClientChainId(cmCfg.ChainID))
	clientOptions = append(clientOptions, sdk.WithUserKeyFilePath(cmCfg.UserKeyPath))
	clientOptions = append(clientOptions, sdk.WithUserCrtFilePath(cmCfg.UserCertPath))
	clientOptions = append(clientOptions, sdk.WithUserSignKeyFilePath(cmCfg.UserSignKeyPath))
	clientOptions = append(clientOptions, sdk.WithUserSignCrtFilePath(cmCfg.UserSignCertPath))

	if len(cmCfg.Nodes) == 0 {
		return nil, fmt.Errorf("no node configurations provided in config")
	}
	for _, nodeCfg := range cmCfg.Nodes {
		if nodeCfg.UseTLS && len(nodeCfg.CaPaths) == 0 {
			return nil, fmt.Errorf("node %s has TLS enabled but no CaPaths provided", nodeCfg.Address)
		}
		sdkNodeConfig := sdk.NewNodeConfig(
			sdk.WithNodeAddr(nodeCfg.Address),
			sdk.WithNodeConnCnt(nodeCfg.ConnCount),
			sdk.WithNodeUseTLS(nodeCfg.UseTLS),
			sdk.WithNodeCAPaths(nodeCfg.CaPaths),
			sdk.WithNodeTLSHostName(nodeCfg.TLSHostName),
		)
		clientOptions = append(clientOptions, sdk.AddChainClientNodeConfig(sdkNodeConfig))
	}

	// Apply common configuration (retry, timeout, etc.)
	if cmCfg.RetryLimit > 0 {
		clientOptions = append(clientOptions, sdk.WithRetryLimit(cmCfg.RetryLimit))
	}
	if cmCfg.RetryInterval > 0 {
		clientOptions = append(clientOptions, sdk.WithRetryInterval(cmCfg.RetryInterval))
	}

	client, err := sdk.NewChainClient(clientOptions...)
	if err != nil {
		logger.Printf("Failed to build ChainMaker SDK client: %v\n", err)
		return nil, err
	}

	if err := client.EnableCertHash(); err != nil {
		logger.Printf("Warning: Failed to enable cert hash: %v\n", err)
	}

	logger.Println("ChainMaker SDK client initialized successfully.")

	return &Client{
		sdkClient: *client,
		cfg:       cfg,
		cmCfg:     cmCfg,
		logger:    logger,
		connected: true,
	}, nil
}

// Connected reports whether the SDK client was initialized with usable credentials
func (c *Client) Connected() bool {
	return c.connected
}

// Config returns the configuration associated with the client.
func (c *Client) Config() any {
	return c.cmCfg
}

// Close stops the SDK client
func (c *Client) Close() error {
	c.logger.Println("Closing ChainMaker SDK client...")
	c.connected = false
	if err := c.sdkClient.Stop(); err != nil {
		c.logger.Printf("Error stopping ChainMaker SDK client: %v", err)
		return fmt.Errorf("failed to stop ChainMaker SDK client: %w", err)
	}
	return nil
}

// RecordStep invokes the ledger contract's ordering-guarded step write
func (c *Client) RecordStep(ctx context.Context, sampleID string, step int, hash string, gasLimit uint64) (*types.Proof, error) {
	if hash == "" {
		return nil, fmt.Errorf("step hash cannot be empty")
	}

	kvs := []*common.KeyValuePair{
		{Key: c.cmCfg.ParamKeySampleID, Value: []byte(sampleID)},
		{Key: c.cmCfg.ParamKeyStep, Value: []byte(strconv.Itoa(step))},
		{Key: c.cmCfg.ParamKeyStepHash, Value: []byte(hash)},
	}

	_, cancel := context.WithTimeout(ctx, time.Duration(c.cmCfg.InvokeTimeoutSeconds)*time.Second)
	defer cancel()

	resp, err := c.sdkClient.InvokeContract(
		c.cmCfg.ContractName,
		c.cmCfg.RecordStepMethodName,
		"",
		kvs,
		-1,
		true,
	)
	if err != nil {
		return nil, fmt.Errorf("SDK invoke failed: %w", err)
	}
	if resp.Code != common.TxStatusCode_SUCCESS {
		if strings.Contains(strings.ToLower(resp.Message), "already recorded") {
			return nil, types.ErrStepAlreadyRecorded
		}
		return nil, fmt.Errorf("contract execution failed: %s (code: %d)", resp.Message, resp.Code)
	}

	return &types.Proof{TransactionID: resp.TxId, BlockHeight: resp.TxBlockHeight}, nil
}

// EstimateRecordStepGas is not supported: ChainMaker contract invocations
// have no client-side fee estimation phase
func (c *Client) EstimateRecordStepGas(ctx context.Context, sampleID string, step int, hash string) (uint64, error) {
	return 0, types.ErrGasEstimationUnsupported
}

// SubmitProofTransfer is not supported: ChainMaker has no plain value
// transfer to use as a timestamped anchor, so the submitter reports the
// step as unverified instead
func (c *Client) SubmitProofTransfer(ctx context.Context, sampleID string, step int) (*types.Proof, error) {
	return nil, fmt.Errorf("fallback proof transfer not supported on chainmaker")
}

// sampleQueryResult matches the contract's get_sample JSON result
type sampleQueryResult struct {
	Hash1       string `json:"hash1"`
	Hash2       string `json:"hash2"`
	Hash3       string `json:"hash3"`
	Hash4       string `json:"hash4"`
	CurrentStep int    `json:"current_step"`
}

// GetSample queries the contract for the per-sample ledger state
func (c *Client) GetSample(ctx context.Context, sampleID string) (*types.SampleRecord, error) {
	_, cancel := context.WithTimeout(ctx, time.Duration(c.cmCfg.InvokeTimeoutSeconds)*time.Second)
	defer cancel()

	kvs := []*common.KeyValuePair{{Key: c.cmCfg.ParamKeySampleID, Value: []byte(sampleID)}}
	resp, err := c.sdkClient.QueryContract(c.cmCfg.ContractName, c.cmCfg.GetSampleMethodName, kvs, -1)
	if err != nil {
		return nil, fmt.Errorf("SDK query failed: %w", err)
	}
	if resp.Code != common.TxStatusCode_SUCCESS {
		return nil, fmt.Errorf("contract query failed: %s (code: %d)", resp.Message, resp.Code)
	}
	if resp.ContractResult == nil || len(resp.ContractResult.Result) == 0 {
		return nil, fmt.Errorf("contract query returned empty result for sample %s", sampleID)
	}

	var result sampleQueryResult
	if err := json.Unmarshal(resp.ContractResult.Result, &result); err != nil {
		c.logger.Printf("Failed to unmarshal get_sample result. Raw result: %s", string(resp.ContractResult.Result))
		return nil, fmt.Errorf("failed to unmarshal contract result: %w", err)
	}

	return &types.SampleRecord{
		SampleID:    sampleID,
		StepHashes:  [4]string{result.Hash1, result.Hash2, result.Hash3, result.Hash4},
		CurrentStep: result.CurrentStep,
	}, nil
}

// VerifyStep queries the contract's read-only hash equality check
func (c *Client) VerifyStep(ctx context.Context, sampleID string, step int, hash string) (bool, error) {
	_, cancel := context.WithTimeout(ctx, time.Duration(c.cmCfg.InvokeTimeoutSeconds)*time.Second)
	defer cancel()

	kvs := []*common.KeyValuePair{
		{Key: c.cmCfg.ParamKeySampleID, Value: []byte(sampleID)},
		{Key: c.cmCfg.ParamKeyStep, Value: []byte(strconv.Itoa(step))},
		{Key: c.cmCfg.ParamKeyStepHash, Value: []byte(hash)},
	}
	resp, err := c.sdkClient.QueryContract(c.cmCfg.ContractName, c.cmCfg.VerifyStepMethodName, kvs, -1)
	if err != nil {
		return false, fmt.Errorf("SDK query failed: %w", err)
	}
	if resp.Code != common.TxStatusCode_SUCCESS {
		return false, fmt.Errorf("contract query failed: %s (code: %d)", resp.Message, resp.Code)
	}
	return string(resp.ContractResult.Result) == "true", nil
}

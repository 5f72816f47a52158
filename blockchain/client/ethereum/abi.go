package ethereum

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperledger/firefly-signer/pkg/abi"
)

// ledgerABIJSON is the ABI of the sample-ledger contract. The contract keeps
// four hash slots per sample id and reverts recordStep unless the step is
// exactly the next one and the hash is non-empty.
const ledgerABIJSON = `[
  {
    "name": "recordStep",
    "type": "function",
    "inputs": [
      {"name": "sampleId", "type": "string"},
      {"name": "step", "type": "uint8"},
      {"name": "stepHash", "type": "string"}
    ],
    "outputs": []
  },
  {
    "name": "getSample",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      {"name": "sampleId", "type": "string"}
    ],
    "outputs": [
      {"name": "hash1", "type": "string"},
      {"name": "hash2", "type": "string"},
      {"name": "hash3", "type": "string"},
      {"name": "hash4", "type": "string"},
      {"name": "currentStep", "type": "uint8"}
    ]
  },
  {
    "name": "verifyStep",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      {"name": "sampleId", "type": "string"},
      {"name": "step", "type": "uint8"},
      {"name": "stepHash", "type": "string"}
    ],
    "outputs": [
      {"name": "matches", "type": "bool"}
    ]
  }
]`

// abiFunction is a pre-resolved contract function: selector plus the parsed
// input/output component trees used for call-data encoding and decoding
type abiFunction struct {
	entry    *abi.Entry
	selector []byte
	inputs   abi.TypeComponent
	outputs  abi.TypeComponent
}

// parseLedgerABI resolves every function of the ledger ABI once at client
// construction, so per-call encoding never re-parses the schema
func parseLedgerABI(ctx context.Context) (map[string]*abiFunction, error) {
	var a abi.ABI
	if err := json.Unmarshal([]byte(ledgerABIJSON), &a); err != nil {
		return nil, fmt.Errorf("failed to parse ledger ABI: %w", err)
	}

	functions := make(map[string]*abiFunction, len(a))
	for _, e := range a {
		if !e.IsFunction() || e.Name == "" {
			continue
		}
		fn := &abiFunction{entry: e}
		selector, err := e.GenerateFunctionSelectorCtx(ctx)
		if err == nil {
			fn.selector = selector
			fn.inputs, err = e.Inputs.TypeComponentTreeCtx(ctx)
		}
		if err == nil {
			fn.outputs, err = e.Outputs.TypeComponentTreeCtx(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve ABI function '%s': %w", e.Name, err)
		}
		functions[e.Name] = fn
	}
	return functions, nil
}

// buildCallData encodes selector + ABI-encoded inputs for one function call
func (f *abiFunction) buildCallData(ctx context.Context, inputs map[string]any) ([]byte, error) {
	cv, err := f.inputs.ParseExternalCtx(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("invalid inputs for '%s': %w", f.entry.Name, err)
	}
	encoded, err := cv.EncodeABIDataCtx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inputs for '%s': %w", f.entry.Name, err)
	}
	callData := make([]byte, len(f.selector)+len(encoded))
	copy(callData, f.selector)
	copy(callData[len(f.selector):], encoded)
	return callData, nil
}

// decodeOutputs decodes a call result into a JSON object keyed by output name
func (f *abiFunction) decodeOutputs(ctx context.Context, data []byte, into any) error {
	cv, err := f.outputs.DecodeABIDataCtx(ctx, data, 0)
	if err != nil {
		return fmt.Errorf("failed to decode outputs of '%s': %w", f.entry.Name, err)
	}
	jsonData, err := abi.NewSerializer().
		SetFormattingMode(abi.FormatAsObjects).
		SetIntSerializer(abi.Base10StringIntSerializer).
		SerializeJSONCtx(ctx, cv)
	if err != nil {
		return fmt.Errorf("failed to serialize outputs of '%s': %w", f.entry.Name, err)
	}
	return json.Unmarshal(jsonData, into)
}

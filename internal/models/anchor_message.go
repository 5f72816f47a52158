package models

// AnchorMessage is the message published to the anchoring queue when a step
// is written to the replica in fire-and-forget mode. The anchor engine
// consumes it, submits the hash on chain and patches the replica entry.
// Used across the gateway, messaging and processing layers.
type AnchorMessage struct {
	RequestID string   `json:"RequestID"`
	SampleID  string   `json:"SampleID"`
	Step      StepType `json:"Step"`
	Hash      string   `json:"Hash"`
	// EnqueuedTimestamp is a string for easy JSON serialization
	EnqueuedTimestamp string `json:"EnqueuedTimestamp"`
}

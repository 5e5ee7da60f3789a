package artifact

import "encoding/json"

// Payload is the Artifact entity's data shape (§3).
type Payload struct {
	Content string   `json:"content"`
	Deltas  []string `json:"deltas"`
}

// DeltaFactData is the ArtifactDelta Fact's data shape (§3, §4.7).
type DeltaFactData struct {
	ArtifactUUID string `json:"artifact_uuid"`
	Ops          string `json:"ops"`
	BasedOnHash  string `json:"based_on_hash"`
	ResultHash   string `json:"result_hash"`
}

func marshalPayload(p Payload) (json.RawMessage, error) {
	return json.Marshal(p)
}

func unmarshalPayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	err := json.Unmarshal(raw, &p)
	return p, err
}

func marshalDeltaFact(d DeltaFactData) ([]byte, error) {
	return json.Marshal(d)
}

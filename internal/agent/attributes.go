package agent

// ProofPayload is the nested revealed-attribute structure of a completed
// proof: named groups, each holding named attribute values.
type ProofPayload map[string]RevealedAttributeGroup

// RevealedAttributeGroup is one attribute group of a proof payload.
type RevealedAttributeGroup struct {
	SubProofIndex int                               `json:"sub_proof_index"`
	Values        map[string]RevealedAttributeValue `json:"values"`
}

// RevealedAttributeValue carries the raw disclosed value of one attribute.
type RevealedAttributeValue struct {
	Raw     string `json:"raw"`
	Encoded string `json:"encoded,omitempty"`
}

// FlattenRevealedAttributes collapses the nested group structure into a flat
// attribute-name to raw-value mapping. Group names are dropped; a name
// appearing in several groups keeps one of the values.
func FlattenRevealedAttributes(payload ProofPayload) map[string]any {
	flat := make(map[string]any)
	for _, group := range payload {
		for name, value := range group.Values {
			flat[name] = value.Raw
		}
	}

	return flat
}

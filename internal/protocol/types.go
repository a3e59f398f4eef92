package protocol

// FirstMessage is the handshake frame a client sends right after connecting.
// Sig is the client's signature over the raw ClientCanisterID bytes.
type FirstMessage struct {
	ClientCanisterID []byte `cbor:"client_canister_id"`
	Sig              []byte `cbor:"sig"`
}

type ClientCanisterID struct {
	ClientID   uint64 `cbor:"client_id"`
	CanisterID string `cbor:"canister_id"`
}

// EncodedMessage is one entry of the canister's outbound log.
type EncodedMessage struct {
	ClientID uint64 `cbor:"client_id" ic:"client_id"`
	Key      string `cbor:"key" ic:"key"`
	Val      []byte `cbor:"val" ic:"val"`
}

// CertMessages is the Candid reply to ws_get_messages. Cert and Tree certify
// the whole batch.
type CertMessages struct {
	Messages []EncodedMessage `cbor:"messages" ic:"messages"`
	Cert     []byte           `cbor:"cert" ic:"cert"`
	Tree     []byte           `cbor:"tree" ic:"tree"`
}

// CertMessage is the binary frame pushed to a client. The gateway does not
// verify Cert or Tree.
type CertMessage struct {
	Key  string `cbor:"key"`
	Val  []byte `cbor:"val"`
	Cert []byte `cbor:"cert"`
	Tree []byte `cbor:"tree"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

package protocol

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"icgateway/internal/security"
)

var (
	// ErrDecode marks frames or canister replies that cannot be decoded.
	ErrDecode = errors.New("decode error")
	// ErrMalformedKey marks outbound message keys without a numeric sequence suffix.
	ErrMalformedKey = errors.Wrap(ErrDecode, "malformed message key")
)

// DecodeHandshake decodes the first client frame and the client/canister
// pair it carries.
func DecodeHandshake(frame []byte) (*FirstMessage, *ClientCanisterID, error) {
	var first FirstMessage
	if err := cbor.Unmarshal(frame, &first); err != nil {
		return nil, nil, errors.Wrapf(ErrDecode, "handshake frame: %v", err)
	}
	if len(first.ClientCanisterID) == 0 || len(first.Sig) == 0 {
		return nil, nil, errors.Wrap(ErrDecode, "handshake frame: missing fields")
	}

	var content ClientCanisterID
	if err := cbor.Unmarshal(first.ClientCanisterID, &content); err != nil {
		return nil, nil, errors.Wrapf(ErrDecode, "client canister id: %v", err)
	}
	if content.CanisterID == "" {
		return nil, nil, errors.Wrap(ErrDecode, "client canister id: empty canister id")
	}
	if !security.ValidateCanisterID(content.CanisterID) {
		return nil, nil, errors.Wrapf(ErrDecode, "client canister id: invalid canister id %q", content.CanisterID)
	}
	return &first, &content, nil
}

func EncodeClientCanisterID(id ClientCanisterID) ([]byte, error) {
	return cbor.Marshal(id)
}

func EncodeFirstMessage(m FirstMessage) ([]byte, error) {
	return cbor.Marshal(m)
}

func EncodeCertMessage(m CertMessage) ([]byte, error) {
	return cbor.Marshal(m)
}

func DecodeCertMessage(frame []byte) (*CertMessage, error) {
	var m CertMessage
	if err := cbor.Unmarshal(frame, &m); err != nil {
		return nil, errors.Wrapf(ErrDecode, "cert message: %v", err)
	}
	return &m, nil
}

// ParseSequence extracts the sequence number from a key of the form
// "<prefix>_<sequence>". A key without an underscore is parsed whole.
func ParseSequence(key string) (uint64, error) {
	suffix := key
	if idx := strings.LastIndexByte(key, '_'); idx >= 0 {
		suffix = key[idx+1:]
	}
	seq, err := strconv.ParseUint(suffix, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedKey, "%q", key)
	}
	return seq, nil
}

// ErrorResponse renders the JSON status object sent to clients on failure.
func ErrorResponse(message string) string {
	data, err := json.Marshal(StatusResponse{Status: "error", Message: message})
	if err != nil {
		return `{"status":"error","message":"internal error"}`
	}
	return string(data)
}

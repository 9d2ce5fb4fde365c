// Package grpcjson registers a gRPC codec that marshals messages as JSON
// instead of protobuf wire format, under the content-subtype "json".
//
// The storage agent's real wire schema is external to this repository's
// scope; this codec keeps the transport's deadline/status-code/streaming
// semantics real (it rides on google.golang.org/grpc exactly as compiled
// protobuf would) while letting api/agentpb's generated-style stubs carry
// plain Go structs instead of .pb.go types. Swapping in real protobuf
// codegen later only requires regenerating api/agentpb and dropping the
// grpc.CallContentSubtype(Name) dial option.
package grpcjson

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Name is the content-subtype this codec registers under ("application/grpc+json").
const Name = "json"

type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("grpcjson: marshal: %w", err)
	}
	return b, nil
}

func (codec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("grpcjson: unmarshal: %w", err)
	}
	return nil
}

func (codec) Name() string {
	return Name
}

func init() {
	encoding.RegisterCodec(codec{})
}

// Package checkpoint defines the gRPC wire protocol for streaming storage
// checkpoints between a source and a sink process.
package checkpoint

//go:generate protoc --go_out=plugins=grpc:. checkpoint.proto

import (
	"github.com/golang/protobuf/proto"
)

// Chunk carries one piece of a checkpoint stream: either the fixed-size
// checkpoint.Header followed by raw block bytes, chunked to keep individual
// gRPC messages small.
type Chunk struct {
	// Data is a slice of the wire-format stream produced by
	// checkpoint.WriteHeader / the block payload that follows it. The
	// receiver reassembles the stream by concatenating Data across the
	// messages it receives, in order.
	Data []byte `protobuf:"bytes,1,opt,name=data,proto3" json:"data,omitempty"`
}

func (m *Chunk) Reset()         { *m = Chunk{} }
func (m *Chunk) String() string { return proto.CompactTextString(m) }
func (*Chunk) ProtoMessage()    {}

func (m *Chunk) GetData() []byte {
	if m != nil {
		return m.Data
	}
	return nil
}

func init() {
	proto.RegisterType((*Chunk)(nil), "checkpoint.Chunk")
}

package checkpoint

import (
	"context"

	"google.golang.org/grpc"
)

// CheckpointClient is the client API for Checkpoint service.
type CheckpointClient interface {
	// Stream is bidirectional: the caller sends Chunks carrying an encoded
	// checkpoint and the callee streams back Chunks of its own (used for
	// restore, where the roles invert and the server is the data source).
	Stream(ctx context.Context, opts ...grpc.CallOption) (Checkpoint_StreamClient, error)
}

type checkpointClient struct {
	cc grpc.ClientConnInterface
}

func NewCheckpointClient(cc grpc.ClientConnInterface) CheckpointClient {
	return &checkpointClient{cc}
}

func (c *checkpointClient) Stream(ctx context.Context, opts ...grpc.CallOption) (Checkpoint_StreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &_Checkpoint_serviceDesc.Streams[0], "/checkpoint.Checkpoint/Stream", opts...)
	if err != nil {
		return nil, err
	}
	return &checkpointStreamClient{stream}, nil
}

type Checkpoint_StreamClient interface {
	Send(*Chunk) error
	Recv() (*Chunk, error)
	grpc.ClientStream
}

type checkpointStreamClient struct {
	grpc.ClientStream
}

func (x *checkpointStreamClient) Send(m *Chunk) error {
	return x.ClientStream.SendMsg(m)
}

func (x *checkpointStreamClient) Recv() (*Chunk, error) {
	m := new(Chunk)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// CheckpointServer is the server API for Checkpoint service.
type CheckpointServer interface {
	Stream(Checkpoint_StreamServer) error
}

func RegisterCheckpointServer(s *grpc.Server, srv CheckpointServer) {
	s.RegisterService(&_Checkpoint_serviceDesc, srv)
}

func _Checkpoint_Stream_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(CheckpointServer).Stream(&checkpointStreamServer{stream})
}

type Checkpoint_StreamServer interface {
	Send(*Chunk) error
	Recv() (*Chunk, error)
	grpc.ServerStream
}

type checkpointStreamServer struct {
	grpc.ServerStream
}

func (x *checkpointStreamServer) Send(m *Chunk) error {
	return x.ServerStream.SendMsg(m)
}

func (x *checkpointStreamServer) Recv() (*Chunk, error) {
	m := new(Chunk)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

var _Checkpoint_serviceDesc = grpc.ServiceDesc{
	ServiceName: "checkpoint.Checkpoint",
	HandlerType: (*CheckpointServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       _Checkpoint_Stream_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "checkpoint.proto",
}

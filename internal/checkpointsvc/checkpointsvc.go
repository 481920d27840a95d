// Package checkpointsvc exposes the checkpoint package's wire format over a
// gRPC bidirectional stream, so a checkpoint can be pushed to (or pulled
// from) a remote sink/source instead of a local io.Reader/io.Writer.
package checkpointsvc

import (
	"context"
	"fmt"
	"io"

	"github.com/protocolbuffers/txtpbfmt/parser"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/checkpoint"
	"github.com/pappadf/granny-smith-sub003/gserr"
	pb "github.com/pappadf/granny-smith-sub003/pb/checkpoint"
)

const chunkSize = 256 * 1024

// Provider is implemented by whatever holds the authoritative checkpoint
// data on the server side of the Stream RPC.
type Provider interface {
	// Checkpoint opens the current checkpoint stream for a pull request.
	Checkpoint(ctx context.Context) (io.ReadCloser, error)
	// Apply consumes a full checkpoint stream pushed by a client.
	Apply(ctx context.Context, r io.Reader) error
}

// Server implements pb.CheckpointServer.
type Server struct {
	Provider Provider
}

var _ pb.CheckpointServer = (*Server)(nil)

// Stream serves both directions of the checkpoint protocol over one RPC:
// a client that sends one or more Chunks before closing is pushing a
// checkpoint (Provider.Apply consumes it); a client that closes its send
// side immediately, without sending anything, is pulling one
// (Provider.Checkpoint serves it back).
func (s *Server) Stream(stream pb.Checkpoint_StreamServer) error {
	const op = "checkpointsvc.Stream"
	first, err := stream.Recv()
	if err == io.EOF {
		return s.servePull(stream)
	}
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	return s.servePush(stream, first)
}

func (s *Server) servePush(stream pb.Checkpoint_StreamServer, first *pb.Chunk) error {
	const op = "checkpointsvc.servePush"
	pr, pw := io.Pipe()

	eg, ctx := errgroup.WithContext(stream.Context())
	eg.Go(func() error {
		defer pw.Close()
		if _, err := pw.Write(first.GetData()); err != nil {
			return err
		}
		for {
			chunk, err := stream.Recv()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := pw.Write(chunk.GetData()); err != nil {
				return err
			}
		}
	})
	eg.Go(func() error {
		return s.Provider.Apply(ctx, pr)
	})
	if err := eg.Wait(); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	return stream.Send(&pb.Chunk{})
}

func (s *Server) servePull(stream pb.Checkpoint_StreamServer) error {
	const op = "checkpointsvc.servePull"
	r, err := s.Provider.Checkpoint(stream.Context())
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	defer r.Close()

	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out := make([]byte, n)
			copy(out, buf[:n])
			if sendErr := stream.Send(&pb.Chunk{Data: out}); sendErr != nil {
				return gserr.E(op, gserr.IOFailure, sendErr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
	}
}

// Push sends the entirety of r to the server as one checkpoint and waits
// for its acknowledgement.
func Push(ctx context.Context, client pb.CheckpointClient, r io.Reader) error {
	const op = "checkpointsvc.Push"
	stream, err := client.Stream(ctx)
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out := make([]byte, n)
			copy(out, buf[:n])
			if sendErr := stream.Send(&pb.Chunk{Data: out}); sendErr != nil {
				return gserr.E(op, gserr.IOFailure, sendErr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	if _, err := stream.Recv(); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	return nil
}

// Pull requests the server's current checkpoint and writes it to w.
func Pull(ctx context.Context, client pb.CheckpointClient, w io.Writer) error {
	const op = "checkpointsvc.Pull"
	stream, err := client.Stream(ctx)
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	if err := stream.CloseSend(); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
		if _, err := w.Write(chunk.GetData()); err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
	}
}

// DescribeTextproto renders h as a canonically-formatted textproto snippet,
// suitable for the status server's debug dump.
func DescribeTextproto(h checkpoint.Header) (string, error) {
	const op = "checkpointsvc.DescribeTextproto"
	raw := []byte(fmt.Sprintf(
		"version: %d\nhas_data: %t\nblock_count: %d\nblock_size: %d\n",
		h.Version, h.HasData, h.BlockCount, h.BlockSize))
	formatted, err := parser.Format(raw)
	if err != nil {
		return "", gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("formatting checkpoint header: %w", err))
	}
	return string(formatted), nil
}

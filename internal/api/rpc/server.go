// Package rpc exposes the machine controller over gRPC.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"github.com/Wideyedwonderer/buscuit-maker/internal/machine"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Machine is the part of the controller the service drives.
type Machine interface {
	ExecuteCommand(ctx context.Context, cmd machine.Command) error
	GetStatus() machine.MachineStatus
}

// Server implements MachineControlServer.
type Server struct {
	machine Machine
	source  *events.Broadcaster
	logger  *zap.Logger
}

func NewServer(m Machine, source *events.Broadcaster, logger *zap.Logger) *Server {
	return &Server{machine: m, source: source, logger: logger}
}

func (s *Server) SendCommand(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	cmd, err := machine.ParseCommand(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.machine.ExecuteCommand(ctx, cmd); err != nil {
		switch {
		case errors.Is(err, machine.ErrClosed):
			return nil, status.Error(codes.Unavailable, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, status.FromContextError(err).Err()
		default:
			return nil, status.Error(codes.Internal, err.Error())
		}
	}

	return &emptypb.Empty{}, nil
}

func (s *Server) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(s.machine.GetStatus())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// StreamEvents sends the latest value of every state event, then live
// events until the client goes away or the broadcaster closes.
func (s *Server) StreamEvents(_ *emptypb.Empty, stream EventStream) error {
	id, feed, replay := s.source.Subscribe()
	defer s.source.Unsubscribe(id)

	s.logger.Debug("gRPC event stream opened", zap.String("subscriber", id.String()))

	for _, e := range replay {
		if err := s.send(stream, e); err != nil {
			return err
		}
	}

	for {
		select {
		case e, ok := <-feed:
			if !ok {
				return nil
			}
			if err := s.send(stream, e); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func (s *Server) send(stream EventStream, e events.Event) error {
	m, err := toStruct(e)
	if err != nil {
		s.logger.Warn("Dropping unencodable event",
			zap.String("event", string(e.Name)),
			zap.Error(err))
		return nil
	}
	return stream.Send(m)
}

// toStruct converts v through its JSON form so field names match the
// websocket and REST payloads.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding %T: %w", v, err)
	}
	return structpb.NewStruct(fields)
}

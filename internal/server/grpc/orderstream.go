package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ordernotifyv1 "github.com/rzbill/ordernotify/api/ordernotify/v1"
	"github.com/rzbill/ordernotify/internal/services/orderstream"
	"github.com/rzbill/ordernotify/internal/tenant"
	"github.com/rzbill/ordernotify/pkg/log"
)

type orderStreamSvc struct {
	svc    *orderstream.Service
	logger log.Logger
}

type grpcSink struct {
	stream ordernotifyv1.OrderStream_SubscribeServer
}

func (g grpcSink) Send(f orderstream.Frame) error { return g.stream.Send(&f) }
func (g grpcSink) Context() context.Context       { return g.stream.Context() }
func (g grpcSink) Flush() error                   { return nil }

func (s *orderStreamSvc) Subscribe(req *ordernotifyv1.SubscribeRequest, stream ordernotifyv1.OrderStream_SubscribeServer) error {
	sess, err := s.svc.Open(stream.Context(), req.TenantID, req.Filter)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrInvalid), errors.Is(err, orderstream.ErrInvalidFilter):
			return status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, orderstream.ErrUnavailable), errors.Is(err, orderstream.ErrShuttingDown):
			return status.Error(codes.Unavailable, err.Error())
		default:
			s.logger.Error("open order stream failed", log.Tenant(req.TenantID), log.Err(err))
			return status.Error(codes.Internal, "failed to open stream")
		}
	}
	if err := sess.Run(grpcSink{stream: stream}); err != nil {
		return status.FromContextError(err).Err()
	}
	return nil
}

package streamclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ordernotifyv1 "github.com/rzbill/ordernotify/api/ordernotify/v1"
	"github.com/rzbill/ordernotify/internal/services/orderstream"
)

// ErrRejected marks a request the server will never accept (bad tenant or
// filter). The client does not retry it.
var ErrRejected = errors.New("stream request rejected")

// Request selects the stream.
type Request struct {
	TenantID string
	Filter   string
}

// FrameStream yields frames from one open connection.
type FrameStream interface {
	Recv() (orderstream.Frame, error)
	Close() error
}

// Transport opens one connection.
type Transport interface {
	Open(ctx context.Context, req Request) (FrameStream, error)
}

// SSETransport reads GET /v1/orders/stream.
type SSETransport struct {
	BaseURL string
	Client  *http.Client
}

// Open implements Transport.
func (t *SSETransport) Open(ctx context.Context, req Request) (FrameStream, error) {
	q := url.Values{"tenant": {req.TenantID}}
	if req.Filter != "" {
		q.Set("filter", req.Filter)
	}
	u := strings.TrimRight(t.BaseURL, "/") + "/v1/orders/stream?" + q.Encode()
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Accept", "text/event-stream")
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		err := fmt.Errorf("stream open: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return nil, err
	}
	return &sseStream{body: resp.Body, r: bufio.NewReader(resp.Body)}, nil
}

type sseStream struct {
	body io.ReadCloser
	r    *bufio.Reader
}

func (s *sseStream) Recv() (orderstream.Frame, error) {
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return orderstream.Frame{}, io.ErrUnexpectedEOF
			}
			return orderstream.Frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var f orderstream.Frame
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &f); err != nil {
			return orderstream.Frame{}, fmt.Errorf("decode frame: %w", err)
		}
		return f, nil
	}
}

func (s *sseStream) Close() error { return s.body.Close() }

// GRPCTransport calls ordernotify.v1.OrderStream/Subscribe.
type GRPCTransport struct {
	Conn grpc.ClientConnInterface
}

// Open implements Transport.
func (t *GRPCTransport) Open(ctx context.Context, req Request) (FrameStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	cli := ordernotifyv1.NewOrderStreamClient(t.Conn)
	stream, err := cli.Subscribe(ctx, &ordernotifyv1.SubscribeRequest{TenantID: req.TenantID, Filter: req.Filter})
	if err != nil {
		cancel()
		return nil, grpcErr(err)
	}
	return &grpcStream{stream: stream, cancel: cancel}, nil
}

type grpcStream struct {
	stream ordernotifyv1.OrderStream_SubscribeClient
	cancel context.CancelFunc
}

func (s *grpcStream) Recv() (orderstream.Frame, error) {
	f, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return orderstream.Frame{}, io.ErrUnexpectedEOF
		}
		return orderstream.Frame{}, grpcErr(err)
	}
	return *f, nil
}

func (s *grpcStream) Close() error {
	s.cancel()
	return nil
}

func grpcErr(err error) error {
	if status.Code(err) == codes.InvalidArgument {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return err
}

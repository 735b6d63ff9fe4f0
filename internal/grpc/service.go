package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName 完整服務名稱.
const ServiceName = "simplechat.v1.ChatService"

// ChatServiceServer 對話服務的 gRPC 介面.
type ChatServiceServer interface {
	GetOrCreateThread(context.Context, *GetOrCreateThreadRequest) (*ThreadResponse, error)
	GetThreadDetails(context.Context, *GetThreadDetailsRequest) (*ThreadDetailResponse, error)
	GetUserThreads(context.Context, *GetUserThreadsRequest) (*ThreadListResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*MessageResponse, error)
	GetThreadMessages(context.Context, *GetThreadMessagesRequest) (*MessageListResponse, error)
	MarkMessagesAsRead(context.Context, *MarkMessagesAsReadRequest) (*MarkMessagesAsReadResponse, error)
	GetUnreadCount(context.Context, *GetUnreadCountRequest) (*UnreadCountResponse, error)
}

// ChatServiceDesc 服務描述, 以 JSON codec 傳輸.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetOrCreateThread", ChatServiceServer.GetOrCreateThread),
		unary("GetThreadDetails", ChatServiceServer.GetThreadDetails),
		unary("GetUserThreads", ChatServiceServer.GetUserThreads),
		unary("SendMessage", ChatServiceServer.SendMessage),
		unary("GetThreadMessages", ChatServiceServer.GetThreadMessages),
		unary("MarkMessagesAsRead", ChatServiceServer.MarkMessagesAsRead),
		unary("GetUnreadCount", ChatServiceServer.GetUnreadCount),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "simplechat/v1/chat",
}

// RegisterChatServiceServer 註冊服務實作.
func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Resp any](method string, call func(ChatServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ChatServiceClient 對話服務客戶端.
type ChatServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewChatServiceClient 建立客戶端, 所有呼叫使用 JSON codec.
func NewChatServiceClient(cc grpc.ClientConnInterface) *ChatServiceClient {
	return &ChatServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatServiceClient) GetOrCreateThread(ctx context.Context, in *GetOrCreateThreadRequest, opts ...grpc.CallOption) (*ThreadResponse, error) {
	return invoke[ThreadResponse](ctx, c.cc, "GetOrCreateThread", in, opts)
}

func (c *ChatServiceClient) GetThreadDetails(ctx context.Context, in *GetThreadDetailsRequest, opts ...grpc.CallOption) (*ThreadDetailResponse, error) {
	return invoke[ThreadDetailResponse](ctx, c.cc, "GetThreadDetails", in, opts)
}

func (c *ChatServiceClient) GetUserThreads(ctx context.Context, in *GetUserThreadsRequest, opts ...grpc.CallOption) (*ThreadListResponse, error) {
	return invoke[ThreadListResponse](ctx, c.cc, "GetUserThreads", in, opts)
}

func (c *ChatServiceClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, "SendMessage", in, opts)
}

func (c *ChatServiceClient) GetThreadMessages(ctx context.Context, in *GetThreadMessagesRequest, opts ...grpc.CallOption) (*MessageListResponse, error) {
	return invoke[MessageListResponse](ctx, c.cc, "GetThreadMessages", in, opts)
}

func (c *ChatServiceClient) MarkMessagesAsRead(ctx context.Context, in *MarkMessagesAsReadRequest, opts ...grpc.CallOption) (*MarkMessagesAsReadResponse, error) {
	return invoke[MarkMessagesAsReadResponse](ctx, c.cc, "MarkMessagesAsRead", in, opts)
}

func (c *ChatServiceClient) GetUnreadCount(ctx context.Context, in *GetUnreadCountRequest, opts ...grpc.CallOption) (*UnreadCountResponse, error) {
	return invoke[UnreadCountResponse](ctx, c.cc, "GetUnreadCount", in, opts)
}

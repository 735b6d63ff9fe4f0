package grpc

import (
	"context"
	"fmt"
	"net"

	"simple-chat/internal/chat"
	"simple-chat/internal/platform/config"
	"simple-chat/internal/platform/logger"
	"simple-chat/internal/platform/middleware"
	"simple-chat/internal/platform/server"

	"google.golang.org/grpc"
)

// Server gRPC 服務器, 將請求轉給對話服務.
type Server struct {
	grpcServer *grpc.Server
	chat       *chat.Service
}

var _ ChatServiceServer = (*Server)(nil)

// NewServer 創建新的 gRPC 服務器
func NewServer(svc *chat.Service, tlsConfig config.TLSConfig, auth *middleware.JWTMiddleware) (*Server, error) {
	ctx := context.Background()

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(),
			LoggingInterceptor(),
			auth.GRPCUnaryInterceptor(),
		),
	}

	creds, err := server.LoadTLSCredentials(tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
	}
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
		logger.Info(ctx, "gRPC TLS 已啟用")
	} else {
		logger.Info(ctx, "gRPC 以非加密模式運行（開發環境）")
	}

	s := &Server{grpcServer: grpc.NewServer(opts...), chat: svc}
	RegisterChatServiceServer(s.grpcServer, s)
	return s, nil
}

// Serve 在 listener 上提供服務, 直到 Stop 被呼叫.
func (s *Server) Serve(lis net.Listener) error {
	logger.Infof(context.Background(), "gRPC 伺服器正在監聽: %s", lis.Addr())
	return s.grpcServer.Serve(lis)
}

// Stop 優雅關閉.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

func (s *Server) GetOrCreateThread(ctx context.Context, req *GetOrCreateThreadRequest) (*ThreadResponse, error) {
	thread, err := s.chat.GetOrCreateThread(ctx, req.CurrentUserID, req.OtherUserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ThreadResponse{Thread: thread}, nil
}

func (s *Server) GetThreadDetails(ctx context.Context, req *GetThreadDetailsRequest) (*ThreadDetailResponse, error) {
	size, number := s.paging(req.PageSize, req.PageNumber)
	detail, err := s.chat.GetThreadDetails(ctx, req.ThreadID, req.CurrentUserID, size, number)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ThreadDetailResponse{Detail: detail}, nil
}

func (s *Server) GetUserThreads(ctx context.Context, req *GetUserThreadsRequest) (*ThreadListResponse, error) {
	threads, err := s.chat.GetUserThreads(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ThreadListResponse{Threads: threads}, nil
}

func (s *Server) SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageResponse, error) {
	msg, err := s.chat.SendMessage(ctx, req.SenderID, req.ThreadID, req.Content)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MessageResponse{Message: msg}, nil
}

func (s *Server) GetThreadMessages(ctx context.Context, req *GetThreadMessagesRequest) (*MessageListResponse, error) {
	size, number := s.paging(req.PageSize, req.PageNumber)
	msgs, err := s.chat.GetThreadMessages(ctx, req.ThreadID, size, number)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MessageListResponse{Messages: msgs}, nil
}

func (s *Server) MarkMessagesAsRead(ctx context.Context, req *MarkMessagesAsReadRequest) (*MarkMessagesAsReadResponse, error) {
	if err := s.chat.MarkMessagesAsRead(ctx, req.UserID, req.ThreadID); err != nil {
		return nil, toStatus(err)
	}
	return &MarkMessagesAsReadResponse{}, nil
}

func (s *Server) GetUnreadCount(ctx context.Context, req *GetUnreadCountRequest) (*UnreadCountResponse, error) {
	count, err := s.chat.GetUnreadCount(ctx, req.UserID, req.ThreadID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &UnreadCountResponse{ThreadID: req.ThreadID, UserID: req.UserID, UnreadCount: count}, nil
}

// paging 0 表示未指定.
func (s *Server) paging(size, number int) (int, int) {
	if size == 0 {
		size = s.chat.Limits().DefaultPageSize
	}
	if number == 0 {
		number = 1
	}
	return size, number
}

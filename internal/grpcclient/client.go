package grpcclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"

	chatgrpc "simple-chat/internal/grpc"
	"simple-chat/internal/platform/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	conn *grpc.ClientConn
	mu   sync.RWMutex
)

// GetConnection 獲取或創建 gRPC 客戶端連接（單例模式）
// 自動從配置讀取地址
func GetConnection() (*grpc.ClientConn, error) {
	mu.RLock()
	if conn != nil {
		mu.RUnlock()
		return conn, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// 再次檢查（雙重檢查鎖定）
	if conn != nil {
		return conn, nil
	}

	cfg := config.Get()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	c, err := Dial(config.GetGRPCAddr(), cfg.Security.TLS)
	if err != nil {
		return nil, err
	}
	conn = c
	return conn, nil
}

// Dial 建立到指定地址的連接, 呼叫預設使用 JSON codec.
func Dial(address string, tlsConfig config.TLSConfig, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	var creds credentials.TransportCredentials
	if tlsConfig.Enabled {
		c, err := tlsCredentials(tlsConfig)
		if err != nil {
			return nil, err
		}
		creds = c
	} else {
		creds = insecure.NewCredentials()
	}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(chatgrpc.CodecName)),
	}, opts...)

	c, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server at %s: %w", address, err)
	}
	return c, nil
}

// NewChatClient 以共用連接建立對話服務客戶端.
func NewChatClient() (*chatgrpc.ChatServiceClient, error) {
	c, err := GetConnection()
	if err != nil {
		return nil, err
	}
	return chatgrpc.NewChatServiceClient(c), nil
}

// tlsCredentials 有客戶端憑證時使用雙向 TLS
func tlsCredentials(tlsConfig config.TLSConfig) (credentials.TransportCredentials, error) {
	certPool := x509.NewCertPool()
	if tlsConfig.CAFile != "" {
		ca, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		if ok := certPool.AppendCertsFromPEM(ca); !ok {
			return nil, fmt.Errorf("failed to append CA cert")
		}
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS13}
	if tlsConfig.CAFile != "" {
		cfg.RootCAs = certPool
	}
	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return credentials.NewTLS(cfg), nil
}

// CloseConnection 關閉 gRPC 連接
func CloseConnection() error {
	mu.Lock()
	defer mu.Unlock()

	if conn != nil {
		err := conn.Close()
		conn = nil
		return err
	}
	return nil
}

// IsConnected 檢查是否已連接
func IsConnected() bool {
	mu.RLock()
	defer mu.RUnlock()
	return conn != nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	chatgrpc "simple-chat/internal/grpc"
	"simple-chat/internal/grpcclient"
	"simple-chat/internal/platform/config"
	"simple-chat/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc/metadata"
)

func main() {
	app := &cli.App{
		Name:  "chatctl",
		Usage: "simple-chat gRPC 操作工具",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "gRPC 伺服器地址, 未指定時從配置讀取",
				EnvVars: []string{"CHATCTL_ADDR"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token (伺服器啟用 JWT 時需要)",
				EnvVars: []string{"CHATCTL_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "ca-file",
				Usage:   "TLS CA 憑證, 指定時以 TLS 連線",
				EnvVars: []string{"CHATCTL_CA_FILE"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "單次呼叫逾時",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "thread",
				Usage: "取得或建立兩位使用者之間的對話",
				Flags: []cli.Flag{userFlag(), &cli.StringFlag{Name: "other", Required: true, Usage: "對方使用者 ID"}},
				Action: func(c *cli.Context) error {
					return call(c, func(ctx context.Context, client *chatgrpc.ChatServiceClient) (any, error) {
						return client.GetOrCreateThread(ctx, &chatgrpc.GetOrCreateThreadRequest{
							CurrentUserID: c.String("user"),
							OtherUserID:   c.String("other"),
						})
					})
				},
			},
			{
				Name:  "detail",
				Usage: "對話內容與一頁訊息",
				Flags: append([]cli.Flag{userFlag(), threadFlag()}, pageFlags()...),
				Action: func(c *cli.Context) error {
					return call(c, func(ctx context.Context, client *chatgrpc.ChatServiceClient) (any, error) {
						return client.GetThreadDetails(ctx, &chatgrpc.GetThreadDetailsRequest{
							ThreadID:      c.String("thread"),
							CurrentUserID: c.String("user"),
							PageSize:      c.Int("page-size"),
							PageNumber:    c.Int("page"),
						})
					})
				},
			},
			{
				Name:  "threads",
				Usage: "列出使用者的活躍對話",
				Flags: []cli.Flag{userFlag()},
				Action: func(c *cli.Context) error {
					return call(c, func(ctx context.Context, client *chatgrpc.ChatServiceClient) (any, error) {
						return client.GetUserThreads(ctx, &chatgrpc.GetUserThreadsRequest{UserID: c.String("user")})
					})
				},
			},
			{
				Name:      "send",
				Usage:     "送出訊息",
				ArgsUsage: "<content>",
				Flags:     []cli.Flag{userFlag(), threadFlag()},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("需要一個訊息內容參數", 2)
					}
					return call(c, func(ctx context.Context, client *chatgrpc.ChatServiceClient) (any, error) {
						return client.SendMessage(ctx, &chatgrpc.SendMessageRequest{
							SenderID: c.String("user"),
							ThreadID: c.String("thread"),
							Content:  c.Args().First(),
						})
					})
				},
			},
			{
				Name:  "messages",
				Usage: "列出對話訊息",
				Flags: append([]cli.Flag{threadFlag()}, pageFlags()...),
				Action: func(c *cli.Context) error {
					return call(c, func(ctx context.Context, client *chatgrpc.ChatServiceClient) (any, error) {
						return client.GetThreadMessages(ctx, &chatgrpc.GetThreadMessagesRequest{
							ThreadID:   c.String("thread"),
							PageSize:   c.Int("page-size"),
							PageNumber: c.Int("page"),
						})
					})
				},
			},
			{
				Name:  "read",
				Usage: "將對話標記為已讀",
				Flags: []cli.Flag{userFlag(), threadFlag()},
				Action: func(c *cli.Context) error {
					return call(c, func(ctx context.Context, client *chatgrpc.ChatServiceClient) (any, error) {
						return client.MarkMessagesAsRead(ctx, &chatgrpc.MarkMessagesAsReadRequest{
							UserID:   c.String("user"),
							ThreadID: c.String("thread"),
						})
					})
				},
			},
			{
				Name:  "unread",
				Usage: "未讀訊息數量",
				Flags: []cli.Flag{userFlag(), threadFlag()},
				Action: func(c *cli.Context) error {
					return call(c, func(ctx context.Context, client *chatgrpc.ChatServiceClient) (any, error) {
						return client.GetUnreadCount(ctx, &chatgrpc.GetUnreadCountRequest{
							UserID:   c.String("user"),
							ThreadID: c.String("thread"),
						})
					})
				},
			},
		},
		After: func(*cli.Context) error {
			return grpcclient.CloseConnection()
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func userFlag() cli.Flag {
	return &cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true, Usage: "使用者 ID"}
}

func threadFlag() cli.Flag {
	return &cli.StringFlag{Name: "thread", Aliases: []string{"t"}, Required: true, Usage: "對話 ID"}
}

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "page-size", Usage: "每頁筆數, 0 表示伺服器預設"},
		&cli.IntFlag{Name: "page", Value: 1, Usage: "頁碼, 從 1 開始"},
	}
}

// client 指定 --addr 時直接連線, 否則使用配置中的 gRPC 地址.
func client(c *cli.Context) (*chatgrpc.ChatServiceClient, error) {
	if addr := c.String("addr"); addr != "" {
		tlsCfg := config.TLSConfig{Enabled: c.String("ca-file") != "", CAFile: c.String("ca-file")}
		conn, err := grpcclient.Dial(addr, tlsCfg)
		if err != nil {
			return nil, err
		}
		return chatgrpc.NewChatServiceClient(conn), nil
	}
	if err := config.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return grpcclient.NewChatClient()
}

func call(c *cli.Context, fn func(ctx context.Context, client *chatgrpc.ChatServiceClient) (any, error)) error {
	// CLI 輸出只保留結果.
	logger.SetOutput(nil)

	cl, err := client(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", uuid.NewString())
	if token := c.String("token"); token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}

	resp, err := fn(ctx, cl)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

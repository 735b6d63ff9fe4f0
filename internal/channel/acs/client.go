// Package acs 以 REST API 實作 Azure Communication Services 通道.
package acs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"simple-chat/internal/channel"

	"github.com/google/uuid"
)

const (
	identityAPIVersion = "2023-10-01"
	chatAPIVersion     = "2021-09-07"

	// 權杖在到期前多久視為失效.
	tokenRefreshSkew = 5 * time.Minute
	maxResponseBytes = 4 << 20
)

// APIError 服務回傳的非 2xx 回應.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("acs: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap 5xx 與 429 視為通道不可用.
func (e *APIError) Unwrap() error {
	if e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests {
		return channel.ErrUnavailable
	}
	return nil
}

// Client ACS REST 客戶端, 並發安全.
type Client struct {
	creds Credentials
	http  *http.Client
	now   func() time.Time

	mu     sync.Mutex
	tokens map[string]channel.AccessToken // 各身份的 chat 權杖快取.
}

// Option 客戶端選項.
type Option func(*Client)

// WithHTTPClient 替換 HTTP 客戶端.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New 由連接字串建立客戶端.
func New(connectionString string, opts ...Option) (*Client, error) {
	creds, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	c := &Client{
		creds:  creds,
		http:   &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
		tokens: make(map[string]channel.AccessToken),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint 前端 SDK 連線的端點.
func (c *Client) Endpoint() string {
	return c.creds.Endpoint.String()
}

func (c *Client) url(path, apiVersion string, query url.Values) *url.URL {
	u := *c.creds.Endpoint
	u.Path = c.creds.Endpoint.Path + path
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", apiVersion)
	u.RawQuery = query.Encode()
	return &u
}

// do 送出請求並解析 JSON 回應; bearer 為空時使用 HMAC 簽章.
func (c *Client) do(ctx context.Context, method string, u *url.URL, bearer string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("repeatability-request-id", uuid.NewString())
		req.Header.Set("repeatability-first-sent", c.now().UTC().Format(http.TimeFormat))
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		signRequest(req, body, c.creds.AccessKey, c.now())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", channel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", channel.ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Error.Code != "" {
			apiErr.Code = er.Error.Code
			apiErr.Message = er.Error.Message
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("acs: decode response: %w", err)
	}
	return nil
}

// CreateIdentity 建立新的通訊身份.
func (c *Client) CreateIdentity(ctx context.Context) (string, error) {
	var resp identityResponse
	body := map[string]any{"createTokenWithScopes": []string{}}
	if err := c.do(ctx, http.MethodPost, c.url("/identities", identityAPIVersion, nil), "", body, &resp); err != nil {
		return "", err
	}
	if resp.Identity.ID == "" {
		return "", errors.New("acs: empty identity in response")
	}
	return resp.Identity.ID, nil
}

// IssueAccessToken 為身份簽發存取權杖.
func (c *Client) IssueAccessToken(ctx context.Context, identity string, scopes []channel.Scope) (channel.AccessToken, error) {
	req := issueTokenRequest{Scopes: make([]string, 0, len(scopes))}
	for _, s := range scopes {
		req.Scopes = append(req.Scopes, string(s))
	}

	path := "/identities/" + identity + "/:issueAccessToken"
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, c.url(path, identityAPIVersion, nil), "", req, &resp); err != nil {
		return channel.AccessToken{}, err
	}
	if resp.Token == "" {
		return channel.AccessToken{}, errors.New("acs: empty token in response")
	}
	return channel.AccessToken{Token: resp.Token, ExpiresOn: resp.ExpiresOn}, nil
}

// chatToken 取得 identity 的 chat 權杖, 快取到接近到期.
func (c *Client) chatToken(ctx context.Context, identity string) (string, error) {
	c.mu.Lock()
	tok, ok := c.tokens[identity]
	c.mu.Unlock()
	if ok && c.now().Add(tokenRefreshSkew).Before(tok.ExpiresOn) {
		return tok.Token, nil
	}

	tok, err := c.IssueAccessToken(ctx, identity, []channel.Scope{channel.ScopeChat})
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.tokens[identity] = tok
	c.mu.Unlock()
	return tok.Token, nil
}

// CreateThread 以第一位參與者的身份建立遠端對話.
func (c *Client) CreateThread(ctx context.Context, topic string, participants []channel.Participant) (string, error) {
	if len(participants) == 0 {
		return "", errors.New("acs: thread requires participants")
	}
	token, err := c.chatToken(ctx, participants[0].Identity)
	if err != nil {
		return "", err
	}

	req := createThreadRequest{Topic: topic, Participants: make([]chatParticipant, 0, len(participants))}
	for _, p := range participants {
		req.Participants = append(req.Participants, chatParticipant{
			CommunicationIdentifier: identifier(p.Identity),
			DisplayName:             p.DisplayName,
		})
	}

	var resp createThreadResponse
	if err := c.do(ctx, http.MethodPost, c.url("/chat/threads", chatAPIVersion, nil), token, req, &resp); err != nil {
		return "", err
	}
	if resp.ChatThread.ID == "" {
		return "", errors.New("acs: empty thread id in response")
	}
	return resp.ChatThread.ID, nil
}

// AddParticipant 以新參與者自己的身份加入對話.
func (c *Client) AddParticipant(ctx context.Context, threadID string, participant channel.Participant) error {
	token, err := c.chatToken(ctx, participant.Identity)
	if err != nil {
		return err
	}
	path := "/chat/threads/" + threadID + "/participants/:add"
	req := addParticipantsRequest{Participants: []chatParticipant{{
		CommunicationIdentifier: identifier(participant.Identity),
		DisplayName:             participant.DisplayName,
	}}}
	return c.do(ctx, http.MethodPost, c.url(path, chatAPIVersion, nil), token, req, nil)
}

// SendMessage 以寄件者身份送出文字訊息.
func (c *Client) SendMessage(ctx context.Context, threadID string, sender channel.Participant, content string) (string, error) {
	token, err := c.chatToken(ctx, sender.Identity)
	if err != nil {
		return "", err
	}
	path := "/chat/threads/" + threadID + "/messages"
	req := sendMessageRequest{Content: content, SenderDisplayName: sender.DisplayName, Type: "text"}

	var resp sendMessageResponse
	if err := c.do(ctx, http.MethodPost, c.url(path, chatAPIVersion, nil), token, req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("acs: empty message id in response")
	}
	return resp.ID, nil
}

// ListMessages 列出一頁遠端訊息 (由新到舊), PageToken 為上一頁的 nextLink.
func (c *Client) ListMessages(ctx context.Context, threadID string, opts channel.ListOptions) (*channel.MessagePage, error) {
	if opts.As == "" {
		return nil, errors.New("acs: list messages requires an acting identity")
	}
	token, err := c.chatToken(ctx, opts.As)
	if err != nil {
		return nil, err
	}

	var u *url.URL
	if opts.PageToken != "" {
		if u, err = c.nextLink(opts.PageToken); err != nil {
			return nil, err
		}
	} else {
		query := url.Values{}
		if opts.MaxPageSize > 0 {
			query.Set("maxPageSize", strconv.Itoa(opts.MaxPageSize))
		}
		if !opts.StartTime.IsZero() {
			query.Set("startTime", opts.StartTime.UTC().Format(time.RFC3339))
		}
		u = c.url("/chat/threads/"+threadID+"/messages", chatAPIVersion, query)
	}

	var resp listMessagesResponse
	if err := c.do(ctx, http.MethodGet, u, token, nil, &resp); err != nil {
		return nil, err
	}

	page := &channel.MessagePage{
		Messages:      make([]channel.RemoteMessage, 0, len(resp.Value)),
		NextPageToken: resp.NextLink,
	}
	for _, m := range resp.Value {
		rm := channel.RemoteMessage{
			ID:                m.ID,
			Type:              m.Type,
			SequenceID:        m.SequenceID,
			SenderDisplayName: m.SenderDisplayName,
			CreatedOn:         m.CreatedOn,
		}
		if m.Content != nil {
			rm.Content = m.Content.Message
		}
		if id := m.SenderCommunicationIdentifier; id != nil {
			rm.SenderIdentity = id.RawID
			if rm.SenderIdentity == "" && id.CommunicationUser != nil {
				rm.SenderIdentity = id.CommunicationUser.ID
			}
		}
		page.Messages = append(page.Messages, rm)
	}
	return page, nil
}

// nextLink 解析分頁連結, 只接受同一個資源端點 (權杖不外送).
func (c *Client) nextLink(link string) (*url.URL, error) {
	u, err := c.creds.Endpoint.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("acs: invalid next link: %w", err)
	}
	if u.Scheme != c.creds.Endpoint.Scheme || u.Host != c.creds.Endpoint.Host {
		return nil, fmt.Errorf("acs: next link points to foreign host %q", u.Host)
	}
	q := u.Query()
	if q.Get("api-version") == "" {
		q.Set("api-version", chatAPIVersion)
		u.RawQuery = q.Encode()
	}
	return u, nil
}

var _ channel.Adapter = (*Client)(nil)

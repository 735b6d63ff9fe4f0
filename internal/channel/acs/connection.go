package acs

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// Credentials 由連接字串解析出的端點與存取金鑰.
type Credentials struct {
	Endpoint  *url.URL
	AccessKey []byte
}

// ParseConnectionString 解析 "endpoint=https://...;accesskey=<base64>".
func ParseConnectionString(s string) (Credentials, error) {
	var endpoint, key string
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "endpoint":
			endpoint = v
		case "accesskey":
			key = v
		}
	}
	if endpoint == "" || key == "" {
		return Credentials{}, fmt.Errorf("acs: connection string requires endpoint and accesskey")
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Credentials{}, fmt.Errorf("acs: invalid endpoint %q", endpoint)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return Credentials{}, fmt.Errorf("acs: access key is not base64: %w", err)
	}
	return Credentials{Endpoint: u, AccessKey: raw}, nil
}

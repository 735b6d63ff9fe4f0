package acs

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const signedHeaders = "x-ms-date;host;x-ms-content-sha256"

// signRequest 以 HMAC-SHA256 簽署身份服務的請求.
//
// string-to-sign = VERB\n<path?query>\n<x-ms-date>;<host>;<content-sha256>
func signRequest(req *http.Request, body []byte, key []byte, now time.Time) {
	sum := sha256.Sum256(body)
	contentHash := base64.StdEncoding.EncodeToString(sum[:])
	date := now.UTC().Format(http.TimeFormat)

	pathAndQuery := req.URL.EscapedPath()
	if req.URL.RawQuery != "" {
		pathAndQuery += "?" + req.URL.RawQuery
	}

	var sb strings.Builder
	sb.WriteString(req.Method)
	sb.WriteByte('\n')
	sb.WriteString(pathAndQuery)
	sb.WriteByte('\n')
	sb.WriteString(date)
	sb.WriteByte(';')
	sb.WriteString(req.URL.Host)
	sb.WriteByte(';')
	sb.WriteString(contentHash)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(sb.String()))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", contentHash)
	req.Header.Set("Authorization", "HMAC-SHA256 SignedHeaders="+signedHeaders+"&Signature="+signature)
}

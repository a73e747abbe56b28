// Package security はWebhook送信と生成コンテンツ表示のための安全機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はWebhook送信先の検証と安全なHTTPクライアントの生成を行う。
type SSRFGuardService interface {
	// NewSafeClient はプライベートIP、ループバック、リンクローカル宛ての接続を
	// Dialerレベルで拒否するHTTPクライアントを生成する。
	// portsが空の場合は80と443のみ許可する。
	NewSafeClient(timeout time.Duration, ports ...int) *http.Client

	// ValidateURL はDNS解決を伴わない静的な検証を行う。
	ValidateURL(rawURL string) error
}

var allowedSchemes = []string{"http", "https"}

// blockedNetworks はパッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル（メタデータIP 169.254.169.254 を含む）
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

var _ SSRFGuardService = (*ssrfGuard)(nil)

// NewSafeClient はsafeurlでラップしたHTTPクライアントを返す。
// リダイレクトは追従しない（Webhookは1回のPOSTのみ）。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration, ports ...int) *http.Client {
	if len(ports) == 0 {
		ports = []int{80, 443}
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(ports...).
		Build()

	client := safeurl.Client(config).Client
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return client
}

// ValidateURL はスキーム、ホスト、IPアドレスを静的に検証する。
// DNS再バインディングはNewSafeClient側のDialer検証で防ぐ。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	parsed, err := ParseHTTPURL(rawURL)
	if err != nil {
		return err
	}

	host := parsed.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// ParseHTTPURL はhttp/httpsの絶対URLであることを確認してパース結果を返す。
func ParseHTTPURL(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("empty URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if !isAllowedScheme(parsed.Scheme) {
		return nil, fmt.Errorf("disallowed scheme: %q (allowed: %v)", parsed.Scheme, allowedSchemes)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("empty host in URL: %s", rawURL)
	}
	return parsed, nil
}

// IsHTTPURL はrawURLがhttp/httpsの絶対URLかを返す。
func IsHTTPURL(rawURL string) bool {
	_, err := ParseHTTPURL(rawURL)
	return err == nil
}

// URLPort はURLの明示ポート、なければスキームの既定ポートを返す。
func URLPort(u *url.URL) int {
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	if strings.EqualFold(u.Scheme, "https") {
		return 443
	}
	return 80
}

// Origin はURLのスキームとホスト部分（CSPのソース表現）を返す。
func Origin(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + u.Host
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

package inventory

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/alertsync/alertsync/internal/config"
)

// Certificate states reported by CheckCert.
const (
	CertValid       = "valid"
	CertExpiring    = "expiring"
	CertExpired     = "expired"
	CertUnreachable = "unreachable"
)

// CertExpiryWindow is how close to NotAfter a certificate counts as expiring.
const CertExpiryWindow = 30 * 24 * time.Hour

// CertStatus describes the leaf certificate served by the inventory endpoint.
type CertStatus struct {
	Endpoint string    `json:"endpoint" yaml:"endpoint"`
	AuthMode string    `json:"auth_mode" yaml:"auth_mode"`
	Status   string    `json:"status" yaml:"status"`
	Issuer   string    `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	NotAfter time.Time `json:"not_after,omitempty" yaml:"not_after,omitempty"`
	DaysLeft int       `json:"days_left" yaml:"days_left"`
	Err      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// CheckCert dials the inventory endpoint and inspects its leaf certificate.
// Returns nil for plain-HTTP endpoints.
func CheckCert(ctx context.Context, cfg config.InventoryConfig) *CertStatus {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{Endpoint: cfg.URL, AuthMode: cfg.Auth.Mode}
	if cs.AuthMode == "" {
		cs.AuthMode = "none"
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Verification is skipped here so expired certificates can still be
	// reported; the fetch path verifies according to the config.
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = CertUnreachable
		cs.Err = err.Error()
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		cs.Status = CertUnreachable
		return cs
	}

	leaf := peers[0]
	left := time.Until(leaf.NotAfter)
	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(left.Hours() / 24))

	switch {
	case left <= 0:
		cs.Status = CertExpired
	case left <= CertExpiryWindow:
		cs.Status = CertExpiring
	default:
		cs.Status = CertValid
	}
	return cs
}

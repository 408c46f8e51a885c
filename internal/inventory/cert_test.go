package inventory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alertsync/alertsync/internal/config"
)

func TestCheckCert_PlainHTTP(t *testing.T) {
	if cs := CheckCert(context.Background(), config.InventoryConfig{URL: "http://localhost:8080/actuator/mappings"}); cs != nil {
		t.Errorf("CheckCert(http) = %+v, want nil", cs)
	}
}

func TestCheckCert_TLSServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cs := CheckCert(context.Background(), config.InventoryConfig{
		URL:     srv.URL + "/actuator/mappings",
		Timeout: 2 * time.Second,
	})
	if cs == nil {
		t.Fatal("CheckCert returned nil for https endpoint")
	}
	// The httptest certificate is valid until 2084.
	if cs.Status != CertValid {
		t.Errorf("Status = %q, want %q (err %q)", cs.Status, CertValid, cs.Err)
	}
	if cs.AuthMode != "none" {
		t.Errorf("AuthMode = %q, want none", cs.AuthMode)
	}
	if cs.DaysLeft <= 30 {
		t.Errorf("DaysLeft = %d, want > 30", cs.DaysLeft)
	}
}

func TestCheckCert_Unreachable(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cs := CheckCert(context.Background(), config.InventoryConfig{URL: url, Timeout: time.Second})
	if cs == nil || cs.Status != CertUnreachable {
		t.Fatalf("CheckCert = %+v, want status %q", cs, CertUnreachable)
	}
	if cs.Err == "" {
		t.Error("Err is empty for unreachable endpoint")
	}
}

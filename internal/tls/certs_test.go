/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package tls

import (
	"path/filepath"
	"testing"
)

func TestGenerateSelfSignedCert(t *testing.T) {
	cfg := DefaultCertConfig()
	certPEM, keyPEM, err := GenerateSelfSignedCert(cfg)
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		t.Fatal("expected non-empty cert and key PEM")
	}
}

func TestSaveAndValidateCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "node.crt")
	keyPath := filepath.Join(dir, "node.key")

	certPEM, keyPEM, err := GenerateSelfSignedCert(DefaultCertConfig())
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	if err := SaveCertificates(certPath, keyPath, certPEM, keyPEM); err != nil {
		t.Fatalf("SaveCertificates: %v", err)
	}
	if err := ValidateCertificate(certPath); err != nil {
		t.Fatalf("ValidateCertificate: %v", err)
	}
}

func TestLoadTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "node.crt")
	keyPath := filepath.Join(dir, "node.key")

	certPEM, keyPEM, err := GenerateSelfSignedCert(DefaultCertConfig())
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	if err := SaveCertificates(certPath, keyPath, certPEM, keyPEM); err != nil {
		t.Fatalf("SaveCertificates: %v", err)
	}

	cfg, err := LoadTLSConfig(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadTLSConfig: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("expected one certificate loaded, got %d", len(cfg.Certificates))
	}
}

func TestEnsureCertificatesGeneratesOnce(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "node.crt")
	keyPath := filepath.Join(dir, "node.key")

	if err := EnsureCertificates(certPath, keyPath, DefaultCertConfig()); err != nil {
		t.Fatalf("EnsureCertificates: %v", err)
	}
	// Second call should find existing valid certificates and not error.
	if err := EnsureCertificates(certPath, keyPath, DefaultCertConfig()); err != nil {
		t.Fatalf("EnsureCertificates (second call): %v", err)
	}
}

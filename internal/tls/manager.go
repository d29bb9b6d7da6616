package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"marketing-api/internal/config"
)

// ErrNoCertificate is returned when no certificate source can serve a handshake.
var ErrNoCertificate = errors.New("no TLS certificate available")

// Manager picks a certificate per handshake from ACME, configured files, or
// (outside production) a self-signed development certificate.
type Manager struct {
	cfg        config.ServerConfig
	production bool
	logger     *zap.Logger

	autoCert *autocert.Manager
	fileCert *tls.Certificate
	devCerts *DevCertGenerator

	devOnce sync.Once
	devCert *tls.Certificate
	devErr  error
}

func NewManager(cfg config.ServerConfig, environment string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:        cfg,
		production: environment == "production",
		logger:     logger,
	}

	if cfg.AutoCert {
		if err := m.setupAutoCert(); err != nil {
			return nil, err
		}
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		m.fileCert = &cert
	}

	if !m.production {
		m.devCerts = NewDevCertGenerator(cfg.AutoCertDir, logger)
	}

	return m, nil
}

func (m *Manager) setupAutoCert() error {
	if err := os.MkdirAll(m.cfg.AutoCertDir, 0o700); err != nil {
		return fmt.Errorf("could not create autocert directory: %w", err)
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.cfg.Domain),
		Cache:      autocert.DirCache(m.cfg.AutoCertDir),
		Email:      m.cfg.Email,
	}

	m.logger.Info("AutoCert configured",
		zap.String("domain", m.cfg.Domain),
		zap.String("cache_dir", m.cfg.AutoCertDir))
	return nil
}

func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		m.logger.Warn("AutoCert could not serve handshake", zap.String("server_name", hello.ServerName), zap.Error(err))
	}

	if m.fileCert != nil {
		return m.fileCert, nil
	}

	if m.devCerts != nil {
		return m.developmentCert()
	}

	return nil, ErrNoCertificate
}

func (m *Manager) developmentCert() (*tls.Certificate, error) {
	m.devOnce.Do(func() {
		hosts := []string{"localhost", "127.0.0.1", "::1"}
		if m.cfg.Domain != "" {
			hosts = append(hosts, m.cfg.Domain)
		}
		cert, err := m.devCerts.GenerateCert(hosts)
		if err != nil {
			m.devErr = fmt.Errorf("failed to generate self-signed certificate: %w", err)
			return
		}
		m.devCert = &cert
	})
	return m.devCert, m.devErr
}

func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

// AutocertManager is nil unless ACME is enabled.
func (m *Manager) AutocertManager() *autocert.Manager {
	return m.autoCert
}

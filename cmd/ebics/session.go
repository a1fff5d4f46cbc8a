package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/internal/storage/mongodb"
	"github.com/sirosfoundation/go-ebics/pkg/certificate"
	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

// session bundles what a command needs: the client, its ring and where the ring lives
type session struct {
	cfg    *config.Config
	client *ebics.Client
	ring   *keyring.KeyRing
	store  storage.KeyRingStore
	ringID string
	logger *slog.Logger
}

func openSession(ctx context.Context, stderr io.Writer) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, stderr)

	store, err := openStore(ctx, cfg.KeyRing.Storage)
	if err != nil {
		return nil, err
	}

	id := storage.RingID(cfg.Bank.HostID, cfg.User.PartnerID, cfg.User.UserID)
	ring, err := loadRing(ctx, store, id, cfg.KeyRing.Passphrase)
	if err != nil {
		store.Close(ctx)
		return nil, err
	}

	clientCfg, err := clientConfig(cfg, logger)
	if err != nil {
		store.Close(ctx)
		return nil, err
	}
	client, err := ebics.NewClient(clientCfg, ring, transport.NewHTTPSClient(&transport.HTTPSConfig{
		MinTLSVersion:   transport.TLS12,
		MaxTLSVersion:   transport.TLS13,
		CipherSuites:    transport.RecommendedTLS12CipherSuites,
		Timeout:         cfg.Transport.Timeout,
		IdleConnTimeout: cfg.Transport.Timeout,
		UserAgent:       "go-ebics/" + version,
	}))
	if err != nil {
		store.Close(ctx)
		return nil, err
	}

	logger.Debug("session opened", "ring_id", id, "state", ring.State())
	return &session{
		cfg:    cfg,
		client: client,
		ring:   ring,
		store:  store,
		ringID: id,
		logger: logger,
	}, nil
}

func (s *session) save(ctx context.Context) error {
	blob, err := s.ring.Seal()
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, s.ringID, blob); err != nil {
		return err
	}
	s.logger.Info("key ring saved", "ring_id", s.ringID, "state", s.ring.State())
	return nil
}

func (s *session) close(ctx context.Context) {
	if err := s.store.Close(ctx); err != nil {
		s.logger.Warn("closing key ring store", "error", err)
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.KeyRingStore, error) {
	switch cfg.Type {
	case "mongodb":
		return mongodb.NewStore(ctx, &mongodb.Config{
			URI:        cfg.MongoDB.URI,
			Database:   cfg.MongoDB.Database,
			Collection: cfg.MongoDB.Collection,
		})
	default:
		return storage.NewFileStore(cfg.Directory)
	}
}

// loadRing opens the stored ring or starts an empty one
func loadRing(ctx context.Context, store storage.KeyRingStore, id, passphrase string) (*keyring.KeyRing, error) {
	blob, err := store.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return keyring.New(passphrase)
	}
	if err != nil {
		return nil, err
	}
	return keyring.Open(blob, passphrase)
}

func clientConfig(cfg *config.Config, logger *slog.Logger) (ebics.ClientConfig, error) {
	bank := ebics.Bank{
		URL:                      cfg.Bank.URL,
		HostID:                   cfg.Bank.HostID,
		Certified:                cfg.Bank.Certified,
		IndependentKeySubmission: cfg.Bank.IndependentKeySubmission,
	}
	if d := cfg.Bank.KeyDigests; d != nil {
		auth, enc, err := d.Decode()
		if err != nil {
			return ebics.ClientConfig{}, err
		}
		bank.KeyDigests = &ebics.BankKeyDigests{Authentication: auth, Encryption: enc}
	}
	roots, err := cfg.Bank.LoadTrustedRoots()
	if err != nil {
		return ebics.ClientConfig{}, err
	}
	if roots != nil {
		bank.CertificateValidator = security.NewPoolValidator(roots)
	}

	return ebics.ClientConfig{
		Bank:     bank,
		User:     ebics.User{PartnerID: cfg.User.PartnerID, UserID: cfg.User.UserID},
		Product:  cfg.Product,
		Language: cfg.Language,
		KeySize:  cfg.Keys.Size,
		Subject: certificate.SubjectInfo{
			CommonName:   cfg.Keys.CommonName,
			Organization: cfg.Keys.Organization,
			Country:      cfg.Keys.Country,
		},
		Logger: logger,
	}, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// withSession opens a session, runs fn and closes the session again
func withSession(ctx context.Context, stderr io.Writer, fn func(*session) error) error {
	s, err := openSession(ctx, stderr)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	defer s.close(ctx)
	return fn(s)
}

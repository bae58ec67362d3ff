package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cretz/bine/tor"
	"github.com/cretz/bine/torutil"
	tued25519 "github.com/cretz/bine/torutil/ed25519"
	"github.com/moodmuffin/strangerchat/store"
)

const onionKey = "onionkey"

// torConfig represents the onion service config.
type torConfig struct {
	Enabled bool   `koanf:"enabled"`
	ExePath string `koanf:"exe_path"`
	DataDir string `koanf:"data_dir"`
}

// getOrCreatePK loads the onion service key from the store, generating and
// storing a new one on first use so the .onion address survives restarts.
func getOrCreatePK(st store.Store) (ed25519.PrivateKey, error) {
	d, err := st.Get(onionKey)
	if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		return nil, err
	}

	if len(d) == 0 {
		_, pk, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		b, err := x509.MarshalPKCS8PrivateKey(pk)
		if err != nil {
			return nil, err
		}
		pemEncoded := pem.EncodeToMemory(&pem.Block{Type: "ED25519 PRIVATE KEY", Bytes: b})
		if err := st.Set(onionKey, pemEncoded); err != nil {
			return nil, err
		}
		return pk, nil
	}

	block, _ := pem.Decode(d)
	if block == nil {
		return nil, errors.New("invalid PEM onion key in store")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pk, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("invalid key type %T wanted ed25519.PrivateKey", key)
	}
	return pk, nil
}

// onionAddr returns the v3 onion service ID of a key.
func onionAddr(pk ed25519.PrivateKey) string {
	return torutil.OnionServiceIDFromV3PublicKey(tued25519.PublicKey([]byte(pk.Public().(ed25519.PublicKey))))
}

// serveTor starts a tor process and serves handler as a v3 onion service
// on port 80 until ctx is cancelled.
func serveTor(ctx context.Context, cfg torConfig, st store.Store, handler http.Handler) error {
	pk, err := getOrCreatePK(st)
	if err != nil {
		return fmt.Errorf("error loading onion key: %w", err)
	}

	dir := cfg.DataDir
	if dir == "" {
		d, err := os.MkdirTemp("", "strangerchat-tor")
		if err != nil {
			return err
		}
		defer os.RemoveAll(d)
		dir = d
	}

	t, err := tor.Start(ctx, &tor.StartConf{ExePath: cfg.ExePath, TempDataDirBase: dir, NoHush: true})
	if err != nil {
		return fmt.Errorf("unable to start Tor: %w", err)
	}
	defer t.Close()

	// Wait at most a few minutes to publish the service.
	listenCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()
	onion, err := t.Listen(listenCtx, &tor.ListenConf{Key: pk, Version3: true, RemotePorts: []int{80}})
	if err != nil {
		return fmt.Errorf("unable to create onion service: %w", err)
	}
	defer onion.Close()

	logger.Printf("serving onion service at http://%s.onion", onionAddr(pk))

	srv := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.Serve(onion); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

package meow

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/rs/zerolog"
	wstore "go.mau.fi/whatsmeow/store"

	"wamux/internal/credstore"
)

// appStateKeyStore wraps the device's app-state sync key store and
// mirrors every key into the session's credential rows. Key ids are raw
// bytes on the protocol side; the credential rows use their hex form.
type appStateKeyStore struct {
	inner wstore.AppStateSyncKeyStore
	creds *credstore.Store
	log   zerolog.Logger
}

func newAppStateKeyStore(inner wstore.AppStateSyncKeyStore, creds *credstore.Store, log zerolog.Logger) *appStateKeyStore {
	return &appStateKeyStore{inner: inner, creds: creds, log: log}
}

func (s *appStateKeyStore) PutAppStateSyncKey(ctx context.Context, id []byte, key wstore.AppStateSyncKey) error {
	if err := s.inner.PutAppStateSyncKey(ctx, id, key); err != nil {
		return err
	}

	data, err := json.Marshal(key)
	if err != nil {
		return err
	}
	mirrorErr := s.creds.SetKeys(map[string][]byte{hex.EncodeToString(id): data})
	if mirrorErr != nil {
		// The protocol store stays authoritative; a stale mirror only
		// degrades the credential export.
		s.log.Error().Err(mirrorErr).Msg("failed to mirror app-state sync key")
	}
	return nil
}

func (s *appStateKeyStore) GetAppStateSyncKey(ctx context.Context, id []byte) (*wstore.AppStateSyncKey, error) {
	key, err := s.inner.GetAppStateSyncKey(ctx, id)
	if err == nil && key != nil {
		return key, nil
	}

	rows, mirrorErr := s.creds.GetKeys([]string{hex.EncodeToString(id)})
	if mirrorErr != nil || rows[hex.EncodeToString(id)] == nil {
		return key, err
	}
	var mirrored wstore.AppStateSyncKey
	if jsonErr := json.Unmarshal(rows[hex.EncodeToString(id)], &mirrored); jsonErr != nil {
		return key, err
	}
	return &mirrored, nil
}

func (s *appStateKeyStore) GetLatestAppStateSyncKeyID(ctx context.Context) ([]byte, error) {
	id, err := s.inner.GetLatestAppStateSyncKeyID(ctx)
	if err == nil && id != nil {
		return id, nil
	}

	latest, mirrorErr := s.creds.LatestKeyID()
	if mirrorErr != nil || latest == "" {
		return id, err
	}
	decoded, decodeErr := hex.DecodeString(latest)
	if decodeErr != nil {
		return id, err
	}
	return decoded, nil
}

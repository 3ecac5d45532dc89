package adapters

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"xgos-feed/application"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	StoreKeyUserID       = "user_id"
	StoreKeyUsername     = "user_username"
	StoreKeyMQTTUsername = "user_mqtt_username"
	StoreKeyServerMQTTIP = "server_mqtt_ip"
)

var ErrStorePathEmpty = fmt.Errorf("store path is empty")

type FileCredentialStoreParams struct {
	Path string

	Log zerolog.Logger
}

// FileCredentialStore is a flat key-value store persisted as a YAML document.
type FileCredentialStore struct {
	params FileCredentialStoreParams

	mu     sync.RWMutex
	values map[string]string

	log zerolog.Logger
}

// NewFileCredentialStore loads Path if it exists; a missing file is an empty store.
func NewFileCredentialStore(params FileCredentialStoreParams) (*FileCredentialStore, error) {
	if params.Path == "" {
		return nil, ErrStorePathEmpty
	}

	s := &FileCredentialStore{params: params, values: map[string]string{}, log: params.Log}

	data, err := os.ReadFile(params.Path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parse store %s: %w", params.Path, err)
	}
	if s.values == nil {
		s.values = map[string]string{}
	}
	return s, nil
}

func (s *FileCredentialStore) GetActiveUser() (application.ActiveUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.values[StoreKeyUserID]
	if !ok || userID == "" {
		return application.ActiveUser{}, false
	}
	username, ok := s.values[StoreKeyUsername]
	if !ok {
		return application.ActiveUser{}, false
	}
	return application.ActiveUser{UserID: userID, Username: username}, true
}

// MQTTUsername falls back to the account username.
func (s *FileCredentialStore) MQTTUsername() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v := s.values[StoreKeyMQTTUsername]; v != "" {
		return v
	}
	return s.values[StoreKeyUsername]
}

func (s *FileCredentialStore) BrokerHost() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v := s.values[StoreKeyServerMQTTIP]; v != "" {
		return v
	}
	return application.DefaultBrokerHost
}

func (s *FileCredentialStore) SaveActiveUser(user application.ActiveUser, mqttUsername string) error {
	return s.update(func(values map[string]string) {
		values[StoreKeyUserID] = user.UserID
		values[StoreKeyUsername] = user.Username
		if mqttUsername != "" {
			values[StoreKeyMQTTUsername] = mqttUsername
		}
	})
}

func (s *FileCredentialStore) SaveBrokerHost(host string) error {
	return s.update(func(values map[string]string) {
		values[StoreKeyServerMQTTIP] = host
	})
}

// Clear removes the user keys and keeps server settings.
func (s *FileCredentialStore) Clear() error {
	return s.update(func(values map[string]string) {
		delete(values, StoreKeyUserID)
		delete(values, StoreKeyUsername)
		delete(values, StoreKeyMQTTUsername)
	})
}

func (s *FileCredentialStore) update(f func(values map[string]string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.values)+1)
	for k, v := range s.values {
		next[k] = v
	}
	f(next)

	if err := s.write(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *FileCredentialStore) write(values map[string]string) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.params.Path), 0o700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	tmp := s.params.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.params.Path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}

	s.log.Debug().Str("path", s.params.Path).Msg("store saved")
	return nil
}

var _ application.CredentialStore = &FileCredentialStore{}

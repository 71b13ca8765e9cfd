package securestore

// Keychain abstracts an OS-level secret service (macOS Keychain, Android
// Keystore, a secret-service daemon). The platform composition root supplies
// the implementation; tests use a fake.
type Keychain interface {
	GetSecret(name string) ([]byte, bool, error)
	SetSecret(name string, value []byte) error
	DeleteSecret(name string) error
}

// NativeStore stores secrets directly in an OS keychain. The keychain is
// trusted to encrypt at rest, so this layer adds no crypto of its own.
// Without a keychain present the backend refuses to construct rather than
// degrade to plaintext.
type NativeStore struct {
	keychain Keychain
	prefix   string
}

func NewNativeStore(keychain Keychain, prefix string) (*NativeStore, error) {
	if keychain == nil {
		return nil, ErrStorageUnavailable
	}
	if prefix == "" {
		prefix = "nullspace"
	}
	return &NativeStore{keychain: keychain, prefix: prefix}, nil
}

func (s *NativeStore) Get(key string) ([]byte, bool, error) {
	return s.keychain.GetSecret(s.prefix + "." + key)
}

func (s *NativeStore) Set(key string, value []byte) error {
	return s.keychain.SetSecret(s.prefix+"."+key, value)
}

func (s *NativeStore) Delete(key string) error {
	return s.keychain.DeleteSecret(s.prefix + "." + key)
}

package securestore

import "crypto/rand"

const deviceKeyEntry = "device.key"

// DeviceStore encrypts with a random symmetric key generated once per device
// and persisted (0600) next to the data. It needs no password; the key file
// is as non-extractable as the platform's filesystem permissions allow.
//
// Construction fails fast with ErrStorageUnavailable when the secure RNG or
// the AEAD primitive is unusable; there is no plaintext fallback.
type DeviceStore struct {
	inner KV
	key   []byte
}

func NewDeviceStore(inner KV) (*DeviceStore, error) {
	if inner == nil {
		return nil, ErrStorageUnavailable
	}
	key, ok, err := inner.Get(deviceKeyEntry)
	if err != nil {
		return nil, err
	}
	if !ok || len(key) != KeySize {
		key = make([]byte, KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, ErrStorageUnavailable
		}
		if err := inner.Set(deviceKeyEntry, key); err != nil {
			return nil, err
		}
	}
	// Probe the AEAD once so a broken primitive surfaces at construction.
	if _, err := Seal(key, nil); err != nil {
		return nil, ErrStorageUnavailable
	}
	return &DeviceStore{inner: inner, key: key}, nil
}

func (s *DeviceStore) Get(key string) ([]byte, bool, error) {
	blob, ok, err := s.inner.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	plaintext, err := Open(s.key, blob)
	if err != nil {
		return nil, false, nil
	}
	return plaintext, true, nil
}

func (s *DeviceStore) Set(key string, value []byte) error {
	if key == deviceKeyEntry {
		return ErrStorageUnavailable
	}
	blob, err := Seal(s.key, value)
	if err != nil {
		return err
	}
	return s.inner.Set(key, blob)
}

func (s *DeviceStore) Delete(key string) error {
	if key == deviceKeyEntry {
		return ErrStorageUnavailable
	}
	return s.inner.Delete(key)
}

package store_test

import (
	"testing"

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/store"
	"github.com/ineyio/voicepool/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) voicepool.CredentialStore {
		return store.NewMemoryStore()
	})
}

package gormstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-telemed/internal/repository"
	"github.com/iyunix/go-telemed/internal/repository/storetest"
	"github.com/iyunix/go-telemed/internal/services"
)

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		s, err := Open("sqlite", filepath.Join(t.TempDir(), "backend.db"), &services.NoOpLogger{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		return s
	})
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("TELEMED_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TELEMED_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) repository.Store {
		s, err := Open("postgres", dsn, &services.NoOpLogger{})
		require.NoError(t, err)
		require.NoError(t, s.db.Exec("DELETE FROM documents").Error)
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		return s
	})
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn", &services.NoOpLogger{})
	require.Error(t, err)
}

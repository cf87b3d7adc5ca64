package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/invigilation-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "it's secret", Name: "invigilation"})

	assert.Equal(t, `host=db port=5432 user=app password='it\'s secret' dbname=invigilation sslmode=disable application_name=invigilation-api connect_timeout=5`, dsn)
}

func TestDSNSkipsEmptyValues(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "app", Name: "invigilation", SSLMode: "require"})

	assert.NotContains(t, dsn, "password=")
	assert.Contains(t, dsn, "sslmode=require")
}

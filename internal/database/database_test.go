package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chav-jf/speedy-green-flash/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "greenflash"})
	assert.Equal(t, "host=db user=u password=p dbname=greenflash port=5432 sslmode=disable TimeZone=UTC", dsn)

	dsn = DSN(config.DatabaseConfig{Host: "db", SSLMode: "require"})
	assert.Contains(t, dsn, "sslmode=require")
}

func TestClose_NoDatabase(t *testing.T) {
	DB = nil
	assert.NoError(t, Close())
}

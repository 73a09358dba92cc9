package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSNForms(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "p@ss", Name: "vcf", SSLMode: "disable"}

	assert.Equal(t, "user=bot password=p@ss host=db port=5432 dbname=vcf sslmode=disable", DSN(cfg))
	assert.Equal(t, "postgres://bot:p%40ss@db:5432/vcf?sslmode=disable", URL(cfg))
}

package bootstrap

import (
	"context"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/Atoilah/vcf-confreter/core/config"
)

// Storage is the infrastructure handed to seeders. DB is nil unless the
// postgres backend is selected.
type Storage struct {
	Config *coreconfig.Config
	DB     *sqlx.DB
}

// Close releases the database handle, if any.
func (s Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Seeder loads initial data, such as the first owner, once storage is ready.
type Seeder interface {
	Seed(ctx context.Context, st Storage) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc func(ctx context.Context, st Storage) error

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context, st Storage) error {
	return f(ctx, st)
}

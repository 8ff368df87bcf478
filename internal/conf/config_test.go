package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sqliteSettings() *Settings {
	s := &Settings{}
	s.Store.SQLite.Enabled = true
	s.Store.SQLite.Path = "test.db"
	return s
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "sqlite only", mutate: func(s *Settings) {}},
		{
			name: "no backend enabled",
			mutate: func(s *Settings) {
				s.Store.SQLite.Enabled = false
			},
			wantErr: true,
		},
		{
			name: "two backends enabled",
			mutate: func(s *Settings) {
				s.Store.Badger.Enabled = true
				s.Store.Badger.InMemory = true
			},
			wantErr: true,
		},
		{
			name: "sqlite without path",
			mutate: func(s *Settings) {
				s.Store.SQLite.Path = ""
			},
			wantErr: true,
		},
		{
			name: "mysql without host",
			mutate: func(s *Settings) {
				s.Store.SQLite.Enabled = false
				s.Store.MySQL.Enabled = true
				s.Store.MySQL.Database = "chronostore"
			},
			wantErr: true,
		},
		{
			name: "mysql complete",
			mutate: func(s *Settings) {
				s.Store.SQLite.Enabled = false
				s.Store.MySQL.Enabled = true
				s.Store.MySQL.Database = "chronostore"
				s.Store.MySQL.Host = "localhost"
			},
		},
		{
			name: "badger in memory without path",
			mutate: func(s *Settings) {
				s.Store.SQLite.Enabled = false
				s.Store.Badger.Enabled = true
				s.Store.Badger.InMemory = true
			},
		},
		{
			name: "badger on disk without path",
			mutate: func(s *Settings) {
				s.Store.SQLite.Enabled = false
				s.Store.Badger.Enabled = true
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := sqliteSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

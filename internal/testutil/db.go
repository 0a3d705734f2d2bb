package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/retro_games/internal/config"
	"github.com/Skotchmaster/retro_games/internal/models"
	"github.com/Skotchmaster/retro_games/pkg/hash"
)

// NewDB returns a migrated private in-memory sqlite database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, config.Migrate(db))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, username, role string) models.User {
	t.Helper()

	pw, err := hash.HashPassword("Secret123")
	require.NoError(t, err)
	u := models.User{Username: username, Email: username + "@example.com", PasswordHash: pw, Role: role}
	require.NoError(t, db.WithContext(context.Background()).Create(&u).Error)
	return u
}

func CreateGame(t *testing.T, db *gorm.DB, title, console string, price int64) models.Game {
	t.Helper()

	g := models.Game{
		Title:       title,
		Slug:        Slugish(title),
		Description: title + " description",
		Console:     console,
		RomURL:      "https://emulator.example/embed/" + Slugish(title),
		Price:       price,
		IsActive:    true,
	}
	require.NoError(t, db.Create(&g).Error)
	return g
}

func CreatePlan(t *testing.T, db *gorm.DB, name string, price int64, games ...models.Game) models.Plan {
	t.Helper()

	p := models.Plan{Name: name, Description: name, Price: price, IsActive: true, Games: games}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func Slugish(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			if len(out) > 0 && out[len(out)-1] != '-' {
				out = append(out, '-')
			}
		}
	}
	return string(out)
}

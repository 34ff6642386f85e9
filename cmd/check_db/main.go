package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"teamsync-backend/internal/config"
	"teamsync-backend/internal/database"
	"teamsync-backend/internal/model"
)

// 채팅 저장소 점검: 스키마 적용 후 프로젝트별 메시지 수를 출력한다
func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.LoadDatabase()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid database config")
	}

	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Driver).Msg("failed to connect to database")
	}
	defer database.Close(db)

	fmt.Printf("Connected (%s)\n\n", cfg.Driver)

	table := model.ChatMessage{}.TableName()
	fmt.Printf("Table %s exists: %v\n", table, db.Migrator().HasTable(&model.ChatMessage{}))

	var total int64
	if err := db.Model(&model.ChatMessage{}).Count(&total).Error; err != nil {
		logger.Fatal().Err(err).Msg("failed to count messages")
	}
	fmt.Printf("Messages: %d\n", total)

	type projectCount struct {
		Project string
		Count   int64
	}
	var counts []projectCount
	if err := db.Model(&model.ChatMessage{}).
		Select("project, COUNT(*) AS count").
		Group("project").
		Order("count DESC").
		Limit(20).
		Scan(&counts).Error; err != nil {
		logger.Fatal().Err(err).Msg("failed to group messages")
	}

	if len(counts) == 0 {
		return
	}
	fmt.Println("\nBy project:")
	for _, pc := range counts {
		name := pc.Project
		if name == "" {
			name = "(global)"
		}
		fmt.Printf("  - %-30s %d\n", name, pc.Count)
	}
}

// @title Profense 后端 API
// @version 1.0
// @description Profense AI 辅导平台的后端服务器。

// @contact.name API支持

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"flag"
	"log"

	"profense_backend/internal/app"
	"profense_backend/internal/config"
	"profense_backend/pkg/configwatcher"
	"profense_backend/pkg/logger"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	watch := flag.Bool("watch-config", false, "监听配置文件变化并热加载")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	if *migrateOnly {
		log.Println("数据库迁移完成，退出程序")
		return
	}

	if *watch {
		go configwatcher.WatchConfig("configs/config.yaml", func(newCfg *config.Config) {
			logger.Log.Info("Config reloaded")
			*cfg = *newCfg
		})
	}

	application.Run()
}
